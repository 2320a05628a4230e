package pythonbridge

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	xerrors "ForesightX/internal/errors"
	"ForesightX/internal/llm"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	path := filepath.Join(t.TempDir(), "bridge.sh")
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestGenerateReadsText(t *testing.T) {
	script := writeScript(t, "#!/bin/sh\ncat > /dev/null\necho '{\"text\":\"  gm from ForesightX  \",\"model\":\"local\"}'\n")
	client, err := NewClient("sh", script, "")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	resp, err := client.Generate(context.Background(), llm.Request{Prompt: "hello", Class: llm.ModelSmall})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Text != "gm from ForesightX" || resp.Model != "local" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestGenerateEchoesPrompt(t *testing.T) {
	// 脚本仅在收到 prompt=ping 时返回 pong。
	script := writeScript(t, "#!/bin/sh\ninput=$(cat)\ncase \"$input\" in *'\"prompt\":\"ping\"'*) echo '{\"reply\":\"pong\"}';; *) echo '{\"error\":\"bad input\"}';; esac\n")
	client, _ := NewClient("sh", script, "")
	resp, err := client.Generate(context.Background(), llm.Request{Prompt: "ping"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Text != "pong" {
		t.Fatalf("unexpected text: %q", resp.Text)
	}
}

func TestGenerateFailures(t *testing.T) {
	failing := writeScript(t, "#!/bin/sh\necho oops >&2\nexit 3\n")
	client, _ := NewClient("sh", failing, "")
	_, err := client.Generate(context.Background(), llm.Request{Prompt: "x"})
	if xerrors.CodeOf(err) != xerrors.CodeModelFailure {
		t.Fatalf("expected model failure, got %v", err)
	}

	garbage := writeScript(t, "#!/bin/sh\necho not-json\n")
	client, _ = NewClient("sh", garbage, "")
	_, err = client.Generate(context.Background(), llm.Request{Prompt: "x"})
	if err == nil || xerrors.RetryableError(err) {
		t.Fatalf("garbage output should be a non-retryable failure, got %v", err)
	}
}

func TestNewClientRequiresScript(t *testing.T) {
	if _, err := NewClient("", "", ""); err == nil {
		t.Fatalf("expected error without script")
	}
}

func TestResolveScriptPath(t *testing.T) {
	if got := ResolveScriptPath("/srv", "bridge.py"); got != "/srv/bridge.py" {
		t.Fatalf("unexpected path: %s", got)
	}
	if got := ResolveScriptPath("/srv", "/opt/bridge.py"); got != "/opt/bridge.py" {
		t.Fatalf("absolute path should be kept: %s", got)
	}
}
