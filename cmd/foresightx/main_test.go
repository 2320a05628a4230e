package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ForesightX/internal/agent"
	"ForesightX/internal/auth"
	"ForesightX/internal/plugins/movement"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func missingConfig(t *testing.T) string {
	return filepath.Join(t.TempDir(), "absent.json")
}

func TestSlugCommand(t *testing.T) {
	out, err := execute(t, "--config", missingConfig(t), "slug", "Will", "ETH", "flip  BTC")
	require.NoError(t, err)
	assert.Equal(t, "will_eth_flip_btc\nhttps://prediction-bice.vercel.app/market/will_eth_flip_btc\n", out)
}

func TestCharacterShowHidesSecrets(t *testing.T) {
	out, err := execute(t, "--config", missingConfig(t), "character", "show", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"name": "ForesightX"`)
	assert.NotContains(t, out, "MOVEMENT_PRIVATE_KEY")
}

func TestTokenCommandMintsVerifiableToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foresightx.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"auth":{"enabled":true,"secret":"cli-secret"}}`), 0o600))

	out, err := execute(t, "--config", path, "token", "ops-bot", "--permissions", auth.PermTasksRead)
	require.NoError(t, err)
	token := strings.SplitN(out, "\n", 2)[0]

	svc, err := auth.NewService(auth.Config{Enabled: true, Secret: "cli-secret", Issuer: "foresightx"})
	require.NoError(t, err)
	subject, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "ops-bot", subject.ID)
	assert.True(t, subject.HasPermission(auth.PermTasksRead))
	assert.False(t, subject.HasPermission(auth.PermMessagesWrite))
}

func TestAccountRequiresKey(t *testing.T) {
	t.Setenv("MOVEMENT_PRIVATE_KEY", "")
	_, err := execute(t, "--config", missingConfig(t), "account")
	assert.ErrorContains(t, err, "MOVEMENT_PRIVATE_KEY")
}

type scriptedProcessor struct {
	replies []string
	result  agent.Result
	err     error
	got     *agent.Memory
}

func (p *scriptedProcessor) Process(ctx context.Context, msg *agent.Memory, cb agent.HandlerCallback) (*agent.Result, error) {
	p.got = msg
	if p.err != nil {
		return nil, p.err
	}
	for _, text := range p.replies {
		_ = cb(ctx, agent.Content{Text: text})
	}
	return &p.result, nil
}

func TestRunMessagePrintsCallbacks(t *testing.T) {
	msgUser, msgRoom, msgTwitterUser = "alice", "", "@alice"
	t.Cleanup(func() { msgUser, msgTwitterUser = "cli", "" })

	p := &scriptedProcessor{
		replies: []string{"Successfully created prediction market!"},
		result:  agent.Result{Action: movement.ActionCreatePredictionMarket, Handled: true, Success: true},
	}
	var out bytes.Buffer
	msg := buildMemory(movement.ActionCreatePredictionMarket, "Will SOL flip ETH?")
	require.NoError(t, runMessage(context.Background(), p, &out, msg))

	assert.Equal(t, "Successfully created prediction market!\n", out.String())
	assert.Equal(t, movement.ActionCreatePredictionMarket, p.got.Content.Action)
	require.NotNil(t, p.got.Context.Twitter)
	assert.Equal(t, "alice", p.got.Context.Twitter.Username)
}

func TestRunMessageReportsFailures(t *testing.T) {
	failed := &scriptedProcessor{
		replies: []string{"Error transferring tokens: insufficient balance"},
		result:  agent.Result{Action: movement.ActionTransfer, Handled: true, Success: false},
	}
	var out bytes.Buffer
	err := runMessage(context.Background(), failed, &out, buildMemory(movement.ActionTransfer, "send 1 MOVE"))
	assert.ErrorContains(t, err, movement.ActionTransfer)
	assert.Contains(t, out.String(), "insufficient balance")

	broken := &scriptedProcessor{err: errors.New("model down")}
	assert.Error(t, runMessage(context.Background(), broken, &out, buildMemory(movement.ActionTransfer, "x")))
}

func TestSendCommandPrintsReplies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/messages", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("wait"))
		assert.Equal(t, "Bearer t0k", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"id":"task-1","status":"succeeded","result":{"reply":"market live","action":"CREATE_PREDICTION_MARKET","handled":true,"success":true}}`))
	}))
	defer srv.Close()

	out, err := execute(t, "--config", missingConfig(t), "send", "--server", srv.URL, "--token", "t0k", "Will", "it", "rain?")
	require.NoError(t, err)
	assert.Equal(t, "market live\n", out)
}

func TestSendCommandPendingTask(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"id":"task-2","status":"pending"}`))
	}))
	defer srv.Close()

	out, err := execute(t, "--config", missingConfig(t), "send", "--server", srv.URL, "--token", "", "hello")
	require.NoError(t, err)
	assert.Equal(t, "task task-2 is pending\n", out)
}

func TestServerURL(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:8080", serverURL("", ":8080"))
	assert.Equal(t, "http://api:9000", serverURL("", "api:9000"))
	assert.Equal(t, "https://x", serverURL("https://x", ":8080"))
}
