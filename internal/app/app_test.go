package app

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"ForesightX/internal/config"
	"ForesightX/internal/observability/alerting"
	"ForesightX/internal/plugins/movement"
	"ForesightX/pkg/plugin"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default(t.TempDir())
	cfg.LLM.OpenAI.APIKey = "test-key"
	return cfg
}

func actionNames(a *App) []string {
	var names []string
	for _, action := range a.Agent.Actions() {
		names = append(names, action.Name())
	}
	return names
}

func TestNewWiresMemoryStack(t *testing.T) {
	a, err := New(context.Background(), testConfig(t))
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer a.Close()

	names := actionNames(a)
	for _, want := range []string{movement.ActionTransfer, movement.ActionCallContract, movement.ActionCreatePredictionMarket} {
		if !slices.Contains(names, want) {
			t.Fatalf("action %s not registered, got %v", want, names)
		}
	}
	if len(a.Agent.Providers()) != 1 {
		t.Fatalf("expected the wallet provider, got %d providers", len(a.Agent.Providers()))
	}

	statuses := a.Plugins.Statuses()
	if len(statuses) != 1 || statuses[0].State != plugin.StateStarted {
		t.Fatalf("unexpected plugin statuses: %+v", statuses)
	}

	channels := a.alerts.Channels()
	for _, want := range []alerting.Channel{alerting.ChannelLog, alerting.ChannelWS, "metrics"} {
		if !slices.Contains(channels, want) {
			t.Fatalf("alert channel %s missing from %v", want, channels)
		}
	}
	if _, err := os.Stat(a.Config.Runtime.DataDir); err != nil {
		t.Fatalf("data dir not created: %v", err)
	}
}

func TestManifestDisablesMovement(t *testing.T) {
	cfg := testConfig(t)
	manifest := filepath.Join(t.TempDir(), "plugins.yaml")
	if err := os.WriteFile(manifest, []byte("plugins:\n  movement:\n    enabled: false\n"), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	cfg.Plugins.ManifestFile = manifest

	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer a.Close()
	if names := actionNames(a); len(names) != 0 {
		t.Fatalf("expected no actions, got %v", names)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	cases := map[string]func(*config.Config){
		"unknown queue":    func(c *config.Config) { c.TaskQueue.Driver = "kafka" },
		"unknown storage":  func(c *config.Config) { c.Storage.Driver = "oracle" },
		"unknown provider": func(c *config.Config) { c.LLM.Provider = "bard" },
		"missing api key": func(c *config.Config) {
			c.LLM.OpenAI.APIKey = ""
			c.LLM.OpenAI.APIKeyEnv = "FORESIGHTX_TEST_UNSET_KEY"
		},
		"auth without secret": func(c *config.Config) { c.Auth.Enabled = true },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig(t)
			mutate(cfg)
			if a, err := New(context.Background(), cfg); err == nil {
				a.Close()
				t.Fatal("expected an error")
			}
		})
	}
}

func TestNewWithSQLiteStorage(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Driver = "sqlite"
	cfg.Storage.DSN = "file:" + filepath.Join(t.TempDir(), "foresightx.db")

	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer a.Close()

	stats, err := a.Tasks.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 0 {
		t.Fatalf("expected empty store, got %+v", stats)
	}
}
