package plugin

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlugin struct {
	info    Info
	calls   []string
	network string
	policy  IsolationPolicy
	failOn  string
}

func (f *fakePlugin) Info() Info { return f.info }

func (f *fakePlugin) Configure(cfg map[string]any) error {
	f.calls = append(f.calls, "configure")
	if _, ok := cfg["network"]; !ok {
		cfg["network"] = "bardock"
	}
	return nil
}

func (f *fakePlugin) Init(ctx *ExecutionContext) error {
	f.calls = append(f.calls, "init")
	f.network = ctx.String("network", "")
	f.policy = ctx.Policy
	return nil
}

func (f *fakePlugin) Start(*ExecutionContext) error {
	f.calls = append(f.calls, "start")
	if f.failOn == "start" {
		return errors.New("boom")
	}
	return nil
}

func (f *fakePlugin) Stop(*ExecutionContext) error {
	f.calls = append(f.calls, "stop")
	return nil
}

func TestManagerLifecycle(t *testing.T) {
	m, err := NewManager(ManagerConfig{}, WithResource("agent", "runtime"))
	require.NoError(t, err)

	first := &fakePlugin{info: Info{Name: "movement", Version: "1.2.0", Requires: ">= 0.1.0", Category: TypeAction}}
	second := &fakePlugin{info: Info{Name: "extra", Version: "0.0.1"}}
	require.NoError(t, m.Register("movement", first, nil, IsolationPolicy{}))
	require.NoError(t, m.Register("extra", second, map[string]any{"network": "mainnet"}, IsolationPolicy{}))
	assert.Error(t, m.Register("movement", first, nil, IsolationPolicy{}), "duplicate id")

	require.NoError(t, m.StartAll(context.Background()))
	assert.Equal(t, []string{"configure", "init", "start"}, first.calls)
	assert.Equal(t, "bardock", first.network)
	assert.Equal(t, "mainnet", second.network)

	started := m.Started()
	require.Len(t, started, 2)
	assert.Same(t, first, started[0])

	state, err := m.State("movement")
	require.NoError(t, err)
	assert.Equal(t, StateStarted, state)

	statuses := m.Statuses()
	require.Len(t, statuses, 2)
	assert.Equal(t, "extra", statuses[0].Info.ID)
	assert.Equal(t, "builtin", statuses[0].Source)

	require.NoError(t, m.StopAll(context.Background()))
	assert.Empty(t, m.Started())
	assert.Equal(t, "stop", first.calls[len(first.calls)-1])
}

func TestManagerRejectsIncompatiblePlugins(t *testing.T) {
	m, err := NewManager(ManagerConfig{}, WithHostVersion("0.1.0"))
	require.NoError(t, err)

	err = m.Register("future", &fakePlugin{info: Info{Requires: ">= 2.0.0"}}, nil, IsolationPolicy{})
	assert.ErrorContains(t, err, "requires host")

	err = m.Register("badver", &fakePlugin{info: Info{Version: "not-a-version"}}, nil, IsolationPolicy{})
	assert.ErrorContains(t, err, "invalid version")

	err = m.Register("mismatch", &fakePlugin{info: Info{ID: "other"}}, nil, IsolationPolicy{})
	assert.ErrorContains(t, err, "id mismatch")
}

func TestManagerEnforcesPolicies(t *testing.T) {
	m, err := NewManager(ManagerConfig{Defaults: IsolationPolicy{DeniedCapabilities: []Capability{CapabilityExecution}}})
	require.NoError(t, err)

	signer := &fakePlugin{info: Info{Capabilities: []Capability{CapabilityNetwork, CapabilitySigning}}}
	err = m.Register("signer", signer, nil, IsolationPolicy{AllowedCapabilities: []Capability{CapabilityNetwork}})
	assert.ErrorContains(t, err, "not permitted")

	err = m.Register("exec", &fakePlugin{info: Info{Capabilities: []Capability{CapabilityExecution}}}, nil, IsolationPolicy{})
	assert.ErrorContains(t, err, "explicitly denied")

	policy := IsolationPolicy{AllowedCapabilities: []Capability{CapabilityNetwork, CapabilitySigning}, AllowedNetworks: []string{"bardock"}}
	require.NoError(t, m.Register("signer", signer, nil, policy))
	require.NoError(t, m.Start(context.Background(), "signer"))
	assert.True(t, signer.policy.AllowsNetwork("Bardock"))
	assert.False(t, signer.policy.AllowsNetwork("mainnet"))
	assert.Equal(t, []Capability{CapabilityExecution}, signer.policy.DeniedCapabilities)
}

func TestSigningRequiresPolicy(t *testing.T) {
	m, err := NewManager(ManagerConfig{})
	require.NoError(t, err)
	err = m.Register("signer", &fakePlugin{info: Info{Capabilities: []Capability{CapabilitySigning}}}, nil, IsolationPolicy{})
	assert.ErrorContains(t, err, "require an isolation policy")
}

func TestStartFailureKeepsPluginStopped(t *testing.T) {
	m, err := NewManager(ManagerConfig{})
	require.NoError(t, err)
	p := &fakePlugin{failOn: "start"}
	require.NoError(t, m.Register("broken", p, nil, IsolationPolicy{}))
	assert.Error(t, m.StartAll(context.Background()))
	state, _ := m.State("broken")
	assert.Equal(t, StateInitialised, state)
	assert.Empty(t, m.Started())
}

func TestLoadManagerConfigAndLoader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plugins.yaml")
	manifest := `
pluginDir: /opt/foresightx/plugins
defaults:
  allowedCapabilities: [network, signing]
plugins:
  movement:
    enabled: true
    config:
      network: mainnet
    policy:
      allowedNetworks: [mainnet]
  external:
    enabled: true
    path: external.so
`
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0o644))
	cfg, err := LoadManagerConfig(path)
	require.NoError(t, err)

	builtin, ok := cfg.Builtin("movement")
	require.True(t, ok)
	assert.Equal(t, "mainnet", builtin.Config["network"])
	assert.Equal(t, []string{"mainnet"}, builtin.Policy.AllowedNetworks)
	_, ok = cfg.Builtin("external")
	assert.False(t, ok, "entries with a path are loaded, not builtin")
	missing, ok := cfg.Builtin("absent")
	assert.True(t, ok)
	assert.True(t, missing.Enabled)

	var loaded []string
	loader := LoaderFunc(func(p string) (Plugin, error) {
		loaded = append(loaded, p)
		return &fakePlugin{}, nil
	})
	m, err := NewManager(cfg, WithLoader(loader))
	require.NoError(t, err)
	assert.Equal(t, []string{"/opt/foresightx/plugins/external.so"}, loaded)
	state, err := m.State("external")
	require.NoError(t, err)
	assert.Equal(t, StateRegistered, state)

	_, err = NewManager(ManagerConfig{Plugins: map[string]PluginConfig{"x": {Policy: &IsolationPolicy{AllowedCapabilities: []Capability{"teleport"}}}}})
	assert.ErrorContains(t, err, "unknown capability")
}
