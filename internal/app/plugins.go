package app

import (
	"context"
	"fmt"

	"ForesightX/internal/agent"
	"ForesightX/internal/plugins/movement"
	"ForesightX/pkg/plugin"
)

// initPlugins 注册内置的 movement 插件并启动全部插件。清单文件中同名条目
// 的 config 与 policy 会作用到内置插件上。
func (a *App) initPlugins(ctx context.Context) error {
	managerCfg := plugin.ManagerConfig{Plugins: map[string]plugin.PluginConfig{}}
	if path := a.Config.Plugins.ManifestFile; path != "" {
		loaded, err := plugin.LoadManagerConfig(path)
		if err != nil {
			return err
		}
		managerCfg = loaded
	}

	mgr, err := plugin.NewManager(managerCfg,
		plugin.WithHostVersion(Version),
		plugin.WithResource(movement.ResourceClients, a.Chains),
		plugin.WithResource(movement.ResourceLedger, a.Ledger),
	)
	if err != nil {
		return err
	}
	a.Plugins = mgr

	entry, enabled := managerCfg.Builtin(movement.ID)
	if !enabled {
		a.log.Warn("movement plugin disabled by manifest")
		return mgr.StartAll(ctx)
	}
	pluginCfg := entry.Config
	if len(pluginCfg) == 0 {
		pluginCfg = map[string]any{"network": a.Config.Movement.DefaultNetwork}
	}
	policy := defaultMovementPolicy()
	if entry.Policy != nil {
		policy = *entry.Policy
	}
	if err := mgr.Register(movement.ID, movement.New(), pluginCfg, policy); err != nil {
		return fmt.Errorf("register movement plugin: %w", err)
	}
	return mgr.StartAll(ctx)
}

// defaultMovementPolicy 在清单未给出策略时允许网络访问与签名。
func defaultMovementPolicy() plugin.IsolationPolicy {
	return plugin.IsolationPolicy{
		AllowedCapabilities: []plugin.Capability{plugin.CapabilityNetwork, plugin.CapabilitySigning},
	}
}

// pluginActions 把已启动插件中的动作与 Provider 暴露给智能体。
type pluginActions struct {
	manager *plugin.Manager
}

var _ agent.ActionSource = pluginActions{}

func (p pluginActions) Actions() []agent.Action {
	var actions []agent.Action
	for _, src := range p.sources() {
		actions = append(actions, src.Actions()...)
	}
	return actions
}

func (p pluginActions) Providers() []agent.Provider {
	var providers []agent.Provider
	for _, src := range p.sources() {
		providers = append(providers, src.Providers()...)
	}
	return providers
}

func (p pluginActions) sources() []agent.ActionSource {
	if p.manager == nil {
		return nil
	}
	var out []agent.ActionSource
	for _, pl := range p.manager.Started() {
		if src, ok := pl.(agent.ActionSource); ok {
			out = append(out, src)
		}
	}
	return out
}
