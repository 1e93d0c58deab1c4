package config

// Provider exposes per-module configuration sections to the runtime.
// A section is the free-form map under modules.<name> in the app config;
// a nil map means the module has no configuration.
type Provider interface {
	ModuleConfig(module string) map[string]any
}

// AppProvider is the default Provider backed by a loaded Config.
type AppProvider struct {
	cfg *Config
}

// NewAppProvider wraps a loaded configuration as a module config provider.
func NewAppProvider(cfg *Config) *AppProvider {
	return &AppProvider{cfg: cfg}
}

// ModuleConfig returns the raw config map for a module, or nil.
func (p *AppProvider) ModuleConfig(module string) map[string]any {
	if p.cfg == nil || p.cfg.Modules == nil {
		return nil
	}
	return p.cfg.Modules[module]
}

// Config returns the underlying application config.
func (p *AppProvider) Config() *Config {
	return p.cfg
}

// MapProvider is a Provider over a literal map, mostly for tests and
// out-of-process bootstraps.
type MapProvider map[string]map[string]any

// ModuleConfig returns the raw config map for a module, or nil.
func (m MapProvider) ModuleConfig(module string) map[string]any {
	return m[module]
}
