package lookup

import "github.com/brojonat/nftex/service/config"

// ConfigFrom applies the application config on top of DefaultConfig.
func ConfigFrom(cfg *config.Config) Config {
	out := DefaultConfig(cfg.LookupURL)
	if cfg.LookupPath != "" {
		out.Path = cfg.LookupPath
	}
	if cfg.LookupTimeout > 0 {
		out.Timeout = cfg.LookupTimeout
	}
	return out
}
