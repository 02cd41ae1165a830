package config

// DefaultConfig returns the built-in configuration used when no config
// file is present. Every loaded file is merged on top of these values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			IP:   "0.0.0.0",
			Port: 8000,
		},
		Log: LogConfig{
			Level: "INFO",
			Dir:   "data/logs",
			File:  "server.log",
		},
		Web: WebConfig{
			Enabled:   true,
			Port:      8080,
			StaticDir: "static",
		},
		Observability: ObservabilityConfig{
			Enabled: true,
		},
		Runtime: RuntimeConfig{
			ExperimentalPassthrough: false,
			ViewportWidth:           412,
			DPR:                     1.0,
		},
		Loader: LoaderConfig{
			DwellProfile:    "standard",
			DwellBaseMs:     1200,
			PreDelayMs:      2000,
			FadeMs:          1000,
			MaxFileSize:     5 * 1024 * 1024,
			MaxPixels:       16777216, // 4096 x 4096
			MaxWidth:        4096,
			MaxHeight:       4096,
			PrefetchWorkers: 2,
			Cache: CacheConfig{
				Driver:     "memory",
				TTLSeconds: 3600,
				Redis: RedisCacheConfig{
					Addr:   "localhost:6379",
					DB:     0,
					Prefix: "storyview:cache:",
				},
			},
		},
		Placeholder: PlaceholderConfig{
			BlurEnabled:   true,
			DetachDelayMs: 500,
			MaxCanvas:     256,
		},
		Share: ShareConfig{
			Secret:   "",
			TTLHours: 72,
		},
		Database: DatabaseConfig{
			Path: "data/storyview.db",
		},
	}
}
