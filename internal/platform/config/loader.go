package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"storyview-server-go/internal/platform/errors"
)

// EnvConfigPath overrides the config file location when set.
const EnvConfigPath = "STORYVIEW_CONFIG"

// EnvShareSecret supplies the share-link signing secret without putting
// it in the config file.
const EnvShareSecret = "STORYVIEW_SHARE_SECRET"

var defaultConfigPaths = []string{".config.yaml", "config.yaml"}

// Loader reads the yaml configuration, merged over DefaultConfig.
type Loader struct {
	useDotEnv bool
	path      string
}

func NewLoader() *Loader {
	return &Loader{
		useDotEnv: true,
	}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// WithPath pins the config file location (useful for tests).
func (l *Loader) WithPath(path string) *Loader {
	if path != "" {
		l.path = path
	}
	return l
}

// Result captures the loaded configuration and its origin path.
type Result struct {
	Config *Config
	Path   string
}

// Load reads and validates the configuration. A missing config file is
// not an error; the defaults are used and Path reports "builtin".
func (l *Loader) Load() (*Result, error) {
	if l.useDotEnv {
		if err := godotenv.Load(); err != nil {
			fmt.Println("no .env file found, using system environment")
		}
	}

	cfg := DefaultConfig()
	path := "builtin"

	candidate := l.resolvePath()
	if candidate != "" {
		data, err := os.ReadFile(candidate)
		if err != nil {
			return nil, errors.Wrap(errors.KindConfig, "config.load", "read config file", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(errors.KindConfig, "config.load", "parse config file", err)
		}
		path = candidate
	}

	if secret := os.Getenv(EnvShareSecret); secret != "" {
		cfg.Share.Secret = secret
	}

	if err := l.validate(cfg); err != nil {
		return nil, err
	}

	return &Result{
		Config: cfg,
		Path:   path,
	}, nil
}

// resolvePath returns the config file to read, or "" when none exists.
func (l *Loader) resolvePath() string {
	if l.path != "" {
		return l.path
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env
	}
	for _, p := range defaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func (l *Loader) validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return errors.New(errors.KindConfig, "config.validate",
			fmt.Sprintf("server port %d out of range", cfg.Server.Port))
	}
	if cfg.Web.Enabled && (cfg.Web.Port < 1 || cfg.Web.Port > 65535) {
		return errors.New(errors.KindConfig, "config.validate",
			fmt.Sprintf("web port %d out of range", cfg.Web.Port))
	}
	switch cfg.Loader.DwellProfile {
	case "standard", "animated":
	default:
		return errors.New(errors.KindConfig, "config.validate",
			fmt.Sprintf("unknown dwell profile %q", cfg.Loader.DwellProfile))
	}
	if cfg.Loader.DwellBaseMs < 0 || cfg.Loader.PreDelayMs < 0 || cfg.Loader.FadeMs < 0 {
		return errors.New(errors.KindConfig, "config.validate", "dwell timings must not be negative")
	}
	if cfg.Loader.MaxFileSize <= 0 || cfg.Loader.MaxPixels <= 0 {
		return errors.New(errors.KindConfig, "config.validate", "loader size limits must be positive")
	}
	if cfg.Loader.MaxWidth <= 0 || cfg.Loader.MaxHeight <= 0 {
		return errors.New(errors.KindConfig, "config.validate", "loader dimension limits must be positive")
	}
	if cfg.Loader.PrefetchWorkers < 0 {
		return errors.New(errors.KindConfig, "config.validate", "prefetch workers must not be negative")
	}
	switch cfg.Loader.Cache.Driver {
	case "memory", "redis", "sqlite":
	default:
		return errors.New(errors.KindConfig, "config.validate",
			fmt.Sprintf("unknown cache driver %q", cfg.Loader.Cache.Driver))
	}
	if cfg.Placeholder.MaxCanvas <= 0 {
		return errors.New(errors.KindConfig, "config.validate", "placeholder max_canvas must be positive")
	}
	if cfg.Placeholder.DetachDelayMs < 0 {
		return errors.New(errors.KindConfig, "config.validate", "placeholder detach_delay_ms must not be negative")
	}
	if cfg.Runtime.ViewportWidth <= 0 {
		return errors.New(errors.KindConfig, "config.validate", "runtime viewport_width must be positive")
	}
	if cfg.Runtime.DPR <= 0 {
		return errors.New(errors.KindConfig, "config.validate", "runtime dpr must be positive")
	}
	return nil
}
