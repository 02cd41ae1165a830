package config

type Config struct {
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Log           LogConfig           `yaml:"log" mapstructure:"log"`
	Web           WebConfig           `yaml:"web" mapstructure:"web"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
	Runtime       RuntimeConfig       `yaml:"runtime" mapstructure:"runtime"`
	Loader        LoaderConfig        `yaml:"loader" mapstructure:"loader"`
	Placeholder   PlaceholderConfig   `yaml:"placeholder" mapstructure:"placeholder"`
	Share         ShareConfig         `yaml:"share" mapstructure:"share"`
	Database      DatabaseConfig      `yaml:"database" mapstructure:"database"`
}

// ServerConfig addresses the websocket runtime endpoint.
type ServerConfig struct {
	IP   string `yaml:"ip" mapstructure:"ip"`
	Port int    `yaml:"port" mapstructure:"port"`
}

type LogConfig struct {
	Level string `yaml:"log_level" mapstructure:"log_level"`
	Dir   string `yaml:"log_dir" mapstructure:"log_dir"`
	File  string `yaml:"log_file" mapstructure:"log_file"`
}

// WebConfig addresses the HTTP API and static asset server.
type WebConfig struct {
	Enabled   bool   `yaml:"enabled" mapstructure:"enabled"`
	Port      int    `yaml:"port" mapstructure:"port"`
	StaticDir string `yaml:"static_dir" mapstructure:"static_dir"`
}

type ObservabilityConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// RuntimeConfig describes the synthetic viewport story documents are
// evaluated against when a session does not report its own.
type RuntimeConfig struct {
	// ExperimentalPassthrough forwards srcset/src/sizes mutations to the
	// rendered element instead of re-running source selection.
	ExperimentalPassthrough bool    `yaml:"experimental_passthrough" mapstructure:"experimental_passthrough"`
	ViewportWidth           int     `yaml:"viewport_width" mapstructure:"viewport_width"`
	DPR                     float64 `yaml:"dpr" mapstructure:"dpr"`
}

// LoaderConfig tunes image fetching and the progressive-reveal dwell.
type LoaderConfig struct {
	DwellProfile    string      `yaml:"dwell_profile" mapstructure:"dwell_profile"`
	DwellBaseMs     int         `yaml:"dwell_base_ms" mapstructure:"dwell_base_ms"`
	PreDelayMs      int         `yaml:"pre_delay_ms" mapstructure:"pre_delay_ms"`
	FadeMs          int         `yaml:"fade_ms" mapstructure:"fade_ms"`
	MaxFileSize     int64       `yaml:"max_file_size" mapstructure:"max_file_size"`
	MaxPixels       int64       `yaml:"max_pixels" mapstructure:"max_pixels"`
	MaxWidth        int         `yaml:"max_width" mapstructure:"max_width"`
	MaxHeight       int         `yaml:"max_height" mapstructure:"max_height"`
	PrefetchWorkers int         `yaml:"prefetch_workers" mapstructure:"prefetch_workers"`
	Cache           CacheConfig `yaml:"cache" mapstructure:"cache"`
}

// CacheConfig selects the fetch-result cache driver.
type CacheConfig struct {
	Driver     string           `yaml:"driver" mapstructure:"driver"`
	TTLSeconds int              `yaml:"ttl_seconds" mapstructure:"ttl_seconds"`
	Redis      RedisCacheConfig `yaml:"redis,omitempty" mapstructure:"redis"`
}

type RedisCacheConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Username string `yaml:"username,omitempty" mapstructure:"username"`
	Password string `yaml:"password,omitempty" mapstructure:"password"`
	DB       int    `yaml:"db,omitempty" mapstructure:"db"`
	Prefix   string `yaml:"key_prefix,omitempty" mapstructure:"key_prefix"`
}

// PlaceholderConfig tunes the blurred mosaic placeholders.
type PlaceholderConfig struct {
	BlurEnabled   bool `yaml:"blur_enabled" mapstructure:"blur_enabled"`
	DetachDelayMs int  `yaml:"detach_delay_ms" mapstructure:"detach_delay_ms"`
	MaxCanvas     int  `yaml:"max_canvas" mapstructure:"max_canvas"`
}

// ShareConfig signs story share links. The secret may also come from the
// STORYVIEW_SHARE_SECRET environment variable.
type ShareConfig struct {
	Secret   string `yaml:"secret" mapstructure:"secret"`
	TTLHours int    `yaml:"ttl_hours" mapstructure:"ttl_hours"`
}

type DatabaseConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}
