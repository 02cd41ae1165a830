package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoader_Load(t *testing.T) {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, ".config.yaml")

	configContent := `
server:
  ip: "127.0.0.1"
  port: 8080
log:
  log_level: "DEBUG"
  log_dir: "/tmp/logs"
  log_file: "test.log"
web:
  enabled: true
  port: 8081
loader:
  dwell_base_ms: 100
  cache:
    driver: "memory"
`

	err := os.WriteFile(configFile, []byte(configContent), 0644)
	if err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	loader := NewLoader().WithDotEnv(false).WithPath(configFile)
	res, err := loader.Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	cfg := res.Config
	if cfg.Server.IP != "127.0.0.1" {
		t.Errorf("expected server IP 127.0.0.1, got %s", cfg.Server.IP)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected server port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Log.Level != "DEBUG" {
		t.Errorf("expected log level DEBUG, got %s", cfg.Log.Level)
	}
	if cfg.Loader.DwellBaseMs != 100 {
		t.Errorf("expected dwell base 100, got %d", cfg.Loader.DwellBaseMs)
	}
	// Omitted keys keep their defaults.
	if cfg.Loader.MaxFileSize != 5*1024*1024 {
		t.Errorf("expected default max file size, got %d", cfg.Loader.MaxFileSize)
	}
	if cfg.Placeholder.DetachDelayMs != 500 {
		t.Errorf("expected default detach delay, got %d", cfg.Placeholder.DetachDelayMs)
	}
	if res.Path != configFile {
		t.Errorf("expected path %s, got %s", configFile, res.Path)
	}
}

func TestLoader_LoadMissingFileUsesDefaults(t *testing.T) {
	tempDir := t.TempDir()
	oldWd, _ := os.Getwd()
	os.Chdir(tempDir)
	defer os.Chdir(oldWd)

	res, err := NewLoader().WithDotEnv(false).Load()
	if err != nil {
		t.Fatalf("failed to load defaults: %v", err)
	}
	if res.Path != "builtin" {
		t.Errorf("expected builtin path, got %s", res.Path)
	}
	if res.Config.Server.Port != 8000 {
		t.Errorf("expected default server port 8000, got %d", res.Config.Server.Port)
	}
}

func TestLoader_ShareSecretFromEnv(t *testing.T) {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, ".config.yaml")
	if err := os.WriteFile(configFile, []byte("server:\n  port: 8000\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	t.Setenv(EnvShareSecret, "env-secret")
	res, err := NewLoader().WithDotEnv(false).WithPath(configFile).Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if res.Config.Share.Secret != "env-secret" {
		t.Errorf("expected share secret from env, got %q", res.Config.Share.Secret)
	}
}

func TestLoader_Validate(t *testing.T) {
	loader := NewLoader()

	valid := func() *Config { return DefaultConfig() }

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "invalid server port",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "invalid web port",
			mutate:  func(c *Config) { c.Web.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "unknown dwell profile",
			mutate:  func(c *Config) { c.Loader.DwellProfile = "frantic" },
			wantErr: true,
		},
		{
			name:    "unknown cache driver",
			mutate:  func(c *Config) { c.Loader.Cache.Driver = "etcd" },
			wantErr: true,
		},
		{
			name:    "negative dwell base",
			mutate:  func(c *Config) { c.Loader.DwellBaseMs = -1 },
			wantErr: true,
		},
		{
			name:    "zero max canvas",
			mutate:  func(c *Config) { c.Placeholder.MaxCanvas = 0 },
			wantErr: true,
		},
		{
			name:    "zero viewport width",
			mutate:  func(c *Config) { c.Runtime.ViewportWidth = 0 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := loader.validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
