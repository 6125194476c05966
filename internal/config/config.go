package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Web   WebConfig  `yaml:"web"`
	Data  DataConfig `yaml:"data"`
	Scan  ScanConfig `yaml:"scan"`
	Debug bool       `yaml:"debug"`
}

type WebConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

type DataConfig struct {
	Dir string `yaml:"dir"`
}

type ScanConfig struct {
	ProbeTimeout      time.Duration `yaml:"probe_timeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

// Load reads configuration from the environment (a local .env file is
// honored when present), then applies the optional scanhound.yaml
// overlay on top. YAML keys that are absent leave the env values alone.
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := &Config{
		Web: WebConfig{
			ListenAddr: envOr("WEB_LISTEN_ADDR", ":8081"),
		},
		Data: DataConfig{
			Dir: envOr("DATA_DIR", "data"),
		},
		Scan: ScanConfig{
			ProbeTimeout:      envDuration("PROBE_TIMEOUT", 30*time.Second),
			HeartbeatInterval: envDuration("HEARTBEAT_INTERVAL", 10*time.Second),
		},
		Debug: os.Getenv("DEBUG") == "true",
	}

	path := envOr("SCANHOUND_CONFIG", "scanhound.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
