// Package config loads intvrface's configuration: defaults, then
// intvrface.toml, then INTVRFACE_* environment overrides (env wins).
package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Hub     HubConfig     `toml:"hub"`
	Sandbox SandboxConfig `toml:"sandbox"`
	Model   ModelConfig   `toml:"model"`
}

// HubConfig controls the HTTP/websocket surface and on-disk layout.
type HubConfig struct {
	ListenAddr string `toml:"listen_addr"`
	DataRoot   string `toml:"data_root"`
	StaticDir  string `toml:"static_dir"`
	NoVNCDir   string `toml:"novnc_dir"`
}

// SandboxConfig controls container build and readiness behavior.
type SandboxConfig struct {
	DockerHost      string `toml:"docker_host"`
	ImageTag        string `toml:"image_tag"`
	ScreenWidth     int    `toml:"screen_width"`
	ScreenHeight    int    `toml:"screen_height"`
	ReadyPollMillis int    `toml:"ready_poll_millis"`
	ReadyTimeoutSec int    `toml:"ready_timeout_sec"`
}

// ModelConfig controls the model adapter provider.
type ModelConfig struct {
	Provider         string `toml:"provider"`
	Model            string `toml:"model"`
	APIKey           string `toml:"api_key"`
	MaxTokens        int    `toml:"max_tokens"`
	SummaryMaxTokens int    `toml:"summary_max_tokens"`
	MaxWords         int    `toml:"max_words"`
	PreserveLast     int    `toml:"preserve_last"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "/tmp"
	}
	dataRoot := filepath.Join(home, "intvrface")
	return Config{
		Hub: HubConfig{
			ListenAddr: ":8080",
			DataRoot:   dataRoot,
			StaticDir:  "static",
			NoVNCDir:   "static/novnc",
		},
		Sandbox: SandboxConfig{
			ImageTag:        "intvrface-agent:latest",
			ScreenWidth:     1280,
			ScreenHeight:    1024,
			ReadyPollMillis: 200,
			ReadyTimeoutSec: 5,
		},
		Model: ModelConfig{
			Provider:         "claude",
			Model:            "claude-sonnet-4-5",
			MaxTokens:        4096,
			SummaryMaxTokens: 1024,
			MaxWords:         30000,
			PreserveLast:     5,
		},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "intvrface.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	if v := os.Getenv("INTVRFACE_LISTEN_ADDR"); v != "" {
		cfg.Hub.ListenAddr = v
	}
	if v := os.Getenv("INTVRFACE_DATA_ROOT"); v != "" {
		cfg.Hub.DataRoot = v
	}
	if v := os.Getenv("INTVRFACE_DOCKER_HOST"); v != "" {
		cfg.Sandbox.DockerHost = v
	}
	if v := os.Getenv("INTVRFACE_IMAGE_TAG"); v != "" {
		cfg.Sandbox.ImageTag = v
	}
	if v := os.Getenv("INTVRFACE_MODEL_API_KEY"); v != "" {
		cfg.Model.APIKey = v
	}
	if v := os.Getenv("INTVRFACE_MODEL"); v != "" {
		cfg.Model.Model = v
	}

	return cfg
}
