package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/hpetrik/chatproto/internal/client"
)

// runConfig is everything the command needs to reach a server: the endpoint,
// the transport selection, and the engine's reliability settings.
type runConfig struct {
	Host      string
	Port      uint16
	Transport string
	Client    client.Config
}

func defaultRunConfig() runConfig {
	return runConfig{
		Host:      "localhost",
		Port:      4567,
		Transport: "tcp",
		Client:    client.DefaultConfig(),
	}
}

type fileConfig struct {
	Host             string `toml:"host"`
	Port             int    `toml:"port"`
	Transport        string `toml:"transport"`
	ConfirmTimeout   string `toml:"confirm_timeout"`
	ConfirmTimeoutMS int64  `toml:"confirm_timeout_ms"`
	MaxRetries       int    `toml:"max_retries"`
	DialTimeout      string `toml:"dial_timeout"`
	ShutdownTimeout  string `toml:"shutdown_timeout"`
}

func loadRunConfig(path string) (runConfig, error) {
	cfg := defaultRunConfig()
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return runConfig{}, fmt.Errorf("load config: %w", err)
	}

	if meta.IsDefined("host") {
		host := strings.TrimSpace(raw.Host)
		if host != "" {
			cfg.Host = host
		}
	}

	if meta.IsDefined("port") {
		if raw.Port < 1 || raw.Port > 65535 {
			return runConfig{}, fmt.Errorf("port out of range: %d", raw.Port)
		}
		cfg.Port = uint16(raw.Port)
	}

	if meta.IsDefined("transport") {
		t := strings.ToLower(strings.TrimSpace(raw.Transport))
		if t != "tcp" && t != "udp" {
			return runConfig{}, fmt.Errorf("unknown transport: %q", raw.Transport)
		}
		cfg.Transport = t
	}

	if meta.IsDefined("confirm_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ConfirmTimeout))
		if err != nil {
			return runConfig{}, fmt.Errorf("parse confirm_timeout: %w", err)
		}
		cfg.Client.ConfirmTimeout = d
	}

	if meta.IsDefined("confirm_timeout_ms") {
		cfg.Client.ConfirmTimeout = time.Duration(raw.ConfirmTimeoutMS) * time.Millisecond
	}

	if meta.IsDefined("max_retries") {
		if raw.MaxRetries < 0 {
			return runConfig{}, fmt.Errorf("max_retries must not be negative: %d", raw.MaxRetries)
		}
		cfg.Client.MaxRetries = raw.MaxRetries
	}

	if meta.IsDefined("dial_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.DialTimeout))
		if err != nil {
			return runConfig{}, fmt.Errorf("parse dial_timeout: %w", err)
		}
		cfg.Client.DialTimeout = d
	}

	if meta.IsDefined("shutdown_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ShutdownTimeout))
		if err != nil {
			return runConfig{}, fmt.Errorf("parse shutdown_timeout: %w", err)
		}
		cfg.Client.ShutdownStageTimeout = d
	}

	return cfg, nil
}
