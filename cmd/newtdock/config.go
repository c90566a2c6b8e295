package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/newtdock/internal/protocol/frame"
	"github.com/danmuck/newtdock/internal/protocol/session"
)

// Config is the resolved CLI configuration.
type Config struct {
	Session       session.Config
	TraceDir      string
	MetricsAddr   string
	Framed        bool
	MaxFrameBytes int
}

func defaultConfig() Config {
	return Config{
		Session:       session.DefaultConfig(),
		MaxFrameBytes: frame.DefaultLimits().MaxPayloadBytes,
	}
}

type fileConfig struct {
	SessionKind     string `toml:"session_kind"`
	TimeoutSeconds  int32  `toml:"timeout_seconds"`
	ProtocolVersion int32  `toml:"protocol_version"`
	Icons           int32  `toml:"icons"`
	TraceDir        string `toml:"trace_dir"`
	MetricsAddr     string `toml:"metrics_addr"`
	Framed          bool   `toml:"framed"`
	MaxFrameBytes   int    `toml:"max_frame_bytes"`
}

func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load newtdock config: %w", err)
	}

	if meta.IsDefined("session_kind") {
		kind, err := session.ParseKind(strings.TrimSpace(raw.SessionKind))
		if err != nil {
			return Config{}, fmt.Errorf("parse session_kind: %w", err)
		}
		cfg.Session.Kind = kind
	}

	if meta.IsDefined("timeout_seconds") {
		cfg.Session.TimeoutSeconds = raw.TimeoutSeconds
	}

	if meta.IsDefined("protocol_version") {
		cfg.Session.ProtocolVersion = raw.ProtocolVersion
	}

	if meta.IsDefined("icons") {
		cfg.Session.Icons = raw.Icons
	}

	if meta.IsDefined("trace_dir") {
		cfg.TraceDir = strings.TrimSpace(raw.TraceDir)
	}

	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}

	if meta.IsDefined("framed") {
		cfg.Framed = raw.Framed
	}

	if meta.IsDefined("max_frame_bytes") {
		if raw.MaxFrameBytes <= 0 {
			return Config{}, fmt.Errorf("parse max_frame_bytes: must be positive, got %d", raw.MaxFrameBytes)
		}
		cfg.MaxFrameBytes = raw.MaxFrameBytes
	}

	if err := cfg.Session.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
