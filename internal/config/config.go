// Package config loads server settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is everything the server binary needs to start. Every field has a
// workable default so a bare `server` runs a local world.
type Config struct {
	Addr         string        `env:"EMBERFALL_ADDR" envDefault:":8080"`
	DatabasePath string        `env:"EMBERFALL_DB" envDefault:"emberfall.db"`
	LogPath      string        `env:"EMBERFALL_LOG" envDefault:""`
	LogLevel     string        `env:"EMBERFALL_LOG_LEVEL" envDefault:"info"`
	MapWidth     int           `env:"EMBERFALL_MAP_WIDTH" envDefault:"100"`
	MapHeight    int           `env:"EMBERFALL_MAP_HEIGHT" envDefault:"100"`
	TickInterval time.Duration `env:"EMBERFALL_TICK_INTERVAL" envDefault:"1s"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.MapWidth < 1 || cfg.MapHeight < 1 {
		return Config{}, fmt.Errorf("map dimensions %dx%d are invalid", cfg.MapWidth, cfg.MapHeight)
	}
	if cfg.TickInterval <= 0 {
		return Config{}, fmt.Errorf("tick interval %s is invalid", cfg.TickInterval)
	}
	return cfg, nil
}
