package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Redis struct {
		Addr      string `yaml:"addr"`
		Password  string `yaml:"password"`
		DB        int    `yaml:"db"`
		Retention string `yaml:"retention"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	AMQP struct {
		URL      string `yaml:"url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"amqp"`
	Items struct {
		TTL string `yaml:"ttl"`
	} `yaml:"items"`
	Duel DuelConfig `yaml:"duel"`
}

// DuelConfig overrides room defaults; zero values keep the built-in defaults.
type DuelConfig struct {
	DefaultItemCount int     `yaml:"defaultItemCount"`
	MaxItems         int     `yaml:"maxItems"`
	MinPlayers       int     `yaml:"minPlayers"`
	MaxPlayers       int     `yaml:"maxPlayers"`
	PlayerCap        int     `yaml:"playerCap"`
	RatingTolerance  float64 `yaml:"ratingTolerance"`
	NeutralRating    float64 `yaml:"neutralRating"`
	RoomTTL          string  `yaml:"roomTTL"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
