package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
		URL  string `yaml:"url"` // backend base URL for client commands
	} `yaml:"server"`
	Transport struct {
		ReconnectDelay string `yaml:"reconnectDelay"`
	} `yaml:"transport"`
	Token struct {
		Path string `yaml:"path"`
	} `yaml:"token"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Game struct {
		TimePerQuestion   int `yaml:"timePerQuestion"`
		NumRounds         int `yaml:"numRounds"`
		QuestionsPerRound int `yaml:"questionsPerRound"`
	} `yaml:"game"`
}

// Load reads YAML config from path. A missing file yields a zero config so
// every command can run on defaults.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Duration parses a duration string or returns the fallback if empty or
// unparseable.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
