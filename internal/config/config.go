package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type BotConfig struct {
	Token           string `yaml:"token"`
	AdminOnlyAssign bool   `yaml:"admin_only_assign"`
	FlowTTLMinutes  int    `yaml:"flow_ttl_minutes"`
}

type DatabaseConfig struct {
	Path    string `yaml:"path"`
	Workers int    `yaml:"workers"`
}

type ScheduleConfig struct {
	Hour     int    `yaml:"hour"`
	Minute   int    `yaml:"minute"`
	Timezone string `yaml:"timezone"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type LoggerConfig struct {
	Level    string `yaml:"level"`
	Encoding string `yaml:"encoding"`
}

type Config struct {
	Bot      BotConfig      `yaml:"bot"`
	Database DatabaseConfig `yaml:"database"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Server   ServerConfig   `yaml:"server"`
	Logger   LoggerConfig   `yaml:"logger"`
}

// Load reads config/config.yaml (path overridable via CONFIG_PATH),
// then applies environment overrides so the bot can also boot from a
// bare .env. BOT_TOKEN is the only required setting.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Bot: BotConfig{FlowTTLMinutes: 10},
		Database: DatabaseConfig{
			Path:    "data/tasks.db",
			Workers: 4,
		},
		Schedule: ScheduleConfig{
			Hour:     10,
			Minute:   0,
			Timezone: "Europe/Stockholm",
		},
		Server: ServerConfig{Port: 8080},
		Logger: LoggerConfig{Level: "info", Encoding: "json"},
	}

	path := getString("CONFIG_PATH", "config/config.yaml")
	if f, err := os.Open(path); err == nil {
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	cfg.Bot.Token = getString("BOT_TOKEN", cfg.Bot.Token)
	cfg.Database.Path = getString("DB_PATH", cfg.Database.Path)
	cfg.Schedule.Timezone = getString("TZ_NAME", cfg.Schedule.Timezone)
	cfg.Server.Port = getInt("SERVER_PORT", cfg.Server.Port)
	cfg.Logger.Level = getString("LOG_LEVEL", cfg.Logger.Level)
	cfg.Logger.Encoding = getString("LOG_ENCODING", cfg.Logger.Encoding)

	if cfg.Bot.Token == "" {
		return nil, fmt.Errorf("BOT_TOKEN is not set")
	}
	return cfg, nil
}

func getString(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}
