package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultBotName       = "sphexbot"
	DefaultCommandPrefix = "!"

	StoreDriverRedis  = "redis"
	StoreDriverSQLite = "sqlite"
)

type Config struct {
	LogLevel        string          `json:"log_level" yaml:"log_level"`
	LogFormat       string          `json:"log_format" yaml:"log_format"`
	BotName         string          `json:"bot_name" yaml:"bot_name"`
	CommandPrefix   string          `json:"command_prefix" yaml:"command_prefix"`
	ReplyWithSender bool            `json:"reply_with_sender" yaml:"reply_with_sender"`
	Processors      Processors      `json:"processors" yaml:"processors"`
	Store           StoreConfig     `json:"store" yaml:"store"`
	Scheduler       SchedulerConfig `json:"scheduler" yaml:"scheduler"`
	HTTP            HTTPConfig      `json:"http" yaml:"http"`
	WhatsApp        WhatsAppConfig  `json:"whatsapp" yaml:"whatsapp"`
	Telegram        TelegramConfig  `json:"telegram" yaml:"telegram"`
	Console         ConsoleConfig   `json:"console" yaml:"console"`
	Health          HealthConfig    `json:"health" yaml:"health"`
}

type StoreConfig struct {
	Driver   string `json:"driver" yaml:"driver"`
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	DSN      string `json:"dsn" yaml:"dsn"`
	Prefix   string `json:"prefix" yaml:"prefix"`
}

type SchedulerConfig struct {
	PollIntervalMS int `json:"poll_interval_ms" yaml:"poll_interval_ms"`
}

type HTTPConfig struct {
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
	UserAgent      string `json:"user_agent" yaml:"user_agent"`
}

type WhatsAppConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	SessionDSN string `json:"session_dsn" yaml:"session_dsn"`
}

type TelegramConfig struct {
	Enabled   bool    `json:"enabled" yaml:"enabled"`
	Token     string  `json:"token" yaml:"token"`
	AllowList []int64 `json:"allow_list" yaml:"allow_list"`
}

type ConsoleConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Sender  string `json:"sender" yaml:"sender"`
	Group   string `json:"group" yaml:"group"`
}

type HealthConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Host    string `json:"host" yaml:"host"`
	Port    int    `json:"port" yaml:"port"`
}

func Default() Config {
	return Config{
		LogLevel:        "INFO",
		LogFormat:       "text",
		BotName:         DefaultBotName,
		CommandPrefix:   DefaultCommandPrefix,
		ReplyWithSender: true,
		Processors: Processors{
			{ID: "misc", Options: json.RawMessage("{}")},
		},
		Store: StoreConfig{
			Driver: StoreDriverSQLite,
			Addr:   "127.0.0.1:6379",
			DSN:    "data/sphexbot.db",
			Prefix: "sphexbot",
		},
		Scheduler: SchedulerConfig{
			PollIntervalMS: 1000,
		},
		HTTP: HTTPConfig{
			TimeoutSeconds: 20,
			UserAgent:      "sphexbot",
		},
		WhatsApp: WhatsAppConfig{
			Enabled:    false,
			SessionDSN: "file:sphexbot_whatsapp.db?_foreign_keys=on",
		},
		Telegram: TelegramConfig{
			Enabled:   false,
			Token:     "",
			AllowList: []int64{},
		},
		Console: ConsoleConfig{
			Enabled: false,
			Sender:  "console",
		},
		Health: HealthConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    18080,
		},
	}
}

// Load reads a JSON config file, or YAML when the extension is .yaml or
// .yml. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	payload, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	if err := Parse(payload, formatFor(path), &cfg); err != nil {
		return Config{}, err
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes payload over cfg, keeping values the payload leaves out.
func Parse(payload []byte, format string, cfg *Config) error {
	switch format {
	case "yaml":
		if err := yaml.Unmarshal(payload, cfg); err != nil {
			return fmt.Errorf("parse yaml config: %w", err)
		}
	default:
		if err := json.Unmarshal(payload, cfg); err != nil {
			return fmt.Errorf("parse config file: %w", err)
		}
	}
	return nil
}

func formatFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}

func (c *Config) Normalize() {
	defaults := Default()
	if c.LogLevel == "" {
		c.LogLevel = defaults.LogLevel
	}
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	if c.LogFormat == "" {
		c.LogFormat = defaults.LogFormat
	}
	c.BotName = strings.TrimSpace(c.BotName)
	if c.BotName == "" {
		c.BotName = defaults.BotName
	}
	if c.CommandPrefix == "" {
		c.CommandPrefix = defaults.CommandPrefix
	}
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	if c.Store.Driver == "" {
		c.Store.Driver = defaults.Store.Driver
	}
	if c.Store.Addr == "" {
		c.Store.Addr = defaults.Store.Addr
	}
	if c.Scheduler.PollIntervalMS <= 0 {
		c.Scheduler.PollIntervalMS = defaults.Scheduler.PollIntervalMS
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		c.HTTP.TimeoutSeconds = defaults.HTTP.TimeoutSeconds
	}
	if c.HTTP.UserAgent == "" {
		c.HTTP.UserAgent = defaults.HTTP.UserAgent
	}
	if c.WhatsApp.SessionDSN == "" {
		c.WhatsApp.SessionDSN = defaults.WhatsApp.SessionDSN
	}
	if c.Telegram.AllowList == nil {
		c.Telegram.AllowList = []int64{}
	}
	if c.Console.Sender == "" {
		c.Console.Sender = defaults.Console.Sender
	}
	if c.Health.Host == "" {
		c.Health.Host = defaults.Health.Host
	}
	if c.Health.Port <= 0 {
		c.Health.Port = defaults.Health.Port
	}
}

func (c Config) Validate() error {
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}
	switch c.Store.Driver {
	case StoreDriverRedis, StoreDriverSQLite:
	default:
		return fmt.Errorf("store.driver must be %s or %s, got %q", StoreDriverRedis, StoreDriverSQLite, c.Store.Driver)
	}
	if strings.ContainsAny(c.CommandPrefix, " \t\r\n") {
		return fmt.Errorf("command_prefix must not contain whitespace")
	}
	if strings.ContainsAny(c.BotName, " \t\r\n:") {
		return fmt.Errorf("bot_name must be a single word")
	}
	return nil
}
