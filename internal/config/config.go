package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/T1murKa41/pixilgnang/internal/conversation"
	"github.com/T1murKa41/pixilgnang/internal/delivery"
)

// Destination is one publishing channel as written in the config file.
type Destination struct {
	Key    string `json:"key"`
	ChatID int64  `json:"chat_id"`
	Title  string `json:"title"`
	Link   string `json:"link,omitempty"`
}

// Config is the bot configuration. Zero values are filled by defaults().
type Config struct {
	DataDir           string        `json:"data_dir"`
	LogLevel          string        `json:"log_level"`
	MaxConcurrent     int           `json:"max_concurrent"`
	CooldownSeconds   int           `json:"cooldown_seconds"`
	SessionTTLMinutes int           `json:"session_ttl_minutes"`
	WatermarkPath     string        `json:"watermark_path"`
	Destinations      []Destination `json:"destinations"`
	Telegram          struct {
		Token           string  `json:"token"`
		ModeratorChatID int64   `json:"moderator_chat_id"`
		LogChatID       int64   `json:"log_chat_id"`
		SendRate        float64 `json:"send_rate"`
	} `json:"telegram"`
	Keywords struct {
		SendMeme    string `json:"send_meme"`
		SendMessage string `json:"send_message"`
		Cancel      string `json:"cancel"`
		Next        string `json:"next"`
	} `json:"keywords"`
	HTTP struct {
		Enabled bool   `json:"enabled"`
		Listen  string `json:"listen"`
	} `json:"http"`
	Digest struct {
		Schedule      string `json:"schedule"`
		MinAgeMinutes int    `json:"min_age_minutes"`
	} `json:"digest"`
}

func defaults() *Config {
	cfg := &Config{
		DataDir:           filepath.Join(os.Getenv("HOME"), ".pixilgnang"),
		LogLevel:          "info",
		MaxConcurrent:     4,
		CooldownSeconds:   1200,
		SessionTTLMinutes: 60,
		Destinations:      []Destination{},
	}
	kw := conversation.DefaultKeywords()
	cfg.Keywords.SendMeme = kw.SendMeme
	cfg.Keywords.SendMessage = kw.SendMessage
	cfg.Keywords.Cancel = kw.Cancel
	cfg.Keywords.Next = kw.Next
	cfg.Telegram.SendRate = 25
	cfg.HTTP.Listen = "127.0.0.1:8089"
	cfg.Digest.Schedule = "0 9 * * *"
	cfg.Digest.MinAgeMinutes = 60
	return cfg
}

// Load reads the config at path, writing a default file first if none
// exists. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := defaults()

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence)
	if tgToken := os.Getenv("TELEGRAM_BOT_TOKEN"); tgToken != "" {
		cfg.Telegram.Token = tgToken
	}
	if dataDir := os.Getenv("PIXILGNANG_DATA_DIR"); dataDir != "" {
		cfg.DataDir = dataDir
	}

	return cfg, nil
}

// Save writes cfg to path atomically, creating the parent directory.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeAtomic(path, append(data, '\n'))
}

func writeAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// Validate checks the settings serve needs before it can start.
func (c *Config) Validate() error {
	var errs []error
	if c.Telegram.Token == "" {
		errs = append(errs, errors.New("telegram.token is required (or set TELEGRAM_BOT_TOKEN)"))
	}
	if c.Telegram.ModeratorChatID == 0 {
		errs = append(errs, errors.New("telegram.moderator_chat_id is required"))
	}
	if len(c.Destinations) == 0 {
		errs = append(errs, errors.New("at least one destination is required"))
	}
	seen := make(map[string]bool)
	for i, d := range c.Destinations {
		if err := delivery.ValidateKey(d.Key); err != nil {
			errs = append(errs, fmt.Errorf("destinations[%d]: %w", i, err))
		}
		if d.ChatID == 0 {
			errs = append(errs, fmt.Errorf("destinations[%d]: chat_id is required", i))
		}
		if seen[d.Key] {
			errs = append(errs, fmt.Errorf("destinations[%d]: duplicate key %q", i, d.Key))
		}
		seen[d.Key] = true
	}
	if c.CooldownSeconds < 0 {
		errs = append(errs, errors.New("cooldown_seconds must not be negative"))
	}
	return errors.Join(errs...)
}

// Cooldown is the minimum time between two publishes to one destination.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

func (c *Config) DigestMinAge() time.Duration {
	return time.Duration(c.Digest.MinAgeMinutes) * time.Minute
}

// ConversationKeywords returns the menu labels, falling back to the
// defaults for empty entries.
func (c *Config) ConversationKeywords() conversation.Keywords {
	return conversation.Keywords{
		SendMeme:    c.Keywords.SendMeme,
		SendMessage: c.Keywords.SendMessage,
		Cancel:      c.Keywords.Cancel,
		Next:        c.Keywords.Next,
	}
}

// Registry builds the destination registry in configured order.
func (c *Config) Registry() (*delivery.Registry, error) {
	reg := delivery.NewRegistry()
	for _, d := range c.Destinations {
		err := reg.Register(delivery.Destination{Key: d.Key, ChatID: d.ChatID, Title: d.Title, Link: d.Link})
		if err != nil {
			return nil, fmt.Errorf("register destination %q: %w", d.Key, err)
		}
	}
	return reg, nil
}

// ToMap converts the config into a generic map via JSON.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return m, nil
}

// ListValues returns the config as a flat dot-key map, optionally masking
// secrets.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

// GetValue reads one dot-key from the file at path.
func GetValue(path, key string) (any, error) {
	m, err := readRaw(path)
	if err != nil {
		return nil, err
	}
	v, ok := Flatten(m)[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return v, nil
}

// SetValue sets one dot-key in the existing file at path. The value is
// parsed as JSON when possible and stored as a string otherwise.
func SetValue(path, key, raw string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		value = raw
	}
	flat := Flatten(m)
	flat[key] = value

	out, err := json.MarshalIndent(Unflatten(flat), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeAtomic(path, append(out, '\n'))
}

func readRaw(path string) (map[string]any, error) {
	// Load writes the defaults when the file is missing.
	if _, err := Load(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return m, nil
}
