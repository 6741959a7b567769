// Package config loads the guard service configuration from a YAML file
// with sensible defaults for local development. Environment variables
// override individual endpoints in main, keeping parity between the YAML
// and env-only deployments.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full guardd/auditor configuration.
type Config struct {
	ListenAddr  string `yaml:"listen_addr"`
	RedisAddr   string `yaml:"redis_addr"`
	NATSURL     string `yaml:"nats_url"`
	DatabaseURL string `yaml:"database_url"`

	// SessionTTL bounds how long an idle browsing session keeps its
	// tab-scoped state.
	SessionTTL time.Duration `yaml:"session_ttl"`

	Roles Roles `yaml:"roles"`
	Guard Guard `yaml:"guard"`
}

// Roles configures the reserved usernames and whether the teacher role is
// password-gated like admin.
type Roles struct {
	AdminName              string `yaml:"admin_name"`
	TeacherName            string `yaml:"teacher_name"`
	RequireTeacherPassword bool   `yaml:"require_teacher_password"`
}

// Guard configures the submission pipeline.
type Guard struct {
	// BlockDuration is the default duration for manually applied blocks.
	// Automated blocks escalate independently of this value.
	BlockDuration time.Duration `yaml:"block_duration"`

	// PostInterval and CommentInterval are the minimum cooldowns between
	// submissions of each kind.
	PostInterval    time.Duration `yaml:"post_interval"`
	CommentInterval time.Duration `yaml:"comment_interval"`

	// SpamKeywords extends the stock keyword list.
	SpamKeywords []string `yaml:"spam_keywords"`
}

// Default returns the development configuration.
func Default() Config {
	return Config{
		ListenAddr: ":8080",
		RedisAddr:  "localhost:6379",
		NATSURL:    "nats://localhost:4222",
		SessionTTL: time.Hour,
		Roles: Roles{
			AdminName:   "admin",
			TeacherName: "teacher",
		},
		Guard: Guard{
			BlockDuration:   time.Hour,
			PostInterval:    2 * time.Second,
			CommentInterval: 2 * time.Second,
		},
	}
}

// Load reads path and overlays it on the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("config: listen_addr is empty")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("config: session_ttl must be positive")
	}
	if c.Guard.PostInterval < 0 || c.Guard.CommentInterval < 0 {
		return fmt.Errorf("config: submission intervals must not be negative")
	}
	if c.Guard.BlockDuration <= 0 {
		return fmt.Errorf("config: block_duration must be positive")
	}
	return nil
}
