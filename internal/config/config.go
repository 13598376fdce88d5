package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Features toggles optional client behavior.
type Features struct {
	Realtime bool `yaml:"realtime"`
	Typing   bool `yaml:"typing"`
	Polling  bool `yaml:"polling"`
}

// Typing overrides the reveal pacing, in milliseconds.
type Typing struct {
	PerCharMS int `yaml:"per_char_ms"`
	MaxMS     int `yaml:"max_ms"`
	GapMS     int `yaml:"gap_ms"`
}

// Stub configures the reference backend run by `parley stub`.
type Stub struct {
	Addr             string `yaml:"addr"`
	DBDSN            string `yaml:"db_dsn"`
	JWTSecret        string `yaml:"jwt_secret"`
	ReplyDelayMS     int    `yaml:"reply_delay_ms"`
	PruneSchedule    string `yaml:"prune_schedule"`
	PruneMaxAgeHours int    `yaml:"prune_max_age_hours"`
}

type Config struct {
	APIBaseURL string `yaml:"api_base_url"`

	// Reserved for a future push transport; recognized but not dialed.
	WebSocketURL string `yaml:"websocket_url"`

	OAuthClientID    string `yaml:"oauth_client_id"`
	OAuthRedirectURI string `yaml:"oauth_redirect_uri"`

	AgentID   string `yaml:"agent_id"`
	Transport string `yaml:"transport"` // single | multi | stream
	Demo      bool   `yaml:"demo"`

	LogLevel    string `yaml:"log_level"`
	SessionFile string `yaml:"session_file"`

	Features Features `yaml:"features"`
	Typing   Typing   `yaml:"typing"`
	Stub     Stub     `yaml:"stub"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		APIBaseURL:  "http://localhost:8780",
		AgentID:     "mia",
		Transport:   "multi",
		LogLevel:    "info",
		SessionFile: defaultSessionFile(),
		Features: Features{
			Typing: true,
		},
		Typing: Typing{
			PerCharMS: 30,
			MaxMS:     3000,
			GapMS:     1500,
		},
		Stub: Stub{
			Addr:             ":8780",
			DBDSN:            "file:parley_stub.db",
			JWTSecret:        "dev-secret-change-me",
			ReplyDelayMS:     250,
			PruneSchedule:    "@every 1h",
			PruneMaxAgeHours: 24,
		},
	}
}

// Load layers configuration: defaults, then the YAML file (the given path, or
// the default path when it exists), then environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		if p := DefaultPath(); fileExists(p) {
			path = p
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// DefaultPath is where Load looks for a config file when none is given.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "parley", "config.yaml")
}

func defaultSessionFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "parley_session.json"
	}
	return filepath.Join(home, ".config", "parley", "session.json")
}

func applyEnv(cfg *Config) {
	envStr("PARLEY_API_URL", &cfg.APIBaseURL)
	envStr("PARLEY_WS_URL", &cfg.WebSocketURL)
	envStr("PARLEY_OAUTH_CLIENT_ID", &cfg.OAuthClientID)
	envStr("PARLEY_OAUTH_REDIRECT_URI", &cfg.OAuthRedirectURI)
	envStr("PARLEY_AGENT", &cfg.AgentID)
	envStr("PARLEY_TRANSPORT", &cfg.Transport)
	envBool("PARLEY_DEMO", &cfg.Demo)
	envStr("PARLEY_LOG_LEVEL", &cfg.LogLevel)
	envStr("PARLEY_SESSION_FILE", &cfg.SessionFile)

	envBool("PARLEY_FEATURE_REALTIME", &cfg.Features.Realtime)
	envBool("PARLEY_FEATURE_TYPING", &cfg.Features.Typing)
	envBool("PARLEY_FEATURE_POLLING", &cfg.Features.Polling)

	envInt("PARLEY_TYPING_PER_CHAR_MS", &cfg.Typing.PerCharMS)
	envInt("PARLEY_TYPING_MAX_MS", &cfg.Typing.MaxMS)
	envInt("PARLEY_TYPING_GAP_MS", &cfg.Typing.GapMS)

	envStr("PARLEY_STUB_ADDR", &cfg.Stub.Addr)
	envStr("PARLEY_STUB_DSN", &cfg.Stub.DBDSN)
	envStr("PARLEY_STUB_SECRET", &cfg.Stub.JWTSecret)
	envInt("PARLEY_STUB_REPLY_DELAY_MS", &cfg.Stub.ReplyDelayMS)
	envStr("PARLEY_STUB_PRUNE_SCHEDULE", &cfg.Stub.PruneSchedule)
	envInt("PARLEY_STUB_PRUNE_MAX_AGE_HOURS", &cfg.Stub.PruneMaxAgeHours)
}

func (c Config) validate() error {
	var problems []string

	switch c.Transport {
	case "single", "multi", "stream":
	default:
		problems = append(problems, fmt.Sprintf("transport must be single, multi, or stream, got %q", c.Transport))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("log_level must be debug, info, warn, or error, got %q", c.LogLevel))
	}
	if c.APIBaseURL == "" {
		problems = append(problems, "api_base_url is required")
	}
	if c.Typing.PerCharMS < 0 || c.Typing.MaxMS < 0 || c.Typing.GapMS < 0 {
		problems = append(problems, "typing delays must not be negative")
	}
	if c.Stub.PruneMaxAgeHours <= 0 {
		problems = append(problems, "stub.prune_max_age_hours must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func envStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
