// Package config loads moltbot settings from defaults, a TOML file and the
// environment, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/cpunion/moltbot/pkg/agent"
	"github.com/cpunion/moltbot/pkg/autopilot"
	"github.com/cpunion/moltbot/pkg/moltbook"
)

// EnvPrefix prefixes every structured environment override. Nested keys are
// separated by a double underscore, e.g. MOLTBOT_AUTOPILOT__COOLDOWN_MIN=30s.
const EnvPrefix = "MOLTBOT_"

// DefaultPaths are searched when no config file is given.
var DefaultPaths = []string{"./moltbot.toml", "$HOME/.config/moltbot/moltbot.toml", "$HOME/.moltbot.toml"}

// Config represents the application configuration.
type Config struct {
	Moltbook struct {
		BaseURL           string        `koanf:"base_url"`
		APIKey            string        `koanf:"api_key"`
		VerificationCode  string        `koanf:"verification_code"`
		Timeout           time.Duration `koanf:"timeout"`
		RequestsPerSecond float64       `koanf:"requests_per_second"`
		Burst             int           `koanf:"burst"`
		CredentialsFile   string        `koanf:"credentials_file"`
	} `koanf:"moltbook"`

	LLM struct {
		Provider string `koanf:"provider"`
		APIKey   string `koanf:"api_key"`
		Model    string `koanf:"model"`
		BaseURL  string `koanf:"base_url"`
	} `koanf:"llm"`

	Persona   agent.Persona        `koanf:"persona"`
	Autopilot autopilot.Config     `koanf:"autopilot"`
	Cron      autopilot.CronConfig `koanf:"cron"`

	Server struct {
		Addr      string        `koanf:"addr"`
		ClaimPoll time.Duration `koanf:"claim_poll"`
		TraceSize int           `koanf:"trace_size"`
	} `koanf:"server"`

	Log struct {
		Level       string `koanf:"level"`
		Format      string `koanf:"format"` // console or json
		JournalFile string `koanf:"journal_file"`
		// Earlier runs of JournalFile kept on disk, and the size that
		// forces a mid-run rotation.
		JournalKeep  int `koanf:"journal_keep"`
		JournalMaxMB int `koanf:"journal_max_mb"`

		// Sharded journal archive; takes precedence over JournalFile.
		JournalDir       string `koanf:"journal_dir"`
		JournalShardSize int    `koanf:"journal_shard_size"`
	} `koanf:"log"`
}

func defaults() map[string]interface{} {
	p := agent.DefaultPersona()
	a := autopilot.DefaultConfig()
	c := autopilot.DefaultCronConfig()
	return map[string]interface{}{
		"moltbook.base_url":            moltbook.DefaultBaseURL,
		"moltbook.timeout":             "30s",
		"moltbook.requests_per_second": 5.0,
		"moltbook.burst":               5,

		"llm.provider": "gemini",

		"persona.name":      p.Name,
		"persona.expertise": p.Expertise,
		"persona.goal":      p.Goal,
		"persona.attitude":  p.Attitude,
		"persona.quirks":    p.Quirks,
		"persona.emotions":  p.Emotions,
		"persona.language":  p.Language,
		"persona.topics":    p.Topics,

		"autopilot.feed_limit":        a.FeedLimit,
		"autopilot.context_comments":  a.ContextComments,
		"autopilot.cooldown_min":      a.CooldownMin.String(),
		"autopilot.cooldown_max":      a.CooldownMax.String(),
		"autopilot.growth_period":     a.GrowthPeriod.String(),
		"autopilot.growth_feed_limit": a.GrowthFeedLimit,
		"autopilot.journal_capacity":  a.JournalCapacity,

		"cron.growth_chance":     c.GrowthChance,
		"cron.post_chance":       c.PostChance,
		"cron.feed_limit":        c.FeedLimit,
		"cron.growth_feed_limit": c.GrowthFeedLimit,
		"cron.context_comments":  c.ContextComments,
		"cron.submolt":           c.Submolt,
		"cron.topics":            c.Topics,

		"server.addr":       "127.0.0.1:8787",
		"server.claim_poll": "5s",
		"server.trace_size": 100,

		"log.level":              "info",
		"log.format":             "console",
		"log.journal_shard_size": 500,
		"log.journal_keep":       10,
		"log.journal_max_mb":     10,
	}
}

// wellKnownEnv maps the unprefixed variable names used by deployment
// scripts onto config keys. Later entries win.
var wellKnownEnv = []struct{ name, key string }{
	{"MOLTBOOK_API_KEY", "moltbook.api_key"},
	{"MOLTBOOK_VERIFICATION_CODE", "moltbook.verification_code"},
	{"API_KEY", "llm.api_key"},
	{"GOOGLE_API_KEY", "llm.api_key"},
	{"GOOGLE_MODEL", "llm.model"},
}

func wellKnown() map[string]interface{} {
	m := make(map[string]interface{})
	for _, v := range wellKnownEnv {
		if val := strings.TrimSpace(os.Getenv(v.name)); val != "" {
			m[v.key] = val
		}
	}
	return m
}

// Load loads the configuration. A .env file in the working directory, if
// present, is read into the environment first without overriding it.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		for _, path := range DefaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
					return nil, fmt.Errorf("error loading config %s: %w", path, err)
				}
				break
			}
		}
	}

	if err := k.Load(confmap.Provider(wellKnown(), "."), nil); err != nil {
		return nil, fmt.Errorf("error loading environment: %w", err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("error loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	return &cfg, nil
}

// InitConfig writes a sample configuration file.
func InitConfig(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}
	return os.WriteFile(configPath, []byte(sampleConfig), 0600)
}

const sampleConfig = `# moltbot configuration

[moltbook]
# api_key = "moltbook_xxx"       # or MOLTBOOK_API_KEY
base_url = "https://www.moltbook.com/api/v1"
timeout = "30s"
requests_per_second = 5.0
burst = 5

[llm]
provider = "gemini"
# api_key = "your-gemini-api-key" # or GOOGLE_API_KEY
model = "gemini-3-flash-preview"

[persona]
name = "Fcalgo"

[autopilot]
feed_limit = 20
context_comments = 3
cooldown_min = "20s"
cooldown_max = "45s"
growth_period = "6s"

[cron]
growth_chance = 0.3
post_chance = 0.1
submolt = "general"

[server]
addr = "127.0.0.1:8787"
claim_poll = "5s"

[log]
level = "info"
format = "console"
# journal_file = "./data/autopilot.jsonl"
# journal_keep = 10                   # earlier runs kept next to journal_file
# journal_max_mb = 10
# journal_dir = "./data/journal"      # rotating shards, see ` + "`moltbot history`" + `
# journal_shard_size = 500
`

// Validate validates the configuration.
func Validate(cfg *Config) error {
	if cfg.Moltbook.BaseURL == "" {
		return fmt.Errorf("moltbook base_url is required")
	}
	if cfg.LLM.Provider != "gemini" {
		return fmt.Errorf("unsupported llm provider %q", cfg.LLM.Provider)
	}
	a := cfg.Autopilot
	if a.CooldownMin < time.Second {
		return fmt.Errorf("autopilot cooldown_min must be at least 1s")
	}
	if a.CooldownMax < a.CooldownMin {
		return fmt.Errorf("autopilot cooldown_max (%s) is below cooldown_min (%s)", a.CooldownMax, a.CooldownMin)
	}
	if a.GrowthPeriod <= 0 || a.GrowthPeriod > time.Minute {
		return fmt.Errorf("autopilot growth_period must be in (0, 1m]")
	}
	if a.FeedLimit <= 0 {
		return fmt.Errorf("autopilot feed_limit must be positive")
	}
	for name, p := range map[string]float64{"growth_chance": cfg.Cron.GrowthChance, "post_chance": cfg.Cron.PostChance} {
		if p < 0 || p > 1 {
			return fmt.Errorf("cron %s must be within [0, 1]", name)
		}
	}
	switch cfg.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("unknown log format %q", cfg.Log.Format)
	}
	if cfg.Log.JournalKeep < 0 || cfg.Log.JournalMaxMB < 0 {
		return fmt.Errorf("log journal_keep and journal_max_mb must not be negative")
	}
	return nil
}

// ClientConfig derives the Moltbook client settings.
func (c *Config) ClientConfig() moltbook.Config {
	mc := moltbook.DefaultConfig()
	mc.BaseURL = c.Moltbook.BaseURL
	mc.APIKey = c.Moltbook.APIKey
	if c.Moltbook.Timeout > 0 {
		mc.Timeout = c.Moltbook.Timeout
	}
	mc.RequestsPerSecond = c.Moltbook.RequestsPerSecond
	if c.Moltbook.Burst > 0 {
		mc.Burst = c.Moltbook.Burst
	}
	return mc
}
