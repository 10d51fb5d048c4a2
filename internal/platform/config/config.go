package config

import (
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Log       LogConfig       `koanf:"log"`
	Telegram  TelegramConfig  `koanf:"telegram"`
	Channel   ChannelConfig   `koanf:"channel"`
	Rewards   RewardsConfig   `koanf:"rewards"`
	Audit     AuditConfig     `koanf:"audit"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
}

type ServerConfig struct {
	Host        string   `koanf:"host"`
	Port        int      `koanf:"port"`
	CORSOrigins []string `koanf:"corsorigins"`
}

type DatabaseConfig struct {
	URL            string `koanf:"url"`
	MigrationsPath string `koanf:"migrationspath"`
	MaxConns       int    `koanf:"maxconns"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelegramConfig holds the bot credentials and launch payload policy.
type TelegramConfig struct {
	BotToken      string        `koanf:"bottoken"`
	APIBaseURL    string        `koanf:"apibaseurl"`
	TimeoutSecs   int           `koanf:"timeoutsecs"`
	AllowDemoHash bool          `koanf:"allowdemohash"`
	EnforceMaxAge bool          `koanf:"enforcemaxage"`
	MaxAgeHours   int           `koanf:"maxagehours"`
	Breaker       BreakerConfig `koanf:"breaker"`
}

type BreakerConfig struct {
	MaxFailures int `koanf:"maxfailures"`
	TimeoutSecs int `koanf:"timeoutsecs"`
}

// ChannelConfig identifies the sponsor channel users are asked to join.
type ChannelConfig struct {
	ID       string `koanf:"id"`
	Username string `koanf:"username"`
	URL      string `koanf:"url"`
	Invite   string `koanf:"invite"`
}

type RewardsConfig struct {
	SubscribeAmount float64 `koanf:"subscribeamount"`
	AdAmount        float64 `koanf:"adamount"`
	AdMinWatchMs    int     `koanf:"adminwatchms"`
	AdURL           string  `koanf:"adurl"`
	XProfileURL     string  `koanf:"xprofileurl"`
	SessionKey      string  `koanf:"sessionkey"`
	SessionTTLMins  int     `koanf:"sessionttlmins"`
}

type AuditConfig struct {
	BufferSize       int `koanf:"buffersize"`
	BatchSize        int `koanf:"batchsize"`
	FlushMs          int `koanf:"flushms"`
	RetentionDays    int `koanf:"retentiondays"`
	RetentionBatch   int `koanf:"retentionbatch"`
	RetentionMinutes int `koanf:"retentionminutes"`
}

type RateLimitConfig struct {
	Enabled bool    `koanf:"enabled"`
	RPS     float64 `koanf:"rps"`
	Burst   int     `koanf:"burst"`

	// TrustedHops is the number of proxies that append to X-Forwarded-For.
	TrustedHops int `koanf:"trustedhops"`
}

// legacyAliases maps the variable names used by the hosted deployment to
// config keys. For a key with several names the first one set wins.
var legacyAliases = []struct {
	key   string
	names []string
}{
	{"telegram.bottoken", []string{"TG_BOT_TOKEN", "TELEGRAM_BOT_TOKEN", "BOT_TOKEN"}},
	{"channel.id", []string{"TG_CHANNEL_ID"}},
	{"channel.username", []string{"TG_CHANNEL_USERNAME"}},
	{"channel.url", []string{"TG_CHANNEL_URL"}},
	{"channel.invite", []string{"TG_CHANNEL_INVITE"}},
	{"rewards.adurl", []string{"AD_URL"}},
	{"rewards.xprofileurl", []string{"X_PROFILE_URL"}},
	{"database.url", []string{"DATABASE_URL"}},
}

func Load(configPaths ...string) (*Config, error) {
	k := koanf.New(".")

	// Defaults
	_ = k.Load(confmap.Provider(map[string]any{
		"server.port":                  8080,
		"server.host":                  "0.0.0.0",
		"server.corsorigins":           []string{"*"},
		"database.maxconns":            10,
		"database.migrationspath":      "migrations",
		"log.level":                    "info",
		"log.format":                   "json",
		"telegram.apibaseurl":          "https://api.telegram.org",
		"telegram.timeoutsecs":         10,
		"telegram.allowdemohash":       false,
		"telegram.enforcemaxage":       false,
		"telegram.maxagehours":         24,
		"telegram.breaker.maxfailures": 5,
		"telegram.breaker.timeoutsecs": 30,
		"rewards.subscribeamount":      0.002,
		"rewards.adamount":             0.002,
		"rewards.adminwatchms":         8000,
		"rewards.adurl":                "https://example.com",
		"rewards.xprofileurl":          "https://x.com/",
		"rewards.sessionttlmins":       30,
		"audit.buffersize":             4096,
		"audit.batchsize":              100,
		"audit.flushms":                500,
		"audit.retentiondays":          30,
		"audit.retentionbatch":         500,
		"audit.retentionminutes":       60,
		"ratelimit.enabled":            true,
		"ratelimit.rps":                5,
		"ratelimit.burst":              20,
		"ratelimit.trustedhops":        1,
	}, "."), nil)

	// YAML file (optional)
	for _, path := range configPaths {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			// Config file is optional, skip if not found
			continue
		}
	}

	_ = k.Load(confmap.Provider(legacyEnv(os.LookupEnv), "."), nil)

	// Prefixed environment variables override everything
	// REWARDS_SERVER_PORT -> server.port
	_ = k.Load(env.Provider("REWARDS_", ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, "REWARDS_")),
			"_", ".",
		)
	}), nil)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func legacyEnv(lookup func(string) (string, bool)) map[string]any {
	out := make(map[string]any)
	for _, alias := range legacyAliases {
		for _, name := range alias.names {
			if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
				out[alias.key] = strings.TrimSpace(v)
				break
			}
		}
	}
	return out
}
