package config

import (
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/robfig/cron/v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "HR_AUTH_"

type Config struct {
	Server   Server   `koanf:"server"`
	JWT      JWT      `koanf:"jwt"`
	Database Database `koanf:"database"`
	Auth     Auth     `koanf:"auth"`
	OAuth2   OAuth2   `koanf:"oauth2"`
	Log      Log      `koanf:"log"`
	Jobs     Jobs     `koanf:"jobs"`
}

type Server struct {
	Address             string        `koanf:"address"`
	ReadTimeout         time.Duration `koanf:"read_timeout"`
	WriteTimeout        time.Duration `koanf:"write_timeout"`
	FrontendCallbackURL string        `koanf:"frontend_callback_url"`
}

type JWT struct {
	Secret     string        `koanf:"secret"`
	Expiration time.Duration `koanf:"expiration"`
	Issuer     string        `koanf:"issuer"`
}

type Database struct {
	Driver string `koanf:"driver"`
	DSN    string `koanf:"dsn"`
	Debug  bool   `koanf:"debug"`
}

type Auth struct {
	InvalidTokenPolicy string        `koanf:"invalid_token_policy"`
	PublicPaths        []string      `koanf:"public_paths"`
	IdentityCacheSize  int           `koanf:"identity_cache_size"`
	IdentityCacheTTL   time.Duration `koanf:"identity_cache_ttl"`
	BcryptCost         int           `koanf:"bcrypt_cost"`
	DeterministicIDs   bool          `koanf:"deterministic_ids"`
	LoginRate          float64       `koanf:"login_rate"`
	LoginBurst         int           `koanf:"login_burst"`
}

type OAuth2 struct {
	Timeout      time.Duration `koanf:"timeout"`
	RequireState bool          `koanf:"require_state"`
	StateTTL     time.Duration `koanf:"state_ttl"`
	Google       Provider      `koanf:"google"`
	GitHub       Provider      `koanf:"github"`
}

// Provider holds one OAuth2 client registration. A provider without a
// client id is not mounted.
type Provider struct {
	ClientID     string `koanf:"client_id"`
	ClientSecret string `koanf:"client_secret"`
	RedirectURL  string `koanf:"redirect_url"`
}

// Enabled reports whether the provider is configured.
func (p Provider) Enabled() bool {
	return p.ClientID != ""
}

type Log struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type Jobs struct {
	UserStatsSchedule string `koanf:"user_stats_schedule"`
}

// Default returns the configuration used when no file is given. The JWT
// secret has no default and must be provided.
func Default() *Config {
	return &Config{
		Server: Server{
			Address:             ":8080",
			ReadTimeout:         10 * time.Second,
			WriteTimeout:        10 * time.Second,
			FrontendCallbackURL: "http://localhost:3000/oauth-callback",
		},
		JWT: JWT{
			Expiration: 24 * time.Hour,
			Issuer:     "hr-auth",
		},
		Database: Database{
			Driver: "sqlite",
			DSN:    "file::memory:?cache=shared",
		},
		Auth: Auth{
			InvalidTokenPolicy: "reject",
			IdentityCacheSize:  1024,
			IdentityCacheTTL:   5 * time.Second,
			BcryptCost:         12,
			LoginRate:          5,
			LoginBurst:         10,
		},
		OAuth2: OAuth2{
			Timeout:  10 * time.Second,
			StateTTL: 10 * time.Minute,
			Google: Provider{
				RedirectURL: "http://localhost:8080/api/auth/oauth2/google/callback",
			},
			GitHub: Provider{
				RedirectURL: "http://localhost:8080/api/auth/oauth2/github/callback",
			},
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Jobs: Jobs{
			UserStatsSchedule: "@every 1h",
		},
	}
}

// Load layers the defaults, the YAML file at path and HR_AUTH_*
// environment overrides, then validates the result. An empty path skips
// the file.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "load config file")
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "load environment overrides")
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "decode configuration")
	}
	cfg.Auth.PublicPaths = cleanList(cfg.Auth.PublicPaths)

	if err := cfg.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid configuration")
	}

	return cfg, nil
}

// Validate checks the loaded values. Failures are returned as
// validation.Errors keyed by section.
func (c *Config) Validate() error {
	return validation.Errors{
		"jwt": validation.ValidateStruct(&c.JWT,
			validation.Field(&c.JWT.Secret, validation.Required, validation.Length(32, 0)),
			validation.Field(&c.JWT.Expiration, validation.Required, validation.Min(time.Second)),
		),
		"database": validation.ValidateStruct(&c.Database,
			validation.Field(&c.Database.Driver, validation.Required, validation.In("sqlite", "postgres")),
			validation.Field(&c.Database.DSN, validation.Required),
		),
		"auth": validation.ValidateStruct(&c.Auth,
			validation.Field(&c.Auth.InvalidTokenPolicy, validation.Required, validation.In("reject", "continue")),
			validation.Field(&c.Auth.IdentityCacheSize, validation.Min(0)),
			validation.Field(&c.Auth.BcryptCost, validation.Min(4), validation.Max(31)),
			validation.Field(&c.Auth.LoginRate, validation.Min(0.0)),
			validation.Field(&c.Auth.LoginBurst, validation.Min(0)),
		),
		"oauth2": validation.ValidateStruct(&c.OAuth2,
			validation.Field(&c.OAuth2.Timeout, validation.Required, validation.Min(time.Millisecond)),
		),
		"log": validation.ValidateStruct(&c.Log,
			validation.Field(&c.Log.Level, validation.In("debug", "info", "warn", "error")),
			validation.Field(&c.Log.Format, validation.In("text", "json")),
		),
		"jobs": validation.ValidateStruct(&c.Jobs,
			validation.Field(&c.Jobs.UserStatsSchedule, validation.By(validSchedule)),
		),
	}.Filter()
}

func validSchedule(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := cron.ParseStandard(s); err != nil {
		return fmt.Errorf("invalid schedule: %v", err)
	}
	return nil
}

// envKeys maps environment names, without the prefix, to config keys.
var envKeys = map[string]string{
	"SERVER_ADDRESS":        "server.address",
	"FRONTEND_CALLBACK_URL": "server.frontend_callback_url",
	"JWT_SECRET":            "jwt.secret",
	"JWT_EXPIRATION":        "jwt.expiration",
	"JWT_ISSUER":            "jwt.issuer",
	"DATABASE_DRIVER":       "database.driver",
	"DATABASE_DSN":          "database.dsn",
	"DATABASE_DEBUG":        "database.debug",
	"INVALID_TOKEN_POLICY":  "auth.invalid_token_policy",
	"PUBLIC_PATHS":          "auth.public_paths",
	"IDENTITY_CACHE_TTL":    "auth.identity_cache_ttl",
	"BCRYPT_COST":           "auth.bcrypt_cost",
	"DETERMINISTIC_IDS":     "auth.deterministic_ids",
	"OAUTH2_REQUIRE_STATE":  "oauth2.require_state",
	"GOOGLE_CLIENT_ID":      "oauth2.google.client_id",
	"GOOGLE_CLIENT_SECRET":  "oauth2.google.client_secret",
	"GOOGLE_REDIRECT_URL":   "oauth2.google.redirect_url",
	"GITHUB_CLIENT_ID":      "oauth2.github.client_id",
	"GITHUB_CLIENT_SECRET":  "oauth2.github.client_secret",
	"GITHUB_REDIRECT_URL":   "oauth2.github.redirect_url",
	"LOG_LEVEL":             "log.level",
	"LOG_FORMAT":            "log.format",
	"USER_STATS_SCHEDULE":   "jobs.user_stats_schedule",
}

// envKey resolves an environment variable to its config key. Unknown
// names return "" and are ignored.
func envKey(name string) string {
	return envKeys[strings.TrimPrefix(name, EnvPrefix)]
}

func cleanList(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, part := range in {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
