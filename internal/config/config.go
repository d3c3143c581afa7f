package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Session    SessionConfig    `yaml:"session" mapstructure:"session"`
	Manifest   ManifestConfig   `yaml:"manifest" mapstructure:"manifest"`
	Tournament TournamentConfig `yaml:"tournament" mapstructure:"tournament"`
	Export     ExportConfig     `yaml:"export" mapstructure:"export"`
	Simulate   SimulateConfig   `yaml:"simulate" mapstructure:"simulate"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the survey API server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// SessionConfig configures participant enrollment and tokens.
type SessionConfig struct {
	Secret        string   `yaml:"secret" mapstructure:"secret"`
	TokenTTLHours int      `yaml:"token_ttl_hours" mapstructure:"token_ttl_hours"`
	AccessCodes   []string `yaml:"access_codes" mapstructure:"access_codes"`
	JoinPerMinute int      `yaml:"join_per_minute" mapstructure:"join_per_minute"`
	JoinBurst     int      `yaml:"join_burst" mapstructure:"join_burst"`
}

// ManifestConfig points at the study definition.
type ManifestConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// TournamentConfig holds the tie-resolution policy data.
type TournamentConfig struct {
	// FavoredMethods is the ordered favorites list, best first. Ties between
	// two unfavored methods fall through to a deterministic draw.
	FavoredMethods []string `yaml:"favored_methods" mapstructure:"favored_methods"`
}

// ExportConfig holds defaults for the export command.
type ExportConfig struct {
	Output string `yaml:"output" mapstructure:"output"`
	Format string `yaml:"format" mapstructure:"format"`
}

// SimulateConfig holds defaults for the simulate command.
type SimulateConfig struct {
	Participants int    `yaml:"participants" mapstructure:"participants"`
	Seed         string `yaml:"seed" mapstructure:"seed"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ARENA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("session.token_ttl_hours", 72)
	v.SetDefault("session.join_per_minute", 6)
	v.SetDefault("session.join_burst", 3)
	v.SetDefault("manifest.path", "manifest.yaml")
	v.SetDefault("tournament.favored_methods", []string{"H", "I", "G"})
	v.SetDefault("export.output", "votes.xlsx")
	v.SetDefault("export.format", "xlsx")
	v.SetDefault("simulate.participants", 8)
	v.SetDefault("simulate.seed", "pilot")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that everything a command needs is present. Mode names
// match subcommands; complaints are collected so one run surfaces every
// missing key.
func (c *Config) Validate(mode string) error {
	var problems []string

	common := func() {
		if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
			problems = append(problems, "store.driver must be sqlite or postgres")
		}
		if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
		if len(c.Tournament.FavoredMethods) == 0 {
			problems = append(problems, "tournament.favored_methods must not be empty")
		}
	}

	switch mode {
	case "serve":
		common()
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		if c.Session.Secret == "" {
			problems = append(problems, "session.secret is required (ARENA_SESSION_SECRET)")
		}
		if len(c.Session.AccessCodes) == 0 {
			problems = append(problems, "session.access_codes must list at least one code")
		}
		if c.Session.TokenTTLHours <= 0 {
			problems = append(problems, "session.token_ttl_hours must be > 0")
		}
	case "migrate", "export", "progress":
		common()
	case "simulate":
		common()
		if c.Simulate.Participants < 1 {
			problems = append(problems, "simulate.participants must be >= 1")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger builds the process-wide zap logger from the log config and
// installs it globally. JSON production encoding is the default; the console
// format is for local runs.
func InitLogger(cfg LogConfig) error {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrapf(err, "config: log level %q", cfg.Level)
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build zap logger")
	}
	zap.ReplaceGlobals(logger)
	return nil
}
