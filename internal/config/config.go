package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix is stripped from environment variables before they are mapped
// onto config keys: KNOLREP_REPOS_DIR sets repos-dir.
const EnvPrefix = "KNOLREP_"

// DefaultFile is read when --config is not given, if it exists.
const DefaultFile = "knolrep.yaml"

// Config holds every runtime setting.
type Config struct {
	ConfigFile      string        `koanf:"config"`
	DB              string        `koanf:"db" validate:"required"`
	Learner         string        `koanf:"learner" validate:"required"`
	Timezone        string        `koanf:"timezone" validate:"omitempty,timezone"`
	ReposDir        string        `koanf:"repos-dir" validate:"required"`
	Addr            string        `koanf:"addr" validate:"required,hostname_port"`
	LogLevel        string        `koanf:"log-level" validate:"oneof=debug info warn error"`
	LogFormat       string        `koanf:"log-format" validate:"oneof=text json"`
	SyncConcurrency int           `koanf:"sync-concurrency" validate:"min=1,max=16"`
	ShutdownTimeout time.Duration `koanf:"shutdown-timeout" validate:"gt=0"`
}

// RegisterFlags declares every setting on flags. Flag defaults are the
// defaults of the whole config.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Path to a YAML config file (default "+DefaultFile+" if present)")
	flags.String("db", "knolrep.db", "Path to the SQLite database file")
	flags.String("learner", "default", "Learner id or name to study as")
	flags.String("timezone", "", "IANA time zone used for study days (default UTC)")
	flags.String("repos-dir", "repos", "Directory git sources are cloned into")
	flags.String("addr", "localhost:8080", "Address the HTTP API listens on")
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.String("log-format", "text", "Log format: text or json")
	flags.Int("sync-concurrency", 4, "Number of sources synced in parallel")
	flags.Duration("shutdown-timeout", 10*time.Second, "Grace period for in-flight HTTP requests on shutdown")
}

// Load merges, in increasing precedence, the YAML config file, a .env file,
// KNOLREP_* environment variables and the flags set on the command line.
func Load(flags *pflag.FlagSet) (*Config, error) {
	ko := koanf.New(".")

	path, _ := flags.GetString("config")
	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		if err := ko.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}
	if err := ko.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := ko.Load(posflag.Provider(flags, ".", ko), nil); err != nil {
		return nil, fmt.Errorf("failed to read flags: %w", err)
	}

	var cfg Config
	if err := ko.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", "-")
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (got %v)", fe.Field(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
