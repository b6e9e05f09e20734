// Package config resolves daemon settings from built-in defaults, an optional
// YAML file, a .env file and the process environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	yaml "gopkg.in/yaml.v3"

	"github.com/MrVoidLink/loopa-servers-panel/internal/auth/hash"
	"github.com/MrVoidLink/loopa-servers-panel/internal/auth/token"
)

type Config struct {
	Port       int
	Bind       string
	CORSOrigin string
	JWTSecret  string
	DataFile   string
	LogLevel   zerolog.Level
	TokenTTL   time.Duration

	RateLoginMax    int
	RateLoginWindow time.Duration
	RatePath        string
	TrustProxy      bool

	MetricsEnabled bool
	SealKeyPath    string
	Hash           hash.Params

	// Source is the YAML file that was read, empty when none was.
	Source string
}

// Addr is the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Bind, c.Port)
}

// WeakSecret reports whether the signing secret should trigger a startup warning.
func (c Config) WeakSecret() bool { return token.WeakSecret(c.JWTSecret) }

func Defaults() Config {
	return Config{
		Port:            4000,
		Bind:            "0.0.0.0",
		CORSOrigin:      "*",
		JWTSecret:       token.InsecureDefaultSecret,
		DataFile:        "data/app.json",
		LogLevel:        zerolog.InfoLevel,
		TokenTTL:        token.DefaultTTL,
		RateLoginMax:    20,
		RateLoginWindow: 5 * time.Minute,
		MetricsEnabled:  true,
		Hash:            hash.DefaultParams,
	}
}

type fileConfig struct {
	HTTP struct {
		Port int    `yaml:"port"`
		Bind string `yaml:"bind"`
	} `yaml:"http"`
	CORS struct {
		Origin string `yaml:"origin"`
	} `yaml:"cors"`
	Auth struct {
		JWTSecret string `yaml:"jwtSecret"`
		TokenTTL  string `yaml:"tokenTTL"`
	} `yaml:"auth"`
	Data struct {
		File string `yaml:"file"`
	} `yaml:"data"`
	Rate struct {
		LoginMax    int    `yaml:"loginMax"`
		LoginWindow string `yaml:"loginWindow"`
		Path        string `yaml:"path"`
	} `yaml:"rate"`
	TrustProxy *bool `yaml:"trustProxy"`
	Logging    struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
	Metrics struct {
		Enabled *bool `yaml:"enabled"`
	} `yaml:"metrics"`
	Seal struct {
		KeyPath string `yaml:"keyPath"`
	} `yaml:"seal"`
	Hash struct {
		Time      uint32 `yaml:"time"`
		MemoryKiB uint32 `yaml:"memoryKiB"`
		Threads   uint8  `yaml:"threads"`
	} `yaml:"hash"`
}

// FromEnv loads the configuration using LOOPA_CONFIG as the YAML path and
// ./.env as the dotenv file.
func FromEnv() (Config, error) {
	return Load(os.Getenv("LOOPA_CONFIG"), ".env")
}

// Load resolves the configuration. An empty yamlPath or a missing file is
// skipped; a file that exists but does not parse is an error. Values from
// envFile never override variables that are already set.
func Load(yamlPath, envFile string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(yamlPath) != "" {
		b, err := os.ReadFile(yamlPath)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			var fc fileConfig
			if err := yaml.Unmarshal(b, &fc); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", yamlPath, err)
			}
			if err := fc.apply(&cfg); err != nil {
				return cfg, fmt.Errorf("config %s: %w", yamlPath, err)
			}
			cfg.Source = yamlPath
		}
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.validate()
}

func (fc fileConfig) apply(cfg *Config) error {
	if fc.HTTP.Port != 0 {
		cfg.Port = fc.HTTP.Port
	}
	setStr(&cfg.Bind, fc.HTTP.Bind)
	setStr(&cfg.CORSOrigin, fc.CORS.Origin)
	setStr(&cfg.JWTSecret, fc.Auth.JWTSecret)
	setStr(&cfg.DataFile, fc.Data.File)
	setStr(&cfg.RatePath, fc.Rate.Path)
	setStr(&cfg.SealKeyPath, fc.Seal.KeyPath)
	if fc.Rate.LoginMax != 0 {
		cfg.RateLoginMax = fc.Rate.LoginMax
	}
	if fc.TrustProxy != nil {
		cfg.TrustProxy = *fc.TrustProxy
	}
	if fc.Metrics.Enabled != nil {
		cfg.MetricsEnabled = *fc.Metrics.Enabled
	}
	if fc.Logging.Level != "" {
		l, err := zerolog.ParseLevel(fc.Logging.Level)
		if err != nil {
			return fmt.Errorf("logging.level: %w", err)
		}
		cfg.LogLevel = l
	}
	if err := setDuration(&cfg.TokenTTL, "auth.tokenTTL", fc.Auth.TokenTTL); err != nil {
		return err
	}
	if err := setDuration(&cfg.RateLoginWindow, "rate.loginWindow", fc.Rate.LoginWindow); err != nil {
		return err
	}
	if fc.Hash.Time != 0 {
		cfg.Hash.Time = fc.Hash.Time
	}
	if fc.Hash.MemoryKiB != 0 {
		cfg.Hash.Memory = fc.Hash.MemoryKiB
	}
	if fc.Hash.Threads != 0 {
		cfg.Hash.Threads = fc.Hash.Threads
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		cfg.Port = p
	}
	setStr(&cfg.Bind, os.Getenv("LOOPA_BIND"))
	setStr(&cfg.CORSOrigin, os.Getenv("CORS_ORIGIN"))
	setStr(&cfg.JWTSecret, os.Getenv("JWT_SECRET"))
	setStr(&cfg.DataFile, os.Getenv("DATA_FILE"))
	setStr(&cfg.RatePath, os.Getenv("LOOPA_RATE_PATH"))
	setStr(&cfg.SealKeyPath, os.Getenv("LOOPA_SEAL_KEY_PATH"))
	if v := os.Getenv("LOOPA_LOG"); v != "" {
		l, err := zerolog.ParseLevel(v)
		if err != nil {
			return fmt.Errorf("LOOPA_LOG: %w", err)
		}
		cfg.LogLevel = l
	}
	if err := setDuration(&cfg.TokenTTL, "LOOPA_TOKEN_TTL", os.Getenv("LOOPA_TOKEN_TTL")); err != nil {
		return err
	}
	if err := setDuration(&cfg.RateLoginWindow, "LOOPA_RATE_LOGIN_WINDOW", os.Getenv("LOOPA_RATE_LOGIN_WINDOW")); err != nil {
		return err
	}
	if v := os.Getenv("LOOPA_RATE_LOGIN_MAX"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LOOPA_RATE_LOGIN_MAX: %w", err)
		}
		cfg.RateLoginMax = n
	}
	if v := os.Getenv("LOOPA_TRUST_PROXY"); v != "" {
		cfg.TrustProxy = parseBool(v)
	}
	if v := os.Getenv("LOOPA_METRICS"); v != "" {
		cfg.MetricsEnabled = parseBool(v)
	}
	for name, dst := range map[string]*uint32{"LOOPA_HASH_TIME": &cfg.Hash.Time, "LOOPA_HASH_MEMORY_KIB": &cfg.Hash.Memory} {
		if v := os.Getenv(name); v != "" {
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*dst = uint32(n)
		}
	}
	if v := os.Getenv("LOOPA_HASH_THREADS"); v != "" {
		n, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			return fmt.Errorf("LOOPA_HASH_THREADS: %w", err)
		}
		cfg.Hash.Threads = uint8(n)
	}
	return nil
}

func (c Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if strings.TrimSpace(c.DataFile) == "" {
		return errors.New("data file path is empty")
	}
	if c.TokenTTL <= 0 {
		return errors.New("token ttl must be positive")
	}
	if c.RateLoginMax < 1 || c.RateLoginWindow <= 0 {
		return errors.New("login rate limit must be positive")
	}
	return nil
}

func setStr(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, name, v string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = d
	return nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
