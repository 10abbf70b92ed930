package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

type Config struct {
	Addr      string `env:"ADDR,default=:8080"`
	JWTSecret string `env:"JWT_SECRET,required=true"`
	LogLevel  string `env:"LOG_LEVEL,default=INFO"`

	Store      string `env:"STORE,default=sqlite"`
	DSN        string `env:"DB_DSN"`
	SQLitePath string `env:"SQLITE_PATH,default=polyglot-chat.db"`
	// Empty means rows fan out inside this process only.
	RedisAddr string `env:"REDIS_ADDR"`

	SutraAPIKey      string        `env:"SUTRA_API_KEY"`
	SutraBaseURL     string        `env:"SUTRA_BASE_URL,default=https://api.two.ai/v2"`
	SutraModel       string        `env:"SUTRA_MODEL,default=sutra-v2"`
	TranslateTimeout time.Duration `env:"TRANSLATE_TIMEOUT,default=30s"`
	// Empty disables the persistent translation memo.
	MemoPath string `env:"MEMO_PATH"`
}

// Load reads an optional .env file, then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("config error: JWT_SECRET must not be empty")
	}
	switch c.Store {
	case StorePostgres:
		if c.DSN == "" {
			return fmt.Errorf("config error: DB_DSN is required when STORE=%s", StorePostgres)
		}
	case StoreSQLite:
	default:
		return fmt.Errorf("config error: STORE must be %q or %q, got %q", StorePostgres, StoreSQLite, c.Store)
	}
	if c.TranslateTimeout <= 0 {
		return fmt.Errorf("config error: TRANSLATE_TIMEOUT must be positive")
	}
	return nil
}
