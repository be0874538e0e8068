package config

import (
	"errors"
	"fmt"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

const (
	DriverPostgres   = "postgres"
	DriverMemory     = "memory"
	DriverCloudinary = "cloudinary"
)

type Config struct {
	Addr      string `env:"ADDR,default=:8080"`
	DSN       string `env:"DB_DSN"`
	JWTSecret string `env:"JWT_SECRET,required=true"`
	RedisAddr string `env:"REDIS_ADDR"`
	LogLevel  string `env:"LOG_LEVEL,default=INFO"`

	StoreDriver string `env:"STORE_DRIVER,default=postgres"`
	BlobDriver  string `env:"BLOB_DRIVER,default=cloudinary"`
	BlobFolder  string `env:"BLOB_FOLDER,default=nexus_chat_assets"`

	CloudinaryCloudName string `env:"CLOUDINARY_CLOUD_NAME"`
	CloudinaryAPIKey    string `env:"CLOUDINARY_API_KEY"`
	CloudinaryAPISecret string `env:"CLOUDINARY_API_SECRET"`

	DeleteConcurrency int           `env:"DELETE_CONCURRENCY,default=8"`
	EmitBuffer        int           `env:"EMIT_BUFFER,default=1024"`
	ClientBuffer      int           `env:"CLIENT_BUFFER,default=256"`
	PresenceTTL       time.Duration `env:"PRESENCE_TTL,default=2m"`
	TokenTTL          time.Duration `env:"TOKEN_TTL,default=24h"`
}

// Load reads an optional .env file, then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is not set"))
	}
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DSN == "" {
			errs = append(errs, errors.New("DB_DSN is required when STORE_DRIVER=postgres"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be %s or %s, got %q", DriverPostgres, DriverMemory, c.StoreDriver))
	}
	switch c.BlobDriver {
	case DriverCloudinary:
		if c.CloudinaryCloudName == "" || c.CloudinaryAPIKey == "" || c.CloudinaryAPISecret == "" {
			errs = append(errs, errors.New("CLOUDINARY_CLOUD_NAME, CLOUDINARY_API_KEY and CLOUDINARY_API_SECRET are required when BLOB_DRIVER=cloudinary"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("BLOB_DRIVER must be %s or %s, got %q", DriverCloudinary, DriverMemory, c.BlobDriver))
	}
	if c.DeleteConcurrency < 1 {
		errs = append(errs, errors.New("DELETE_CONCURRENCY must be positive"))
	}
	if c.TokenTTL <= 0 || c.PresenceTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL and PRESENCE_TTL must be positive"))
	}
	return errors.Join(errs...)
}
