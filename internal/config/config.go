// Package config loads daemon configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config carries the environment-driven settings for the build daemon.
type Config struct {
	DatabaseUser     string `validate:"required"`
	DatabasePassword string `validate:"required"`
	DatabaseHost     string `validate:"required"`
	DatabasePort     int    `validate:"gt=0,lte=65535"`
	DatabaseName     string `validate:"required"`

	// Bucket holds assembled inputs mirrored from upstream; UploadBucket
	// receives finished products.
	Bucket       string `validate:"required"`
	UploadBucket string `validate:"required"`

	// AWS credentials are optional. When unset the SDK falls back to its
	// default chain (instance role, shared config).
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string

	// StatusAddr is the listen address for the status endpoint. Setting
	// it to an empty string disables the endpoint.
	StatusAddr string

	Debug bool
}

// Load reads configuration from the environment. A .env file in the working
// directory is honored when present but never required.
func Load() (*Config, error) {
	_ = godotenv.Load()

	statusAddr := ":8080"
	if v, ok := os.LookupEnv("METGET_STATUS_ADDR"); ok {
		statusAddr = v
	}

	port := 5432
	if p := os.Getenv("METGET_DATABASE_PORT"); p != "" {
		var err error
		port, err = strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid METGET_DATABASE_PORT: %w", err)
		}
	}

	cfg := &Config{
		DatabaseUser:       os.Getenv("METGET_DATABASE_USER"),
		DatabasePassword:   os.Getenv("METGET_DATABASE_PASSWORD"),
		DatabaseHost:       os.Getenv("METGET_DATABASE_SERVICE_HOST"),
		DatabasePort:       port,
		DatabaseName:       os.Getenv("METGET_DATABASE"),
		Bucket:             os.Getenv("METGET_S3_BUCKET"),
		UploadBucket:       os.Getenv("METGET_S3_BUCKET_UPLOAD"),
		AWSRegion:          os.Getenv("AWS_REGION"),
		AWSAccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		AWSSecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		StatusAddr:         statusAddr,
		Debug:              os.Getenv("METGET_DEBUG") == "true",
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("incomplete configuration: %w", err)
	}

	return cfg, nil
}

// DSN returns the postgres connection string for the catalog database.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.DatabaseHost, c.DatabasePort, c.DatabaseUser, c.DatabasePassword, c.DatabaseName)
}

// ConnInfo returns the lib/pq keyword string used by the LISTEN/NOTIFY
// listener, which does not share gorm's pool.
func (c *Config) ConnInfo() string {
	return c.DSN()
}
