// Package database manages the connection to the catalog database and the
// table models stored in it.
package database

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/waterinstitute/metget/internal/config"
	"github.com/waterinstitute/metget/internal/log"
	"go.uber.org/zap"
)

// Client holds the connection to the catalog database
type Client struct {
	config *config.Config
	DB     *gorm.DB // Exported so it can be accessed from other packages
	logger *zap.SugaredLogger
}

// NewClient creates a new database client
func NewClient(c *config.Config, logger *zap.SugaredLogger) *Client {
	return &Client{
		config: c,
		logger: logger,
	}
}

// Connect connects to the catalog database
func (c *Client) Connect() error {
	var err error

	// Create a logger for gorm
	dbLogger := logger.New(
		zap.NewStdLog(log.GetZapLogger()),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	log.Info("connecting to catalog database...")
	c.DB, err = gorm.Open(postgres.Open(c.config.DSN()), &gorm.Config{Logger: dbLogger})
	if err != nil {
		log.Warn("warning: unable to create a catalog database connection:", err)
		return err
	}
	log.Info("catalog database connection successful")

	return nil
}

// Migrate creates or updates the catalog and request tables.
func (c *Client) Migrate() error {
	for _, table := range CatalogTables() {
		if err := c.DB.Table(table).AutoMigrate(&CatalogEntry{}); err != nil {
			return fmt.Errorf("migrating %s: %w", table, err)
		}
	}
	if err := c.DB.AutoMigrate(&NhcBtkEntry{}, &NhcFcstEntry{}, &Request{}); err != nil {
		return fmt.Errorf("migrating nhc/request tables: %w", err)
	}
	return nil
}

// Ping verifies the database connection is alive.
func (c *Client) Ping(ctx context.Context) error {
	sqlDB, err := c.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
