package initializer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nguyennn/account-svc/infra/migrations"
	"github.com/nguyennn/account-svc/pkg/config"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewDBConnection opens the accounts database and, when enabled, applies the
// embedded migrations.
func NewDBConnection(ctx context.Context, cfg *config.DB, appEnv string, logger *slog.Logger) (*gorm.DB, error) {
	if cfg == nil || cfg.Url == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}

	logMode := gormlogger.Silent
	if appEnv == "development" {
		logMode = gormlogger.Warn
	}

	connection, err := gorm.Open(postgres.Open(cfg.Url), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(logMode),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := connection.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if cfg.AutoMigrate {
		if err := migrations.Up(sqlDB, logger); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
	}
	return connection, nil
}
