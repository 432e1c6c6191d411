package storage

// Subscription persistence
// Two drivers: PostgreSQL for deployments, BuntDB for single-node and local runs.

import (
	"context"
	"errors"
	"fmt"

	"price-bot/internal/infra/config"
	"price-bot/internal/model"
)

// ErrNotFound is returned when no subscription exists for a user id.
var ErrNotFound = errors.New("subscription not found")

// Store is the repository used by the scheduler, the bot and the HTTP API.
type Store interface {
	GetUser(ctx context.Context, userID string) (*model.Subscription, error)
	// CreateUser inserts sub unless a row for sub.UserID exists.
	// It returns the stored row and whether it was created by this call.
	CreateUser(ctx context.Context, sub *model.Subscription) (*model.Subscription, bool, error)
	UpdateUser(ctx context.Context, userID string, upd model.Update) (*model.Subscription, error)
	GetAllActiveUsers(ctx context.Context) ([]*model.Subscription, error)
	GetStats(ctx context.Context) (model.Stats, error)
	Close() error
}

// Open returns the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return NewPostgres(ctx, PostgresConfig{
			DSN:            cfg.URL,
			MaxOpenConns:   cfg.MaxOpenConns,
			MaxIdleTime:    cfg.MaxIdleTime,
			ConnectTimeout: cfg.ConnectTimeout,
			AutoMigrate:    cfg.AutoMigrate,
		})
	case config.DriverBuntDB:
		return NewBuntStorage(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
