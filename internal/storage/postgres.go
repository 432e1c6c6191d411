package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"price-bot/internal/model"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

const pgxDriverName = "pgx"

type PostgresConfig struct {
	DSN            string
	MaxOpenConns   int
	MaxIdleTime    time.Duration
	ConnectTimeout time.Duration
	AutoMigrate    bool
}

const (
	subscriptionColumns = `user_id, channel_id, coin_symbol, interval_minutes, is_active, last_posted_at, created_at`

	selectUserSQL = `SELECT ` + subscriptionColumns + ` FROM users WHERE user_id = $1`

	selectActiveUsersSQL = `SELECT ` + subscriptionColumns + ` FROM users WHERE is_active ORDER BY id`

	// ON CONFLICT keeps concurrent /start calls from racing into duplicates
	insertUserSQL = `
INSERT INTO users (user_id, channel_id, coin_symbol, interval_minutes, is_active)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (user_id) DO NOTHING
RETURNING ` + subscriptionColumns

	updateUserSQL = `
UPDATE users SET
    channel_id       = COALESCE($2, channel_id),
    coin_symbol      = COALESCE($3, coin_symbol),
    interval_minutes = COALESCE($4, interval_minutes),
    is_active        = COALESCE($5, is_active),
    last_posted_at   = COALESCE($6, last_posted_at)
WHERE user_id = $1
RETURNING ` + subscriptionColumns

	statsSQL = `SELECT COUNT(*) FILTER (WHERE is_active) AS active_users, COUNT(*) AS total_users FROM users`
)

type Postgres struct {
	db *sqlx.DB
}

// NewPostgres connects, checks the connection and optionally migrates the schema.
func NewPostgres(ctx context.Context, c PostgresConfig) (*Postgres, error) {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}

	if c.AutoMigrate {
		if err := MigrateUp(c.DSN); err != nil {
			return nil, err
		}
	}

	db, err := sqlx.Open(pgxDriverName, c.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if c.MaxOpenConns > 0 {
		db.SetMaxOpenConns(c.MaxOpenConns)
	}
	if c.MaxIdleTime > 0 {
		db.SetConnMaxIdleTime(c.MaxIdleTime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, c.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &Postgres{db: db}, nil
}

func (p *Postgres) GetUser(ctx context.Context, userID string) (*model.Subscription, error) {
	var s model.Subscription
	if err := p.db.GetContext(ctx, &s, selectUserSQL, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user %s: %w", userID, err)
	}
	return &s, nil
}

func (p *Postgres) CreateUser(ctx context.Context, sub *model.Subscription) (*model.Subscription, bool, error) {
	var s model.Subscription
	err := p.db.GetContext(ctx, &s, insertUserSQL,
		sub.UserID, sub.ChannelID, sub.CoinSymbol, sub.IntervalMinutes, sub.IsActive)
	if err == nil {
		return &s, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to create user %s: %w", sub.UserID, err)
	}

	existing, err := p.GetUser(ctx, sub.UserID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (p *Postgres) UpdateUser(ctx context.Context, userID string, upd model.Update) (*model.Subscription, error) {
	if upd.IsEmpty() {
		return p.GetUser(ctx, userID)
	}

	var s model.Subscription
	err := p.db.GetContext(ctx, &s, updateUserSQL,
		userID, upd.ChannelID, upd.CoinSymbol, upd.IntervalMinutes, upd.IsActive, upd.LastPostedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update user %s: %w", userID, err)
	}
	return &s, nil
}

func (p *Postgres) GetAllActiveUsers(ctx context.Context) ([]*model.Subscription, error) {
	subs := make([]*model.Subscription, 0)
	if err := p.db.SelectContext(ctx, &subs, selectActiveUsersSQL); err != nil {
		return nil, fmt.Errorf("failed to list active users: %w", err)
	}
	return subs, nil
}

func (p *Postgres) GetStats(ctx context.Context) (model.Stats, error) {
	var st model.Stats
	if err := p.db.GetContext(ctx, &st, statsSQL); err != nil {
		return model.Stats{}, fmt.Errorf("failed to get stats: %w", err)
	}
	return st, nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
