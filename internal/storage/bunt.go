package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"price-bot/internal/model"

	"github.com/samber/lo"
	"github.com/tidwall/buntdb"
)

const (
	subscriptionKeyPrefix = "sub:"
	createdIndexName      = "created_at"
)

// BuntStorage keeps subscriptions as JSON values keyed by "sub:<user id>".
type BuntStorage struct {
	db  *buntdb.DB
	now func() time.Time
}

// NewBuntStorage opens (or creates) a BuntDB file. ":memory:" keeps everything in RAM.
func NewBuntStorage(path string) (*BuntStorage, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open buntdb: %w", err)
	}

	if err := db.SetConfig(buntdb.Config{
		SyncPolicy:           buntdb.EverySecond,
		AutoShrinkPercentage: 100,
		AutoShrinkMinSize:    32 * 1024 * 1024,
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure buntdb: %w", err)
	}

	if err := db.CreateIndex(createdIndexName, subscriptionKeyPrefix+"*", buntdb.IndexJSON("created_at")); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &BuntStorage{db: db, now: time.Now}, nil
}

func subscriptionKey(userID string) string {
	return subscriptionKeyPrefix + userID
}

func getSubscription(tx *buntdb.Tx, userID string) (*model.Subscription, error) {
	raw, err := tx.Get(subscriptionKey(userID))
	if err != nil {
		if errors.Is(err, buntdb.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var s model.Subscription
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("failed to decode subscription %s: %w", userID, err)
	}
	return &s, nil
}

func setSubscription(tx *buntdb.Tx, s *model.Subscription) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode subscription %s: %w", s.UserID, err)
	}
	_, _, err = tx.Set(subscriptionKey(s.UserID), string(data), nil)
	return err
}

func (b *BuntStorage) GetUser(_ context.Context, userID string) (*model.Subscription, error) {
	var s *model.Subscription
	err := b.db.View(func(tx *buntdb.Tx) error {
		var err error
		s, err = getSubscription(tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (b *BuntStorage) CreateUser(_ context.Context, sub *model.Subscription) (*model.Subscription, bool, error) {
	var (
		stored  *model.Subscription
		created bool
	)
	// Update transactions are exclusive, so the existence check and insert are atomic
	err := b.db.Update(func(tx *buntdb.Tx) error {
		existing, err := getSubscription(tx, sub.UserID)
		if err == nil {
			stored = existing
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}

		s := *sub
		s.LastPostedAt = nil
		s.CreatedAt = b.now().UTC()
		if err := setSubscription(tx, &s); err != nil {
			return err
		}
		stored, created = &s, true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to create user %s: %w", sub.UserID, err)
	}
	return stored, created, nil
}

func (b *BuntStorage) UpdateUser(_ context.Context, userID string, upd model.Update) (*model.Subscription, error) {
	var s *model.Subscription
	err := b.db.Update(func(tx *buntdb.Tx) error {
		var err error
		s, err = getSubscription(tx, userID)
		if err != nil {
			return err
		}
		upd.Apply(s)
		return setSubscription(tx, s)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update user %s: %w", userID, err)
	}
	return s, nil
}

func (b *BuntStorage) all() ([]*model.Subscription, error) {
	var subs []*model.Subscription
	err := b.db.View(func(tx *buntdb.Tx) error {
		var decodeErr error
		err := tx.Ascend(createdIndexName, func(key, value string) bool {
			var s model.Subscription
			if decodeErr = json.Unmarshal([]byte(value), &s); decodeErr != nil {
				decodeErr = fmt.Errorf("failed to decode %s: %w", key, decodeErr)
				return false
			}
			subs = append(subs, &s)
			return true
		})
		if err != nil {
			return err
		}
		return decodeErr
	})
	return subs, err
}

func (b *BuntStorage) GetAllActiveUsers(_ context.Context) ([]*model.Subscription, error) {
	subs, err := b.all()
	if err != nil {
		return nil, fmt.Errorf("failed to list active users: %w", err)
	}
	return lo.Filter(subs, func(s *model.Subscription, _ int) bool {
		return s.IsActive
	}), nil
}

func (b *BuntStorage) GetStats(_ context.Context) (model.Stats, error) {
	subs, err := b.all()
	if err != nil {
		return model.Stats{}, fmt.Errorf("failed to get stats: %w", err)
	}
	return model.Stats{
		ActiveUsers: lo.CountBy(subs, func(s *model.Subscription) bool { return s.IsActive }),
		TotalUsers:  len(subs),
	}, nil
}

func (b *BuntStorage) Close() error {
	return b.db.Close()
}
