package model

// Subscription and price types shared by the store, scheduler and bot

import (
	"regexp"
	"strings"
	"time"
)

const (
	// MinIntervalMinutes and MaxIntervalMinutes bound the notification spacing a user can set.
	MinIntervalMinutes = 1
	MaxIntervalMinutes = 7 * 24 * 60
)

var (
	coinSymbolPattern      = regexp.MustCompile(`^[A-Za-z0-9]{2,10}$`)
	channelUsernamePattern = regexp.MustCompile(`^@[A-Za-z0-9_]{5,32}$`)
	chatIDPattern          = regexp.MustCompile(`^-?[0-9]{1,20}$`)
)

// Subscription is a Telegram user's price notification settings.
// One row per user, keyed by UserID. Rows are deactivated, never deleted.
type Subscription struct {
	UserID          string     `json:"user_id" db:"user_id"`
	ChannelID       string     `json:"channel_id" db:"channel_id"`
	CoinSymbol      string     `json:"coin_symbol" db:"coin_symbol"`
	IntervalMinutes int        `json:"interval_minutes" db:"interval_minutes"`
	IsActive        bool       `json:"is_active" db:"is_active"`
	LastPostedAt    *time.Time `json:"last_posted_at,omitempty" db:"last_posted_at"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
}

// Interval returns the configured spacing between two posts.
func (s *Subscription) Interval() time.Duration {
	return time.Duration(s.IntervalMinutes) * time.Minute
}

// Due reports whether a post should go out at now.
// A subscription that never posted is always due.
func (s *Subscription) Due(now time.Time) bool {
	if !s.IsActive {
		return false
	}
	if s.LastPostedAt == nil {
		return true
	}
	return now.Sub(*s.LastPostedAt) >= s.Interval()
}

// Update is a partial update; nil fields are left untouched.
type Update struct {
	ChannelID       *string
	CoinSymbol      *string
	IntervalMinutes *int
	IsActive        *bool
	LastPostedAt    *time.Time
}

// Apply copies the non-nil fields of u onto s.
func (u Update) Apply(s *Subscription) {
	if u.ChannelID != nil {
		s.ChannelID = *u.ChannelID
	}
	if u.CoinSymbol != nil {
		s.CoinSymbol = *u.CoinSymbol
	}
	if u.IntervalMinutes != nil {
		s.IntervalMinutes = *u.IntervalMinutes
	}
	if u.IsActive != nil {
		s.IsActive = *u.IsActive
	}
	if u.LastPostedAt != nil {
		t := *u.LastPostedAt
		s.LastPostedAt = &t
	}
}

// IsEmpty reports whether the update changes nothing.
func (u Update) IsEmpty() bool {
	return u.ChannelID == nil && u.CoinSymbol == nil && u.IntervalMinutes == nil &&
		u.IsActive == nil && u.LastPostedAt == nil
}

// Stats is the aggregate exposed by the stats endpoint and the admin command.
type Stats struct {
	ActiveUsers int `json:"active_users" db:"active_users"`
	TotalUsers  int `json:"total_users" db:"total_users"`
}

// Price is a coin quote in USD.
type Price struct {
	Price     float64
	Change24h float64
}

// NormalizeCoinSymbol trims and upper-cases a ticker and checks its shape.
func NormalizeCoinSymbol(symbol string) (string, bool) {
	symbol = strings.TrimSpace(symbol)
	if !coinSymbolPattern.MatchString(symbol) {
		return "", false
	}
	return strings.ToUpper(symbol), true
}

// ValidInterval reports whether minutes is an accepted notification interval.
func ValidInterval(minutes int) bool {
	return minutes >= MinIntervalMinutes && minutes <= MaxIntervalMinutes
}

// ValidChannelID reports whether id is a numeric chat id or a public @username.
// Accepted ids are safe to show inside Markdown code spans.
func ValidChannelID(id string) bool {
	return chatIDPattern.MatchString(id) || channelUsernamePattern.MatchString(id)
}
