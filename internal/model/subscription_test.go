package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSubscription_Due(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ago := func(d time.Duration) *time.Time {
		t := now.Add(-d)
		return &t
	}

	tests := []struct {
		name string
		sub  Subscription
		want bool
	}{
		{"never posted", Subscription{IsActive: true, IntervalMinutes: 60}, true},
		{"never posted huge interval", Subscription{IsActive: true, IntervalMinutes: MaxIntervalMinutes}, true},
		{"inactive never posted", Subscription{IsActive: false, IntervalMinutes: 1}, false},
		{"59 minutes ago", Subscription{IsActive: true, IntervalMinutes: 60, LastPostedAt: ago(59 * time.Minute)}, false},
		{"exactly 60 minutes ago", Subscription{IsActive: true, IntervalMinutes: 60, LastPostedAt: ago(60 * time.Minute)}, true},
		{"long ago but inactive", Subscription{IsActive: false, IntervalMinutes: 1, LastPostedAt: ago(24 * time.Hour)}, false},
		{"just posted", Subscription{IsActive: true, IntervalMinutes: 1, LastPostedAt: ago(0)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.sub.Due(now))
		})
	}
}

func TestUpdate_Apply(t *testing.T) {
	coin, active := "ETH", false
	posted := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := Subscription{UserID: "u1", ChannelID: "c1", CoinSymbol: "BTC", IntervalMinutes: 5, IsActive: true}

	Update{CoinSymbol: &coin, IsActive: &active, LastPostedAt: &posted}.Apply(&s)

	require.Equal(t, "ETH", s.CoinSymbol)
	require.False(t, s.IsActive)
	require.Equal(t, 5, s.IntervalMinutes)
	require.Equal(t, "c1", s.ChannelID)
	require.NotNil(t, s.LastPostedAt)
	require.True(t, posted.Equal(*s.LastPostedAt))
	require.True(t, Update{}.IsEmpty())
}

func TestNormalizeCoinSymbol(t *testing.T) {
	got, ok := NormalizeCoinSymbol(" eth ")
	require.True(t, ok)
	require.Equal(t, "ETH", got)

	for _, bad := range []string{"", "x", "BTC-USD", "averyveryverylongticker"} {
		_, ok := NormalizeCoinSymbol(bad)
		require.False(t, ok, bad)
	}
}

func TestValidInterval(t *testing.T) {
	require.False(t, ValidInterval(0))
	require.True(t, ValidInterval(1))
	require.True(t, ValidInterval(MaxIntervalMinutes))
	require.False(t, ValidInterval(MaxIntervalMinutes+1))
}

func TestValidChannelID(t *testing.T) {
	for _, id := range []string{"4242", "-1001234567890", "@mychannel", "@price_feed_01"} {
		require.True(t, ValidChannelID(id), id)
	}
	for _, id := range []string{"", "@", "@abc", "@foo bar", "@foo`bar", "@name*bold*", "12a", "mychannel"} {
		require.False(t, ValidChannelID(id), id)
	}
}
