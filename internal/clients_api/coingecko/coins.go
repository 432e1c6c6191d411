package coingecko

import (
	"strings"

	log "price-bot/internal/infra/log"

	"go.uber.org/zap"
)

// FallbackCoinID is what unknown tickers resolve to.
// Unmapped symbols silently quote bitcoin; existing subscriptions depend on it.
const FallbackCoinID = "bitcoin"

var coinIDs = map[string]string{
	"btc":  "bitcoin",
	"eth":  "ethereum",
	"sol":  "solana",
	"doge": "dogecoin",
}

// SupportedSymbols lists the tickers with a dedicated CoinGecko id, in menu order.
var SupportedSymbols = []string{"BTC", "ETH", "SOL", "DOGE"}

// CoinID maps a ticker to its CoinGecko id.
func CoinID(symbol string) string {
	if id, ok := coinIDs[strings.ToLower(strings.TrimSpace(symbol))]; ok {
		return id
	}
	log.LogDebug("Unknown coin symbol, using fallback id",
		zap.String("symbol", symbol),
		zap.String("coinId", FallbackCoinID))
	return FallbackCoinID
}

// IsSupported reports whether symbol has its own CoinGecko id.
func IsSupported(symbol string) bool {
	_, ok := coinIDs[strings.ToLower(strings.TrimSpace(symbol))]
	return ok
}
