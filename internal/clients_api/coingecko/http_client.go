package coingecko

// CoinGecko simple/price client
// Requests go through a rate limiter, a circuit breaker and retry with backoff.
// Quotes are cached per coin id and concurrent misses for one id are collapsed,
// so subscriptions on the same coin share one call per tick.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"price-bot/internal/infra/log"
	"price-bot/internal/infra/retry"
	"price-bot/internal/model"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://api.coingecko.com/api/v3"

	defaultMaxResponseSize = 1 << 20
	apiKeyHeader           = "x-cg-demo-api-key"
)

// Options configure a Client. Zero values fall back to sane defaults.
type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	RateLimit  float64 // requests per second, <= 0 disables limiting
	MaxRetries int
	CacheTTL   time.Duration // 0 disables caching
	HTTPClient *http.Client
}

type Client struct {
	baseURL         string
	apiKey          string
	httpClient      *http.Client
	rateLimiter     *rate.Limiter
	circuitBreaker  *gobreaker.CircuitBreaker
	retryOpts       retry.Options
	maxResponseSize int64

	cacheTTL time.Duration
	now      func() time.Time
	mu       sync.Mutex
	cache    map[string]cachedQuote
	inflight singleflight.Group
}

type cachedQuote struct {
	price     model.Price
	fetchedAt time.Time
}

// quote is one entry of the simple/price response.
type quote struct {
	USD          *float64 `json:"usd"`
	USD24hChange *float64 `json:"usd_24h_change"`
}

func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 90 * time.Second,
			},
		}
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 5)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "CoinGeckoAPI",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.LogWarn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	retryOpts := retry.DefaultOptions
	retryOpts.MaxRetries = opts.MaxRetries
	retryOpts.OnRetry = func(attempt int, wait time.Duration, err error) {
		log.LogWarn("Retrying CoinGecko request",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	return &Client{
		baseURL:         opts.BaseURL,
		apiKey:          opts.APIKey,
		httpClient:      httpClient,
		rateLimiter:     limiter,
		circuitBreaker:  breaker,
		retryOpts:       retryOpts,
		maxResponseSize: defaultMaxResponseSize,
		cacheTTL:        opts.CacheTTL,
		now:             time.Now,
		cache:           make(map[string]cachedQuote),
	}
}

var errNoQuote = errors.New("no usable quote in response")

// Fetch returns the USD price and 24h change for symbol.
// Every failure wraps model.ErrPriceUnavailable.
func (c *Client) Fetch(ctx context.Context, symbol string) (model.Price, error) {
	coinID := CoinID(symbol)

	if p, ok := c.cached(coinID); ok {
		return p, nil
	}

	v, err, _ := c.inflight.Do(coinID, func() (interface{}, error) {
		// a call that finished while this one waited to enter may have filled the cache
		if p, ok := c.cached(coinID); ok {
			return p, nil
		}
		p, err := c.fetchQuote(ctx, coinID)
		if err != nil {
			return nil, err
		}
		c.store(coinID, p)
		return p, nil
	})
	if err != nil {
		return model.Price{}, fmt.Errorf("%w: %s (%s): %v", model.ErrPriceUnavailable, symbol, coinID, err)
	}
	return v.(model.Price), nil
}

func (c *Client) cached(coinID string) (model.Price, bool) {
	if c.cacheTTL <= 0 {
		return model.Price{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.cache[coinID]
	if !ok || c.now().Sub(q.fetchedAt) >= c.cacheTTL {
		return model.Price{}, false
	}
	return q.price, true
}

func (c *Client) store(coinID string, p model.Price) {
	if c.cacheTTL <= 0 {
		return
	}
	c.mu.Lock()
	c.cache[coinID] = cachedQuote{price: p, fetchedAt: c.now()}
	c.mu.Unlock()
}

func (c *Client) fetchQuote(ctx context.Context, coinID string) (model.Price, error) {
	params := url.Values{}
	params.Set("ids", coinID)
	params.Set("vs_currencies", "usd")
	params.Set("include_24hr_change", "true")
	endpoint := "/simple/price?" + params.Encode()

	body, err := c.MakeRequest(ctx, http.MethodGet, endpoint)
	if err != nil {
		return model.Price{}, err
	}

	var resp map[string]quote
	if err := json.Unmarshal(body, &resp); err != nil {
		return model.Price{}, fmt.Errorf("failed to decode price response: %w", err)
	}

	q, ok := resp[coinID]
	if !ok || q.USD == nil || q.USD24hChange == nil {
		return model.Price{}, errNoQuote
	}
	return model.Price{Price: *q.USD, Change24h: *q.USD24hChange}, nil
}

// MakeRequest performs a rate-limited, circuit-broken, retried request and returns the body.
func (c *Client) MakeRequest(ctx context.Context, method, endpoint string) ([]byte, error) {
	requestID := uuid.NewString()
	startTime := time.Now()

	if c.rateLimiter != nil {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}
	}

	result, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		var body []byte
		err := retry.Do(ctx, c.retryOpts, func() error {
			b, err := c.do(ctx, requestID, method, endpoint)
			if err != nil {
				return err
			}
			body = b
			return nil
		})
		return body, err
	})
	if err != nil {
		log.LogResponse(requestID, statusOf(err), time.Since(startTime).Milliseconds(),
			zap.String("endpoint", endpoint), zap.Error(err))
		return nil, err
	}

	log.LogResponse(requestID, http.StatusOK, time.Since(startTime).Milliseconds(),
		zap.String("endpoint", endpoint))
	return result.([]byte), nil
}

func (c *Client) do(ctx context.Context, requestID, method, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "price-bot/1.0")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	log.LogRequest(requestID, method, endpoint)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to perform request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, retry.NewHTTPError(resp, body)
	}
	return body, nil
}

func statusOf(err error) int {
	var he *retry.HTTPError
	if errors.As(err, &he) {
		return he.StatusCode
	}
	return 0
}
