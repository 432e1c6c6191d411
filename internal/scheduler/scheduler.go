package scheduler

// Periodic price posting
// Every tick loads the active subscriptions, posts a price update to each due one
// and records the post time. A failing subscription is logged and skipped;
// it never stops the pass or the loop.

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "price-bot/internal/infra/log"
	"price-bot/internal/model"
	"price-bot/internal/notifier"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultTick           = 60 * time.Second
	DefaultRequestTimeout = 10 * time.Second
)

// Store is the subset of the subscription store used by the scheduler.
type Store interface {
	GetAllActiveUsers(ctx context.Context) ([]*model.Subscription, error)
	UpdateUser(ctx context.Context, userID string, upd model.Update) (*model.Subscription, error)
}

type PriceFetcher interface {
	Fetch(ctx context.Context, symbol string) (model.Price, error)
}

type Options struct {
	Tick           time.Duration
	RequestTimeout time.Duration // per outbound call
	Concurrency    int           // subscriptions processed in parallel, 1 = sequential
	RunOnStart     bool
	BotUsername    string // message footer
	Now            func() time.Time
}

// Result summarizes one pass.
type Result struct {
	Checked int `json:"checked"`
	Due     int `json:"due"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
}

type Scheduler struct {
	store    Store
	fetcher  PriceFetcher
	notifier notifier.Notifier
	opts     Options

	// passes never overlap: the ticker and a manual trigger take turns
	passMu sync.Mutex

	newTicker func(d time.Duration) (<-chan time.Time, func())
}

func New(store Store, fetcher PriceFetcher, n notifier.Notifier, opts Options) *Scheduler {
	if opts.Tick <= 0 {
		opts.Tick = DefaultTick
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{
		store:    store,
		fetcher:  fetcher,
		notifier: n,
		opts:     opts,
		newTicker: func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		},
	}
}

// Run executes a pass on every tick until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	log.LogInfo("Starting price scheduler",
		zap.Duration("tick", s.opts.Tick),
		zap.Int("concurrency", s.opts.Concurrency))

	if s.opts.RunOnStart {
		s.RunOnce(ctx)
	}

	ticks, stop := s.newTicker(s.opts.Tick)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			log.LogInfo("Price scheduler stopped")
			return
		case <-ticks:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs one full pass synchronously.
func (s *Scheduler) RunOnce(ctx context.Context) Result {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	start := time.Now()
	now := s.opts.Now()

	subs, err := s.store.GetAllActiveUsers(ctx)
	if err != nil {
		log.LogError("Failed to load active subscriptions", zap.Error(err))
		return Result{}
	}

	due := lo.Filter(subs, func(sub *model.Subscription, _ int) bool {
		return sub.Due(now)
	})

	var (
		mu  sync.Mutex
		res = Result{Checked: len(subs), Due: len(due)}
		g   errgroup.Group
	)
	g.SetLimit(s.opts.Concurrency)

	for _, sub := range due {
		g.Go(func() error {
			err := s.process(ctx, sub, now)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed++
				log.LogError("Failed to process subscription",
					zap.String("user_id", sub.UserID),
					zap.String("coin", sub.CoinSymbol),
					zap.String("stage", stageOf(err)),
					zap.Error(err))
				return nil
			}
			res.Sent++
			return nil
		})
	}
	_ = g.Wait()

	log.LogInfo("Scheduler pass finished",
		zap.Int("checked", res.Checked),
		zap.Int("due", res.Due),
		zap.Int("sent", res.Sent),
		zap.Int("failed", res.Failed),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()))
	return res
}

// process fetches, notifies and persists for one due subscription.
func (s *Scheduler) process(ctx context.Context, sub *model.Subscription, now time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	fetchCtx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	price, err := s.fetcher.Fetch(fetchCtx, sub.CoinSymbol)
	cancel()
	if err != nil {
		return classify(err, model.ErrPriceUnavailable)
	}

	text := notifier.FormatPriceMessage(sub.CoinSymbol, price, sub.IntervalMinutes, s.opts.BotUsername)

	notifyCtx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	err = s.notifier.Notify(notifyCtx, sub.ChannelID, text)
	cancel()
	if err != nil {
		return classify(err, model.ErrDeliveryFailed)
	}

	// the post is out; recording it must survive shutdown or a caller hanging up,
	// otherwise the next tick posts again
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.RequestTimeout)
	defer cancel()
	posted := now
	if _, err := s.store.UpdateUser(persistCtx, sub.UserID, model.Update{LastPostedAt: &posted}); err != nil {
		return classify(err, model.ErrPersistenceFailed)
	}

	log.LogDebug("Price update sent",
		zap.String("user_id", sub.UserID),
		zap.String("chatID", sub.ChannelID),
		zap.String("coin", sub.CoinSymbol),
		zap.Float64("price", price.Price))
	return nil
}

func classify(err, class error) error {
	if errors.Is(err, class) {
		return err
	}
	return fmt.Errorf("%w: %v", class, err)
}

func stageOf(err error) string {
	switch {
	case errors.Is(err, model.ErrPriceUnavailable):
		return "fetch"
	case errors.Is(err, model.ErrDeliveryFailed):
		return "notify"
	case errors.Is(err, model.ErrPersistenceFailed):
		return "persist"
	default:
		return "unknown"
	}
}
