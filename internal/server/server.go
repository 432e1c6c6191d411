package server

// HTTP surface: Telegram webhook, stats, manual scheduler trigger, health

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	log "price-bot/internal/infra/log"
	"price-bot/internal/model"
	"price-bot/internal/scheduler"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const (
	secretHeader    = "X-Telegram-Bot-Api-Secret-Token"
	maxWebhookBytes = 1 << 20
)

type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update tgbotapi.Update)
}

type StatsSource interface {
	GetStats(ctx context.Context) (model.Stats, error)
}

type Trigger interface {
	RunOnce(ctx context.Context) scheduler.Result
}

type Options struct {
	Addr          string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	WebhookSecret string // empty disables the check
}

type Server struct {
	updates UpdateHandler // nil when no bot token is configured
	stats   StatsSource
	trigger Trigger
	opts    Options

	httpServer *http.Server
}

func New(updates UpdateHandler, stats StatsSource, trigger Trigger, opts Options) *Server {
	s := &Server{updates: updates, stats: stats, trigger: trigger, opts: opts}
	s.httpServer = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	}
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/webhook", s.handleWebhook)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("POST /api/scheduler/trigger", s.handleTrigger)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return withRequestLog(withRecovery(mux))
}

// ListenAndServe blocks until the server stops; a clean Shutdown returns nil.
func (s *Server) ListenAndServe() error {
	log.LogInfo("HTTP server listening", zap.String("addr", s.opts.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// handleWebhook always acknowledges with 200: Telegram redelivers on anything else.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	defer writeJSON(w, http.StatusOK, map[string]bool{"ok": true})

	if s.opts.WebhookSecret != "" &&
		subtle.ConstantTimeCompare([]byte(r.Header.Get(secretHeader)), []byte(s.opts.WebhookSecret)) != 1 {
		log.LogWarn("Webhook secret mismatch, update dropped", zap.String("remote", r.RemoteAddr))
		return
	}

	var update tgbotapi.Update
	if err := json.NewDecoder(io.LimitReader(r.Body, maxWebhookBytes)).Decode(&update); err != nil {
		log.LogWarn("Invalid webhook payload", zap.Error(err))
		return
	}

	if s.updates == nil {
		log.LogDebug("No bot configured, update dropped", zap.Int("update_id", update.UpdateID))
		return
	}
	// processing outlives a client that hangs up early
	s.updates.HandleUpdate(context.WithoutCancel(r.Context()), update)
}

type statsResponse struct {
	ActiveUsers int    `json:"activeUsers"`
	Status      string `json:"status"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.stats.GetStats(r.Context())
	if err != nil {
		log.LogError("Failed to load stats", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{ActiveUsers: stats.ActiveUsers, Status: "active"})
}

type triggerResponse struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	Result  scheduler.Result `json:"result"`
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	// a pass started on request completes even if the caller disconnects
	res := s.trigger.RunOnce(context.WithoutCancel(r.Context()))
	writeJSON(w, http.StatusOK, triggerResponse{Success: true, Message: "Scheduler triggered", Result: res})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.LogWarn("Failed to write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
