// Package worker forwards budget alerts consumed from the broker.
package worker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/log"
	"fintrack/internal/notify"
)

type AlertWorkerConfig struct {
	// MaxAge drops alerts older than this. Zero keeps everything.
	MaxAge time.Duration
	// DedupeWindow suppresses an identical alert seen within the window.
	DedupeWindow time.Duration
	Logger       *log.Logger
	Now          func() time.Time
}

// AlertWorker delivers budget alert messages to a notifier.
type AlertWorker struct {
	notifier notify.Notifier
	cfg      AlertWorkerConfig
	logger   *log.Logger

	mu        sync.Mutex
	seen      map[string]time.Time
	delivered int
	dropped   int
}

func NewAlertWorker(n notify.Notifier, cfg AlertWorkerConfig) *AlertWorker {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &AlertWorker{
		notifier: n,
		cfg:      cfg,
		logger:   cfg.Logger.WithComponent(log.ComponentWorker),
		seen:     make(map[string]time.Time),
	}
}

// HandleBudgetAlert is the consumer callback. A returned error makes the
// broker redeliver the message.
func (w *AlertWorker) HandleBudgetAlert(ctx context.Context, msg *amqp.BudgetAlertMessage) error {
	if msg == nil || strings.TrimSpace(msg.Title) == "" {
		w.drop(ctx, "empty alert", msg)
		return nil
	}

	now := w.cfg.Now()
	if w.cfg.MaxAge > 0 && !msg.Timestamp.IsZero() && now.Sub(msg.Timestamp) > w.cfg.MaxAge {
		w.drop(ctx, "stale alert", msg)
		return nil
	}

	key := msg.Title + "\x00" + msg.Body
	if w.cfg.DedupeWindow > 0 {
		w.mu.Lock()
		last, ok := w.seen[key]
		w.mu.Unlock()
		if ok && now.Sub(last) < w.cfg.DedupeWindow {
			w.drop(ctx, "duplicate alert", msg)
			return nil
		}
	}

	if err := w.notifier.Notify(ctx, msg.Title, msg.Body); err != nil {
		return fmt.Errorf("deliver budget alert: %w", err)
	}

	w.mu.Lock()
	w.delivered++
	if w.cfg.DedupeWindow > 0 {
		w.seen[key] = now
		for k, t := range w.seen {
			if now.Sub(t) >= w.cfg.DedupeWindow {
				delete(w.seen, k)
			}
		}
	}
	w.mu.Unlock()

	w.logger.InfoContext(ctx, "Budget alert delivered", "title", msg.Title)
	return nil
}

func (w *AlertWorker) drop(ctx context.Context, reason string, msg *amqp.BudgetAlertMessage) {
	w.mu.Lock()
	w.dropped++
	w.mu.Unlock()
	args := []any{"reason", reason}
	if msg != nil {
		args = append(args, "title", msg.Title, "timestamp", msg.Timestamp)
	}
	w.logger.WarnContext(ctx, "Budget alert dropped", args...)
}

// Stats returns how many alerts were delivered and dropped.
func (w *AlertWorker) Stats() (delivered, dropped int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.delivered, w.dropped
}
