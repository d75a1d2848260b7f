// Package notify delivers user-facing notifications such as budget alerts.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"fintrack/internal/amqp"
)

type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}

// Func adapts a plain function to Notifier.
type Func func(ctx context.Context, title, body string) error

func (f Func) Notify(ctx context.Context, title, body string) error {
	return f(ctx, title, body)
}

// Log writes notifications to the structured log.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Notify(ctx context.Context, title, body string) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.WarnContext(ctx, title, "component", "notify", "body", body)
	return nil
}

// Multi fans a notification out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, title, body string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, title, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type alertPublisher interface {
	PublishBudgetAlert(ctx context.Context, msg *amqp.BudgetAlertMessage) error
}

// AMQP publishes notifications to the broker for the alert worker.
type AMQP struct {
	publisher alertPublisher
}

func NewAMQP(p alertPublisher) *AMQP {
	return &AMQP{publisher: p}
}

func (a *AMQP) Notify(ctx context.Context, title, body string) error {
	return a.publisher.PublishBudgetAlert(ctx, amqp.NewBudgetAlertMessage(title, body))
}

// Recorder keeps notifications in memory.
type Recorder struct {
	mu   sync.Mutex
	sent []Message
}

type Message struct {
	Title string
	Body  string
}

func (r *Recorder) Notify(_ context.Context, title, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, Message{Title: title, Body: body})
	return nil
}

func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.sent...)
}
