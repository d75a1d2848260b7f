package connectivity

import (
	"context"
	"log/slog"
	"time"
)

// CheckFunc returns nil when the remote store is reachable.
type CheckFunc func(ctx context.Context) error

// Probe polls a CheckFunc and publishes the result as an Oracle.
type Probe struct {
	hub
	check    CheckFunc
	interval time.Duration
	timeout  time.Duration
}

func NewProbe(check CheckFunc, interval, timeout time.Duration) *Probe {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if timeout <= 0 || timeout > interval {
		timeout = interval
	}
	return &Probe{check: check, interval: interval, timeout: timeout}
}

// Check probes once and updates the status.
func (p *Probe) Check(ctx context.Context) Status {
	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	status := Connected
	err := p.check(cctx)
	if err != nil {
		status = Disconnected
	}
	if p.set(status) {
		if err != nil {
			slog.WarnContext(ctx, "Remote store unreachable", "component", "connectivity", "error", err)
		} else {
			slog.InfoContext(ctx, "Remote store reachable", "component", "connectivity")
		}
	}
	return status
}

// Run probes immediately and then on every interval until ctx is done.
func (p *Probe) Run(ctx context.Context) {
	p.Check(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}
