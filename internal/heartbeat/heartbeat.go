// Package heartbeat periodically checks that bot credentials still work.
// Webhook bots otherwise learn about a revoked token only when Telegram
// stops calling them.
package heartbeat

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Prober checks one bot. *supervisor.Supervisor satisfies it.
type Prober interface {
	Name() string
	Probe(ctx context.Context) error
}

// Result is the outcome of one probe.
type Result struct {
	Bot      string
	Err      error
	Duration time.Duration
}

// Executor probes every registered bot on each tick.
type Executor struct {
	probers  []Prober
	timeout  time.Duration
	onResult func(Result)
}

// NewExecutor creates an Executor. Each probe is bounded by timeout; a
// zero timeout means 10 seconds. onResult may be nil.
func NewExecutor(timeout time.Duration, onResult func(Result), probers ...Prober) *Executor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Executor{probers: probers, timeout: timeout, onResult: onResult}
}

// Execute runs one round of probes in order and returns how many failed.
func (e *Executor) Execute(ctx context.Context) int {
	failed := 0
	for _, p := range e.probers {
		if ctx.Err() != nil {
			break
		}
		start := time.Now()
		pctx, cancel := context.WithTimeout(ctx, e.timeout)
		err := p.Probe(pctx)
		cancel()

		res := Result{Bot: p.Name(), Err: err, Duration: time.Since(start)}
		if err != nil {
			failed++
			slog.Warn("heartbeat probe failed",
				"component", "heartbeat",
				"operation", "probe",
				"bot", res.Bot,
				"error", err,
			)
		} else {
			slog.Debug("heartbeat probe ok",
				"component", "heartbeat",
				"operation", "probe",
				"bot", res.Bot,
				"duration", res.Duration,
			)
		}
		if e.onResult != nil {
			e.onResult(res)
		}
	}
	return failed
}

// Run executes a round every interval until ctx is cancelled.
func (e *Executor) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("heartbeat: run: interval must be positive, got %s", interval)
	}
	slog.Info("heartbeat enabled",
		"component", "heartbeat",
		"operation", "run",
		"bots", len(e.probers),
		"interval", interval,
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.Execute(ctx)
		}
	}
}
