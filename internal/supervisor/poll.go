package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edouard/switchboard/internal/platform"
	"github.com/edouard/switchboard/internal/telegram"
)

// PollTimeout is the server-side wait of every getUpdates call.
const PollTimeout = 10 * time.Second

// DefaultPollInterval separates consecutive poll cycles.
const DefaultPollInterval = 300 * time.Millisecond

// restartDelay is the fixed pause after a transient poll error.
var restartDelay = 3 * time.Second

type pollTransport struct {
	bot      string
	api      API
	interval time.Duration
	allowed  []string
	offset   *atomic.Int64
	deliver  DeliverFunc
	hooks    Hooks

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Start clears any registered webhook, then launches the poll loop.
// A rejected credential is returned; other deleteWebhook failures are
// logged and polling proceeds.
func (p *pollTransport) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	err := retryFn(ctx, 2, time.Second, func() error {
		err := p.api.DeleteWebhook(ctx, false)
		if telegram.IsUnauthorized(err) {
			return platform.Permanent(err)
		}
		return err
	})
	if telegram.IsUnauthorized(err) {
		return fmt.Errorf("supervisor: poll: delete webhook: %w", err)
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("could not delete webhook before polling",
			"component", "supervisor",
			"operation", "poll_start",
			"bot", p.bot,
			"error", err,
		)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	p.mu.Lock()
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	go p.run(runCtx, done)
	return nil
}

// Stop cancels the in-flight poll and waits for the loop to exit.
func (p *pollTransport) Stop(ctx context.Context) error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("supervisor: poll: stop: %w", ctx.Err())
	}
}

func (p *pollTransport) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	slog.Info("poller started",
		"component", "supervisor",
		"operation", "poll_start",
		"bot", p.bot,
	)
	defer slog.Info("poller stopped",
		"component", "supervisor",
		"operation", "poll_stop",
		"bot", p.bot,
	)

	for cycle := uint64(1); ; cycle++ {
		if ctx.Err() != nil {
			return
		}
		p.hooks.cycleStart(cycle)

		cycleCtx, cancel := context.WithCancel(ctx)
		updates, err := p.api.GetUpdates(cycleCtx, p.offset.Load(), PollTimeout, p.allowed)
		cancel()

		// A cancelled request never delivers and is never retried.
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			if telegram.IsUnauthorized(err) {
				p.hooks.fail(err, true)
				return
			}
			p.hooks.fail(err, false)
			if !sleepCtx(ctx, restartDelay) {
				return
			}
			continue
		}

		p.offset.Store(telegram.NextOffset(p.offset.Load(), updates))
		for _, u := range updates {
			p.deliver(ctx, u)
		}
		p.hooks.cycleEnd(cycle, len(updates))

		if !sleepCtx(ctx, p.interval) {
			return
		}
	}
}
