package supervisor

import (
	"context"
	"time"

	"github.com/edouard/switchboard/internal/platform"
	"github.com/edouard/switchboard/internal/telegram"
)

// API is the part of the Bot API the supervisor drives.
type API interface {
	GetMe(ctx context.Context) (*telegram.User, error)
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration, allowed []string) ([]telegram.Update, error)
	SetWebhook(ctx context.Context, params telegram.WebhookParams) error
	DeleteWebhook(ctx context.Context, dropPending bool) error
}

// DeliverFunc receives raw updates in arrival order.
type DeliverFunc func(ctx context.Context, u telegram.Update)

// Hooks let the supervisor observe a transport without wrapping it.
// Any hook may be nil.
type Hooks struct {
	OnCycleStart func(cycle uint64)
	OnCycleEnd   func(cycle uint64, updates int)
	// OnError reports a failure; fatal errors mean the transport stopped
	// by itself and will not recover.
	OnError func(err error, fatal bool)
}

func (h Hooks) cycleStart(cycle uint64) {
	if h.OnCycleStart != nil {
		h.OnCycleStart(cycle)
	}
}

func (h Hooks) cycleEnd(cycle uint64, n int) {
	if h.OnCycleEnd != nil {
		h.OnCycleEnd(cycle, n)
	}
}

func (h Hooks) fail(err error, fatal bool) {
	if h.OnError != nil {
		h.OnError(err, fatal)
	}
}

// Transport is a source of updates. Start returns once the transport is
// accepting updates; Stop blocks until it no longer delivers any.
type Transport interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// retryFn wraps platform.Retry for testability.
var retryFn = platform.Retry

// sleepCtx waits for d or ctx cancellation. It reports whether the full
// delay elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
