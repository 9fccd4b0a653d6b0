package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/edouard/switchboard/internal/config"
	"github.com/edouard/switchboard/internal/heartbeat"
	"github.com/edouard/switchboard/internal/sink"
	"github.com/edouard/switchboard/internal/supervisor"
	"github.com/edouard/switchboard/internal/watcher"
)

// Replaceable for testing.
var (
	watchInterval   = 2 * time.Second
	shutdownTimeout = 10 * time.Second
)

// TokenResolver turns a configured token (literal or vault reference)
// into the credential.
type TokenResolver func(value string) (string, error)

// Router runs every configured bot and the background jobs they need.
type Router struct {
	instances []*Instance
}

// NewRouter builds one instance per configured bot. newAPI may be nil;
// it exists so tests can substitute the Bot API.
func NewRouter(cfg *config.Config, resolve TokenResolver, s sink.Sink, creds *supervisor.Credentials, newAPI func(token string) API) (*Router, error) {
	r := &Router{}
	for _, b := range cfg.Bots {
		token, err := resolve(b.Token)
		if err != nil {
			r.close()
			return nil, fmt.Errorf("bot: %s: token: %w", b.Name, err)
		}
		opts := Options{Config: b, Token: token, Sink: s, Credentials: creds}
		if newAPI != nil {
			opts.API = newAPI(token)
		}
		inst, err := New(opts)
		if err != nil {
			r.close()
			return nil, err
		}
		r.instances = append(r.instances, inst)
	}
	return r, nil
}

func (r *Router) Instances() []*Instance { return r.instances }

// Run starts every bot, then serves hot reload and liveness probes until
// ctx is cancelled. It fails only when no bot could start.
func (r *Router) Run(ctx context.Context) error {
	if len(r.instances) == 0 {
		return errors.New("bot: run: no bots configured")
	}
	defer r.close()

	var startErrs []error
	for _, inst := range r.instances {
		if err := inst.Start(ctx); err != nil {
			slog.Error("bot failed to start",
				"component", "bot",
				"operation", "run",
				"bot", inst.Name(),
				"error", err,
			)
			startErrs = append(startErrs, err)
		}
	}
	if len(startErrs) == len(r.instances) {
		return fmt.Errorf("bot: run: %w", errors.Join(startErrs...))
	}

	r.runProbes(ctx)
	r.watchCommands(ctx)
	slog.Info("router running", "component", "bot", "operation", "run", "bots", len(r.instances))

	<-ctx.Done()
	r.stop()
	return nil
}

// runProbes starts one heartbeat executor per distinct probe interval.
func (r *Router) runProbes(ctx context.Context) {
	byInterval := make(map[time.Duration][]heartbeat.Prober)
	var intervals []time.Duration
	for _, inst := range r.instances {
		iv := inst.cfg.ProbeInterval
		if iv <= 0 {
			continue
		}
		if _, ok := byInterval[iv]; !ok {
			intervals = append(intervals, iv)
		}
		byInterval[iv] = append(byInterval[iv], inst)
	}
	slices.Sort(intervals)
	for _, iv := range intervals {
		e := heartbeat.NewExecutor(0, nil, byInterval[iv]...)
		go runExecutor(ctx, e, iv)
	}
}

func runExecutor(ctx context.Context, e *heartbeat.Executor, interval time.Duration) {
	if err := e.Run(ctx, interval); err != nil {
		slog.Error("heartbeat stopped",
			"component", "bot",
			"operation", "probe",
			"interval", interval,
			"error", err,
		)
	}
}

// watchCommands reloads every bot whose commands file changed.
func (r *Router) watchCommands(ctx context.Context) {
	byPath := make(map[string][]*Instance)
	var paths []string
	for _, inst := range r.instances {
		p := inst.cfg.CommandsFile
		if p == "" {
			continue
		}
		if _, ok := byPath[p]; !ok {
			paths = append(paths, p)
		}
		byPath[p] = append(byPath[p], inst)
	}
	if len(paths) == 0 {
		return
	}

	changes := make(chan string, 1)
	go watcher.New(watchInterval, paths...).Run(ctx, changes)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case p := <-changes:
				for _, inst := range byPath[p] {
					if err := inst.Reload(ctx); err != nil {
						slog.Error("command reload failed, keeping previous set",
							"component", "bot",
							"operation", "reload",
							"bot", inst.Name(),
							"error", err,
						)
					}
				}
			}
		}
	}()
}

func (r *Router) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, inst := range r.instances {
		if err := inst.Stop(ctx); err != nil {
			slog.Warn("bot stop failed",
				"component", "bot",
				"operation", "stop",
				"bot", inst.Name(),
				"error", err,
			)
		}
	}
}

func (r *Router) close() {
	for _, inst := range r.instances {
		_ = inst.Close()
	}
}
