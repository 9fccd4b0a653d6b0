// Package supervisor owns the lifecycle of a bot's update transport: long
// polling, an inbound webhook, or nothing at all for send-only bots. It
// classifies transport failures, retries the transient ones and broadcasts
// status changes to subscribers.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/edouard/switchboard/internal/platform"
	"github.com/edouard/switchboard/internal/telegram"
)

// abortTimeout bounds transport teardown during Abort.
var abortTimeout = 5 * time.Second

// Options configure a Supervisor.
type Options struct {
	Name  string
	Token string
	Mode  Mode
	// API defaults to a telegram.Client for Token.
	API            API
	PollInterval   time.Duration
	AllowedUpdates []string
	Webhook        WebhookConfig
	Deliver        DeliverFunc
	// Credentials defaults to DefaultCredentials.
	Credentials *Credentials
}

// Supervisor drives one bot instance's connection state machine.
type Supervisor struct {
	id       uuid.UUID
	name     string
	token    string
	mode     Mode
	api      API
	interval time.Duration
	allowed  []string
	webhook  WebhookConfig
	deliver  DeliverFunc
	creds    *Credentials

	events broadcaster
	cycles atomic.Uint64
	offset atomic.Int64

	mu         sync.Mutex
	state      State
	status     Status
	configErr  error
	transport  Transport
	activeMode Mode
	botUser    *telegram.User
	revert     *time.Timer
	closed     bool
}

// New validates opts and claims the credential. An incomplete webhook
// configuration does not fail: the instance falls back to send-only and
// keeps the problem as its error status.
func New(opts Options) (*Supervisor, error) {
	name := opts.Name
	if name == "" {
		name = "bot"
	}
	if opts.Token == "" {
		return nil, &ConfigError{Bot: name, Op: "new", Err: ErrMissingToken}
	}
	mode, err := ParseMode(string(opts.Mode))
	if err != nil {
		return nil, &ConfigError{Bot: name, Op: "new", Err: err}
	}

	s := &Supervisor{
		id:       uuid.New(),
		name:     name,
		token:    opts.Token,
		mode:     mode,
		api:      opts.API,
		interval: opts.PollInterval,
		allowed:  opts.AllowedUpdates,
		webhook:  opts.Webhook,
		deliver:  opts.Deliver,
		creds:    opts.Credentials,
		status:   Status{Severity: SeverityInfo, Label: "disconnected", Text: "not started"},
	}
	if s.api == nil {
		s.api = telegram.NewClient(opts.Token)
	}
	if s.interval <= 0 {
		s.interval = DefaultPollInterval
	}
	if s.deliver == nil {
		s.deliver = func(context.Context, telegram.Update) {}
	}
	if s.creds == nil {
		s.creds = DefaultCredentials
	}

	if mode == ModeWebhook {
		if err := opts.Webhook.Validate(); err != nil {
			s.mode = ModeSendOnly
			s.configErr = &ConfigError{Bot: name, Op: "webhook", Err: err}
			s.status = Status{Severity: SeverityError, Label: "config", Text: err.Error()}
			slog.Error("webhook configuration incomplete, falling back to send-only",
				"component", "supervisor",
				"operation", "new",
				"bot", name,
				"error", err,
			)
		}
	}

	if err := s.creds.Register(opts.Token, Holder{ID: s.id, Name: name}); err != nil {
		slog.Error("bot token already in use",
			"component", "supervisor",
			"operation", "new",
			"bot", name,
			"error", err,
		)
		return nil, err
	}
	return s, nil
}

func (s *Supervisor) Name() string { return s.name }

// Mode returns the effective transport mode.
func (s *Supervisor) Mode() Mode { return s.mode }

// API returns the Bot API client the supervisor uses.
func (s *Supervisor) API() API { return s.api }

// ConfigErr returns the configuration problem recorded by New, if any.
func (s *Supervisor) ConfigErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configErr
}

func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns the last broadcast status.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Cycles returns the number of transport cycles started so far.
func (s *Supervisor) Cycles() uint64 { return s.cycles.Load() }

// BotUser returns the identity reported by getMe at the last start.
func (s *Supervisor) BotUser() *telegram.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.botUser
}

// WebhookAddr returns the bound webhook address while a webhook is open.
func (s *Supervisor) WebhookAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.transport.(*webhookTransport); ok {
		return w.Addr()
	}
	return nil
}

// Subscribe registers fn for every subsequent status event.
func (s *Supervisor) Subscribe(fn func(Event)) (unsubscribe func()) {
	return s.events.subscribe(fn)
}

func (s *Supervisor) emit(t EventType, st Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
	s.events.publish(Event{Type: t, Bot: s.name, Status: st, Time: time.Now()})
}

// Start connects the bot. It only acts from the disconnected state; in
// any other state it returns nil without doing anything.
func (s *Supervisor) Start(ctx context.Context, reason string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("supervisor: %s: start: %w", s.name, ErrClosed)
	}
	if s.state != StateDisconnected {
		state := s.state
		s.mu.Unlock()
		slog.Debug("start ignored",
			"component", "supervisor",
			"operation", "start",
			"bot", s.name,
			"state", state.String(),
		)
		return nil
	}
	s.state = StateConnecting
	s.mu.Unlock()

	slog.Info("starting bot",
		"component", "supervisor",
		"operation", "start",
		"bot", s.name,
		"mode", string(s.mode),
		"reason", reason,
	)
	s.emit(EventInfo, Status{Severity: SeverityInfo, Label: "connecting", Text: reason})

	me, err := s.identify(ctx)
	if err != nil {
		if telegram.IsUnauthorized(err) {
			s.fatal(err)
			return fmt.Errorf("supervisor: %s: start: %w", s.name, err)
		}
		s.setState(StateDisconnected)
		s.emit(EventError, Status{Severity: SeverityError, Label: "getMe failed", Text: err.Error()})
		return fmt.Errorf("supervisor: %s: start: %w", s.name, err)
	}
	s.mu.Lock()
	s.botUser = me
	s.mu.Unlock()

	switch s.mode {
	case ModePolling:
		err = s.StartPolling(ctx)
	case ModeWebhook:
		err = s.OpenWebhook(ctx)
	}
	if errors.Is(err, ErrAborted) {
		return fmt.Errorf("supervisor: %s: start: %w", s.name, ErrAborted)
	}
	if err != nil {
		var cfgErr *ConfigError
		if errors.As(err, &cfgErr) {
			s.setState(StateDisconnected)
			s.emit(EventError, Status{Severity: SeverityError, Label: "config", Text: err.Error()})
			return err
		}
		s.fatal(err)
		return err
	}

	s.mu.Lock()
	if s.state != StateConnecting {
		// Aborted while the transport was opening.
		t := s.detachLocked()
		s.mu.Unlock()
		if t != nil {
			t.Stop(context.Background())
		}
		return fmt.Errorf("supervisor: %s: start: %w", s.name, ErrAborted)
	}
	s.state = StateConnected
	s.mu.Unlock()

	s.emit(EventStarted, s.connectedStatus())
	return nil
}

func (s *Supervisor) connectedStatus() Status {
	switch s.mode {
	case ModePolling:
		return Status{Severity: SeverityInfo, Label: "polling", Text: "@" + s.username()}
	case ModeWebhook:
		return Status{Severity: SeverityInfo, Label: "webhook", Text: s.webhook.URL()}
	}
	st := Status{Severity: SeverityInfo, Label: "send only", Text: "@" + s.username()}
	if s.ConfigErr() != nil {
		st.Severity = SeverityWarn
		st.Text = s.ConfigErr().Error()
	}
	return st
}

func (s *Supervisor) username() string {
	if u := s.BotUser(); u != nil {
		return u.Username
	}
	return s.name
}

// identify runs getMe with a short retry. A rejected credential stops the
// retries at once.
func (s *Supervisor) identify(ctx context.Context) (*telegram.User, error) {
	var me *telegram.User
	err := retryFn(ctx, 3, time.Second, func() error {
		u, err := s.api.GetMe(ctx)
		if telegram.IsUnauthorized(err) {
			return platform.Permanent(err)
		}
		if err != nil {
			return err
		}
		me = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return me, nil
}

// StartPolling opens the long-poll transport.
func (s *Supervisor) StartPolling(ctx context.Context) error {
	return s.open(ctx, ModePolling)
}

// OpenWebhook opens the webhook listener and registers its URL.
func (s *Supervisor) OpenWebhook(ctx context.Context) error {
	return s.open(ctx, ModeWebhook)
}

// open starts the transport for mode. Asking for a mode other than the
// configured one, or the one already active, is a ConfigError wrapping
// ErrModeConflict and leaves the active transport untouched.
func (s *Supervisor) open(ctx context.Context, mode Mode) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("supervisor: %s: open %s: %w", s.name, mode, ErrClosed)
	}
	if s.transport != nil {
		active := s.activeMode
		s.mu.Unlock()
		if active == mode {
			return nil
		}
		return &ConfigError{Bot: s.name, Op: "open " + string(mode), Err: fmt.Errorf("%w: %s transport active", ErrModeConflict, active)}
	}
	if mode != s.mode {
		s.mu.Unlock()
		return &ConfigError{Bot: s.name, Op: "open " + string(mode), Err: fmt.Errorf("%w: configured for %s", ErrModeConflict, s.mode)}
	}
	if s.state != StateConnecting {
		s.mu.Unlock()
		return fmt.Errorf("supervisor: %s: open %s: %w", s.name, mode, ErrAborted)
	}
	t := s.newTransport(mode)
	s.transport = t
	s.activeMode = mode
	s.mu.Unlock()

	if err := t.Start(ctx); err != nil {
		s.mu.Lock()
		if s.transport == t {
			s.transport = nil
			s.activeMode = ""
		}
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	detached := s.transport != t
	s.mu.Unlock()
	if detached {
		// Aborted while starting: nothing owns t any more.
		t.Stop(context.Background())
		return fmt.Errorf("supervisor: %s: open %s: %w", s.name, mode, ErrAborted)
	}
	return nil
}

func (s *Supervisor) newTransport(mode Mode) Transport {
	hooks := Hooks{
		OnCycleStart: func(uint64) { s.cycles.Add(1) },
		OnError:      s.onTransportError,
	}
	if mode == ModeWebhook {
		return &webhookTransport{
			bot:     s.name,
			cfg:     s.webhook,
			api:     s.api,
			allowed: s.allowed,
			deliver: s.deliver,
			hooks:   hooks,
		}
	}
	return &pollTransport{
		bot:      s.name,
		api:      s.api,
		interval: s.interval,
		allowed:  s.allowed,
		offset:   &s.offset,
		deliver:  s.deliver,
		hooks:    hooks,
	}
}

// onTransportError is called from transport goroutines.
func (s *Supervisor) onTransportError(err error, fatal bool) {
	if fatal {
		go s.fatal(err)
		return
	}
	slog.Warn("transient transport error, restarting",
		"component", "supervisor",
		"operation", "poll",
		"bot", s.name,
		"error", err,
		"restart_in", restartDelay,
	)
	label := "retrying"
	if telegram.IsConflict(err) {
		// Another poller or a webhook holds the update stream.
		label = "conflict"
	}
	s.emit(EventInfo, Status{Severity: SeverityWarn, Label: label, Text: err.Error()})

	// Revert the status shortly before the next cycle so observers see
	// the bot as polling again without waiting for a successful batch.
	s.mu.Lock()
	if s.revert != nil {
		s.revert.Stop()
	}
	s.revert = time.AfterFunc(s.interval*8/10, func() {
		s.mu.Lock()
		ok := s.state == StateConnected && s.activeMode == ModePolling
		s.mu.Unlock()
		if ok {
			s.emit(EventInfo, Status{Severity: SeverityInfo, Label: "polling", Text: "@" + s.username()})
		}
	})
	s.mu.Unlock()
}

// fatal marks the instance failed and tears it down.
func (s *Supervisor) fatal(err error) {
	hint := err.Error()
	label := "error"
	if telegram.IsUnauthorized(err) {
		label = "unauthorized"
		hint = fmt.Sprintf("bot %s: token rejected by Telegram (%v)", s.name, err)
	}
	slog.Error("fatal transport error, aborting bot",
		"component", "supervisor",
		"operation", "abort",
		"bot", s.name,
		"error", err,
	)
	s.setState(StateError)
	s.emit(EventError, Status{Severity: SeverityError, Label: label, Text: hint})
	s.Abort(hint, nil)
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

// Stop disconnects the bot. It only acts from the connected state.
func (s *Supervisor) Stop(ctx context.Context, reason string) error {
	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		return nil
	}
	s.state = StateDisconnecting
	t := s.detachLocked()
	s.mu.Unlock()

	slog.Info("stopping bot",
		"component", "supervisor",
		"operation", "stop",
		"bot", s.name,
		"reason", reason,
	)
	s.emit(EventInfo, Status{Severity: SeverityInfo, Label: "disconnecting", Text: reason})

	var err error
	if t != nil {
		err = t.Stop(ctx)
	}
	s.setState(StateDisconnected)
	s.emit(EventStopped, Status{Severity: SeverityInfo, Label: "disconnected", Text: reason})
	if err != nil {
		return fmt.Errorf("supervisor: %s: stop: %w", s.name, err)
	}
	return nil
}

// detachLocked takes the active transport and cancels the status revert.
func (s *Supervisor) detachLocked() Transport {
	t := s.transport
	s.transport = nil
	s.activeMode = ""
	if s.revert != nil {
		s.revert.Stop()
		s.revert = nil
	}
	return t
}

// Abort tears the instance down whatever its state and then calls done.
// It is safe to call repeatedly; an already disconnected instance only
// gets done called.
func (s *Supervisor) Abort(hint string, done func()) {
	if done != nil {
		defer done()
	}
	s.mu.Lock()
	prev := s.state
	t := s.detachLocked()
	s.state = StateDisconnected
	s.mu.Unlock()

	if t == nil && prev == StateDisconnected {
		return
	}
	if t != nil {
		ctx, cancel := context.WithTimeout(context.Background(), abortTimeout)
		if err := t.Stop(ctx); err != nil {
			slog.Warn("transport teardown incomplete",
				"component", "supervisor",
				"operation", "abort",
				"bot", s.name,
				"error", err,
			)
		}
		cancel()
	}
	slog.Warn("bot aborted",
		"component", "supervisor",
		"operation", "abort",
		"bot", s.name,
		"hint", hint,
	)
	st := Status{Severity: SeverityInfo, Label: "disconnected", Text: "aborted"}
	if hint != "" {
		st = Status{Severity: SeverityError, Label: "aborted", Text: hint}
	}
	s.emit(EventStopped, st)
}

// Probe checks the credential with getMe. A rejected token aborts the
// instance; other failures are only returned.
func (s *Supervisor) Probe(ctx context.Context) error {
	if s.State() != StateConnected {
		return nil
	}
	_, err := s.api.GetMe(ctx)
	if err == nil {
		return nil
	}
	if telegram.IsUnauthorized(err) {
		s.fatal(err)
	}
	return fmt.Errorf("supervisor: %s: probe: %w", s.name, err)
}

// Close aborts the instance and releases its credential. Later Start
// calls fail with ErrClosed.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.Abort("", nil)
	s.creds.Unregister(s.token, s.id)
	return nil
}
