// Package bot assembles one routed Telegram bot: the connection supervisor
// feeds raw updates to the normalizer and the command dispatcher, and
// every outcome is published to the configured sinks.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/edouard/switchboard/internal/auth"
	"github.com/edouard/switchboard/internal/command"
	"github.com/edouard/switchboard/internal/config"
	"github.com/edouard/switchboard/internal/platform"
	"github.com/edouard/switchboard/internal/sink"
	"github.com/edouard/switchboard/internal/supervisor"
	"github.com/edouard/switchboard/internal/telegram"
	"github.com/edouard/switchboard/internal/update"
)

// API is the Bot API surface an instance needs.
type API interface {
	supervisor.API
	SetMyCommands(ctx context.Context, commands []telegram.BotCommand, scope telegram.BotCommandScope, languageCode string) error
}

// Replaceable for testing.
var (
	retryFn        = platform.Retry
	loadCommands   = command.LoadFile
	publishTimeout = 5 * time.Second
)

// Options configure an Instance.
type Options struct {
	Config config.Bot
	// Token is the resolved credential; Config.Token may be a vault reference.
	Token string
	// API defaults to a telegram.Client for Token.
	API         API
	Sink        sink.Sink
	Credentials *supervisor.Credentials
}

// Instance is one running bot.
type Instance struct {
	name    string
	cfg     config.Bot
	api     API
	sink    sink.Sink
	authCtx *auth.Context
	filter  *auth.Filter
	disp    *command.Dispatcher
	sup     *supervisor.Supervisor
	unsub   func()
}

// New builds an instance. Nothing touches the network until Start.
func New(opts Options) (*Instance, error) {
	cfg := opts.Config
	mode, err := supervisor.ParseMode(cfg.Mode)
	if err != nil {
		return nil, fmt.Errorf("bot: %s: %w", cfg.Name, err)
	}

	i := &Instance{
		name: cfg.Name,
		cfg:  cfg,
		api:  opts.API,
		sink: opts.Sink,
	}
	if i.api == nil {
		i.api = telegram.NewClient(opts.Token)
	}
	if i.sink == nil {
		i.sink = sink.LogSink{}
	}
	i.authCtx = auth.NewContext(cfg.Context)
	i.filter = auth.NewFilter(cfg.AllowedUsernames, cfg.AllowedChatIDs, i.authCtx)
	i.disp = command.NewDispatcher(i.filter, i)

	regs, err := i.registrations()
	if err != nil {
		return nil, fmt.Errorf("bot: %s: %w", cfg.Name, err)
	}
	if err := i.disp.Replace(regs); err != nil {
		return nil, fmt.Errorf("bot: %s: %w", cfg.Name, err)
	}

	i.sup, err = supervisor.New(supervisor.Options{
		Name:           cfg.Name,
		Token:          opts.Token,
		Mode:           mode,
		API:            i.api,
		PollInterval:   cfg.PollInterval,
		AllowedUpdates: cfg.UpdateKinds,
		Webhook:        cfg.Webhook,
		Deliver:        i.deliver,
		Credentials:    opts.Credentials,
	})
	if err != nil {
		return nil, err
	}
	i.unsub = i.sup.Subscribe(i.onEvent)

	slog.Info("bot configured",
		"component", "bot",
		"operation", "new",
		"bot", i.name,
		"mode", string(i.sup.Mode()),
		"commands", len(regs),
		"open", i.filter.Open(),
	)
	return i, nil
}

// registrations merges inline commands with the commands file. The file
// wins on a duplicate pattern.
func (i *Instance) registrations() ([]command.Registration, error) {
	regs := append([]command.Registration(nil), i.cfg.Commands...)
	if i.cfg.CommandsFile == "" {
		return regs, nil
	}
	fromFile, err := loadCommands(i.cfg.CommandsFile)
	if err != nil {
		return nil, err
	}
	byPattern := make(map[string]int, len(regs))
	for idx, r := range regs {
		byPattern[r.Pattern] = idx
	}
	for _, r := range fromFile {
		if idx, ok := byPattern[r.Pattern]; ok {
			regs[idx] = r
			continue
		}
		byPattern[r.Pattern] = len(regs)
		regs = append(regs, r)
	}
	return regs, nil
}

func (i *Instance) Name() string                       { return i.name }
func (i *Instance) Supervisor() *supervisor.Supervisor { return i.sup }
func (i *Instance) Dispatcher() *command.Dispatcher    { return i.disp }

// Context returns the bot-local values "context.<key>" allow-lists read.
func (i *Instance) Context() *auth.Context { return i.authCtx }

// Probe checks the credential; it satisfies heartbeat.Prober.
func (i *Instance) Probe(ctx context.Context) error { return i.sup.Probe(ctx) }

// Start connects the bot and, when enabled, publishes its command menus.
// A menu failure is logged and does not fail the start.
func (i *Instance) Start(ctx context.Context) error {
	if err := i.sup.Start(ctx, "start"); err != nil {
		return err
	}
	i.syncUsername()
	if i.cfg.Menu {
		if err := i.PublishMenus(ctx); err != nil {
			slog.Warn("command menu not published",
				"component", "bot",
				"operation", "start",
				"bot", i.name,
				"error", err,
			)
		}
	}
	return nil
}

// Stop disconnects the bot; it can be started again.
func (i *Instance) Stop(ctx context.Context) error {
	return i.sup.Stop(ctx, "stop")
}

// Close releases the instance for good.
func (i *Instance) Close() error {
	err := i.sup.Close()
	if i.unsub != nil {
		i.unsub()
	}
	return err
}

// Reload re-reads the command file and swaps the registration set.
// Pending replies of unchanged patterns survive.
func (i *Instance) Reload(ctx context.Context) error {
	regs, err := i.registrations()
	if err != nil {
		return fmt.Errorf("bot: %s: reload: %w", i.name, err)
	}
	if err := i.disp.Replace(regs); err != nil {
		return fmt.Errorf("bot: %s: reload: %w", i.name, err)
	}
	slog.Info("commands reloaded",
		"component", "bot",
		"operation", "reload",
		"bot", i.name,
		"commands", len(regs),
	)
	if i.cfg.Menu && i.sup.State() == supervisor.StateConnected {
		return i.PublishMenus(ctx)
	}
	return nil
}

// PublishMenus pushes one setMyCommands call per (scope, language) group.
func (i *Instance) PublishMenus(ctx context.Context) error {
	var errs []error
	for _, m := range command.BuildMenus(i.disp.Registrations()) {
		scope := telegram.BotCommandScope{Type: string(m.Scope.Normalized())}
		err := retryFn(ctx, 3, time.Second, func() error {
			err := i.api.SetMyCommands(ctx, m.Commands, scope, m.Language)
			if telegram.IsUnauthorized(err) {
				return platform.Permanent(err)
			}
			return err
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s/%s: %w", scope.Type, m.Language, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("bot: %s: publish menus: %w", i.name, err)
	}
	return nil
}

// syncUsername hands the getMe username to the dispatcher for "@bot"
// mentions.
func (i *Instance) syncUsername() {
	u := i.sup.BotUser()
	if u == nil || u.Username == "" || u.Username == i.disp.BotUsername() {
		return
	}
	i.disp.SetBotUsername(u.Username)
}

// deliver runs on the transport goroutine for every raw update.
func (i *Instance) deliver(ctx context.Context, u telegram.Update) {
	i.syncUsername()
	n, ok := update.Normalize(&u)
	switch {
	case !ok:
		slog.Debug("update not routed",
			"component", "bot",
			"operation", "deliver",
			"bot", i.name,
			"update_id", u.UpdateID,
		)
	case i.allowed(n):
		i.publish(ctx, sink.UpdateTopic(string(n.Kind)), n)
	case !dispatchable(&u):
		// Text messages are rejected by the dispatcher below.
		i.Unauthorized(ctx, rejection(n))
	}
	i.disp.Dispatch(ctx, &u)
}

func (i *Instance) allowed(n *update.Normalized) bool {
	var (
		userID   int64
		username string
	)
	if n.From != nil {
		userID, username = n.From.ID, n.From.Username
	}
	return i.filter.Allow(n.ChatID, userID, username)
}

func dispatchable(u *telegram.Update) bool {
	return u.Message != nil && u.Message.Text != ""
}

func rejection(n *update.Normalized) command.Rejection {
	r := command.Rejection{ChatID: n.ChatID, Text: n.Caption}
	if n.From != nil {
		r.UserID, r.Username = n.From.ID, n.From.Username
	}
	if m, ok := n.Raw.(*telegram.Message); ok {
		r.Message = m
	}
	return r
}

func (i *Instance) onEvent(e supervisor.Event) {
	if e.Type == supervisor.EventStarted {
		i.syncUsername()
	}
	i.publish(context.Background(), sink.TopicStatus, e)
}

func (i *Instance) publish(ctx context.Context, topic string, payload any) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := i.sink.Publish(ctx, sink.NewEnvelope(i.name, topic, payload)); err != nil {
		slog.Error("publish failed",
			"component", "bot",
			"operation", "publish",
			"bot", i.name,
			"topic", topic,
			"error", err,
		)
	}
}
