package supervisor

import (
	"context"
	"crypto/subtle"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/acme/autocert"

	"github.com/edouard/switchboard/internal/telegram"
)

// SecretTokenHeader carries the webhook secret on every delivery.
const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

const (
	defaultWebhookPath  = "/telegram"
	defaultQueueSize    = 256
	maxWebhookBodyBytes = 4 << 20
)

// listen is the listener constructor, replaceable in tests.
var listen = net.Listen

// WebhookConfig describes the local listener and the public URL Telegram
// posts to.
type WebhookConfig struct {
	ListenHost       string `mapstructure:"listen_host"`
	ListenPort       int    `mapstructure:"listen_port"`
	PublicURL        string `mapstructure:"public_url"`
	Path             string `mapstructure:"path"`
	CertFile         string `mapstructure:"cert_file"`
	KeyFile          string `mapstructure:"key_file"`
	AutocertDomain   string `mapstructure:"autocert_domain"`
	AutocertCacheDir string `mapstructure:"autocert_cache_dir"`
	SecretToken      string `mapstructure:"secret_token"`
	MaxConnections   int    `mapstructure:"max_connections"`
	QueueSize        int    `mapstructure:"queue_size"`
}

// Validate reports the first missing or inconsistent setting.
func (c WebhookConfig) Validate() error {
	if c.PublicURL == "" {
		return fmt.Errorf("%w: public_url is required", ErrIncompleteWebhook)
	}
	u, err := url.Parse(c.PublicURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%w: public_url %q is not an absolute URL", ErrIncompleteWebhook, c.PublicURL)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("%w: public_url must use https", ErrIncompleteWebhook)
	}
	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return fmt.Errorf("%w: listen_port %d out of range", ErrIncompleteWebhook, c.ListenPort)
	}
	if (c.CertFile == "") != (c.KeyFile == "") {
		return fmt.Errorf("%w: cert_file and key_file must be set together", ErrIncompleteWebhook)
	}
	if c.CertFile != "" && c.AutocertDomain != "" {
		return fmt.Errorf("%w: cert_file and autocert_domain are exclusive", ErrIncompleteWebhook)
	}
	if c.SecretToken != "" && !validSecret(c.SecretToken) {
		return fmt.Errorf("%w: secret_token may only contain A-Z, a-z, 0-9, _ and -", ErrIncompleteWebhook)
	}
	return nil
}

// validSecret follows the Bot API rule: 1-256 characters of [A-Za-z0-9_-].
func validSecret(s string) bool {
	if len(s) > 256 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}

func (c WebhookConfig) path() string {
	if c.Path == "" {
		return defaultWebhookPath
	}
	if !strings.HasPrefix(c.Path, "/") {
		return "/" + c.Path
	}
	return c.Path
}

// URL is the address registered with setWebhook.
func (c WebhookConfig) URL() string {
	return strings.TrimRight(c.PublicURL, "/") + c.path()
}

type webhookTransport struct {
	bot     string
	cfg     WebhookConfig
	api     API
	allowed []string
	deliver DeliverFunc
	hooks   Hooks

	mu     sync.Mutex
	srv    *http.Server
	addr   net.Addr
	queue  chan telegram.Update
	cancel context.CancelFunc
	done   chan struct{}
	cycle  uint64
}

// Start binds the listener, starts serving and registers the webhook URL.
// Any failure is returned and leaves nothing running.
func (w *webhookTransport) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.srv != nil {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	addr := net.JoinHostPort(w.cfg.ListenHost, strconv.Itoa(w.cfg.ListenPort))
	ln, err := listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("supervisor: webhook: listen %s: %w", addr, err)
	}

	size := w.cfg.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	queue := make(chan telegram.Update, size)

	mux := http.NewServeMux()
	mux.Handle(w.cfg.path(), &webhookHandler{bot: w.bot, secret: w.cfg.SecretToken, queue: queue})
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	tlsMode := "none"
	switch {
	case w.cfg.CertFile != "":
		cert, err := tls.LoadX509KeyPair(w.cfg.CertFile, w.cfg.KeyFile)
		if err != nil {
			ln.Close()
			return fmt.Errorf("supervisor: webhook: load certificate: %w", err)
		}
		srv.TLSConfig = &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
		tlsMode = "file"
	case w.cfg.AutocertDomain != "":
		m := &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(w.cfg.AutocertDomain),
		}
		if w.cfg.AutocertCacheDir != "" {
			m.Cache = autocert.DirCache(w.cfg.AutocertCacheDir)
		}
		srv.TLSConfig = m.TLSConfig()
		tlsMode = "acme"
	}

	go func() {
		var serveErr error
		if srv.TLSConfig != nil {
			serveErr = srv.ServeTLS(ln, "", "")
		} else {
			serveErr = srv.Serve(ln)
		}
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			w.hooks.fail(fmt.Errorf("supervisor: webhook: serve: %w", serveErr), true)
		}
	}()

	workCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go w.work(workCtx, queue, done)

	params := telegram.WebhookParams{
		URL:            w.cfg.URL(),
		SecretToken:    w.cfg.SecretToken,
		MaxConnections: w.cfg.MaxConnections,
		AllowedUpdates: w.allowed,
	}
	if err := w.api.SetWebhook(ctx, params); err != nil {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		srv.Shutdown(shutdownCtx)
		stop()
		cancel()
		<-done
		return fmt.Errorf("supervisor: webhook: register: %w", err)
	}

	w.mu.Lock()
	w.srv = srv
	w.addr = ln.Addr()
	w.queue = queue
	w.cancel = cancel
	w.done = done
	w.mu.Unlock()

	slog.Info("webhook listening",
		"component", "supervisor",
		"operation", "webhook_start",
		"bot", w.bot,
		"addr", ln.Addr().String(),
		"path", w.cfg.path(),
		"tls", tlsMode,
	)
	return nil
}

// Stop shuts the listener down, drains nothing further and removes the
// webhook registration on a best-effort basis.
func (w *webhookTransport) Stop(ctx context.Context) error {
	w.mu.Lock()
	srv, cancel, done := w.srv, w.cancel, w.done
	w.srv, w.cancel, w.done, w.queue = nil, nil, nil, nil
	w.mu.Unlock()
	if srv == nil {
		return nil
	}

	var errs []error
	if err := srv.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("supervisor: webhook: shutdown: %w", err))
	}
	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("supervisor: webhook: worker: %w", ctx.Err()))
	}
	if err := w.api.DeleteWebhook(ctx, false); err != nil {
		slog.Warn("could not delete webhook",
			"component", "supervisor",
			"operation", "webhook_stop",
			"bot", w.bot,
			"error", err,
		)
	}
	slog.Info("webhook stopped",
		"component", "supervisor",
		"operation", "webhook_stop",
		"bot", w.bot,
	)
	return errors.Join(errs...)
}

// Addr returns the bound listener address, or nil when not running.
func (w *webhookTransport) Addr() net.Addr {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.addr
}

// work drains the delivery queue one update at a time.
func (w *webhookTransport) work(ctx context.Context, queue <-chan telegram.Update, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-queue:
			w.cycle++
			w.hooks.cycleStart(w.cycle)
			w.deliver(ctx, u)
			w.hooks.cycleEnd(w.cycle, 1)
		}
	}
}

// webhookHandler accepts deliveries without blocking on processing: a
// full queue answers 503 so Telegram retries later.
type webhookHandler struct {
	bot    string
	secret string
	queue  chan<- telegram.Update
}

func (h *webhookHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.Header().Set("Allow", http.MethodPost)
		http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.secret != "" {
		got := r.Header.Get(SecretTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			slog.Warn("rejected webhook delivery with bad secret",
				"component", "supervisor",
				"operation", "webhook_deliver",
				"bot", h.bot,
				"remote", r.RemoteAddr,
			)
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
	}

	var u telegram.Update
	dec := json.NewDecoder(http.MaxBytesReader(rw, r.Body, maxWebhookBodyBytes))
	if err := dec.Decode(&u); err != nil {
		slog.Warn("invalid webhook payload",
			"component", "supervisor",
			"operation", "webhook_deliver",
			"bot", h.bot,
			"error", err,
		)
		http.Error(rw, "bad request", http.StatusBadRequest)
		return
	}

	select {
	case h.queue <- u:
		rw.WriteHeader(http.StatusOK)
	default:
		slog.Warn("webhook queue full, asking for redelivery",
			"component", "supervisor",
			"operation", "webhook_deliver",
			"bot", h.bot,
			"update_id", u.UpdateID,
		)
		http.Error(rw, "busy", http.StatusServiceUnavailable)
	}
}
