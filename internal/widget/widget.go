package widget

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/apideck-libraries/vault-core-sub000/internal/connections"
	"github.com/apideck-libraries/vault-core-sub000/internal/listener"
	"github.com/apideck-libraries/vault-core-sub000/internal/nonce"
	"github.com/apideck-libraries/vault-core-sub000/internal/notify"
	"github.com/apideck-libraries/vault-core-sub000/internal/popup"
	"github.com/apideck-libraries/vault-core-sub000/internal/vault"
	"github.com/apideck-libraries/vault-core-sub000/pkg/connection"
	"github.com/apideck-libraries/vault-core-sub000/pkg/logging"
)

// Config wires a widget instance. Everything is injectable so hosts and
// tests can substitute fakes; nothing lives in package-level state.
type Config struct {
	// TrustedOrigin is the only origin completion messages are accepted from.
	TrustedOrigin string

	// Client talks to the vault backend.
	Client *vault.Client

	// Nonces stores the per-service CSRF nonces. Defaults to an in-memory
	// store scoped to this widget instance; hosts wanting attempts to
	// survive a restart pass a nonce.FileStore.
	Nonces nonce.Store

	// Opener supplies detached browsing contexts for popup flows.
	Opener popup.Opener

	// PollInterval is the popup closed-state polling interval.
	// Non-positive selects popup.DefaultPollInterval.
	PollInterval time.Duration

	// Mode selects single- or multi-connection behavior. Defaults to multi.
	Mode connections.SessionMode

	// Notifier receives user-facing notifications. Defaults to discard.
	Notifier notify.Notifier

	// OnClose is invoked when a single-connection session deletes its
	// connection and the host should close the widget.
	OnClose func()
}

// Widget is one embedded vault instance: a nonce store, a popup launcher, a
// message listener and the connection cache, wired together. The host
// triggers Authorize, forwards inbound messages to HandleMessage, reads
// state through Service, and calls Close exactly once on unmount.
type Widget struct {
	trustedOrigin string
	nonces        nonce.Store
	launcher      *popup.Launcher
	listener      *listener.Listener
	service       *connections.Service
	notifier      notify.Notifier

	// lifetime governs every background poller the widget arms. Close
	// cancels it so no timer outlives the widget.
	lifetime context.Context
	cancel   context.CancelFunc

	closeOnce sync.Once
}

// New creates a widget instance.
func New(cfg Config) *Widget {
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.Discard
	}
	nonces := cfg.Nonces
	if nonces == nil {
		nonces = nonce.NewMemoryStore()
	}

	service := connections.NewService(connections.ServiceConfig{
		Client:   cfg.Client,
		Notifier: notifier,
		Mode:     cfg.Mode,
		OnClose:  cfg.OnClose,
	})

	ctx, cancel := context.WithCancel(context.Background())

	return &Widget{
		trustedOrigin: cfg.TrustedOrigin,
		nonces:        nonces,
		launcher:      popup.NewLauncher(cfg.Opener, cfg.PollInterval),
		service:       service,
		notifier:      notifier,
		lifetime:      ctx,
		cancel:        cancel,
		listener: listener.New(listener.Config{
			TrustedOrigin: cfg.TrustedOrigin,
			Nonces:        nonces,
			Service:       service,
			Notifier:      notifier,
		}),
	}
}

// Service exposes the connection cache and mutation layer.
func (w *Widget) Service() *connections.Service {
	return w.service
}

// Authorization tracks one authorization attempt. Done is closed once the
// attempt reaches a local terminal outcome: the direct exchange finished,
// or the popup closed and the recovery re-fetch completed. Message-based
// confirmation arrives independently through the listener.
type Authorization struct {
	done chan struct{}
}

// Done returns a channel closed at the attempt's local terminal outcome.
func (a *Authorization) Done() <-chan struct{} {
	return a.done
}

// Authorize starts the authorization handshake for a connection, selecting
// the strategy by grant type: non-interactive grants perform a direct
// backend token exchange and never open a popup; everything else opens the
// authorizer in a popup. The nonce is stored before the popup opens, so the
// redirect can never race storage. Launching a second attempt for the same
// service overwrites the stored nonce, orphaning the first attempt.
func (w *Widget) Authorize(ctx context.Context, conn *connection.Connection) (*Authorization, error) {
	if !conn.RequiresHandshake() {
		return nil, fmt.Errorf("connection %s does not authorize via handshake", conn.Identity())
	}

	if conn.UsesDirectExchange() {
		return w.directExchange(ctx, conn)
	}
	return w.launchPopup(ctx, conn)
}

// directExchange performs the non-interactive token exchange. Exactly one
// token call, no popup.
func (w *Widget) directExchange(ctx context.Context, conn *connection.Connection) (*Authorization, error) {
	auth := &Authorization{done: make(chan struct{})}
	defer close(auth.done)

	if _, err := w.service.ExchangeToken(ctx, conn.Identity()); err != nil {
		return auth, err
	}
	return auth, nil
}

// launchPopup runs the interactive strategy.
func (w *Widget) launchPopup(ctx context.Context, conn *connection.Connection) (*Authorization, error) {
	n := nonce.Generate()
	// Ordering guarantee: the nonce must be retrievable before the
	// authorizer can possibly redirect.
	w.nonces.Put(conn.ServiceID, n)

	authURL, err := buildAuthorizeURL(conn, n)
	if err != nil {
		w.nonces.TakeNonce(conn.ServiceID)
		return nil, err
	}

	attempt, err := w.launcher.Launch(w.lifetime, authURL)
	if err != nil {
		w.nonces.TakeNonce(conn.ServiceID)
		w.notifier.Notify(notify.Notification{
			Level:     notify.LevelError,
			ServiceID: conn.ServiceID,
			Message:   "Could not open the authorization window",
		})
		return nil, err
	}

	auth := &Authorization{done: make(chan struct{})}
	id := conn.Identity()

	go func() {
		defer close(auth.done)
		select {
		case outcome := <-attempt.Done():
			if outcome == popup.OutcomeClosed {
				// Closure alone proves nothing. Re-fetch the detail to
				// learn the true outcome from the backend.
				logging.Debug("Widget", "Popup closed for %s, re-fetching connection state", id)
				_, _ = w.service.Refresh(w.lifetime, id)
			}
		case <-w.lifetime.Done():
		}
	}()

	return auth, nil
}

// HandleMessage feeds one inbound cross-context message to the listener.
func (w *Widget) HandleMessage(ctx context.Context, msg listener.Message) {
	w.listener.Handle(ctx, msg)
}

// Close tears the widget down: the message subscription is removed, and
// every popup poller the widget armed is cancelled. Idempotent.
func (w *Widget) Close() {
	w.closeOnce.Do(func() {
		w.listener.Close()
		w.cancel()
	})
}

// buildAuthorizeURL appends the CSRF state to the connection's backend
// provided authorization URL.
func buildAuthorizeURL(conn *connection.Connection, nonceValue string) (string, error) {
	if conn.AuthorizeURL == "" {
		return "", fmt.Errorf("connection %s has no authorize URL", conn.Identity())
	}
	u, err := url.Parse(conn.AuthorizeURL)
	if err != nil {
		return "", fmt.Errorf("invalid authorize URL for %s: %w", conn.Identity(), err)
	}
	q := u.Query()
	q.Set("state", nonceValue)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
