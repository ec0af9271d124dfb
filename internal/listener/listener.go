package listener

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/apideck-libraries/vault-core-sub000/internal/connections"
	"github.com/apideck-libraries/vault-core-sub000/internal/nonce"
	"github.com/apideck-libraries/vault-core-sub000/internal/notify"
	"github.com/apideck-libraries/vault-core-sub000/pkg/connection"
	"github.com/apideck-libraries/vault-core-sub000/pkg/logging"
)

// Config configures a Listener.
type Config struct {
	// TrustedOrigin is the single origin completion messages may come
	// from. Anything else is discarded before any other processing.
	TrustedOrigin string

	// Nonces is the per-widget nonce store shared with the authorize path.
	Nonces nonce.Store

	// Service receives the backend confirmation and cache refresh.
	Service *connections.Service

	// Notifier surfaces user-facing errors. Defaults to notify.Discard.
	Notifier notify.Notifier
}

// Listener validates and processes the asynchronous completion signals of
// popup-based handshakes. One Listener is subscribed per widget lifetime;
// after Close no message is processed.
//
// Security gates, in order: the origin must match exactly, then the
// message's nonce must match the stored one for the service. The nonce read
// is destructive, so a second oauth_complete for the same service is
// treated as a mismatch and becomes a no-op: a forged or replayed message
// can never be confirmed twice. Both rejection kinds are logged and
// otherwise ignored: a benign race and a hostile message get the identical,
// silent response.
type Listener struct {
	trustedOrigin string
	nonces        nonce.Store
	service       *connections.Service
	notifier      notify.Notifier
	closed        atomic.Bool
}

// New creates a listener.
func New(cfg Config) *Listener {
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.Discard
	}
	return &Listener{
		trustedOrigin: cfg.TrustedOrigin,
		nonces:        cfg.Nonces,
		service:       cfg.Service,
		notifier:      notifier,
	}
}

// Handle processes one inbound message. Unknown types, untrusted origins
// and nonce mismatches are dropped without state changes.
func (l *Listener) Handle(ctx context.Context, msg Message) {
	if l.closed.Load() {
		return
	}

	if msg.Origin != l.trustedOrigin {
		logging.Debug("Listener", "Discarding message from untrusted origin %q", msg.Origin)
		return
	}

	switch msg.Type {
	case MessageOAuthComplete:
		l.handleComplete(ctx, msg)
	case MessageOAuthError:
		l.handleError(msg)
	default:
		logging.Debug("Listener", "Ignoring message of unknown type %q", msg.Type)
	}
}

// handleComplete runs the nonce gate and, on a match, confirms the
// handshake with the backend.
func (l *Listener) handleComplete(ctx context.Context, msg Message) {
	stored, ok := l.nonces.TakeNonce(msg.ServiceID)
	if !ok || stored != msg.Nonce {
		// Either a replay after the nonce was consumed, or a forgery. The
		// correct response is the same: log and ignore.
		slog.Warn("SECURITY_AUDIT: OAuth completion rejected by nonce gate",
			"event", "nonce_mismatch",
			"service_id", msg.ServiceID,
			"nonce_present", ok,
		)
		return
	}

	id := connection.Identity{UnifiedAPI: msg.UnifiedAPI, ServiceID: msg.ServiceID}
	conn, err := l.service.Confirm(ctx, id, msg.ConfirmToken)
	if err != nil {
		// The service already raised the user-facing notification.
		return
	}

	slog.Info("SECURITY_AUDIT: OAuth handshake confirmed",
		"event", "handshake_confirmed",
		"service_id", msg.ServiceID,
		"unified_api", msg.UnifiedAPI,
		"state", string(conn.State),
	)
	l.notifier.Notify(notify.Notification{
		Level:     notify.LevelSuccess,
		ServiceID: msg.ServiceID,
		Message:   "Connection authorized",
	})
}

// handleError abandons the attempt: the stored nonce is cleared and the
// provider's error is surfaced. No backend call is made.
func (l *Listener) handleError(msg Message) {
	l.nonces.TakeNonce(msg.ServiceID)

	message := msg.Error
	if message == "" {
		message = "Authorization failed"
	}
	logging.Warn("Listener", "Authorization error for service %s: %s", msg.ServiceID, message)
	l.notifier.Notify(notify.Notification{
		Level:     notify.LevelError,
		ServiceID: msg.ServiceID,
		Message:   message,
		Detail:    msg.ErrorDescription,
	})
}

// Close tears the subscription down. Idempotent; messages handled after
// Close are dropped.
func (l *Listener) Close() {
	l.closed.Store(true)
}
