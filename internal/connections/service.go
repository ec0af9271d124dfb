package connections

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/apideck-libraries/vault-core-sub000/internal/notify"
	"github.com/apideck-libraries/vault-core-sub000/internal/vault"
	"github.com/apideck-libraries/vault-core-sub000/pkg/connection"
	"github.com/apideck-libraries/vault-core-sub000/pkg/logging"
)

// SessionMode selects how deletion behaves.
type SessionMode string

const (
	// ModeMulti keeps deleted connections in the list as re-addable
	// available entries.
	ModeMulti SessionMode = "multi"

	// ModeSingle shows exactly one connection; deleting it leaves nothing
	// to display, so the detail cache is evicted and the host is told to close.
	ModeSingle SessionMode = "single"
)

// ServiceConfig configures the mutation layer.
type ServiceConfig struct {
	Client   *vault.Client
	Notifier notify.Notifier
	Mode     SessionMode

	// OnClose is invoked in single-connection mode after the connection is
	// deleted, signalling the host there is nothing left to display.
	OnClose func()
}

// Service is the connection cache and mutation layer. All mutations follow
// the same discipline: call the backend, and only on success dual-write the
// validated result into the cached views. On any failure the cache is left
// untouched and a user-facing notification is raised; no operation panics
// or lets an error escape unhandled to the embedding host.
//
// Overlapping mutations on the same identity are not serialized: the
// IsUpdating flag is a soft lock for consumers (disable resubmission), and
// when two responses race, the last one to arrive wins in the cache.
type Service struct {
	client   *vault.Client
	cache    *cache
	notifier notify.Notifier
	mode     SessionMode
	onClose  func()
	updating atomic.Bool
	group    singleflight.Group
}

// NewService creates the mutation layer around a backend client.
func NewService(cfg ServiceConfig) *Service {
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.Discard
	}
	mode := cfg.Mode
	if mode == "" {
		mode = ModeMulti
	}
	return &Service{
		client:   cfg.Client,
		cache:    newCache(),
		notifier: notifier,
		mode:     mode,
		onClose:  cfg.OnClose,
	}
}

// IsUpdating reports whether a mutation is in flight. Consumers treat this
// as a soft lock; the layer itself does not reject concurrent mutations.
func (s *Service) IsUpdating() bool {
	return s.updating.Load()
}

// Connections returns a copy of the cached list view.
func (s *Service) Connections() []*connection.Connection {
	return s.cache.snapshot()
}

// Get returns the cached list entry for an identity, or nil.
func (s *Service) Get(id connection.Identity) *connection.Connection {
	return s.cache.get(id)
}

// Detail returns the currently selected connection, or nil.
func (s *Service) Detail() *connection.Connection {
	return s.cache.currentDetail()
}

// Select makes a connection the detail view without a backend call.
func (s *Service) Select(conn *connection.Connection) {
	s.cache.selectDetail(conn)
}

// Load fetches the list view from the backend, optionally filtered by
// unified API. Records with unknown states are dropped at the boundary.
func (s *Service) Load(ctx context.Context, unifiedAPI string) ([]*connection.Connection, error) {
	conns, err := s.client.ListConnections(ctx, unifiedAPI)
	if err != nil {
		s.notifyFailure("", "Failed to load connections", err)
		return nil, err
	}

	valid := conns[:0]
	for _, conn := range conns {
		if err := conn.Validate(); err != nil {
			logging.Warn("Connections", "Dropping connection with invalid state from list: %v", err)
			continue
		}
		valid = append(valid, conn)
	}
	s.cache.setList(valid)
	return s.cache.snapshot(), nil
}

// Refresh re-fetches the detail view for an identity from the backend and
// dual-writes it. This is the authoritative recovery path after a popup
// closes without a completion message.
func (s *Service) Refresh(ctx context.Context, id connection.Identity) (*connection.Connection, error) {
	conn, err := s.client.GetConnection(ctx, id)
	if err != nil {
		s.notifyFailure(id.ServiceID, "Failed to refresh connection", err)
		return nil, err
	}
	if err := s.accept(conn); err != nil {
		return nil, err
	}
	return conn, nil
}

// Update sends a partial update to the backend. On success both cached
// views are updated without waiting for a re-fetch; on failure the cache is
// untouched and the user is notified. Returns the updated record, or nil.
func (s *Service) Update(ctx context.Context, id connection.Identity, patch map[string]interface{}) (*connection.Connection, error) {
	s.updating.Store(true)
	defer s.updating.Store(false)

	updated, err := s.client.UpdateConnection(ctx, id, patch)
	if err != nil {
		s.notifyFailure(id.ServiceID, "Failed to update connection", err)
		return nil, err
	}
	if err := s.accept(updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// SetEnabled toggles a connection without touching its settings.
func (s *Service) SetEnabled(ctx context.Context, id connection.Identity, enabled bool) (*connection.Connection, error) {
	return s.Update(ctx, id, map[string]interface{}{"enabled": enabled})
}

// Delete removes a connection. In multi-connection mode the list entry is
// rewritten in place to the available/disabled state so the integration
// stays selectable, and the selection is cleared. In single-connection mode
// the detail cache is evicted and the host close callback is invoked.
func (s *Service) Delete(ctx context.Context, conn *connection.Connection) error {
	s.updating.Store(true)
	defer s.updating.Store(false)

	id := conn.Identity()
	if err := s.client.DeleteConnection(ctx, id); err != nil {
		s.notifyFailure(id.ServiceID, "Failed to delete connection", err)
		return err
	}

	if s.mode == ModeSingle {
		s.cache.clearDetail()
		if s.onClose != nil {
			s.onClose()
		}
		return nil
	}

	reverted := *conn
	reverted.State = connection.StateAvailable
	reverted.Enabled = false
	reverted.ConsentState = ""
	s.cache.writeThrough(&reverted)
	s.cache.clearDetail()
	return nil
}

// ExchangeToken runs the direct token exchange for non-interactive grant
// types and dual-writes the refreshed record.
func (s *Service) ExchangeToken(ctx context.Context, id connection.Identity) (*connection.Connection, error) {
	s.updating.Store(true)
	defer s.updating.Store(false)

	updated, err := s.client.ExchangeToken(ctx, id)
	if err != nil {
		s.notifyFailure(id.ServiceID, "Failed to authorize connection", err)
		return nil, err
	}
	if err := s.accept(updated); err != nil {
		return nil, err
	}

	slog.Info("SECURITY_AUDIT: Direct token exchange completed",
		"event", "token_exchange",
		"service_id", id.ServiceID,
		"unified_api", id.UnifiedAPI,
		"state", string(updated.State),
	)
	return updated, nil
}

// Confirm completes a popup-based handshake with the backend using the
// single-use confirm token, then refreshes the cached detail so the views
// reflect the authoritative post-handshake state.
func (s *Service) Confirm(ctx context.Context, id connection.Identity, confirmToken string) (*connection.Connection, error) {
	if _, err := s.client.ConfirmConnection(ctx, id, confirmToken); err != nil {
		s.notifyFailure(id.ServiceID, "Failed to confirm authorization", err)
		return nil, err
	}
	return s.Refresh(ctx, id)
}

// GrantConsent records a grant for the given resources.
func (s *Service) GrantConsent(ctx context.Context, id connection.Identity, resources connection.ConsentResources) (*connection.Connection, error) {
	return s.patchConsent(ctx, id, true, resources)
}

// DenyConsent records a denial.
func (s *Service) DenyConsent(ctx context.Context, id connection.Identity) (*connection.Connection, error) {
	return s.patchConsent(ctx, id, false, nil)
}

// RevokeConsent withdraws a previously granted consent.
func (s *Service) RevokeConsent(ctx context.Context, id connection.Identity) (*connection.Connection, error) {
	return s.patchConsent(ctx, id, false, nil)
}

// patchConsent is the shared consent mutation. The resulting consent state
// is whatever the backend returned; the client never assigns one itself.
func (s *Service) patchConsent(ctx context.Context, id connection.Identity, granted bool, resources connection.ConsentResources) (*connection.Connection, error) {
	s.updating.Store(true)
	defer s.updating.Store(false)

	updated, err := s.client.UpdateConsent(ctx, id, granted, resources)
	if err != nil {
		s.notifyFailure(id.ServiceID, "Failed to update consent", err)
		return nil, err
	}
	if err := s.accept(updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// ConsentHistory fetches the consent record history. A side read, not cached.
func (s *Service) ConsentHistory(ctx context.Context, id connection.Identity) ([]connection.ConsentRecord, error) {
	records, err := s.client.GetConsentHistory(ctx, id)
	if err != nil {
		s.notifyFailure(id.ServiceID, "Failed to load consent history", err)
		return nil, err
	}
	return records, nil
}

// ResourceSchema returns the downstream schema for a resource, read through
// the session cache.
func (s *Service) ResourceSchema(ctx context.Context, id connection.Identity, resource string) (json.RawMessage, error) {
	return s.readThrough(fmt.Sprintf("schema:%s:%s", id, resource), func() (json.RawMessage, error) {
		return s.client.GetResourceSchema(ctx, id, resource)
	})
}

// ResourceExample returns an example payload for a resource, read through
// the session cache.
func (s *Service) ResourceExample(ctx context.Context, id connection.Identity, resource string) (json.RawMessage, error) {
	return s.readThrough(fmt.Sprintf("example:%s:%s", id, resource), func() (json.RawMessage, error) {
		return s.client.GetResourceExample(ctx, id, resource)
	})
}

// ResourceConfig returns per-resource configuration, read through the
// session cache.
func (s *Service) ResourceConfig(ctx context.Context, id connection.Identity, resource string) (json.RawMessage, error) {
	return s.readThrough(fmt.Sprintf("config:%s:%s", id, resource), func() (json.RawMessage, error) {
		return s.client.GetResourceConfig(ctx, id, resource)
	})
}

// CustomMappings returns the custom mapping payload, read through the
// session cache.
func (s *Service) CustomMappings(ctx context.Context, id connection.Identity) (json.RawMessage, error) {
	return s.readThrough(fmt.Sprintf("mappings:%s", id), func() (json.RawMessage, error) {
		return s.client.GetCustomMappings(ctx, id)
	})
}

// readThrough consults the session cache first and deduplicates concurrent
// misses for the same key through singleflight.
func (s *Service) readThrough(key string, fetch func() (json.RawMessage, error)) (json.RawMessage, error) {
	if v, ok := s.cache.getResource(key); ok {
		return v, nil
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		if cached, ok := s.cache.getResource(key); ok {
			return cached, nil
		}
		fetched, err := fetch()
		if err != nil {
			return nil, err
		}
		s.cache.putResource(key, fetched)
		return fetched, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(json.RawMessage), nil
}

// accept validates a backend record at the cache-write boundary and
// dual-writes it. Records with unknown states are rejected and logged; the
// cache keeps its previous view.
func (s *Service) accept(conn *connection.Connection) error {
	if err := conn.Validate(); err != nil {
		logging.Warn("Connections", "Rejecting backend response at cache boundary: %v", err)
		s.notifyFailure(conn.ServiceID, "Received an invalid connection update", err)
		return err
	}
	s.cache.writeThrough(conn)
	return nil
}

// notifyFailure converts a failed operation into a user-facing notification.
// Backend-reported errors carry their message through; transport errors get
// a generic message.
func (s *Service) notifyFailure(serviceID, message string, err error) {
	detail := ""
	var apiErr *vault.APIError
	if errors.As(err, &apiErr) {
		detail = apiErr.Message
	}
	logging.Error("Connections", err, "%s", message)
	s.notifier.Notify(notify.Notification{
		Level:     notify.LevelError,
		ServiceID: serviceID,
		Message:   message,
		Detail:    detail,
	})
}
