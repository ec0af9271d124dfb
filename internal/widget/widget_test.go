package widget

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/apideck-libraries/vault-core-sub000/internal/connections"
	"github.com/apideck-libraries/vault-core-sub000/internal/listener"
	"github.com/apideck-libraries/vault-core-sub000/internal/nonce"
	"github.com/apideck-libraries/vault-core-sub000/internal/popup"
	"github.com/apideck-libraries/vault-core-sub000/internal/vault"
	"github.com/apideck-libraries/vault-core-sub000/pkg/connection"
)

const trustedOrigin = "https://vault.example.com"

// fakeBackend is a scriptable vault API that counts calls per endpoint kind.
type fakeBackend struct {
	mu       sync.Mutex
	tokens   int
	confirms int
	gets     int
	state    string
}

func (b *fakeBackend) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/token"):
			b.tokens++
			b.state = "callable"
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/confirm"):
			b.confirms++
			b.state = "callable"
		case r.Method == http.MethodGet:
			b.gets++
		}
		state := b.state
		if state == "" {
			state = "added"
		}
		b.mu.Unlock()
		w.Write([]byte(`{"status_code":200,"status":"OK","data":{"service_id":"salesforce","unified_api":"crm","auth_type":"oauth2","state":"` + state + `","enabled":true}}`))
	}
}

func (b *fakeBackend) counts() (tokens, confirms, gets int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens, b.confirms, b.gets
}

// stubHandle and stubOpener model the host-provided browsing context.
type stubHandle struct {
	mu     sync.Mutex
	closed bool
}

func (h *stubHandle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *stubHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

func (h *stubHandle) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
}

type stubOpener struct {
	mu      sync.Mutex
	handle  *stubHandle
	opens   int
	lastURL string
}

func (o *stubOpener) Open(u string, opts popup.WindowOptions) (popup.Handle, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opens++
	o.lastURL = u
	return o.handle, nil
}

func (o *stubOpener) openCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens
}

func (o *stubOpener) openedURL() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastURL
}

func newTestWidget(t *testing.T, backend *fakeBackend, opener popup.Opener) (*Widget, nonce.Store) {
	t.Helper()
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)

	nonces := nonce.NewMemoryStore()
	w := New(Config{
		TrustedOrigin: trustedOrigin,
		Client:        vault.NewClient(vault.Config{BaseURL: srv.URL, Token: "t"}),
		Nonces:        nonces,
		Opener:        opener,
		PollInterval:  time.Millisecond,
	})
	t.Cleanup(w.Close)
	return w, nonces
}

func oauthConnection(grant connection.GrantType) *connection.Connection {
	return &connection.Connection{
		ServiceID:      "salesforce",
		UnifiedAPI:     "crm",
		AuthType:       connection.AuthTypeOAuth2,
		OAuthGrantType: grant,
		State:          connection.StateAdded,
		AuthorizeURL:   "https://vault.example.com/authorize?client_id=x",
	}
}

func TestWidget_DirectExchangeSkipsPopup(t *testing.T) {
	backend := &fakeBackend{}
	opener := &stubOpener{handle: &stubHandle{}}
	w, _ := newTestWidget(t, backend, opener)

	conn := oauthConnection(connection.GrantClientCredentials)
	auth, err := w.Authorize(context.Background(), conn)
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}

	select {
	case <-auth.Done():
	case <-time.After(time.Second):
		t.Fatal("Direct exchange should resolve synchronously")
	}

	tokens, confirms, _ := backend.counts()
	if tokens != 1 {
		t.Errorf("Token endpoint hit %d times, want exactly 1", tokens)
	}
	if confirms != 0 {
		t.Errorf("Direct exchange must not confirm, got %d", confirms)
	}
	if opener.openCount() != 0 {
		t.Error("Direct exchange must not open a popup")
	}

	// The refreshed record is in the cache.
	got := w.Service().Get(conn.Identity())
	if got == nil || got.State != connection.StateCallable {
		t.Error("Exchange result should be cached")
	}
}

func TestWidget_PopupFlowStoresNonceBeforeOpening(t *testing.T) {
	backend := &fakeBackend{}
	opener := &stubOpener{handle: &stubHandle{}}
	w, nonces := newTestWidget(t, backend, opener)

	conn := oauthConnection(connection.GrantAuthorizationCode)
	if _, err := w.Authorize(context.Background(), conn); err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}

	if opener.openCount() != 1 {
		t.Fatalf("Popup opened %d times, want 1", opener.openCount())
	}

	opened, err := url.Parse(opener.openedURL())
	if err != nil {
		t.Fatalf("Opened URL unparsable: %v", err)
	}
	state := opened.Query().Get("state")
	if state == "" {
		t.Fatal("Authorize URL should carry the nonce as state")
	}

	// The nonce handed to the authorizer is the one retrievable from the
	// store, proving it was persisted before the popup could redirect.
	stored, ok := nonces.TakeNonce("salesforce")
	if !ok || stored != state {
		t.Errorf("Stored nonce = (%q, %v), want %q", stored, ok, state)
	}
}

func TestWidget_PopupClosureTriggersRefresh(t *testing.T) {
	backend := &fakeBackend{}
	handle := &stubHandle{}
	opener := &stubOpener{handle: handle}
	w, _ := newTestWidget(t, backend, opener)

	conn := oauthConnection(connection.GrantAuthorizationCode)
	auth, err := w.Authorize(context.Background(), conn)
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}

	handle.close()

	select {
	case <-auth.Done():
	case <-time.After(time.Second):
		t.Fatal("Attempt should resolve after the popup closes")
	}

	tokens, confirms, gets := backend.counts()
	if gets != 1 {
		t.Errorf("Detail re-fetched %d times after closure, want 1", gets)
	}
	if confirms != 0 || tokens != 0 {
		t.Error("Closure alone must not confirm or exchange")
	}
}

func TestWidget_MessageConfirmsExactlyOnce(t *testing.T) {
	backend := &fakeBackend{}
	opener := &stubOpener{handle: &stubHandle{}}
	w, _ := newTestWidget(t, backend, opener)

	conn := oauthConnection(connection.GrantAuthorizationCode)
	if _, err := w.Authorize(context.Background(), conn); err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}

	opened, _ := url.Parse(opener.openedURL())
	msg := listener.Message{
		Origin:       trustedOrigin,
		Type:         listener.MessageOAuthComplete,
		Nonce:        opened.Query().Get("state"),
		ConfirmToken: "confirm-abc",
		ServiceID:    "salesforce",
		UnifiedAPI:   "crm",
	}

	ctx := context.Background()
	w.HandleMessage(ctx, msg)
	w.HandleMessage(ctx, msg) // replay

	_, confirms, _ := backend.counts()
	if confirms != 1 {
		t.Errorf("Confirm endpoint hit %d times, want exactly 1", confirms)
	}

	got := w.Service().Get(conn.Identity())
	if got == nil || got.State != connection.StateCallable {
		t.Error("Confirmed connection should be callable in the cache")
	}
}

func TestWidget_RejectsNonHandshakeConnections(t *testing.T) {
	backend := &fakeBackend{}
	w, _ := newTestWidget(t, backend, &stubOpener{handle: &stubHandle{}})

	conn := &connection.Connection{
		ServiceID:  "sheets",
		UnifiedAPI: "file-storage",
		AuthType:   connection.AuthTypeAPIKey,
		State:      connection.StateAdded,
	}
	if _, err := w.Authorize(context.Background(), conn); err == nil {
		t.Error("apiKey connections must not start a handshake")
	}
}

func TestWidget_MissingAuthorizeURLClearsNonce(t *testing.T) {
	backend := &fakeBackend{}
	opener := &stubOpener{handle: &stubHandle{}}
	w, nonces := newTestWidget(t, backend, opener)

	conn := oauthConnection(connection.GrantAuthorizationCode)
	conn.AuthorizeURL = ""

	if _, err := w.Authorize(context.Background(), conn); err == nil {
		t.Fatal("Missing authorize URL should fail")
	}
	if _, ok := nonces.TakeNonce("salesforce"); ok {
		t.Error("Failed launch must not leave a live nonce behind")
	}
	if opener.openCount() != 0 {
		t.Error("No popup should open without an authorize URL")
	}
}

func TestWidget_CloseCancelsPoller(t *testing.T) {
	backend := &fakeBackend{}
	handle := &stubHandle{}
	opener := &stubOpener{handle: handle}
	w, _ := newTestWidget(t, backend, opener)

	conn := oauthConnection(connection.GrantAuthorizationCode)
	auth, err := w.Authorize(context.Background(), conn)
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}

	w.Close()

	select {
	case <-auth.Done():
	case <-time.After(time.Second):
		t.Fatal("Close should resolve outstanding attempts")
	}

	if !handle.Closed() {
		t.Error("Close should tear down the popup")
	}

	// Messages after Close are dropped.
	w.HandleMessage(context.Background(), listener.Message{
		Origin:    trustedOrigin,
		Type:      listener.MessageOAuthComplete,
		ServiceID: "salesforce",
	})
	_, confirms, _ := backend.counts()
	if confirms != 0 {
		t.Error("Messages after Close must not confirm")
	}
}

func TestWidget_SingleModeDeleteInvokesOnClose(t *testing.T) {
	backend := &fakeBackend{}
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)

	closed := make(chan struct{}, 1)
	w := New(Config{
		TrustedOrigin: trustedOrigin,
		Client:        vault.NewClient(vault.Config{BaseURL: srv.URL, Token: "t"}),
		Mode:          connections.ModeSingle,
		OnClose:       func() { closed <- struct{}{} },
	})
	t.Cleanup(w.Close)

	conn := oauthConnection(connection.GrantAuthorizationCode)
	if err := w.Service().Delete(context.Background(), conn); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Error("Single-mode delete should ask the host to close the widget")
	}
}
