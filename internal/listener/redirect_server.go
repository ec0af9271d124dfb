package listener

import (
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"
)

//go:embed templates/redirect_success.html
var redirectSuccessHTML string

//go:embed templates/redirect_error.html
var redirectErrorHTML string

// RedirectServer is a temporary loopback HTTP server that converts the
// authorizer's final redirect into a Message for hosts that have no
// cross-context messaging of their own (system-browser flows). It serves a
// single redirect, renders a result page, then shuts down.
//
// The message's Origin is taken from the request's Origin header, falling
// back to the Referer's origin. A redirect without provenance produces a
// message with an empty origin, which the listener's origin gate rejects.
type RedirectServer struct {
	port      int
	server    *http.Server
	netList   net.Listener
	messageCh chan Message
	errorCh   chan error
	once      sync.Once
	serverURL string
}

// NewRedirectServer creates a redirect server on the given port. Port 0
// picks a random available port.
func NewRedirectServer(port int) *RedirectServer {
	return &RedirectServer{
		port:      port,
		messageCh: make(chan Message, 1),
		errorCh:   make(chan error, 1),
	}
}

// Start begins listening. The server stops when ctx is cancelled. Returns
// the redirect URL to hand to the authorizer.
func (s *RedirectServer) Start(ctx context.Context) (string, error) {
	addr := fmt.Sprintf("127.0.0.1:%d", s.port)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to start redirect server on %s: %w", addr, err)
	}

	s.netList = ln
	s.port = ln.Addr().(*net.TCPAddr).Port
	s.serverURL = fmt.Sprintf("http://localhost:%d", s.port)

	mux := http.NewServeMux()
	mux.HandleFunc("/redirect", s.handleRedirect)

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			select {
			case s.errorCh <- err:
			default:
			}
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return s.serverURL + "/redirect", nil
}

// WaitForMessage blocks until the redirect arrives, the server fails, or
// ctx ends.
func (s *RedirectServer) WaitForMessage(ctx context.Context) (Message, error) {
	select {
	case msg := <-s.messageCh:
		return msg, nil
	case err := <-s.errorCh:
		return Message{}, err
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// handleRedirect accepts exactly one redirect; later requests get a 400.
func (s *RedirectServer) handleRedirect(w http.ResponseWriter, r *http.Request) {
	var handled bool
	s.once.Do(func() {
		handled = true
		s.processRedirect(w, r)
	})

	if !handled {
		http.Error(w, "Redirect already processed", http.StatusBadRequest)
	}
}

func (s *RedirectServer) processRedirect(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'unsafe-inline'")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store")

	query := r.URL.Query()
	msg := Message{
		Origin:           requestOrigin(r),
		Nonce:            query.Get("nonce"),
		ConfirmToken:     query.Get("confirm_token"),
		ServiceID:        query.Get("service_id"),
		UnifiedAPI:       query.Get("unified_api"),
		Error:            query.Get("error"),
		ErrorDescription: query.Get("error_description"),
	}
	if msg.Error != "" {
		msg.Type = MessageOAuthError
	} else {
		msg.Type = MessageOAuthComplete
	}

	var tmpl *template.Template
	var data interface{}
	if msg.Type == MessageOAuthError {
		tmpl = template.Must(template.New("error").Parse(redirectErrorHTML))
		data = map[string]string{
			"Error":       msg.Error,
			"Description": msg.ErrorDescription,
		}
	} else {
		tmpl = template.Must(template.New("success").Parse(redirectSuccessHTML))
		data = map[string]string{}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}

	select {
	case s.messageCh <- msg:
	default:
	}

	// Give the response time to flush before tearing the listener down.
	go func() {
		time.Sleep(1 * time.Second)
		s.Stop()
	}()
}

// requestOrigin extracts the provenance of a redirect request.
func requestOrigin(r *http.Request) string {
	if origin := r.Header.Get("Origin"); origin != "" && origin != "null" {
		return origin
	}
	referer := r.Header.Get("Referer")
	if referer == "" {
		return ""
	}
	u, err := url.Parse(referer)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// Stop gracefully shuts the server down.
func (s *RedirectServer) Stop() {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(ctx)
	}
	if s.netList != nil {
		_ = s.netList.Close()
	}
}

// RedirectURI returns the redirect URL for authorizer configuration.
func (s *RedirectServer) RedirectURI() string {
	return s.serverURL + "/redirect"
}

// Port returns the port the server is listening on.
func (s *RedirectServer) Port() int {
	return s.port
}
