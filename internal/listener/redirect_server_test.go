package listener

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestRedirectServer_ConvertsRedirectToMessage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := NewRedirectServer(0)
	redirectURL, err := srv.Start(ctx)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet,
		redirectURL+"?nonce=nonce-1&confirm_token=tok&service_id=salesforce&unified_api=crm", nil)
	req.Header.Set("Origin", "https://vault.example.com")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Redirect request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Status = %d", resp.StatusCode)
	}
	if !strings.Contains(strings.ToLower(string(body)), "html") {
		t.Error("Redirect should render a result page")
	}

	waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel()
	msg, err := srv.WaitForMessage(waitCtx)
	if err != nil {
		t.Fatalf("WaitForMessage failed: %v", err)
	}

	if msg.Type != MessageOAuthComplete {
		t.Errorf("Type = %q", msg.Type)
	}
	if msg.Origin != "https://vault.example.com" {
		t.Errorf("Origin = %q", msg.Origin)
	}
	if msg.Nonce != "nonce-1" || msg.ConfirmToken != "tok" || msg.ServiceID != "salesforce" || msg.UnifiedAPI != "crm" {
		t.Errorf("Message = %+v", msg)
	}
}

func TestRedirectServer_ErrorRedirect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := NewRedirectServer(0)
	redirectURL, err := srv.Start(ctx)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet,
		redirectURL+"?error=access_denied&error_description=User+denied&service_id=salesforce", nil)
	req.Header.Set("Referer", "https://vault.example.com/oauth/done")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Redirect request failed: %v", err)
	}
	resp.Body.Close()

	waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel()
	msg, err := srv.WaitForMessage(waitCtx)
	if err != nil {
		t.Fatalf("WaitForMessage failed: %v", err)
	}

	if msg.Type != MessageOAuthError {
		t.Errorf("Type = %q", msg.Type)
	}
	if msg.Error != "access_denied" || msg.ErrorDescription != "User denied" {
		t.Errorf("Message = %+v", msg)
	}
	// Referer fallback supplies the provenance.
	if msg.Origin != "https://vault.example.com" {
		t.Errorf("Origin = %q", msg.Origin)
	}
}

func TestRedirectServer_SecondRedirectRejected(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := NewRedirectServer(0)
	redirectURL, err := srv.Start(ctx)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	first, err := http.Get(redirectURL + "?nonce=a&service_id=s")
	if err != nil {
		t.Fatalf("First redirect failed: %v", err)
	}
	first.Body.Close()
	if first.StatusCode != http.StatusOK {
		t.Fatalf("First redirect status = %d", first.StatusCode)
	}

	second, err := http.Get(redirectURL + "?nonce=a&service_id=s")
	if err != nil {
		t.Skipf("Server already shut down: %v", err)
	}
	second.Body.Close()
	if second.StatusCode != http.StatusBadRequest {
		t.Errorf("Second redirect status = %d, want 400", second.StatusCode)
	}
}

func TestRedirectServer_NoProvenanceMeansEmptyOrigin(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := NewRedirectServer(0)
	redirectURL, err := srv.Start(ctx)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	resp, err := http.Get(redirectURL + "?nonce=a&service_id=s")
	if err != nil {
		t.Fatalf("Redirect request failed: %v", err)
	}
	resp.Body.Close()

	waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel()
	msg, err := srv.WaitForMessage(waitCtx)
	if err != nil {
		t.Fatalf("WaitForMessage failed: %v", err)
	}

	// An empty origin is exactly what the listener's origin gate rejects.
	if msg.Origin != "" {
		t.Errorf("Origin = %q, want empty", msg.Origin)
	}
}
