package vault

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/apideck-libraries/vault-core-sub000/pkg/connection"
)

// DefaultHTTPTimeout is the default timeout for backend requests.
const DefaultHTTPTimeout = 30 * time.Second

// Config configures the vault backend client.
type Config struct {
	// BaseURL is the root of the vault API, e.g. "https://unify.example.com/vault".
	BaseURL string

	// Token is the session bearer token. It is attached to every request.
	Token string

	// AppID and ConsumerID identify the embedding application and its
	// end-user. Both are opaque to the core and sent as headers on every call.
	AppID      string
	ConsumerID string

	// HTTPClient optionally overrides the transport. The bearer token is
	// layered on top of it.
	HTTPClient *http.Client
}

// Client talks to the vault backend HTTP surface. All methods return the
// decoded payload or a typed *APIError for backend-reported failures;
// transport failures come back as plain wrapped errors.
type Client struct {
	baseURL    string
	appID      string
	consumerID string
	httpClient *http.Client
}

// NewClient creates a backend client. The bearer token rides on an oauth2
// static token source so every request carries the Authorization header
// without each call site repeating it.
func NewClient(cfg Config) *Client {
	base := cfg.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: DefaultHTTPTimeout}
	}

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	authed := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: cfg.Token,
		TokenType:   "Bearer",
	}))
	authed.Timeout = base.Timeout

	return &Client{
		baseURL:    cfg.BaseURL,
		appID:      cfg.AppID,
		consumerID: cfg.ConsumerID,
		httpClient: authed,
	}
}

// APIError is a backend-reported failure (non-2xx response).
type APIError struct {
	StatusCode int    `json:"status_code"`
	Status     string `json:"status"`
	ErrorType  string `json:"error,omitempty"`
	Message    string `json:"message,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("vault api error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("vault api error (%d): %s", e.StatusCode, e.Status)
}

// envelope is the standard response wrapper of the vault API.
type envelope struct {
	StatusCode int             `json:"status_code"`
	Status     string          `json:"status"`
	Data       json.RawMessage `json:"data"`
}

// ListConnections fetches the list view, optionally filtered by unified API.
func (c *Client) ListConnections(ctx context.Context, unifiedAPI string) ([]*connection.Connection, error) {
	query := url.Values{}
	if unifiedAPI != "" {
		query.Set("api", unifiedAPI)
	}

	var out []*connection.Connection
	if err := c.do(ctx, http.MethodGet, "/connections", query, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetConnection fetches the detail view for one connection.
func (c *Client) GetConnection(ctx context.Context, id connection.Identity) (*connection.Connection, error) {
	var out connection.Connection
	if err := c.do(ctx, http.MethodGet, c.connectionPath(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateConnection sends a partial update and returns the updated record.
func (c *Client) UpdateConnection(ctx context.Context, id connection.Identity, patch map[string]interface{}) (*connection.Connection, error) {
	var out connection.Connection
	if err := c.do(ctx, http.MethodPatch, c.connectionPath(id), nil, patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteConnection removes the connection server-side.
func (c *Client) DeleteConnection(ctx context.Context, id connection.Identity) error {
	return c.do(ctx, http.MethodDelete, c.connectionPath(id), nil, nil, nil)
}

// ExchangeToken performs the direct token exchange used by non-interactive
// grant types and returns the refreshed connection record.
func (c *Client) ExchangeToken(ctx context.Context, id connection.Identity) (*connection.Connection, error) {
	var out connection.Connection
	if err := c.do(ctx, http.MethodPost, c.connectionPath(id)+"/token", nil, struct{}{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ConfirmConnection confirms a popup-based handshake with the single-use
// confirm token the authorizer handed to the redirect page.
func (c *Client) ConfirmConnection(ctx context.Context, id connection.Identity, confirmToken string) (*connection.Connection, error) {
	body := map[string]string{"confirm_token": confirmToken}
	var out connection.Connection
	if err := c.do(ctx, http.MethodPost, c.connectionPath(id)+"/confirm", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateConsent records a consent decision against the consent sub-resource
// and returns the connection with its new consent state.
func (c *Client) UpdateConsent(ctx context.Context, id connection.Identity, granted bool, resources connection.ConsentResources) (*connection.Connection, error) {
	body := map[string]interface{}{"granted": granted}
	if resources != nil {
		body["resources"] = resources
	}
	var out connection.Connection
	if err := c.do(ctx, http.MethodPatch, c.connectionPath(id)+"/consent", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetConsentHistory fetches the consent record history for a connection.
func (c *Client) GetConsentHistory(ctx context.Context, id connection.Identity) ([]connection.ConsentRecord, error) {
	var out []connection.ConsentRecord
	if err := c.do(ctx, http.MethodGet, c.connectionPath(id)+"/consent", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetCustomMappings fetches the custom mapping payload. Opaque to the core.
func (c *Client) GetCustomMappings(ctx context.Context, id connection.Identity) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.do(ctx, http.MethodGet, c.connectionPath(id)+"/custom-mappings", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetResourceConfig fetches per-resource configuration. Opaque to the core.
func (c *Client) GetResourceConfig(ctx context.Context, id connection.Identity, resource string) (json.RawMessage, error) {
	return c.getRaw(ctx, c.connectionPath(id)+"/"+url.PathEscape(resource)+"/config")
}

// GetResourceSchema fetches the downstream schema for a resource.
func (c *Client) GetResourceSchema(ctx context.Context, id connection.Identity, resource string) (json.RawMessage, error) {
	return c.getRaw(ctx, c.connectionPath(id)+"/"+url.PathEscape(resource)+"/schema")
}

// GetResourceExample fetches an example payload for a resource.
func (c *Client) GetResourceExample(ctx context.Context, id connection.Identity, resource string) (json.RawMessage, error) {
	return c.getRaw(ctx, c.connectionPath(id)+"/"+url.PathEscape(resource)+"/example")
}

func (c *Client) getRaw(ctx context.Context, path string) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) connectionPath(id connection.Identity) string {
	return "/connections/" + url.PathEscape(id.UnifiedAPI) + "/" + url.PathEscape(id.ServiceID)
}

// do performs one backend request and decodes the enveloped response into out.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Apideck-App-Id", c.appID)
	req.Header.Set("X-Apideck-Consumer-Id", c.consumerID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Status: resp.Status}
		_ = json.Unmarshal(respBody, apiErr)
		return apiErr
	}

	if out == nil {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}
