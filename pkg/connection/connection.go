package connection

import (
	"encoding/json"
	"fmt"
	"strings"
)

// AuthType identifies how a connection authenticates to the downstream service.
type AuthType string

const (
	AuthTypeOAuth2 AuthType = "oauth2"
	AuthTypeAPIKey AuthType = "apiKey"
	AuthTypeBasic  AuthType = "basic"
	AuthTypeCustom AuthType = "custom"
	AuthTypeNone   AuthType = "none"
)

// GrantType selects the OAuth handshake strategy for a connection.
type GrantType string

const (
	GrantAuthorizationCode GrantType = "authorization_code"
	GrantClientCredentials GrantType = "client_credentials"
	GrantPassword          GrantType = "password"
)

// Identity is the globally unique address of a connection for a consumer.
// The cache never holds two entries with the same identity pair.
type Identity struct {
	UnifiedAPI string
	ServiceID  string
}

// String returns the concatenated connection id, e.g. "crm+salesforce".
func (i Identity) String() string {
	return i.UnifiedAPI + "+" + i.ServiceID
}

// ParseIdentity parses a concatenated connection id of the form
// "unifiedApi+serviceId".
func ParseIdentity(s string) (Identity, error) {
	api, service, ok := strings.Cut(s, "+")
	if !ok || api == "" || service == "" {
		return Identity{}, fmt.Errorf("invalid connection id %q, expected unifiedApi+serviceId", s)
	}
	return Identity{UnifiedAPI: api, ServiceID: service}, nil
}

// FormField is a single configuration field for a connection. The core only
// inspects Required and Value to decide whether mandatory settings are
// outstanding; everything else is passed through untouched.
type FormField struct {
	ID          string      `json:"id"`
	Label       string      `json:"label,omitempty"`
	Type        string      `json:"type,omitempty"`
	Required    bool        `json:"required,omitempty"`
	Value       interface{} `json:"value,omitempty"`
	Placeholder string      `json:"placeholder,omitempty"`
	Description string      `json:"description,omitempty"`
}

// HasValue reports whether the field has been filled in.
func (f FormField) HasValue() bool {
	switch v := f.Value.(type) {
	case nil:
		return false
	case string:
		return v != ""
	default:
		return true
	}
}

// Connection is the authoritative, locally cached view of a single
// integration connection. Fields the core never interprets (custom mappings,
// configurable resources, settings) are carried as opaque payloads;
// anything else the backend sends lives in the Extra bag rather than being
// duck-typed onto the record.
type Connection struct {
	ID             string    `json:"id"`
	ServiceID      string    `json:"service_id"`
	UnifiedAPI     string    `json:"unified_api"`
	Name           string    `json:"name,omitempty"`
	Icon           string    `json:"icon,omitempty"`
	AuthType       AuthType  `json:"auth_type"`
	OAuthGrantType GrantType `json:"oauth_grant_type,omitempty"`

	State        AuthState    `json:"state"`
	ConsentState ConsentState `json:"consent_state,omitempty"`
	Enabled      bool         `json:"enabled"`

	AuthorizeURL string `json:"authorize_url,omitempty"`

	FormFields            []FormField     `json:"form_fields,omitempty"`
	ConfigurableResources []string        `json:"configurable_resources,omitempty"`
	CustomMappings        json.RawMessage `json:"custom_mappings,omitempty"`
	Settings              json.RawMessage `json:"settings,omitempty"`

	LatestConsent         *ConsentRecord `json:"latest_consent,omitempty"`
	ApplicationDataScopes *DataScopes    `json:"application_data_scopes,omitempty"`

	// Extra carries backend fields the core does not interpret.
	Extra map[string]interface{} `json:"metadata,omitempty"`

	CreatedAt int64 `json:"created_at,omitempty"`
	UpdatedAt int64 `json:"updated_at,omitempty"`
}

// Identity returns the connection's identity pair.
func (c *Connection) Identity() Identity {
	return Identity{UnifiedAPI: c.UnifiedAPI, ServiceID: c.ServiceID}
}

// Validate checks that the backend-supplied state fields parse to known
// values. This is the cache-write boundary guard: records carrying unknown
// states never enter the cache.
func (c *Connection) Validate() error {
	if c.ServiceID == "" || c.UnifiedAPI == "" {
		return fmt.Errorf("connection %q is missing its identity pair", c.ID)
	}
	if _, err := ParseAuthState(string(c.State)); err != nil {
		return fmt.Errorf("connection %s: %w", c.Identity(), err)
	}
	if c.ConsentState != "" {
		if _, err := ParseConsentState(string(c.ConsentState)); err != nil {
			return fmt.Errorf("connection %s: %w", c.Identity(), err)
		}
	}
	return nil
}

// RequiresHandshake reports whether the connection authorizes through an
// external handshake (popup or direct token exchange) rather than through
// form submission alone.
func (c *Connection) RequiresHandshake() bool {
	if c.AuthType == AuthTypeOAuth2 {
		return true
	}
	return c.AuthType == AuthTypeCustom && c.OAuthGrantType != ""
}

// UsesDirectExchange reports whether the connection's grant type is
// non-interactive. For these no popup is opened; the token endpoint is
// called directly.
func (c *Connection) UsesDirectExchange() bool {
	return c.OAuthGrantType == GrantClientCredentials || c.OAuthGrantType == GrantPassword
}

// HasOutstandingRequiredFields reports whether any required form field has
// no value yet. Connections in the authorized state stay there until the
// backend sees these satisfied.
func (c *Connection) HasOutstandingRequiredFields() bool {
	for _, f := range c.FormFields {
		if f.Required && !f.HasValue() {
			return true
		}
	}
	return false
}
