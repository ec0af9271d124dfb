package listener

// MessageType discriminates the cross-context messages the authorizer's
// final redirect page can send.
type MessageType string

const (
	// MessageOAuthComplete signals that the authorizer finished the
	// handshake and handed out a single-use confirm token.
	MessageOAuthComplete MessageType = "oauth_complete"

	// MessageOAuthError signals that the handshake failed or was denied.
	MessageOAuthError MessageType = "oauth_error"
)

// Message is one inbound cross-context message. Origin is the provenance
// asserted by the transport that delivered the message (the browsing
// context's origin, or the provenance headers of the redirect request); the
// listener trusts nothing about a message until the origin matches.
type Message struct {
	Origin string      `json:"-"`
	Type   MessageType `json:"type"`

	// oauth_complete fields.
	Nonce        string `json:"nonce,omitempty"`
	ConfirmToken string `json:"confirm_token,omitempty"`
	ServiceID    string `json:"service_id"`
	UnifiedAPI   string `json:"unified_api,omitempty"`

	// oauth_error fields.
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}
