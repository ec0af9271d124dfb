package connection

import "fmt"

// AuthState represents a connection's position in the authorization
// lifecycle. States are only ever assigned by copying what the backend
// returned; the client never advances a state on its own.
type AuthState string

const (
	// StateAvailable means the integration has not been added by the consumer.
	StateAvailable AuthState = "available"

	// StateAdded means the connection exists but has not been authorized.
	StateAdded AuthState = "added"

	// StateAuthorized means credentials were accepted but mandatory
	// configuration is still outstanding.
	StateAuthorized AuthState = "authorized"

	// StateCallable means the connection is fully operational.
	StateCallable AuthState = "callable"

	// StateInvalid means the backend reported a broken credential or
	// configuration; re-authorization re-enters the added/authorized path.
	StateInvalid AuthState = "invalid"
)

// ParseAuthState validates a backend-supplied state string.
func ParseAuthState(s string) (AuthState, error) {
	switch AuthState(s) {
	case StateAvailable, StateAdded, StateAuthorized, StateCallable, StateInvalid:
		return AuthState(s), nil
	default:
		return "", fmt.Errorf("unknown connection state %q", s)
	}
}

// authTransitions holds the legal moves on the authorization axis. The
// backend is authoritative, so this table is used to flag surprising
// responses and to gate which user actions are offered, not to block writes.
var authTransitions = map[AuthState][]AuthState{
	StateAvailable:  {StateAdded},
	StateAdded:      {StateAuthorized, StateCallable, StateAvailable},
	StateAuthorized: {StateCallable, StateInvalid, StateAdded, StateAvailable},
	StateCallable:   {StateAuthorized, StateInvalid, StateAdded, StateAvailable},
	StateInvalid:    {StateAdded, StateAuthorized, StateAvailable},
}

// CanTransition reports whether moving from s to next is a legal lifecycle
// step. A state can always "transition" to itself (refresh).
func (s AuthState) CanTransition(next AuthState) bool {
	if s == next {
		return true
	}
	for _, t := range authTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Authorized reports whether the state carries accepted credentials.
func (s AuthState) Authorized() bool {
	return s == StateAuthorized || s == StateCallable
}

// ConsentState represents a connection's position on the data-scope consent
// axis, orthogonal to AuthState. It is only active when the tenant enables
// data-scope consent.
type ConsentState string

const (
	ConsentImplicit          ConsentState = "implicit"
	ConsentPending           ConsentState = "pending"
	ConsentGranted           ConsentState = "granted"
	ConsentDenied            ConsentState = "denied"
	ConsentRevoked           ConsentState = "revoked"
	ConsentRequiresReconsent ConsentState = "requires_reconsent"
)

// ParseConsentState validates a backend-supplied consent state string.
func ParseConsentState(s string) (ConsentState, error) {
	switch ConsentState(s) {
	case ConsentImplicit, ConsentPending, ConsentGranted, ConsentDenied,
		ConsentRevoked, ConsentRequiresReconsent:
		return ConsentState(s), nil
	default:
		return "", fmt.Errorf("unknown consent state %q", s)
	}
}

var consentTransitions = map[ConsentState][]ConsentState{
	ConsentImplicit:          {ConsentPending, ConsentGranted, ConsentDenied},
	ConsentPending:           {ConsentGranted, ConsentDenied},
	ConsentGranted:           {ConsentRevoked, ConsentRequiresReconsent},
	ConsentDenied:            {ConsentPending, ConsentGranted},
	ConsentRevoked:           {ConsentPending, ConsentGranted},
	ConsentRequiresReconsent: {ConsentGranted, ConsentDenied},
}

// CanTransition reports whether moving from s to next is a legal consent
// lifecycle step.
func (s ConsentState) CanTransition(next ConsentState) bool {
	if s == next {
		return true
	}
	for _, t := range consentTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Action is a user-triggerable operation on a connection. Which actions a
// tenant exposes is configurable; AvailableActions applies both the state
// guards and the tenant allow-list.
type Action string

const (
	ActionEnable      Action = "enable"
	ActionDisable     Action = "disable"
	ActionReauthorize Action = "reauthorize"
	ActionDisconnect  Action = "disconnect"
	ActionDelete      Action = "delete"
)

// DefaultActions is the allow-list applied when the tenant does not
// configure one.
var DefaultActions = []Action{ActionEnable, ActionDisable, ActionReauthorize, ActionDisconnect, ActionDelete}

// actionsForState returns the actions the state machine permits, before the
// tenant allow-list is applied.
func actionsForState(c *Connection) []Action {
	switch c.State {
	case StateCallable:
		acts := []Action{ActionReauthorize, ActionDisconnect, ActionDelete}
		if c.Enabled {
			acts = append(acts, ActionDisable)
		} else {
			acts = append(acts, ActionEnable)
		}
		return acts
	case StateAuthorized:
		return []Action{ActionReauthorize, ActionDisconnect, ActionDelete}
	case StateInvalid:
		return []Action{ActionReauthorize, ActionDelete}
	case StateAdded:
		return []Action{ActionDelete}
	default:
		return nil
	}
}

// AvailableActions returns the actions offered for a connection, gated by
// the tenant's configured allow-list. A nil allow-list means DefaultActions.
func AvailableActions(c *Connection, allowed []Action) []Action {
	if allowed == nil {
		allowed = DefaultActions
	}
	permit := make(map[Action]bool, len(allowed))
	for _, a := range allowed {
		permit[a] = true
	}

	var out []Action
	for _, a := range actionsForState(c) {
		if permit[a] {
			out = append(out, a)
		}
	}
	return out
}
