package connection

import (
	"sort"
	"strings"
)

// ScopeAccess records the access level granted (or requested) for a single
// field of a resource.
type ScopeAccess struct {
	Read  bool `json:"read"`
	Write bool `json:"write"`
}

// ConsentResources maps resource identifiers (e.g. "crm.contacts") to the
// per-field access the user consented to.
type ConsentResources map[string]map[string]ScopeAccess

// ConsentRecord is one entry in a connection's consent history.
type ConsentRecord struct {
	ID        string           `json:"id,omitempty"`
	Granted   bool             `json:"granted"`
	Resources ConsentResources `json:"resources,omitempty"`
	CreatedAt int64            `json:"created_at,omitempty"`
}

// DataScopes is the application's currently requested scope set. Resources
// are flattened scope paths of the form "resource.field" (or a bare
// resource when the whole resource is requested).
type DataScopes struct {
	Resources []string `json:"resources"`
}

// Covers reports whether the granted resources include the scope path.
// A path like "crm.contacts.email" is covered when the "crm.contacts"
// resource grants read or write on "email"; a bare resource path is covered
// when any field of that resource was granted.
func (r ConsentResources) Covers(path string) bool {
	if fields, ok := r[path]; ok {
		for _, access := range fields {
			if access.Read || access.Write {
				return true
			}
		}
		return false
	}

	idx := strings.LastIndex(path, ".")
	if idx <= 0 {
		return false
	}
	resource, field := path[:idx], path[idx+1:]
	access, ok := r[resource][field]
	return ok && (access.Read || access.Write)
}

// NewlyRequestedScopes classifies which of the requested scope paths were
// not part of the latest grant. When this is non-empty for a granted
// connection, the backend moves the consent state to requires_reconsent and
// the delta must be re-presented to the user before re-granting.
func NewlyRequestedScopes(granted ConsentResources, requested []string) []string {
	var delta []string
	for _, path := range requested {
		if !granted.Covers(path) {
			delta = append(delta, path)
		}
	}
	sort.Strings(delta)
	return delta
}

// PendingReconsentScopes returns the scope delta for a connection, computed
// from its latest consent record and the application's current data scopes.
func PendingReconsentScopes(c *Connection) []string {
	if c.ApplicationDataScopes == nil || len(c.ApplicationDataScopes.Resources) == 0 {
		return nil
	}
	var granted ConsentResources
	if c.LatestConsent != nil {
		granted = c.LatestConsent.Resources
	}
	return NewlyRequestedScopes(granted, c.ApplicationDataScopes.Resources)
}
