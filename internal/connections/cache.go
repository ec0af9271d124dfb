package connections

import (
	"encoding/json"
	"sync"

	"github.com/apideck-libraries/vault-core-sub000/pkg/connection"
)

// cache holds the two logical views over the consumer's connections: the
// list view and the currently selected detail view. Both derive from the
// same backend resource; every successful mutation writes into both so they
// never diverge (the dual-write rule).
//
// Only the mutation layer writes here. Collaborators read through copies.
type cache struct {
	mu     sync.RWMutex
	list   []*connection.Connection
	detail *connection.Connection

	// resources is the session-scoped side cache for read-through fetches
	// (schema, example, per-resource config, custom mappings). These are
	// side reads, outside the dual-write consistency contract.
	resources map[string]json.RawMessage
}

func newCache() *cache {
	return &cache{resources: make(map[string]json.RawMessage)}
}

// setList replaces the whole list view.
func (c *cache) setList(conns []*connection.Connection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.list = conns
}

// snapshot returns a copy of the list view.
func (c *cache) snapshot() []*connection.Connection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*connection.Connection, len(c.list))
	copy(out, c.list)
	return out
}

// get returns the list entry with the given identity, or nil.
func (c *cache) get(id connection.Identity) *connection.Connection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, conn := range c.list {
		if conn.Identity() == id {
			return conn
		}
	}
	return nil
}

// writeThrough performs the dual-write: the matching list entry is replaced
// (or appended when the list has not seen this identity yet) and the detail
// view is replaced when it holds the same identity. The identity-pair
// invariant holds because replacement is keyed on the pair.
func (c *cache) writeThrough(conn *connection.Connection) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := conn.Identity()
	replaced := false
	for i, existing := range c.list {
		if existing.Identity() == id {
			c.list[i] = conn
			replaced = true
			break
		}
	}
	if !replaced {
		c.list = append(c.list, conn)
	}

	if c.detail != nil && c.detail.Identity() == id {
		c.detail = conn
	}
}

// selectDetail sets the detail view.
func (c *cache) selectDetail(conn *connection.Connection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.detail = conn
}

// currentDetail returns the detail view, possibly nil.
func (c *cache) currentDetail() *connection.Connection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.detail
}

// clearDetail drops the detail view.
func (c *cache) clearDetail() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.detail = nil
}

// getResource reads the side cache.
func (c *cache) getResource(key string) (json.RawMessage, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.resources[key]
	return v, ok
}

// putResource writes the side cache.
func (c *cache) putResource(key string, v json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resources[key] = v
}
