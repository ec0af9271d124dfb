package connections

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apideck-libraries/vault-core-sub000/pkg/connection"
)

func cacheConn(serviceID string, state connection.AuthState) *connection.Connection {
	return &connection.Connection{
		ServiceID:  serviceID,
		UnifiedAPI: "crm",
		AuthType:   connection.AuthTypeOAuth2,
		State:      state,
	}
}

func TestCache_WriteThroughReplacesByIdentity(t *testing.T) {
	c := newCache()
	c.setList([]*connection.Connection{
		cacheConn("salesforce", connection.StateAdded),
		cacheConn("hubspot", connection.StateCallable),
	})

	updated := cacheConn("salesforce", connection.StateCallable)
	c.writeThrough(updated)

	list := c.snapshot()
	require.Len(t, list, 2, "replacement must not grow the list")

	got := c.get(connection.Identity{UnifiedAPI: "crm", ServiceID: "salesforce"})
	require.NotNil(t, got)
	assert.Equal(t, connection.StateCallable, got.State)

	// No duplicate identity pairs after the write.
	seen := make(map[connection.Identity]bool)
	for _, conn := range list {
		assert.False(t, seen[conn.Identity()], "duplicate identity %s", conn.Identity())
		seen[conn.Identity()] = true
	}
}

func TestCache_WriteThroughAppendsUnknownIdentity(t *testing.T) {
	c := newCache()
	c.setList([]*connection.Connection{cacheConn("salesforce", connection.StateAdded)})

	c.writeThrough(cacheConn("pipedrive", connection.StateAdded))

	assert.Len(t, c.snapshot(), 2)
	assert.NotNil(t, c.get(connection.Identity{UnifiedAPI: "crm", ServiceID: "pipedrive"}))
}

func TestCache_WriteThroughSyncsDetailView(t *testing.T) {
	c := newCache()
	original := cacheConn("salesforce", connection.StateAdded)
	c.setList([]*connection.Connection{original})
	c.selectDetail(original)

	updated := cacheConn("salesforce", connection.StateCallable)
	c.writeThrough(updated)

	// Dual-write rule: detail and list views never diverge.
	detail := c.currentDetail()
	require.NotNil(t, detail)
	assert.Equal(t, connection.StateCallable, detail.State)
	assert.Same(t, detail, c.get(detail.Identity()))
}

func TestCache_WriteThroughLeavesOtherDetailAlone(t *testing.T) {
	c := newCache()
	selected := cacheConn("hubspot", connection.StateCallable)
	c.setList([]*connection.Connection{selected, cacheConn("salesforce", connection.StateAdded)})
	c.selectDetail(selected)

	c.writeThrough(cacheConn("salesforce", connection.StateCallable))

	detail := c.currentDetail()
	require.NotNil(t, detail)
	assert.Equal(t, "hubspot", detail.ServiceID, "unrelated writes must not touch the selection")
}

func TestCache_ClearDetail(t *testing.T) {
	c := newCache()
	conn := cacheConn("salesforce", connection.StateCallable)
	c.selectDetail(conn)
	require.NotNil(t, c.currentDetail())

	c.clearDetail()
	assert.Nil(t, c.currentDetail())
}

func TestCache_SnapshotIsACopy(t *testing.T) {
	c := newCache()
	c.setList([]*connection.Connection{cacheConn("salesforce", connection.StateAdded)})

	snap := c.snapshot()
	snap[0] = cacheConn("mutated", connection.StateInvalid)

	got := c.get(connection.Identity{UnifiedAPI: "crm", ServiceID: "salesforce"})
	assert.NotNil(t, got, "mutating a snapshot must not affect the cache")
}

func TestCache_ResourceSideCache(t *testing.T) {
	c := newCache()

	_, ok := c.getResource("schema:crm+salesforce:contacts")
	assert.False(t, ok)

	payload := json.RawMessage(`{"fields":["name"]}`)
	c.putResource("schema:crm+salesforce:contacts", payload)

	got, ok := c.getResource("schema:crm+salesforce:contacts")
	require.True(t, ok)
	assert.JSONEq(t, string(payload), string(got))
}
