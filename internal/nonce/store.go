package nonce

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/apideck-libraries/vault-core-sub000/pkg/logging"
)

// Store holds at most one live CSRF nonce per service. Retrieval is
// destructive: after TakeNonce returns a nonce for a service, a second call
// returns nothing, which is what makes a replayed completion message
// unconfirmable.
//
// Implementations swallow storage errors. The only defined failure mode for
// callers is "no nonce found".
type Store interface {
	// Put persists the nonce for a service, overwriting any prior value.
	// Only one authorization attempt per service may be outstanding.
	Put(serviceID, nonce string)

	// TakeNonce returns the stored nonce for a service and atomically
	// removes it. The second return is false when no nonce exists.
	TakeNonce(serviceID string) (string, bool)
}

// MemoryStore is the in-process fallback store. It lives as long as the
// widget instance, which matches the page-lifetime guarantee the fallback
// needs to provide.
type MemoryStore struct {
	mu     sync.Mutex
	nonces map[string]string
}

// NewMemoryStore creates an empty in-memory nonce store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nonces: make(map[string]string)}
}

func (s *MemoryStore) Put(serviceID, nonce string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nonces[serviceID] = nonce
}

func (s *MemoryStore) TakeNonce(serviceID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nonces[serviceID]
	delete(s.nonces, serviceID)
	return n, ok
}

// fileRecord is the on-disk shape of a stored nonce.
type fileRecord struct {
	ServiceID string    `json:"service_id"`
	Nonce     string    `json:"nonce"`
	CreatedAt time.Time `json:"created_at"`
}

// FileStore persists nonces as one JSON file per service under a
// session-scoped directory, so an authorization attempt survives a host
// restart within the same session. Files are written with 0600 permissions
// and the directory with 0700, matching how tokens are stored elsewhere.
//
// Every operation degrades to the in-memory fallback when the filesystem is
// unavailable (read-only mount, quota, sandbox): errors are logged at debug
// level and never surfaced.
type FileStore struct {
	mu       sync.Mutex
	dir      string
	usable   bool
	fallback *MemoryStore
}

// NewFileStore creates a nonce store rooted at dir. If the directory cannot
// be created the store still works, serving purely from its fallback.
func NewFileStore(dir string) *FileStore {
	s := &FileStore{
		dir:      dir,
		fallback: NewMemoryStore(),
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		logging.Debug("NonceStore", "Session store unavailable at %s, using in-memory fallback: %v", dir, err)
		return s
	}
	s.usable = true
	return s
}

func (s *FileStore) Put(serviceID, nonce string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.usable {
		s.fallback.Put(serviceID, nonce)
		return
	}

	rec := fileRecord{ServiceID: serviceID, Nonce: nonce, CreatedAt: time.Now()}
	data, err := json.Marshal(rec)
	if err == nil {
		err = os.WriteFile(s.path(serviceID), data, 0600)
	}
	if err != nil {
		logging.Debug("NonceStore", "Failed to persist nonce for service %s, using fallback: %v", serviceID, err)
		// A stale file from an earlier Put must not shadow the fallback
		// entry: only one nonce per service may be live.
		_ = os.Remove(s.path(serviceID))
		s.fallback.Put(serviceID, nonce)
		return
	}
	// The file now holds the latest nonce; drop any fallback entry left by
	// an earlier failed write so the next take cannot see two values.
	s.fallback.TakeNonce(serviceID)
}

func (s *FileStore) TakeNonce(serviceID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.usable {
		path := s.path(serviceID)
		data, err := os.ReadFile(path)
		if err == nil {
			_ = os.Remove(path)
			var rec fileRecord
			if err := json.Unmarshal(data, &rec); err == nil && rec.Nonce != "" {
				return rec.Nonce, true
			}
		} else if !os.IsNotExist(err) {
			logging.Debug("NonceStore", "Failed to read nonce for service %s: %v", serviceID, err)
		}
	}

	// Check the fallback too: a Put may have landed there when the
	// filesystem misbehaved mid-session.
	return s.fallback.TakeNonce(serviceID)
}

// path returns the nonce file for a service. The service id is hashed to
// produce a filesystem-safe name.
func (s *FileStore) path(serviceID string) string {
	sum := sha256.Sum256([]byte(serviceID))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:16])+".json")
}
