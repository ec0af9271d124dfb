package nonce

import (
	"crypto/rand"
	"fmt"

	"github.com/google/uuid"
)

// Generate produces a cryptographically random nonce formatted as a
// version 4, variant 1 UUID. uuid.NewRandom reads from crypto/rand; if it
// fails (exhausted entropy source) we synthesize the UUID from 16 random
// bytes with the version and variant bits patched in.
func Generate() string {
	if id, err := uuid.NewRandom(); err == nil {
		return id.String()
	}

	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand never fails on supported platforms; uuid documents
		// the same assumption. Panic rather than hand out a guessable nonce.
		panic(fmt.Sprintf("nonce: random source unavailable: %v", err))
	}
	b[6] = (b[6] & 0x0f) | 0x40 // version 4
	b[8] = (b[8] & 0x3f) | 0x80 // variant 1
	return uuid.UUID(b).String()
}
