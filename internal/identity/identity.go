// Package identity derives the opaque owner id that scopes persisted
// conversations to one interactive session.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/google/uuid"

	"github.com/mesami8/llmchatapp/internal/domain"
)

const ownerIDLength = 16

// Provider computes the owner id once from a session-scoped seed and memoizes
// it for the rest of the session. This is a weak identity, not a security
// boundary: two sessions holding the same seed see each other's
// conversations.
type Provider struct {
	seed string
	once sync.Once
	id   domain.OwnerID
}

// NewProvider creates a provider for the given seed. An empty seed gets a
// random one, so the derived identity lives only as long as the session.
func NewProvider(seed string) *Provider {
	if seed == "" {
		seed = uuid.NewString()
	}
	return &Provider{seed: seed}
}

// OwnerID returns the derived owner id.
func (p *Provider) OwnerID() domain.OwnerID {
	p.once.Do(func() {
		p.id = DeriveOwnerID(p.seed)
	})
	return p.id
}

// DeriveOwnerID hashes a session seed into a short opaque identifier.
func DeriveOwnerID(seed string) domain.OwnerID {
	sum := sha256.Sum256([]byte(seed))
	return domain.OwnerID(hex.EncodeToString(sum[:])[:ownerIDLength])
}
