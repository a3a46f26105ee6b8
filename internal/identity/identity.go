package identity

import (
	"sync"

	"github.com/google/uuid"

	"nexzywatch/internal/keychain"
)

// Provider owns the stable per-installation device id. The id is a random
// UUID, never derived from hardware identifiers, so a fresh pairing after an
// unpair gets a fresh identity.
type Provider struct {
	mu     sync.Mutex
	store  keychain.Store
	cached string
}

func New(store keychain.Store) *Provider {
	return &Provider{store: store}
}

// GetOrCreate returns the device id, generating and persisting a new one if
// none exists. The id is written to the store before it is returned.
func (p *Provider) GetOrCreate() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cached != "" {
		return p.cached
	}
	if id, ok := p.store.Get(keychain.KeyDeviceID); ok {
		p.cached = id
		return id
	}
	id := uuid.NewString()
	p.store.Set(keychain.KeyDeviceID, id)
	p.cached = id
	return id
}

// Get returns the device id only if one already exists.
func (p *Provider) Get() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cached != "" {
		return p.cached, true
	}
	id, ok := p.store.Get(keychain.KeyDeviceID)
	if ok {
		p.cached = id
	}
	return id, ok
}

// Clear removes the device id from memory and storage. Used on unpair only.
func (p *Provider) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cached = ""
	p.store.Remove(keychain.KeyDeviceID)
}
