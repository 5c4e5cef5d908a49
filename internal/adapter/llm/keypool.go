package llm

import "sync"

// KeyPool is a round-robin pool of API keys. The client rotates to the
// next key when the backend rejects the active one (401/429), and the
// switch count feeds the per-decision key_switches metric.
type KeyPool struct {
	mu       sync.Mutex
	keys     []string
	active   int
	switches int64
}

// NewKeyPool creates a pool over the given keys. An empty pool is valid
// and yields empty keys (backend without auth).
func NewKeyPool(keys []string) *KeyPool {
	return &KeyPool{keys: keys}
}

// Active returns the current key and its index.
func (p *KeyPool) Active() (string, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.keys) == 0 {
		return "", 0
	}
	return p.keys[p.active], p.active
}

// Rotate advances to the next key if the pool is still on the index the
// caller observed. Concurrent callers that saw the same failing key
// trigger a single rotation. Reports whether a switch happened.
func (p *KeyPool) Rotate(observed int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.keys) < 2 || p.active != observed {
		return false
	}
	p.active = (p.active + 1) % len(p.keys)
	p.switches++
	return true
}

// Switches returns the total number of key rotations.
func (p *KeyPool) Switches() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.switches
}

// Size returns the number of keys in the pool.
func (p *KeyPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys)
}
