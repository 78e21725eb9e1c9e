package adjoint

import "sync"

// MutexGuard serializes mutation brackets with a mutex. Installing it on a
// shared vector makes BeginUse/EndUse sections mutually exclusive across
// goroutines; individual unchecked accesses inside a bracket stay lock-free.
type MutexGuard struct {
	mu sync.Mutex
}

// BeginUse implements Guard.
func (g *MutexGuard) BeginUse() {
	g.mu.Lock()
}

// EndUse implements Guard.
func (g *MutexGuard) EndUse() {
	g.mu.Unlock()
}

var _ Guard = (*MutexGuard)(nil)
