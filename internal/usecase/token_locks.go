package usecase

import "sync"

// TokenLocks serialises pipeline runs per token. Runs for different tokens
// never wait on each other.
type TokenLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewTokenLocks() *TokenLocks {
	return &TokenLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock blocks until tokenID is free and returns the unlock func.
func (l *TokenLocks) Lock(tokenID string) func() {
	l.mu.Lock()
	m, ok := l.locks[tokenID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[tokenID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
