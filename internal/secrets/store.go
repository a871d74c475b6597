package secrets

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// Store resolves credential material by reference name. Values are
// resolved at call time and must not be cached by callers beyond the
// single upstream call they serve.
type Store interface {
	Resolve(name string) (string, error)
}

// NotFoundError indicates a secret reference that resolves to nothing.
// Callers treat it as a configuration error, not a retryable fault.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("secret %q not found", e.Name)
}

// EnvStore resolves secret references from environment variables. The
// reference "openai-prod" maps to PROOFBENCH_SECRET_OPENAI_PROD.
type EnvStore struct {
	Prefix string
}

// Resolve implements Store.
func (s *EnvStore) Resolve(name string) (string, error) {
	if name == "" {
		return "", &NotFoundError{Name: name}
	}
	prefix := s.Prefix
	if prefix == "" {
		prefix = "PROOFBENCH_SECRET_"
	}
	key := prefix + normalize(name)
	if value := os.Getenv(key); value != "" {
		return value, nil
	}
	return "", &NotFoundError{Name: name}
}

func normalize(name string) string {
	upper := strings.ToUpper(name)
	return strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, upper)
}

// MemoryStore holds secrets registered at runtime. Used in tests and for
// operator-supplied credentials that never touch the environment.
type MemoryStore struct {
	mu      sync.RWMutex
	secrets map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{secrets: make(map[string]string)}
}

// Set registers a secret under the given reference name.
func (s *MemoryStore) Set(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[name] = value
}

// Resolve implements Store.
func (s *MemoryStore) Resolve(name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.secrets[name]
	if !ok || value == "" {
		return "", &NotFoundError{Name: name}
	}
	return value, nil
}

// Chain tries each store in order and returns the first hit.
type Chain []Store

// Resolve implements Store.
func (c Chain) Resolve(name string) (string, error) {
	for _, store := range c {
		if value, err := store.Resolve(name); err == nil {
			return value, nil
		}
	}
	return "", &NotFoundError{Name: name}
}

var (
	defaultMu    sync.RWMutex
	defaultStore Store = Chain{NewMemoryStore(), &EnvStore{}}
)

// Default returns the process-wide secret store.
func Default() Store {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultStore
}

// SetDefault replaces the process-wide secret store.
func SetDefault(store Store) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultStore = store
}
