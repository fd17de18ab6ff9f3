package credentials

import (
	"errors"
	"fmt"
	"sync"

	"github.com/zalando/go-keyring"
)

var (
	// ErrKeyringNotAvailable is returned when no Secret Service, Keychain or
	// Credential Manager can be reached
	ErrKeyringNotAvailable = errors.New("system keyring not available")
	// ErrNotFound is returned when no secret is stored for the account
	ErrNotFound = errors.New("secret not found in keyring")
)

// Keyring is the interface for keyring operations
type Keyring interface {
	Set(service, account, secret string) error
	Get(service, account string) (string, error)
	Delete(service, account string) error
}

// MockKeyring is a test implementation of the Keyring interface
type MockKeyring struct {
	mu          sync.RWMutex
	store       map[string]map[string]string // service -> account -> secret
	Unavailable bool
}

// NewMockKeyring creates a new mock keyring for testing
func NewMockKeyring() *MockKeyring {
	return &MockKeyring{
		store: make(map[string]map[string]string),
	}
}

// Set stores a secret in the mock keyring
func (m *MockKeyring) Set(service, account, secret string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Unavailable {
		return ErrKeyringNotAvailable
	}
	if m.store[service] == nil {
		m.store[service] = make(map[string]string)
	}
	m.store[service][account] = secret
	return nil
}

// Get retrieves a secret from the mock keyring
func (m *MockKeyring) Get(service, account string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Unavailable {
		return "", ErrKeyringNotAvailable
	}
	if accounts, ok := m.store[service]; ok {
		if secret, ok := accounts[account]; ok {
			return secret, nil
		}
	}
	return "", fmt.Errorf("%s/%s: %w", service, account, ErrNotFound)
}

// Delete removes a secret from the mock keyring
func (m *MockKeyring) Delete(service, account string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Unavailable {
		return ErrKeyringNotAvailable
	}
	if accounts, ok := m.store[service]; ok {
		if _, ok := accounts[account]; ok {
			delete(accounts, account)
			return nil
		}
	}
	return fmt.Errorf("%s/%s: %w", service, account, ErrNotFound)
}

// systemKeyring uses the OS keyring through go-keyring
type systemKeyring struct{}

func (s *systemKeyring) Set(service, account, secret string) error {
	return wrapKeyringError(keyring.Set(service, account, secret))
}

func (s *systemKeyring) Get(service, account string) (string, error) {
	secret, err := keyring.Get(service, account)
	return secret, wrapKeyringError(err)
}

func (s *systemKeyring) Delete(service, account string) error {
	return wrapKeyringError(keyring.Delete(service, account))
}

// wrapKeyringError maps go-keyring errors onto this package's sentinels.
// Anything but "not found" means the backend could not be used.
func wrapKeyringError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, keyring.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, keyring.ErrSetDataTooBig):
		return fmt.Errorf("secret too large for keyring: %w", err)
	default:
		return fmt.Errorf("%w: %v", ErrKeyringNotAvailable, err)
	}
}
