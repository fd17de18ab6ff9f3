// Package credentials stores the API tokens of the signed-in user, in the OS
// keyring when available and in a token file otherwise. ORGSYNC_TOKEN
// overrides both.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// EnvToken overrides stored credentials with a fixed access token
const EnvToken = "ORGSYNC_TOKEN"

const keyringService = "orgsync"

// Source indicates where credentials were retrieved from
type Source string

const (
	SourceKeyring     Source = "keyring"
	SourceFile        Source = "file"
	SourceEnvironment Source = "environment"
	SourceNone        Source = "none"
)

// Tokens is the pair issued by the token endpoint
type Tokens struct {
	Username string `json:"username,omitempty"`
	Access   string `json:"access"`
	Refresh  string `json:"refresh,omitempty"`
}

// Info describes the credentials found by Load
type Info struct {
	Tokens
	Source Source
	Found  bool
}

// JSON serializes the credential info without the tokens
func (i *Info) JSON() ([]byte, error) {
	output := struct {
		Username string `json:"username"`
		Source   string `json:"source"`
		Found    bool   `json:"found"`
	}{
		Username: i.Username,
		Source:   string(i.Source),
		Found:    i.Found,
	}
	return json.Marshal(output)
}

// Config selects the storage locations
type Config struct {
	UseKeyring bool
	TokenFile  string // required for the file fallback
	// Account scopes stored tokens, normally the API base URL
	Account string
}

// Store reads and writes the tokens of one account
type Store struct {
	keyring    Keyring
	useKeyring bool
	tokenFile  string
	account    string
	getenv     func(string) string

	mu sync.Mutex
}

// StoreOption is a functional option for Store
type StoreOption func(*Store)

// WithKeyring sets a custom keyring implementation
func WithKeyring(k Keyring) StoreOption {
	return func(s *Store) {
		s.keyring = k
	}
}

// WithEnv replaces os.Getenv, for tests
func WithEnv(getenv func(string) string) StoreOption {
	return func(s *Store) {
		s.getenv = getenv
	}
}

// NewStore creates a credential store
func NewStore(cfg Config, opts ...StoreOption) *Store {
	s := &Store{
		keyring:    &systemKeyring{},
		useKeyring: cfg.UseKeyring,
		tokenFile:  cfg.TokenFile,
		account:    normalizeAccount(cfg.Account),
		getenv:     os.Getenv,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func normalizeAccount(account string) string {
	account = strings.TrimRight(strings.TrimSpace(account), "/")
	if account == "" {
		return "default"
	}
	return account
}

// TokenFile returns the path of the token file
func (s *Store) TokenFile() string {
	return s.tokenFile
}

// Save stores tokens, in the keyring first and in the token file when the
// keyring is disabled or not available
func (s *Store) Save(t Tokens) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.useKeyring {
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("failed to encode tokens: %w", err)
		}
		err = s.keyring.Set(keyringService, s.account, string(data))
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrKeyringNotAvailable) {
			return fmt.Errorf("failed to store tokens: %w", err)
		}
	}

	if s.tokenFile == "" {
		return fmt.Errorf("failed to store tokens: keyring not available and no token file configured")
	}
	return s.writeFile(func(all map[string]Tokens) { all[s.account] = t })
}

// Load retrieves tokens from the environment, the keyring, then the token file
func (s *Store) Load() (*Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if token := strings.TrimSpace(s.getenv(EnvToken)); token != "" {
		return &Info{Tokens: Tokens{Access: token}, Source: SourceEnvironment, Found: true}, nil
	}

	if s.useKeyring {
		data, err := s.keyring.Get(keyringService, s.account)
		if err == nil && data != "" {
			var t Tokens
			if err := json.Unmarshal([]byte(data), &t); err != nil {
				return nil, fmt.Errorf("corrupt keyring entry: %w", err)
			}
			return &Info{Tokens: t, Source: SourceKeyring, Found: true}, nil
		}
	}

	all, err := s.readFile()
	if err != nil {
		return nil, err
	}
	if t, ok := all[s.account]; ok && t.Access != "" {
		return &Info{Tokens: t, Source: SourceFile, Found: true}, nil
	}

	return &Info{Source: SourceNone}, nil
}

// Token returns the current access token, or "" when signed out
func (s *Store) Token() (string, error) {
	info, err := s.Load()
	if err != nil {
		return "", err
	}
	return info.Access, nil
}

// Clear removes the stored tokens from every location. It is idempotent.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.useKeyring {
		err := s.keyring.Delete(keyringService, s.account)
		if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrKeyringNotAvailable) {
			return fmt.Errorf("failed to remove tokens from keyring: %w", err)
		}
	}

	if s.tokenFile == "" {
		return nil
	}
	return s.writeFile(func(all map[string]Tokens) { delete(all, s.account) })
}

func (s *Store) readFile() (map[string]Tokens, error) {
	all := make(map[string]Tokens)
	if s.tokenFile == "" {
		return all, nil
	}

	data, err := os.ReadFile(s.tokenFile)
	if os.IsNotExist(err) {
		return all, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return all, nil
	}
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("corrupt token file %s: %w", s.tokenFile, err)
	}
	return all, nil
}

func (s *Store) writeFile(change func(map[string]Tokens)) error {
	all, err := s.readFile()
	if err != nil {
		return err
	}
	change(all)

	if err := os.MkdirAll(filepath.Dir(s.tokenFile), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return err
	}

	// Write then rename so a watcher never sees a partial file
	tmp := s.tokenFile + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return os.Rename(tmp, s.tokenFile)
}
