// Package secret keeps the AnkiConnect API key in the OS keyring.
package secret

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/99designs/keyring"
)

// ServiceName is the keyring service entries are stored under.
const ServiceName = "anki-vibe"

const apiKeyItem = "anki_connect.api_key"

// ErrEmptyKey rejects storing a blank key.
var ErrEmptyKey = errors.New("api key is empty")

// Store reads and writes the API key.
type Store struct {
	ring keyring.Keyring
}

var openKeyring = func() (keyring.Keyring, error) {
	cfg := keyring.Config{
		ServiceName:              ServiceName,
		KeychainTrustApplication: true,
		FilePasswordFunc:         keyring.FixedStringPrompt(os.Getenv("ANKIVIBE_KEYRING_PASSWORD")),
	}
	if dir, err := os.UserConfigDir(); err == nil {
		cfg.FileDir = filepath.Join(dir, ServiceName, "keyring")
	}
	return keyring.Open(cfg)
}

// Open opens the default OS keyring.
func Open() (*Store, error) {
	ring, err := openKeyring()
	if err != nil {
		return nil, fmt.Errorf("failed to open keyring: %w", err)
	}
	return &Store{ring: ring}, nil
}

// NewStore wraps an already opened keyring.
func NewStore(ring keyring.Keyring) *Store {
	return &Store{ring: ring}
}

// APIKey returns the stored key, or "" when none is stored.
func (s *Store) APIKey() (string, error) {
	item, err := s.ring.Get(apiKeyItem)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read api key: %w", err)
	}
	return string(item.Data), nil
}

// SetAPIKey stores key, replacing any previous one.
func (s *Store) SetAPIKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrEmptyKey
	}
	err := s.ring.Set(keyring.Item{
		Key:         apiKeyItem,
		Data:        []byte(key),
		Label:       ServiceName,
		Description: "AnkiConnect API key",
	})
	if err != nil {
		return fmt.Errorf("failed to store api key: %w", err)
	}
	return nil
}

// ClearAPIKey removes the stored key. Clearing a missing key is not an
// error.
func (s *Store) ClearAPIKey() error {
	err := s.ring.Remove(apiKeyItem)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("failed to remove api key: %w", err)
	}
	return nil
}

// ResolveAPIKey prefers a key from settings and falls back to the
// keyring. Keyring failures are treated as "no key".
func ResolveAPIKey(fromSettings string, open func() (*Store, error)) string {
	if fromSettings != "" {
		return fromSettings
	}
	s, err := open()
	if err != nil {
		return ""
	}
	key, err := s.APIKey()
	if err != nil {
		return ""
	}
	return key
}
