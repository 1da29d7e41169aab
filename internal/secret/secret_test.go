package secret

import (
	"errors"
	"testing"

	"github.com/99designs/keyring"
)

func TestStore_RoundTrip(t *testing.T) {
	s := NewStore(keyring.NewArrayKeyring(nil))

	got, err := s.APIKey()
	if err != nil {
		t.Fatalf("APIKey() failed: %v", err)
	}
	if got != "" {
		t.Fatalf("APIKey() = %q before set, want empty", got)
	}

	if err := s.SetAPIKey("  s3cret \n"); err != nil {
		t.Fatalf("SetAPIKey() failed: %v", err)
	}
	if got, _ := s.APIKey(); got != "s3cret" {
		t.Errorf("APIKey() = %q, want s3cret", got)
	}

	if err := s.ClearAPIKey(); err != nil {
		t.Fatalf("ClearAPIKey() failed: %v", err)
	}
	if got, _ := s.APIKey(); got != "" {
		t.Errorf("APIKey() = %q after clear", got)
	}
	if err := s.ClearAPIKey(); err != nil {
		t.Errorf("second ClearAPIKey() failed: %v", err)
	}
}

func TestStore_EmptyKey(t *testing.T) {
	s := NewStore(keyring.NewArrayKeyring(nil))
	if err := s.SetAPIKey("   "); !errors.Is(err, ErrEmptyKey) {
		t.Errorf("SetAPIKey() error = %v, want ErrEmptyKey", err)
	}
}

func TestResolveAPIKey(t *testing.T) {
	ring := keyring.NewArrayKeyring(nil)
	stored := NewStore(ring)
	if err := stored.SetAPIKey("from-keyring"); err != nil {
		t.Fatalf("SetAPIKey() failed: %v", err)
	}
	open := func() (*Store, error) { return stored, nil }
	broken := func() (*Store, error) { return nil, errors.New("no keyring backend") }

	tests := []struct {
		name     string
		settings string
		open     func() (*Store, error)
		want     string
	}{
		{"settings win", "from-settings", open, "from-settings"},
		{"keyring fallback", "", open, "from-keyring"},
		{"keyring unavailable", "", broken, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveAPIKey(tt.settings, tt.open); got != tt.want {
				t.Errorf("ResolveAPIKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOpen_Error(t *testing.T) {
	orig := openKeyring
	t.Cleanup(func() { openKeyring = orig })
	openKeyring = func() (keyring.Keyring, error) { return nil, keyring.ErrNoAvailImpl }

	if _, err := Open(); !errors.Is(err, keyring.ErrNoAvailImpl) {
		t.Errorf("Open() error = %v, want ErrNoAvailImpl", err)
	}
}
