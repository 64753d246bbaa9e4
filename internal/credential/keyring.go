package credential

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

const serviceName = "mailcheck"

// ErrNotFound is returned when no secret is stored under a key.
var ErrNotFound = errors.New("credential not found")

// backendNames maps configuration names to keyring backends.
var backendNames = map[string]keyring.BackendType{
	"keychain":       keyring.KeychainBackend,
	"secret-service": keyring.SecretServiceBackend,
	"wincred":        keyring.WinCredBackend,
	"pass":           keyring.PassBackend,
	"kwallet":        keyring.KWalletBackend,
	"file":           keyring.FileBackend,
}

// Options configures the keyring opened by Open.
type Options struct {
	// Backends lists allowed backends in preference order, by name
	// ("keychain", "secret-service", "wincred", "pass", "kwallet", "file").
	Backends []string

	// FileDir is where the file backend stores its encrypted items.
	FileDir string

	// FilePassword encrypts the file backend. Empty means ask on the
	// terminal.
	FilePassword string
}

// Vault stores account secrets outside the catalog database.
type Vault struct {
	ring keyring.Keyring
}

// Open returns a vault backed by the system keyring.
func Open(opts Options) (*Vault, error) {
	var allowed []keyring.BackendType
	for _, name := range opts.Backends {
		b, ok := backendNames[name]
		if !ok {
			return nil, fmt.Errorf("unknown keyring backend %q", name)
		}
		allowed = append(allowed, b)
	}

	ring, err := keyring.Open(keyring.Config{
		ServiceName:              serviceName,
		AllowedBackends:          allowed,
		FileDir:                  opts.FileDir,
		FilePasswordFunc:         filePasswordFunc(opts.FilePassword),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return &Vault{ring: ring}, nil
}

func filePasswordFunc(password string) keyring.PromptFunc {
	if password != "" {
		return keyring.FixedStringPrompt(password)
	}
	return keyring.TerminalPrompt
}

// NewVault wraps an already opened keyring.
func NewVault(ring keyring.Keyring) *Vault {
	return &Vault{ring: ring}
}

// AccountKey returns the vault key holding an account's secret.
func AccountKey(accountID string) string {
	return "account-" + accountID
}

// Get retrieves a credential value by key.
func (v *Vault) Get(key string) (string, error) {
	item, err := v.ring.Get(key)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", fmt.Errorf("getting credential %q: %w", key, ErrNotFound)
		}
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}

	return string(item.Data), nil
}

// Set stores a credential value by key.
func (v *Vault) Set(key string, value string) error {
	err := v.ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: serviceName + " " + key,
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}

	return nil
}

// Delete removes a credential by key. Deleting a missing key is not an
// error.
func (v *Vault) Delete(key string) error {
	err := v.ring.Remove(key)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}

	return nil
}
