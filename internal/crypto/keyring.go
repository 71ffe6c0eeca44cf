package crypto

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "omniwp"
	keyringUser    = "session-sealing-key"
)

// KeyringSealer returns a sealer whose key is kept in the OS keyring,
// generating and storing a new key on first use.
func KeyringSealer() (*Sealer, error) {
	raw, err := keyring.Get(keyringService, keyringUser)
	if errors.Is(err, keyring.ErrNotFound) {
		raw, err = GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("generate sealing key: %w", err)
		}
		if err := keyring.Set(keyringService, keyringUser, raw); err != nil {
			return nil, fmt.Errorf("store sealing key: %w", err)
		}
		slog.Info("created session sealing key in OS keyring")
	} else if err != nil {
		return nil, fmt.Errorf("read sealing key: %w", err)
	}

	key, err := ParseKey(raw)
	if err != nil {
		return nil, err
	}
	return NewSealer(key)
}

// ForgetKeyringKey removes the sealing key. Sealed values become unreadable.
func ForgetKeyringKey() error {
	err := keyring.Delete(keyringService, keyringUser)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}
