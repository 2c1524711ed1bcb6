// Package secret keeps the Perforce password at rest in a file encrypted with
// an age passphrase (scrypt) recipient.
package secret

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"
)

// ErrNotConfigured is returned when loading from a store that was never saved.
var ErrNotConfigured = errors.New("password file does not exist")

// Store is an age-encrypted password file.
type Store struct {
	path string

	// WorkFactor is the scrypt log2 work factor; 0 keeps age's default.
	WorkFactor int
}

// NewStore returns a Store for the file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string { return s.path }

// IsConfigured reports whether the password file exists.
func (s *Store) IsConfigured() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Save encrypts password with passphrase and replaces the file.
func (s *Store) Save(password, passphrase string) error {
	if passphrase == "" {
		return errors.New("empty passphrase")
	}

	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt recipient: %w", err)
	}
	if s.WorkFactor > 0 {
		recipient.SetWorkFactor(s.WorkFactor)
	}

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipient)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := io.WriteString(w, password+"\n"); err != nil {
		return fmt.Errorf("writing encrypted password: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing encrypted password: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("creating password directory: %w", err)
	}
	if err := os.WriteFile(s.path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("writing password file: %w", err)
	}
	return nil
}

// Load decrypts the stored password.
func (s *Store) Load(passphrase string) (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotConfigured
		}
		return "", fmt.Errorf("reading password file: %w", err)
	}

	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return "", fmt.Errorf("creating scrypt identity: %w", err)
	}

	r, err := age.Decrypt(bytes.NewReader(data), identity)
	if err != nil {
		return "", fmt.Errorf("decrypting password file: %w", err)
	}
	plain, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading decrypted password: %w", err)
	}
	return strings.TrimSuffix(string(plain), "\n"), nil
}
