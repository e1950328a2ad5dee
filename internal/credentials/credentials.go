// Package credentials implements the single-account salted-SHA512
// credential scheme stored as line 1 of the configuration data file: a
// first successful login with no stored account bootstraps one, and
// every later call verifies against it.
package credentials

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	saltSize = 16
	hashSize = sha512.Size // 64
)

// Line is the parsed form of credential line 1: "<user> <salt hex> <hash hex>".
type Line struct {
	User string
	Salt []byte
	Hash []byte
}

// String renders Line back to its on-disk form.
func (l Line) String() string {
	return fmt.Sprintf("%s %s %s", l.User, hex.EncodeToString(l.Salt), hex.EncodeToString(l.Hash))
}

// ParseLine parses a stored credential line of the form
// "<user> <32-hex-char salt> <128-hex-char hash>".
func ParseLine(raw string) (Line, error) {
	fields := strings.Fields(raw)
	if len(fields) != 3 {
		return Line{}, fmt.Errorf("credentials: malformed line: want 3 fields, got %d", len(fields))
	}
	salt, err := hex.DecodeString(fields[1])
	if err != nil || len(salt) != saltSize {
		return Line{}, fmt.Errorf("credentials: malformed salt")
	}
	hash, err := hex.DecodeString(fields[2])
	if err != nil || len(hash) != hashSize {
		return Line{}, fmt.Errorf("credentials: malformed hash")
	}
	return Line{User: fields[0], Salt: salt, Hash: hash}, nil
}

// deriveHash computes SHA-512(salt || password).
func deriveHash(salt []byte, password string) []byte {
	h := sha512.New()
	h.Write(salt)
	h.Write([]byte(password))
	return h.Sum(nil)
}

// NewLine generates a fresh salt and derives hash for (user, password).
func NewLine(user, password string) (Line, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return Line{}, fmt.Errorf("credentials: generating salt: %w", err)
	}
	return Line{User: user, Salt: salt, Hash: deriveHash(salt, password)}, nil
}

// Store is the collaborator CredentialStore needs from ConfigStore: read
// and write line 1 of data.txt.
type Store interface {
	ReadCredentialLine() (string, error)
	WriteCredentialLine(line string) error
}

// ValidateLogin reads the stored credential line via store. An empty or
// absent line bootstraps a fresh account for (user, pass) and reports
// success — mirroring the collaborator's own first-login behavior, not a
// bug. Otherwise it recomputes the hash for the supplied password against
// the stored salt and compares in constant time.
func ValidateLogin(store Store, user, pass string) (bool, error) {
	raw, err := store.ReadCredentialLine()
	if err != nil {
		return false, fmt.Errorf("credentials: reading credential line: %w", err)
	}
	if strings.TrimSpace(raw) == "" {
		return bootstrap(store, user, pass)
	}

	line, err := ParseLine(raw)
	if err != nil {
		return false, err
	}
	if line.User != user {
		return false, nil
	}
	candidate := deriveHash(line.Salt, pass)
	return subtle.ConstantTimeCompare(candidate, line.Hash) == 1, nil
}

func bootstrap(store Store, user, pass string) (bool, error) {
	line, err := NewLine(user, pass)
	if err != nil {
		return false, err
	}
	if err := store.WriteCredentialLine(line.String()); err != nil {
		return false, fmt.Errorf("credentials: persisting bootstrap account: %w", err)
	}
	return true, nil
}

// SetCredentials forces a fresh salt+hash for (user, pass), overwriting
// whatever account is currently stored. Used for an admin-initiated
// password reset.
func SetCredentials(store Store, user, pass string) error {
	line, err := NewLine(user, pass)
	if err != nil {
		return err
	}
	if err := store.WriteCredentialLine(line.String()); err != nil {
		return fmt.Errorf("credentials: persisting credentials: %w", err)
	}
	return nil
}
