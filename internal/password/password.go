package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// ErrHashing wraps any key-derivation failure. The raw password never
// appears in errors or logs.
var ErrHashing = errors.New("password hashing failed")

// scrypt parameters, 64-byte derived key. Changing them invalidates stored
// hashes, so they are fixed.
const (
	scryptN     = 16384
	scryptR     = 8
	scryptP     = 1
	keyLen      = 64
	saltLen     = 16
	partCount   = 2
	partDivider = "."
)

// Hash derives a salted scrypt key from password and returns it in the
// self-describing form hex(key) + "." + hex(salt).
func Hash(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("%w: %v", ErrHashing, err)
	}
	key, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, keyLen)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrHashing, err)
	}
	return hex.EncodeToString(key) + partDivider + hex.EncodeToString(salt), nil
}

// Compare re-derives the key for received with the stored salt and compares
// in constant time. A malformed stored value compares false, never panics.
func Compare(received, stored string) bool {
	parts := strings.Split(stored, partDivider)
	if len(parts) != partCount {
		return false
	}
	storedKey, err := hex.DecodeString(parts[0])
	if err != nil {
		return false
	}
	salt, err := hex.DecodeString(parts[1])
	if err != nil {
		return false
	}
	key, err := scrypt.Key([]byte(received), salt, scryptN, scryptR, scryptP, keyLen)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(key, storedKey) == 1
}
