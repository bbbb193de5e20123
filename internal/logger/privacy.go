package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

var hashSalt string

// InitHashSalt loads the hash salt from the environment.
// In production, set LOG_HASH_SALT; the default is only acceptable for
// local development.
func InitHashSalt() {
	hashSalt = os.Getenv("LOG_HASH_SALT")
	if hashSalt == "" {
		hashSalt = "default-salt-change-in-production"
	}
}

// InitHashSaltForTesting sets a fixed salt so hashes are stable in tests.
func InitHashSaltForTesting(salt string) {
	hashSalt = salt
}

func init() {
	InitHashSalt()
}

// HashOwnerID creates a privacy-preserving hash of a wallet owner ID.
// This allows tracing a user's ledger activity in logs without exposing
// the actual owner ID.
func HashOwnerID(ownerID int64) string {
	data := fmt.Sprintf("%d:%s", ownerID, hashSalt)
	hash := sha256.Sum256([]byte(data))
	// Return first 8 characters for readability
	return hex.EncodeToString(hash[:])[:8]
}

// SanitizeDescription redacts an expense/income description but preserves
// length information for debugging.
func SanitizeDescription(desc string) string {
	if desc == "" {
		return "<empty>"
	}

	words := strings.Fields(desc)
	return fmt.Sprintf("<redacted: %d words, %d chars>", len(words), len(desc))
}
