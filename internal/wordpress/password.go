package wordpress

import (
	"crypto/rand"
	"encoding/hex"
)

// generatedPassword produces a random initial password for user creation.
// Operators are expected to trigger a reset email; the value is never stored.
func generatedPassword() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
