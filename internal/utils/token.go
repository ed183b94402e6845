package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// RandomToken returns a hex string of n random bytes (2n characters) from
// crypto/rand.  It backs lock holder tokens and the random component of
// order references, both of which must be collision-resistant across
// processes.
func RandomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
