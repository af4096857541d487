package common

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// SingleUseTokenBytes is the entropy of verification and reset tokens.
const SingleUseTokenBytes = 32

// MakeRandHexString generates a random hexadecimal string of the given size.
// The size parameter specifies the number of random bytes to generate before
// encoding them as a hexadecimal string, so the final string length is twice
// the size.
//
// It returns an error if the random number generator fails.
func MakeRandHexString(size int) (string, error) {

	b := make([]byte, size)
	_, err := rand.Read(b)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}

// HashToken returns the hex-encoded SHA-256 digest of a single-use token.
// Only the digest is ever persisted; the plaintext token goes into the
// emailed link and nowhere else.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
