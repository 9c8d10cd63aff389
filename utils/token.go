package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// InvitationTokenLength is the size of generated invitation tokens. At 62
// symbols per position the keyspace is far beyond brute-force reach and
// collisions are negligible.
const InvitationTokenLength = 40

// GenerateInvitationToken returns an opaque single-use token drawn uniformly
// from an alphanumeric alphabet using crypto/rand.
func GenerateInvitationToken() (string, error) {
	buf := make([]byte, InvitationTokenLength)
	max := big.NewInt(int64(len(tokenAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate invitation token: %w", err)
		}
		buf[i] = tokenAlphabet[n.Int64()]
	}
	return string(buf), nil
}
