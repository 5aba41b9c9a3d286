// Package visitors provides privacy-first visitor identity helpers:
// opaque session tokens and one-way IP hashing.
package visitors

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// SessionKeyLength is the length of generated session tokens.
const SessionKeyLength = 32

// NewSessionKey creates a cryptographically secure opaque session token.
func NewSessionKey() string {
	return generateRandomToken(SessionKeyLength)
}

// HashIP creates a one-way salted hash of a client IP address. The raw
// address is never stored, only hashed.
func HashIP(ipAddress, salt string) string {
	data := fmt.Sprintf("%s.%s", salt, ipAddress)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// generateRandomToken creates a cryptographically secure random token
func generateRandomToken(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[randInt(len(charset))]
	}
	return string(b)
}

// randInt returns a cryptographically secure random int in [0, max)
func randInt(max int) int {
	var buf [1]byte
	_, _ = rand.Read(buf[:])
	return int(buf[0]) % max
}
