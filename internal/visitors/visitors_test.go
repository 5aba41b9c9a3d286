package visitors_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"visitornotify/internal/visitors"
)

func TestNewSessionKey(t *testing.T) {
	key := visitors.NewSessionKey()
	assert.Len(t, key, visitors.SessionKeyLength)

	other := visitors.NewSessionKey()
	assert.NotEqual(t, key, other)
}

func TestHashIP(t *testing.T) {
	hash := visitors.HashIP("203.0.113.7", "salt")

	assert.Len(t, hash, 64)
	assert.NotContains(t, hash, "203.0.113.7")

	// Deterministic for the same input, different for a different salt.
	assert.Equal(t, hash, visitors.HashIP("203.0.113.7", "salt"))
	assert.NotEqual(t, hash, visitors.HashIP("203.0.113.7", "other-salt"))
}
