package whitelist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestChecker_IsWhitelisted(t *testing.T) {
	c := NewChecker([]string{" Example.com ", "partner.io", ""}, zap.NewNop())

	assert.True(t, c.IsWhitelisted("alice@example.com"))
	assert.True(t, c.IsWhitelisted("Alice <ALICE@EXAMPLE.COM>"))
	assert.True(t, c.IsWhitelisted("bob@partner.io"))
	assert.False(t, c.IsWhitelisted("mallory@evil.example"))
	assert.False(t, c.IsWhitelisted("no-domain"))
	assert.False(t, c.IsWhitelisted(""))
}

func TestChecker_Empty(t *testing.T) {
	var nilChecker *Checker
	assert.False(t, nilChecker.IsWhitelisted("a@example.com"))
	assert.False(t, NewChecker(nil, nil).IsWhitelisted("a@example.com"))
}

func TestDomain(t *testing.T) {
	assert.Equal(t, "example.com", Domain("\"Doe, Jane\" <jane@Example.com>"))
	assert.Equal(t, "", Domain("jane@"))
}
