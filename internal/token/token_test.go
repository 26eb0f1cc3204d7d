package token

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerate(t *testing.T) {
	t.Run("produces 64 character hex string", func(t *testing.T) {
		tok := Generate()

		assert.Len(t, tok, 64)
		pattern := regexp.MustCompile(`^[0-9a-f]{64}$`)
		assert.True(t, pattern.MatchString(tok), "token should be lowercase hex, got: %s", tok)
	})

	t.Run("generates unique tokens", func(t *testing.T) {
		seen := make(map[string]bool)
		for i := 0; i < 1000; i++ {
			tok := Generate()
			assert.False(t, seen[tok], "duplicate token generated: %s", tok)
			seen[tok] = true
		}
	})
}

func TestFillChaCha8(t *testing.T) {
	t.Run("fills full 8-byte-aligned buffer", func(t *testing.T) {
		buf := make([]byte, tokenBytes)
		ok := fillChaCha8(buf)

		assert.True(t, ok)

		allZero := true
		for _, b := range buf {
			if b != 0 {
				allZero = false
				break
			}
		}
		assert.False(t, allZero, "buffer should not remain zeroed")
	})
}
