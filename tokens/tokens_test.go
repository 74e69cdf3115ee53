package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_FindTokenCaseInsensitive(t *testing.T) {
	r := Default()

	tok, ok := r.FindToken("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", 1)
	assert.True(t, ok)
	assert.Equal(t, "USDC", tok.Symbol)
	assert.Equal(t, 6, tok.Decimals)
	assert.Equal(t, PegUSD, tok.Peg)

	_, ok = r.FindToken("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", 8453)
	assert.False(t, ok, "same address on another chain is a different token")
}

func TestRegistry_Oracles(t *testing.T) {
	r := NewRegistry()

	_, known := r.IsWhitelistedOracle("0x01", 1)
	assert.False(t, known)

	r.AddOracle("0xABC", 1)
	ok, known := r.IsWhitelistedOracle("0xabc", 1)
	assert.True(t, known)
	assert.True(t, ok)

	ok, known = r.IsWhitelistedOracle("0xdef", 1)
	assert.True(t, known)
	assert.False(t, ok)
}
