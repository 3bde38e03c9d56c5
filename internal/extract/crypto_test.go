package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilde-sec/threatsift/internal/models"
)

func TestCryptoExtract(t *testing.T) {
	t.Parallel()

	e := NewCryptoExtractor()

	t.Run("mixed chains", func(t *testing.T) {
		text := "Stolen funds went to bc1qxy2kgdygjrsqtzq2n0yrf2493p83kkfjhx0wlh, " +
			"then 0x742d35Cc6634C0532925a3b844Bc454e4438f44e, and the Tron wallet " +
			"TN3W4H6rK2ce4vX9YnFQHwKENnHjoxb3m9 was flagged."

		got := e.Extract(text)
		require.Len(t, got, 3)

		byChain := map[models.ChainType]string{}
		for _, a := range got {
			byChain[a.Chain] = a.Address
		}
		assert.Equal(t, "bc1qxy2kgdygjrsqtzq2n0yrf2493p83kkfjhx0wlh", byChain[models.ChainBitcoin])
		assert.Equal(t, "0x742d35Cc6634C0532925a3b844Bc454e4438f44e", byChain[models.ChainEthereum])
		assert.Equal(t, "TN3W4H6rK2ce4vX9YnFQHwKENnHjoxb3m9", byChain[models.ChainTron])
	})

	t.Run("dedup within one call", func(t *testing.T) {
		addr := "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"
		text := addr + " appeared twice: " + addr
		got := e.Extract(text)
		require.Len(t, got, 1)
		assert.Equal(t, addr, got[0].Address)
	})

	t.Run("context window", func(t *testing.T) {
		addr := "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"
		text := "The attacker consolidated\nfunds into " + addr + " before bridging."
		got := e.Extract(text)
		require.Len(t, got, 1)
		assert.Contains(t, got[0].Context, "consolidated funds into")
		assert.NotContains(t, got[0].Context, "\n")
	})

	t.Run("truncated hex is not ethereum", func(t *testing.T) {
		got := e.Extract("tx prefix 0xdeadbeef is not an address")
		assert.Empty(t, got)
	})

	t.Run("legacy addresses", func(t *testing.T) {
		got := e.Extract("P2SH 3J98t1WpEZ73CNmQviecrnyiWrnqRhWNLy seen on chain")
		require.Len(t, got, 1)
		assert.Equal(t, models.ChainBitcoin, got[0].Chain)
	})
}

func TestCryptoExtractMonero(t *testing.T) {
	t.Parallel()

	addr := "448cRNyLsCkcXSRnBFmcwaTVUAmQMwbUpGJsoPepverPfN9kRgJePrtLa11evr4wBVXPt1VcEGWFVpjtQaa1Qg2JDRgzcZe"
	require.Len(t, addr, 95)

	got := NewCryptoExtractor().Extract("XMR payout wallet: " + addr)
	require.Len(t, got, 1)
	assert.Equal(t, models.ChainMonero, got[0].Chain)
}

func TestContextWindowUTF8Boundary(t *testing.T) {
	t.Parallel()

	// Multibyte runes right at the window edge must not be split.
	pad := strings.Repeat("é", 120)
	addr := "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"
	text := pad + " " + addr + " " + pad

	got := NewCryptoExtractor().Extract(text)
	require.Len(t, got, 1)
	assert.True(t, strings.Contains(got[0].Context, addr))
	for _, r := range got[0].Context {
		assert.NotEqual(t, '�', r, "context contains a broken rune")
	}
}
