package extract

import (
	"regexp"

	"github.com/tilde-sec/threatsift/internal/models"
)

// CryptoExtractor finds cryptocurrency addresses in plain text.
// Addresses are deduplicated within a single Extract call.
type CryptoExtractor struct {
	patterns []*regexp.Regexp
}

// NewCryptoExtractor returns an extractor covering BTC, ETH, XMR and
// TRX address shapes.
func NewCryptoExtractor() *CryptoExtractor {
	return &CryptoExtractor{
		patterns: []*regexp.Regexp{btcPattern, ethPattern, xmrPattern, trxPattern},
	}
}

// Extract returns every distinct address found in text, each with its
// surrounding context.
func (e *CryptoExtractor) Extract(text string) []*models.CryptoAddress {
	seen := make(map[string]struct{})
	var out []*models.CryptoAddress

	for _, pattern := range e.patterns {
		for _, loc := range pattern.FindAllStringIndex(text, -1) {
			address := text[loc[0]:loc[1]]
			if !validAddress(address) {
				continue
			}
			if _, dup := seen[address]; dup {
				continue
			}
			seen[address] = struct{}{}
			out = append(out, models.NewCryptoAddress(address, surroundingContext(text, loc[0], loc[1])))
		}
	}
	return out
}

// validAddress applies shape checks the regexes cannot express.
func validAddress(address string) bool {
	if len(address) >= 2 && address[0] == '0' && address[1] == 'x' {
		return len(address) == 42
	}
	return models.ChainFromAddress(address) != models.ChainOther
}
