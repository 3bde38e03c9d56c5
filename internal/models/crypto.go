package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ChainType classifies a cryptocurrency address by blockchain.
type ChainType string

const (
	ChainBitcoin  ChainType = "bitcoin"
	ChainEthereum ChainType = "ethereum"
	ChainMonero   ChainType = "monero"
	ChainTron     ChainType = "tron"
	ChainOther    ChainType = "other"
)

// ChainFromAddress infers the chain from address shape alone.
func ChainFromAddress(address string) ChainType {
	switch {
	case strings.HasPrefix(address, "0x") && len(address) == 42:
		return ChainEthereum
	case strings.HasPrefix(address, "bc1"),
		strings.HasPrefix(address, "1"),
		strings.HasPrefix(address, "3"):
		return ChainBitcoin
	case strings.HasPrefix(address, "T") && len(address) == 34:
		return ChainTron
	case strings.HasPrefix(address, "4") && (len(address) == 95 || len(address) == 106):
		return ChainMonero
	default:
		return ChainOther
	}
}

// CryptoAddress is one address occurrence extracted from a document.
type CryptoAddress struct {
	ID          string    `json:"id"`
	DocumentID  string    `json:"document_id"`
	Address     string    `json:"address"`
	Chain       ChainType `json:"chain"`
	Context     string    `json:"context"`
	ExtractedAt time.Time `json:"extracted_at"`
}

// NewCryptoAddress builds a CryptoAddress with a fresh id and the
// chain inferred from the address.
func NewCryptoAddress(address, context string) *CryptoAddress {
	return &CryptoAddress{
		ID:          uuid.NewString(),
		Address:     address,
		Chain:       ChainFromAddress(address),
		Context:     context,
		ExtractedAt: time.Now().UTC(),
	}
}

// WithDocumentID attaches the owning document and returns the address
// for chaining.
func (a *CryptoAddress) WithDocumentID(id string) *CryptoAddress {
	a.DocumentID = id
	return a
}
