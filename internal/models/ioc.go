package models

import (
	"time"

	"github.com/google/uuid"
)

// IocType classifies an indicator of compromise.
type IocType string

const (
	IocIP     IocType = "ip"
	IocDomain IocType = "domain"
	IocHash   IocType = "hash"
	IocEmail  IocType = "email"
	IocURL    IocType = "url"
)

// Ioc is one indicator occurrence extracted from a document.
type Ioc struct {
	ID          string    `json:"id"`
	DocumentID  string    `json:"document_id"`
	Value       string    `json:"value"`
	Type        IocType   `json:"type"`
	Context     string    `json:"context"`
	ExtractedAt time.Time `json:"extracted_at"`
}

// NewIoc builds an Ioc with a fresh id.
func NewIoc(value string, iocType IocType, context string) *Ioc {
	return &Ioc{
		ID:          uuid.NewString(),
		Value:       value,
		Type:        iocType,
		Context:     context,
		ExtractedAt: time.Now().UTC(),
	}
}

// WithDocumentID attaches the owning document and returns the Ioc for
// chaining.
func (i *Ioc) WithDocumentID(id string) *Ioc {
	i.DocumentID = id
	return i
}
