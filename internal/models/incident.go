package models

import (
	"time"

	"github.com/google/uuid"
)

// DatePrecision records how precisely an incident date is known.
type DatePrecision string

const (
	PrecisionExact DatePrecision = "exact"
	PrecisionMonth DatePrecision = "month"
)

// Incident is a security event reconstructed from a document section.
type Incident struct {
	ID            string        `json:"id"`
	DocumentID    string        `json:"document_id"`
	Title         string        `json:"title"`
	Date          time.Time     `json:"date"`
	DatePrecision DatePrecision `json:"date_precision"`
	Victim        string        `json:"victim"`
	AmountUSD     float64       `json:"amount_usd,omitempty"`
	AttackVector  string        `json:"attack_vector,omitempty"`
	Description   string        `json:"description,omitempty"`
	ExtractedAt   time.Time     `json:"extracted_at"`
}

// WithDocumentID attaches the owning document and returns the incident
// for chaining.
func (i *Incident) WithDocumentID(id string) *Incident {
	i.DocumentID = id
	return i
}

// IncidentBuilder accumulates fields as a section is walked. Build only
// succeeds once title, date and victim are all known.
type IncidentBuilder struct {
	title         string
	date          time.Time
	datePrecision DatePrecision
	victim        string
	amountUSD     float64
	attackVector  string
	description   string
}

func NewIncidentBuilder() *IncidentBuilder {
	return &IncidentBuilder{}
}

func (b *IncidentBuilder) Title(title string) *IncidentBuilder {
	b.title = title
	return b
}

func (b *IncidentBuilder) Date(date time.Time, precision DatePrecision) *IncidentBuilder {
	b.date = date
	b.datePrecision = precision
	return b
}

func (b *IncidentBuilder) Victim(victim string) *IncidentBuilder {
	b.victim = victim
	return b
}

func (b *IncidentBuilder) AmountUSD(amount float64) *IncidentBuilder {
	b.amountUSD = amount
	return b
}

func (b *IncidentBuilder) AttackVector(vector string) *IncidentBuilder {
	b.attackVector = vector
	return b
}

func (b *IncidentBuilder) Description(description string) *IncidentBuilder {
	b.description = description
	return b
}

// HasDate reports whether a date has been recorded.
func (b *IncidentBuilder) HasDate() bool { return !b.date.IsZero() }

// HasVictim reports whether a victim has been recorded.
func (b *IncidentBuilder) HasVictim() bool { return b.victim != "" }

// Build returns the incident, or false when the required fields
// (title, date, victim) are incomplete.
func (b *IncidentBuilder) Build() (*Incident, bool) {
	if b.title == "" || b.date.IsZero() || b.victim == "" {
		return nil, false
	}
	return &Incident{
		ID:            uuid.NewString(),
		Title:         b.title,
		Date:          b.date,
		DatePrecision: b.datePrecision,
		Victim:        b.victim,
		AmountUSD:     b.amountUSD,
		AttackVector:  b.attackVector,
		Description:   b.description,
		ExtractedAt:   time.Now().UTC(),
	}, true
}
