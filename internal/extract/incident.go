package extract

import (
	"strconv"
	"strings"
	"time"

	"github.com/tilde-sec/threatsift/internal/models"
)

// descriptionLimit caps how much section body becomes the incident
// description.
const descriptionLimit = 500

// IncidentExtractor reconstructs incident records from report
// sections. Each H2 or H3 heading starts a candidate incident; a
// candidate is emitted only when its section yields a date and a
// victim.
type IncidentExtractor struct{}

func NewIncidentExtractor() *IncidentExtractor {
	return &IncidentExtractor{}
}

// Extract walks the raw markdown section by section.
func (e *IncidentExtractor) Extract(markdown string) []*models.Incident {
	var incidents []*models.Incident

	for _, section := range splitSections(markdown) {
		builder := models.NewIncidentBuilder().Title(section.title)

		if date, precision, ok := findDate(section.body); ok {
			builder.Date(date, precision)
		}
		if m := victimPattern.FindStringSubmatch(section.body); m != nil {
			builder.Victim(strings.TrimSpace(m[1]))
		}
		if amount, ok := findAmountUSD(section.body); ok {
			builder.AmountUSD(amount)
		}
		if vector, ok := findAttackVector(section.body); ok {
			builder.AttackVector(vector)
		}
		builder.Description(sectionDescription(section.body))

		if incident, ok := builder.Build(); ok {
			incidents = append(incidents, incident)
		}
	}
	return incidents
}

type section struct {
	title string
	body  string
}

// splitSections slices markdown at H2/H3 headings. Text before the
// first qualifying heading is ignored; fenced code is never treated as
// a heading.
func splitSections(markdown string) []section {
	var sections []section
	var current *section
	var body []string
	inCode := false

	flush := func() {
		if current != nil {
			current.body = strings.Join(body, "\n")
			sections = append(sections, *current)
		}
		body = nil
	}

	for _, line := range strings.Split(markdown, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inCode = !inCode
		}
		if !inCode && (strings.HasPrefix(trimmed, "## ") || strings.HasPrefix(trimmed, "### ")) {
			flush()
			title := strings.TrimSpace(strings.TrimLeft(trimmed, "# "))
			current = &section{title: title}
			continue
		}
		if current != nil {
			body = append(body, line)
		}
	}
	flush()
	return sections
}

// findDate prefers an exact ISO date, falling back to "MonthName YYYY"
// with month precision.
func findDate(body string) (time.Time, models.DatePrecision, bool) {
	if m := isoDatePattern.FindStringSubmatch(body); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		if month >= 1 && month <= 12 && day >= 1 && day <= 31 {
			return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), models.PrecisionExact, true
		}
	}
	if m := monthDatePattern.FindStringSubmatch(body); m != nil {
		month := monthByName(m[1])
		year, _ := strconv.Atoi(m[2])
		return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC), models.PrecisionMonth, true
	}
	return time.Time{}, "", false
}

func monthByName(name string) time.Month {
	for m := time.January; m <= time.December; m++ {
		if m.String() == name {
			return m
		}
	}
	return time.January
}

// findAmountUSD parses the first dollar amount, applying multiplier
// words.
func findAmountUSD(body string) (float64, bool) {
	m := amountPattern.FindStringSubmatch(body)
	if m == nil {
		return 0, false
	}
	value, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0, false
	}
	switch strings.ToLower(m[2]) {
	case "billion", "b":
		value *= 1e9
	case "million", "m":
		value *= 1e6
	case "thousand", "k":
		value *= 1e3
	}
	return value, true
}

func findAttackVector(body string) (string, bool) {
	lower := strings.ToLower(body)
	for _, v := range attackVectors {
		if strings.Contains(lower, v.keyword) {
			return v.label, true
		}
	}
	return "", false
}

func sectionDescription(body string) string {
	text := strings.TrimSpace(body)
	runes := []rune(text)
	if len(runes) > descriptionLimit {
		text = string(runes[:descriptionLimit])
	}
	return text
}
