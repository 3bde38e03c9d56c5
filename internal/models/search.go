package models

import (
	"fmt"
	"strings"
	"time"
)

// SearchResult is one warehouse hit. Score is derived from vector
// distance as 1 / (1 + distance), so identical vectors score 1.0.
type SearchResult struct {
	ID            string    `json:"id"`
	FilePath      string    `json:"file_path"`
	RelativePath  string    `json:"relative_path"`
	Content       string    `json:"content"`
	RepositoryURL string    `json:"repository_url"`
	Score         float64   `json:"score"`
	Distance      float64   `json:"distance"`
	FileSize      int64     `json:"file_size"`
	LastModified  time.Time `json:"last_modified"`
}

// ScoreFromDistance converts a vector distance into a similarity score
// in (0, 1].
func ScoreFromDistance(distance float64) float64 {
	return 1.0 / (1.0 + distance)
}

// FormatSummary renders a short human-readable line for CLI output.
func (r *SearchResult) FormatSummary(maxContentLen int) string {
	content := strings.ReplaceAll(r.Content, "\n", " ")
	if maxContentLen > 0 && len(content) > maxContentLen {
		content = content[:maxContentLen] + "..."
	}
	return fmt.Sprintf("[%.3f] %s: %s", r.Score, r.RelativePath, content)
}
