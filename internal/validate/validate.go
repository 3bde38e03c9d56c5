// Package validate holds input validation helpers shared by the
// pipeline and the service layer.
package validate

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/tilde-sec/threatsift/internal/errs"
)

// FilePath checks that path exists and refers to a regular file.
func FilePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return errs.Validation("path", "must not be empty")
	}
	info, err := os.Stat(path)
	if err != nil {
		return errs.Validation("path", "not accessible: %v", err)
	}
	if info.IsDir() {
		return errs.Validation("path", "%s is a directory, expected a file", path)
	}
	return nil
}

// Directory checks that path exists and refers to a directory.
func Directory(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errs.Validation("directory", "not accessible: %v", err)
	}
	if !info.IsDir() {
		return errs.Validation("directory", "%s is not a directory", path)
	}
	return nil
}

// MarkdownExtension checks that path names a markdown file.
func MarkdownExtension(path string) error {
	if !strings.EqualFold(filepath.Ext(path), ".md") {
		return errs.Validation("path", "%s is not a markdown file", path)
	}
	return nil
}

// ContentNotEmpty rejects content that is empty after trimming.
func ContentNotEmpty(content string) error {
	if strings.TrimSpace(content) == "" {
		return errs.Validation("content", "empty after trimming whitespace")
	}
	return nil
}

// URL checks that raw parses as an absolute http(s) or git URL.
func URL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return errs.Validation("url", "must not be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return errs.Validation("url", "malformed: %v", err)
	}
	switch u.Scheme {
	case "http", "https", "git", "ssh":
		return nil
	default:
		return errs.Validation("url", "unsupported scheme %q", u.Scheme)
	}
}

// SanitizePath cleans path and rejects traversal outside root.
func SanitizePath(root, path string) (string, error) {
	joined := filepath.Clean(filepath.Join(root, path))
	rel, err := filepath.Rel(root, joined)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errs.Validation("path", "%s escapes root %s", path, root)
	}
	return joined, nil
}

// Truncate shortens text to max runes, appending an ellipsis when
// anything was cut.
func Truncate(text string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}
