package parser

import (
	"regexp"
	"strings"
)

var (
	looseHeadingRe = regexp.MustCompile(`^(#{1,6})\s*(.*?)\s*#*\s*$`)
	listMarkerRe   = regexp.MustCompile(`^(\s*)[*+-]\s+`)
	multiNewlineRe = regexp.MustCompile(`\n{3,}`)
)

// Normalize rewrites markdown into a canonical shape: headings become
// "# text", list markers become "- ", trailing whitespace is trimmed,
// and runs of blank lines collapse to one. Fenced code blocks pass
// through untouched.
func Normalize(content string) string {
	var out []string
	inCode := false

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") {
			inCode = !inCode
			out = append(out, line)
			continue
		}
		if inCode {
			out = append(out, line)
			continue
		}

		if m := looseHeadingRe.FindStringSubmatch(trimmed); m != nil && m[2] != "" {
			out = append(out, m[1]+" "+m[2])
			continue
		}

		line = listMarkerRe.ReplaceAllString(line, "${1}- ")
		out = append(out, strings.TrimRight(line, " \t"))
	}

	normalized := strings.Join(out, "\n")
	normalized = multiNewlineRe.ReplaceAllString(normalized, "\n\n")
	return strings.TrimRight(normalized, "\n") + "\n"
}
