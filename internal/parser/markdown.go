// Package parser turns raw markdown into the structured form the
// extractors and the store consume: plain text, headings, links, code
// blocks, and optional YAML frontmatter.
package parser

import (
	"regexp"
	"strings"

	"github.com/tilde-sec/threatsift/internal/errs"
)

// Heading is one markdown heading with its level and byte position in
// the source.
type Heading struct {
	Level    int    `json:"level"`
	Text     string `json:"text"`
	Position int    `json:"position"`
}

// Link is one inline markdown link.
type Link struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

// CodeBlock is one fenced code block.
type CodeBlock struct {
	Language string `json:"language,omitempty"`
	Code     string `json:"code"`
}

// ParsedMarkdown is the structured result of parsing one document.
type ParsedMarkdown struct {
	PlainText   string            `json:"plain_text"`
	Headings    []Heading         `json:"headings"`
	Links       []Link            `json:"links"`
	CodeBlocks  []CodeBlock       `json:"code_blocks"`
	Frontmatter map[string]string `json:"frontmatter,omitempty"`
}

var (
	headingRe    = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)
	linkRe       = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	imageRe      = regexp.MustCompile(`!\[[^\]]*\]\(([^)]+)\)`)
	inlineCodeRe = regexp.MustCompile("`([^`]+)`")
	emphasisRe   = regexp.MustCompile(`(\*{1,3}|_{1,3})([^*_]+)(\*{1,3}|_{1,3})`)
)

// Parse converts markdown content into its structured form. The
// frontmatter block, if present, is split off before parsing; a
// malformed frontmatter block is a ParseError.
func Parse(file, content string) (*ParsedMarkdown, error) {
	frontmatter, body, err := SplitFrontmatter(content)
	if err != nil {
		return nil, &errs.ParseError{File: file, Message: "invalid frontmatter", Err: err}
	}

	parsed := &ParsedMarkdown{Frontmatter: frontmatter}

	var plain strings.Builder
	var codeLines []string
	var codeLang string
	inCode := false
	pos := 0

	for _, line := range strings.Split(body, "\n") {
		lineLen := len(line) + 1
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") {
			if inCode {
				parsed.CodeBlocks = append(parsed.CodeBlocks, CodeBlock{
					Language: codeLang,
					Code:     strings.Join(codeLines, "\n"),
				})
				codeLines = nil
				inCode = false
			} else {
				inCode = true
				codeLang = strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
			}
			pos += lineLen
			continue
		}
		if inCode {
			codeLines = append(codeLines, line)
			pos += lineLen
			continue
		}

		if m := headingRe.FindStringSubmatch(trimmed); m != nil {
			text := strings.TrimSpace(m[2])
			parsed.Headings = append(parsed.Headings, Heading{
				Level:    len(m[1]),
				Text:     stripInline(text),
				Position: pos,
			})
			plain.WriteString(stripInline(text))
			plain.WriteString("\n")
			pos += lineLen
			continue
		}

		for _, lm := range linkRe.FindAllStringSubmatch(line, -1) {
			parsed.Links = append(parsed.Links, Link{Text: lm[1], URL: lm[2]})
		}

		plain.WriteString(stripInline(line))
		plain.WriteString("\n")
		pos += lineLen
	}

	// Unterminated fence: keep the collected lines as a block anyway.
	if inCode && len(codeLines) > 0 {
		parsed.CodeBlocks = append(parsed.CodeBlocks, CodeBlock{
			Language: codeLang,
			Code:     strings.Join(codeLines, "\n"),
		})
	}

	parsed.PlainText = strings.TrimSpace(plain.String())
	return parsed, nil
}

// stripInline removes inline markdown syntax, keeping the visible text.
func stripInline(line string) string {
	line = imageRe.ReplaceAllString(line, "")
	line = linkRe.ReplaceAllString(line, "$1")
	line = inlineCodeRe.ReplaceAllString(line, "$1")
	line = emphasisRe.ReplaceAllString(line, "$2")
	line = strings.TrimPrefix(strings.TrimSpace(line), "> ")
	return strings.TrimSpace(line)
}

// Title returns the first H1 text, or an empty string.
func (p *ParsedMarkdown) Title() string {
	for _, h := range p.Headings {
		if h.Level == 1 {
			return h.Text
		}
	}
	return ""
}
