package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDoc = `---
title: Exchange Breach Analysis
attribution: lazarus_group
---
# Exchange Breach Analysis

Funds moved to [mixer](https://example.com/mixer) after the breach.

## Timeline

- 2024-07-15: initial access
- 2024-07-16: withdrawal

` + "```python\nprint('poc')\n```" + `

Final note.
`

func TestParseStructure(t *testing.T) {
	t.Parallel()

	parsed, err := Parse("breach.md", sampleDoc)
	require.NoError(t, err)

	require.Len(t, parsed.Headings, 2)
	assert.Equal(t, 1, parsed.Headings[0].Level)
	assert.Equal(t, "Exchange Breach Analysis", parsed.Headings[0].Text)
	assert.Equal(t, 2, parsed.Headings[1].Level)
	assert.Equal(t, "Timeline", parsed.Headings[1].Text)
	assert.Equal(t, "Exchange Breach Analysis", parsed.Title())

	require.Len(t, parsed.Links, 1)
	assert.Equal(t, "mixer", parsed.Links[0].Text)
	assert.Equal(t, "https://example.com/mixer", parsed.Links[0].URL)

	require.Len(t, parsed.CodeBlocks, 1)
	assert.Equal(t, "python", parsed.CodeBlocks[0].Language)
	assert.Equal(t, "print('poc')", parsed.CodeBlocks[0].Code)

	require.NotNil(t, parsed.Frontmatter)
	assert.Equal(t, "Exchange Breach Analysis", parsed.Frontmatter["title"])
	assert.Equal(t, "lazarus_group", parsed.Frontmatter["attribution"])

	// Code fences stay out of the plain text, link text stays in.
	assert.NotContains(t, parsed.PlainText, "print('poc')")
	assert.Contains(t, parsed.PlainText, "Funds moved to mixer")
}

func TestParseNoFrontmatter(t *testing.T) {
	t.Parallel()

	parsed, err := Parse("plain.md", "# Title\n\nBody text.\n")
	require.NoError(t, err)
	assert.Nil(t, parsed.Frontmatter)
	assert.Contains(t, parsed.PlainText, "Body text.")
}

func TestParseBadFrontmatter(t *testing.T) {
	t.Parallel()

	_, err := Parse("bad.md", "---\n: [unbalanced\n---\nbody\n")
	require.Error(t, err)
}

func TestSplitFrontmatterUnclosed(t *testing.T) {
	t.Parallel()

	fields, body, err := SplitFrontmatter("---\njust a horizontal rule story")
	require.NoError(t, err)
	assert.Nil(t, fields)
	assert.Contains(t, body, "horizontal rule")
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	input := "#Heading One\n\n\n\n* item a   \n+ item b\n\n```\n*  raw  \n```\n"
	got := Normalize(input)

	assert.Contains(t, got, "# Heading One")
	assert.Contains(t, got, "- item a")
	assert.Contains(t, got, "- item b")
	// Blank-line runs collapse.
	assert.NotContains(t, got, "\n\n\n")
	// Code block content untouched.
	assert.Contains(t, got, "*  raw  ")
}
