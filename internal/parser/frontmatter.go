package parser

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// SplitFrontmatter separates a leading YAML frontmatter block from the
// markdown body. Documents without frontmatter come back with a nil
// map and the content untouched.
func SplitFrontmatter(content string) (map[string]string, string, error) {
	if !strings.HasPrefix(content, "---\n") && content != "---" {
		return nil, content, nil
	}

	parts := strings.SplitN(content, "---", 3)
	if len(parts) < 3 {
		// A lone delimiter with no closing fence is body text.
		return nil, content, nil
	}

	var raw map[string]any
	if err := yaml.Unmarshal([]byte(parts[1]), &raw); err != nil {
		return nil, "", fmt.Errorf("yaml frontmatter: %w", err)
	}

	fields := make(map[string]string, len(raw))
	for k, v := range raw {
		fields[k] = fmt.Sprintf("%v", v)
	}

	body := strings.TrimPrefix(parts[2], "\n")
	return fields, body, nil
}
