package repo

import (
	"path/filepath"
	"strings"
)

// Known attribution directories. Anything else classifies as general.
var attributionDirs = map[string]string{
	"hacks_and_thefts": "hacks_and_thefts",
	"dprk_it_workers":  "dprk_it_workers",
	"lazarus_group":    "lazarus_group",
	"bluenoroff_group": "bluenoroff_group",
	"apt38":            "apt38",
}

var topicKeywords = []string{
	"exchange", "bridge", "defi", "mixer", "ransomware",
	"phishing", "malware", "laundering", "sanctions",
}

// Attribution derives the threat-group attribution from the relative
// path of a document.
func Attribution(relativePath string) string {
	for _, segment := range strings.Split(filepath.ToSlash(relativePath), "/") {
		if attr, ok := attributionDirs[strings.ToLower(segment)]; ok {
			return attr
		}
	}
	return "general"
}

// Topic returns the first topic keyword found in the path, or an empty
// string.
func Topic(relativePath string) string {
	lower := strings.ToLower(filepath.ToSlash(relativePath))
	for _, kw := range topicKeywords {
		if strings.Contains(lower, kw) {
			return kw
		}
	}
	return ""
}

// IsSummaryFile reports whether the file is an index-style document
// (README, summary, index) rather than a report.
func IsSummaryFile(relativePath string) bool {
	base := strings.ToLower(strings.TrimSuffix(filepath.Base(relativePath), filepath.Ext(relativePath)))
	switch base {
	case "readme", "summary", "index":
		return true
	}
	return false
}
