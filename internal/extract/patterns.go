// Package extract pulls structured entities out of parsed documents:
// cryptocurrency addresses, indicators of compromise, and incident
// records reconstructed from report sections.
package extract

import "regexp"

// Address patterns. Matches are validated further before emission, the
// regex only narrows candidates.
var (
	btcPattern = regexp.MustCompile(`\b(bc1[a-z0-9]{39,59}|[13][a-km-zA-HJ-NP-Z1-9]{25,34})\b`)
	ethPattern = regexp.MustCompile(`\b0x[a-fA-F0-9]{40}\b`)
	xmrPattern = regexp.MustCompile(`\b4[0-9AB][1-9A-HJ-NP-Za-km-z]{93,104}\b`)
	trxPattern = regexp.MustCompile(`\bT[A-Za-z1-9]{33}\b`)
)

// Indicator patterns.
var (
	ipPattern     = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	domainPattern = regexp.MustCompile(`\b(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}\b`)
	hashPattern   = regexp.MustCompile(`\b[a-fA-F0-9]{64}\b`)
	emailPattern  = regexp.MustCompile(`\b[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}\b`)
)

// Incident field patterns.
var (
	isoDatePattern   = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	monthDatePattern = regexp.MustCompile(`\b(January|February|March|April|May|June|July|August|September|October|November|December)\s+(\d{4})\b`)
	victimPattern    = regexp.MustCompile(`(?im)^\s*(?:[-*]\s*)?(?:\*\*)?(?:victim|target|affected|exchange)(?:\*\*)?\s*:\s*(.+)$`)
	amountPattern    = regexp.MustCompile(`\$\s*([0-9][0-9,]*(?:\.[0-9]+)?)\s*(million|billion|thousand|[MBK])?\b`)
)

// attackVectors maps a keyword found in section text to the canonical
// vector label.
var attackVectors = []struct {
	keyword string
	label   string
}{
	{"supply chain", "supply chain"},
	{"social engineering", "social engineering"},
	{"spear phishing", "phishing"},
	{"phishing", "phishing"},
	{"ransomware", "ransomware"},
	{"malware", "malware"},
	{"insider threat", "insider threat"},
	{"vulnerability", "vulnerability exploit"},
	{"exploit", "vulnerability exploit"},
}

// commonDomains are widely shared infrastructure names that appear in
// nearly every report and carry no indicator value.
var commonDomains = map[string]struct{}{
	"github.com":      {},
	"gitlab.com":      {},
	"google.com":      {},
	"microsoft.com":   {},
	"apple.com":       {},
	"twitter.com":     {},
	"x.com":           {},
	"linkedin.com":    {},
	"medium.com":      {},
	"youtube.com":     {},
	"wikipedia.org":   {},
	"example.com":     {},
	"etherscan.io":    {},
	"blockchain.com":  {},
	"chainalysis.com": {},
}

// commonEmailDomains filters personal-mail noise from the email
// indicator stream.
var commonEmailDomains = map[string]struct{}{
	"gmail.com":      {},
	"outlook.com":    {},
	"hotmail.com":    {},
	"yahoo.com":      {},
	"protonmail.com": {},
	"proton.me":      {},
	"icloud.com":     {},
	"example.com":    {},
}
