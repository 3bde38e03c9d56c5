package extract

import (
	"strconv"
	"strings"

	"github.com/tilde-sec/threatsift/internal/models"
)

// IocExtractor finds indicators of compromise in plain text: IPv4
// addresses, domains, SHA-256 hashes and emails. Values are
// deduplicated within a single Extract call and common infrastructure
// noise is filtered out.
type IocExtractor struct{}

func NewIocExtractor() *IocExtractor {
	return &IocExtractor{}
}

// Extract returns every distinct indicator found in text.
func (e *IocExtractor) Extract(text string) []*models.Ioc {
	seen := make(map[string]struct{})
	var out []*models.Ioc

	emit := func(value string, iocType models.IocType, start, end int) {
		if _, dup := seen[value]; dup {
			return
		}
		seen[value] = struct{}{}
		out = append(out, models.NewIoc(value, iocType, surroundingContext(text, start, end)))
	}

	for _, loc := range ipPattern.FindAllStringIndex(text, -1) {
		ip := text[loc[0]:loc[1]]
		if !validPublicIP(ip) {
			continue
		}
		emit(ip, models.IocIP, loc[0], loc[1])
	}

	for _, loc := range hashPattern.FindAllStringIndex(text, -1) {
		emit(strings.ToLower(text[loc[0]:loc[1]]), models.IocHash, loc[0], loc[1])
	}

	for _, loc := range emailPattern.FindAllStringIndex(text, -1) {
		email := strings.ToLower(text[loc[0]:loc[1]])
		if _, common := commonEmailDomains[emailDomain(email)]; common {
			continue
		}
		emit(email, models.IocEmail, loc[0], loc[1])
	}

	for _, loc := range domainPattern.FindAllStringIndex(text, -1) {
		domain := strings.ToLower(strings.TrimSuffix(text[loc[0]:loc[1]], "."))
		if !plausibleDomain(domain, seen) {
			continue
		}
		emit(domain, models.IocDomain, loc[0], loc[1])
	}

	return out
}

// validPublicIP rejects malformed octets and private or loopback
// ranges, which dominate report boilerplate.
func validPublicIP(ip string) bool {
	parts := strings.Split(ip, ".")
	if len(parts) != 4 {
		return false
	}
	octets := make([]int, 4)
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n > 255 {
			return false
		}
		octets[i] = n
	}
	switch {
	case octets[0] == 10:
		return false
	case octets[0] == 127:
		return false
	case octets[0] == 172 && octets[1] >= 16 && octets[1] <= 31:
		return false
	case octets[0] == 192 && octets[1] == 168:
		return false
	}
	return true
}

// plausibleDomain filters the domain stream: skip allowlisted shared
// infrastructure, bare IPs (already captured), and values already seen
// as another indicator type.
func plausibleDomain(domain string, seen map[string]struct{}) bool {
	if _, common := commonDomains[domain]; common {
		return false
	}
	if _, common := commonEmailDomains[domain]; common {
		return false
	}
	if ipPattern.MatchString(domain) {
		return false
	}
	if _, dup := seen[domain]; dup {
		return false
	}
	// Domains inside captured emails are not separate indicators.
	tld := domain[strings.LastIndex(domain, ".")+1:]
	if _, err := strconv.Atoi(tld); err == nil {
		return false
	}
	return true
}

func emailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return ""
	}
	return email[at+1:]
}
