// Package cache derives per-company cache keys and provides the in-memory
// result cache.
package cache

import (
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/JakeFAU/leadership-finder/internal/leadership"
)

const maxNameRunes = 80

// Key identifies a company across runs. A non-empty company ID wins;
// otherwise the key is the normalized host joined with the normalized name.
func Key(company leadership.Company) string {
	if id := strings.TrimSpace(company.ID); id != "" {
		return id
	}
	name := []rune(NormalizeName(company.Name))
	if len(name) > maxNameRunes {
		name = name[:maxNameRunes]
	}
	return NormalizeHost(company.Website) + "::" + string(name)
}

// NormalizeHost reduces a website to its lower-cased host without scheme,
// "www." prefix, port or path.
func NormalizeHost(website string) string {
	raw := strings.TrimSpace(website)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	host := ""
	if err == nil {
		host = u.Hostname()
	}
	if host == "" {
		host = strings.TrimPrefix(strings.TrimPrefix(strings.ToLower(website), "https://"), "http://")
		if i := strings.IndexAny(host, "/:?#"); i >= 0 {
			host = host[:i]
		}
	}
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	return strings.TrimPrefix(host, "www.")
}

// NormalizeName folds accents, lower-cases and collapses whitespace.
func NormalizeName(name string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}
