// Package validate filters extracted candidates by name and role shape and
// assigns their confidence scores.
package validate

import (
	"regexp"
	"strings"
	"unicode"
)

const (
	minNameLen     = 4
	maxNameLen     = 70
	minNameWords   = 2
	maxNameWords   = 5
	maxNameDigit   = 2
	maxNameSpecial = 2
	minRoleLen     = 3
	maxRoleLen     = 100
	maxRoleWords   = 15
)

var (
	whitespace = regexp.MustCompile(`\s+`)
	honorific  = regexp.MustCompile(`(?i)^(mr|mrs|ms|dr|prof|sir)\.?\s+`)
	vowel      = regexp.MustCompile(`[aeiouyAEIOUY]`)

	// ExecRole matches the executive role keywords a role must contain.
	ExecRole = regexp.MustCompile(`(?i)\b(ceo|coo|cto|cfo|cmo|cro|cio|chief\s+\w+\s+officer|chief\s+executive|` +
		`managing\s+director|founder|co-?founder|chairman|chairperson|chairwoman|president|director|` +
		`vice\s+president|vp|head\s+of|executive|partner|owner|principal)\b`)
)

// nameDenylist holds organization, legal-suffix and navigation tokens that
// never appear in a person's name. Matching is per whole token.
var nameDenylist = map[string]struct{}{
	"tally": {}, "prime": {}, "software": {}, "solution": {}, "solutions": {},
	"dealer": {}, "dealers": {}, "reseller": {}, "distributor": {},
	"pvt": {}, "ltd": {}, "inc": {}, "llc": {}, "llp": {}, "corp": {}, "corporation": {},
	"gmbh": {}, "plc": {}, "limited": {}, "company": {}, "group": {}, "technologies": {},
	"services": {}, "service": {}, "products": {}, "platform": {},
	"privacy": {}, "policy": {}, "terms": {}, "cookie": {}, "cookies": {},
	"login": {}, "signup": {}, "register": {}, "careers": {}, "contact": {},
	"about": {}, "home": {}, "team": {}, "leadership": {}, "management": {},
	"read": {}, "more": {}, "click": {}, "learn": {}, "our": {}, "the": {},
	"chief": {}, "officer": {}, "officers": {}, "director": {}, "directors": {},
	"board": {}, "founder": {}, "manager": {}, "chairman": {}, "secretary": {},
}

var roleDenylist = []string{"tally", "prime", "dealer", "solution", "reseller", "distributor"}

// Normalize collapses whitespace and trims.
func Normalize(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// LooksLikeName reports whether s has the shape of a person's name. Text
// that reads as a job title is never a name.
func LooksLikeName(s string) bool {
	name := honorific.ReplaceAllString(Normalize(s), "")
	if n := len([]rune(name)); n < minNameLen || n > maxNameLen {
		return false
	}
	if ExecRole.MatchString(name) {
		return false
	}
	low := strings.ToLower(name)
	if strings.Contains(low, "@") || strings.Contains(low, "http") || strings.Contains(low, "www.") ||
		strings.Contains(low, ".com") {
		return false
	}

	var words []string
	for _, w := range strings.Fields(name) {
		token := strings.Trim(strings.ToLower(w), ".,;:()'\"")
		if _, bad := nameDenylist[token]; bad {
			return false
		}
		if len([]rune(w)) > 1 {
			words = append(words, w)
		}
	}
	if len(words) < minNameWords || len(words) > maxNameWords {
		return false
	}
	if first := []rune(words[0])[0]; !unicode.IsUpper(first) {
		return false
	}
	if !vowel.MatchString(name) {
		return false
	}

	digits, special := 0, 0
	for _, r := range name {
		switch {
		case unicode.IsDigit(r):
			digits++
		case unicode.IsLetter(r), r == ' ', r == '-', r == '.', r == '\'':
		default:
			special++
		}
	}
	return digits <= maxNameDigit && special <= maxNameSpecial
}

// LooksLikeRole reports whether s reads as an executive job title.
func LooksLikeRole(s string) bool {
	role := Normalize(s)
	if n := len([]rune(role)); n < minRoleLen || n > maxRoleLen {
		return false
	}
	if !ExecRole.MatchString(role) {
		return false
	}
	low := strings.ToLower(role)
	for _, bad := range roleDenylist {
		if strings.Contains(low, bad) {
			return false
		}
	}
	if strings.Contains(role, "…") || strings.Count(role, "...") > 1 {
		return false
	}
	return len(strings.Fields(role)) <= maxRoleWords
}
