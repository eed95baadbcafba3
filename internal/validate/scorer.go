package validate

import (
	"regexp"
	"strings"

	"github.com/JakeFAU/leadership-finder/internal/leadership"
)

const (
	nameScore        = 0.50
	roleScore        = 0.40
	seniorBonus      = 0.10
	cSuiteBonus      = 0.06
	profileBonus     = 0.05
	contactBonus     = 0.03
	defaultThreshold = 0.4
)

var (
	seniorTitle = regexp.MustCompile(`(?i)\b(ceo|founder|co-?founder|chairman|chairperson|president|chief\s+executive|managing\s+director)\b`)
	cSuiteTitle = regexp.MustCompile(`(?i)\b(cto|cfo|coo|cro|cmo|cio|chief)\b`)
)

// methodBonus rewards strategies in proportion to their precision.
var methodBonus = map[leadership.Method]float64{
	leadership.MethodStructured: 0.15,
	leadership.MethodModel:      0.10,
	leadership.MethodCard:       0.08,
	leadership.MethodTable:      0.06,
	leadership.MethodList:       0.05,
	leadership.MethodTextPair:   0.02,
}

// Scorer validates candidates and assigns confidence.
type Scorer struct {
	threshold float64
}

// NewScorer returns a scorer dropping candidates below threshold.
func NewScorer(threshold float64) *Scorer {
	if threshold < 0 || threshold > 1 {
		threshold = defaultThreshold
	}
	return &Scorer{threshold: threshold}
}

// Threshold is the minimum confidence a candidate must reach.
func (s *Scorer) Threshold() float64 { return s.threshold }

// Score validates c and returns it with normalized fields and a confidence in
// [0,1]. ok is false when the name or role is invalid or the score falls
// below the threshold.
func (s *Scorer) Score(c leadership.Candidate) (leadership.Candidate, bool) {
	c.Name = honorific.ReplaceAllString(Normalize(c.Name), "")
	c.RoleText = Normalize(c.RoleText)
	if !LooksLikeName(c.Name) || !LooksLikeRole(c.RoleText) {
		return c, false
	}

	score := nameScore + roleScore
	switch {
	case seniorTitle.MatchString(c.RoleText):
		score += seniorBonus
	case cSuiteTitle.MatchString(c.RoleText):
		score += cSuiteBonus
	}
	score += methodBonus[c.Method]
	if strings.Contains(strings.ToLower(c.LinkedIn), "linkedin.com/in/") {
		score += profileBonus
	}
	if c.Email != "" || c.Phone != "" {
		score += contactBonus
	}
	c.Confidence = clamp(score)
	return c, c.Confidence >= s.threshold
}

// Filter scores every candidate and keeps the first accepted occurrence of
// each case-insensitive name. Input order is preserved.
func (s *Scorer) Filter(cands []leadership.Candidate) []leadership.Candidate {
	seen := make(map[string]struct{}, len(cands))
	out := make([]leadership.Candidate, 0, len(cands))
	for _, c := range cands {
		scored, ok := s.Score(c)
		if !ok {
			continue
		}
		key := strings.ToLower(scored.Name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, scored)
	}
	return out
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
