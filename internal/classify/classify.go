// Package classify maps free-text roles onto the five leadership categories
// and assigns at most one leader per category.
package classify

import (
	"cmp"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/leadership-finder/internal/leadership"
)

// Rule lists the keywords that place a role in a category.
type Rule struct {
	Category leadership.Category `yaml:"category"`
	Keywords []string            `yaml:"keywords"`
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// DefaultRules is the built-in table, evaluated top to bottom.
func DefaultRules() []Rule {
	return []Rule{
		{
			Category: leadership.CategoryExecutive,
			Keywords: []string{
				"founder", "co-founder", "cofounder", "ceo", "chief executive",
				"managing director", "md", "director", "executive director",
				"chairman", "chairperson", "president",
				"principal", "dean", "medical director", "clinical director",
				"owner", "proprietor",
			},
		},
		{
			Category: leadership.CategoryTechnology,
			Keywords: []string{
				"cto", "chief technology", "cio", "chief information",
				"coo", "chief operating",
				"operations", "it head", "technical", "plant head",
				"head of operations", "administrator", "engineering",
			},
		},
		{
			Category: leadership.CategoryFinance,
			Keywords: []string{
				"cfo", "chief financial", "finance", "accounts", "controller",
				"treasurer", "admin", "administration", "hr head",
				"human resources", "compliance",
			},
		},
		{
			Category: leadership.CategoryBusinessDev,
			Keywords: []string{
				"cro", "chief revenue officer", "chief revenue",
				"business development", "bd", "growth", "strategy",
				"partnership", "sales head", "sales",
				"admissions", "placement",
				"revenue", "commercial",
			},
		},
		{
			Category: leadership.CategoryMarketing,
			Keywords: []string{
				"cmo", "chief marketing", "marketing", "brand",
				"communications", "pr", "digital marketing",
				"outreach", "social media",
			},
		},
	}
}

// LoadRules reads a YAML rule table of the form
//
//	rules:
//	  - category: Executive Leadership
//	    keywords: [founder, ceo]
func LoadRules(path string) ([]Rule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	var file ruleFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if len(file.Rules) == 0 {
		return nil, fmt.Errorf("rules file %s defines no rules", path)
	}
	return file.Rules, nil
}

type compiledRule struct {
	category leadership.Category
	patterns []*regexp.Regexp
}

// Classifier evaluates an ordered rule table; the first matching rule wins.
type Classifier struct {
	rules []compiledRule
}

// New compiles rules. Every category must be one of leadership.Categories.
func New(rules []Rule) (*Classifier, error) {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		if !slices.Contains(leadership.Categories, r.Category) {
			return nil, fmt.Errorf("unknown category %q", r.Category)
		}
		cr := compiledRule{category: r.Category}
		for _, kw := range r.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" {
				continue
			}
			cr.patterns = append(cr.patterns, regexp.MustCompile(`\b`+regexp.QuoteMeta(kw)+`\b`))
		}
		compiled = append(compiled, cr)
	}
	return &Classifier{rules: compiled}, nil
}

// Classify returns the category for role, or false when no rule matches.
func (c *Classifier) Classify(role string) (leadership.Category, bool) {
	r := strings.ToLower(strings.Join(strings.Fields(role), " "))
	if r == "" {
		return leadership.CategoryUnclassified, false
	}
	for _, rule := range c.rules {
		for _, p := range rule.patterns {
			if p.MatchString(r) {
				return rule.category, true
			}
		}
	}
	return leadership.CategoryUnclassified, false
}

// Assign buckets scored candidates. Within a category the most senior title
// wins, then the higher confidence, then the earlier candidate. Unclassified
// candidates are skipped. At most maxLeaders categories are filled, in
// category order.
func (c *Classifier) Assign(cands []leadership.Candidate, maxLeaders int) (map[leadership.Category]leadership.BucketEntry, []leadership.Leader) {
	if maxLeaders <= 0 || maxLeaders > leadership.MaxLeaders {
		maxLeaders = leadership.MaxLeaders
	}
	type ranked struct {
		cand      leadership.Candidate
		seniority int
		order     int
	}
	best := make(map[leadership.Category]ranked)
	for i, cand := range cands {
		category, ok := c.Classify(cand.RoleText)
		if !ok {
			continue
		}
		next := ranked{cand: cand, seniority: Seniority(cand.RoleText), order: i}
		cur, exists := best[category]
		if !exists || better(next.seniority, next.cand.Confidence, next.order, cur.seniority, cur.cand.Confidence, cur.order) {
			best[category] = next
		}
	}

	buckets := leadership.EmptyBuckets()
	leaders := make([]leadership.Leader, 0, maxLeaders)
	for _, category := range leadership.Categories {
		if len(leaders) >= maxLeaders {
			break
		}
		r, ok := best[category]
		if !ok {
			continue
		}
		entry := leadership.BucketEntry{
			Name:        r.cand.Name,
			Designation: r.cand.RoleText,
			Email:       r.cand.Email,
			Phone:       r.cand.Phone,
			LinkedIn:    r.cand.LinkedIn,
		}
		buckets[category] = entry
		leaders = append(leaders, leadership.Leader{Category: category, BucketEntry: entry})
	}
	return buckets, leaders
}

func better(sa int, ca float64, oa int, sb int, cb float64, ob int) bool {
	if c := cmp.Compare(sa, sb); c != 0 {
		return c > 0
	}
	if c := cmp.Compare(ca, cb); c != 0 {
		return c > 0
	}
	return oa < ob
}

var (
	topTitle    = regexp.MustCompile(`\b(chief|ceo|cto|cfo|coo|cmo|cro|cio|founder|co-?founder|cofounder|chairman|chairperson|owner|proprietor|managing director)\b`)
	vpTitle     = regexp.MustCompile(`\b(vp|svp|evp|vice president|head of)\b`)
	presidentRe = regexp.MustCompile(`\bpresident\b`)
	directorRe  = regexp.MustCompile(`\bdirector\b`)
	managerRe   = regexp.MustCompile(`\b(manager|lead|head)\b`)
)

// Seniority ranks a title: 100 for C-suite and owners, 70 for vice
// presidents and heads, 60 for directors, 40 for managers and leads, 20
// otherwise.
func Seniority(role string) int {
	r := strings.ToLower(role)
	switch {
	case topTitle.MatchString(r):
		return 100
	case vpTitle.MatchString(r):
		return 70
	case presidentRe.MatchString(r):
		return 100
	case directorRe.MatchString(r):
		return 60
	case managerRe.MatchString(r):
		return 40
	default:
		return 20
	}
}
