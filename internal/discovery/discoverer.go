// Package discovery builds and grows the per-company frontier of candidate
// leadership pages.
package discovery

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadership-finder/internal/leadership"
)

const (
	homepagePriority   = 100
	staticPathPriority = 60
	keywordWeight      = 20
	unscoredPriority   = 1
	maxAnchorsPerPage  = 100
	frontierFactor     = 4
)

// StaticPaths are the well-known leadership-ish paths seeded for every company.
var StaticPaths = []string{
	"/about-us", "/about", "/team", "/our-team", "/leadership",
	"/management", "/executives", "/board", "/people",
	"/company", "/about-us/leadership", "/company/team",
}

// LinkKeywords drive anchor scoring.
var LinkKeywords = []string{
	"leader", "leadership", "team", "management", "executive", "about",
	"people", "board", "founder", "director", "who-we-are", "our-team",
	"leaders", "officers", "governance", "meet", "senior",
}

var assetPattern = regexp.MustCompile(`(?i)\.(jpg|jpeg|png|gif|svg|webp|pdf|zip|mp4|css|js)$`)

// Discoverer seeds and expands a company's frontier.
type Discoverer struct {
	maxPages int
	maxDepth int
	logger   *zap.Logger
}

// New builds a Discoverer from the engine page/depth caps.
func New(cfg leadership.EngineConfig, logger *zap.Logger) *Discoverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = leadership.DefaultEngineConfig().MaxPages
	}
	return &Discoverer{
		maxPages: maxPages,
		maxDepth: cfg.MaxDepth,
		logger:   logger.Named("discovery"),
	}
}

// MaxPages is the number of pages a single pass may fetch.
func (d *Discoverer) MaxPages() int { return d.maxPages }

// Seed returns a frontier holding the homepage plus every static path.
func (d *Discoverer) Seed(homepage string) (*Frontier, error) {
	return d.seed(homepage, StaticPaths)
}

// SeedAlternate returns a fresh frontier that tries paths ahead of the
// homepage. Paths already fetched in earlier passes are fetched again.
func (d *Discoverer) SeedAlternate(homepage string, paths []string) (*Frontier, error) {
	if len(paths) == 0 {
		paths = leadership.DefaultAlternatePaths
	}
	root, err := parseHomepage(homepage)
	if err != nil {
		return nil, err
	}
	f := NewFrontier(d.maxPages * frontierFactor)
	f.root = root
	for _, p := range paths {
		f.Push(leadership.FetchTarget{URL: joinPath(root, p), Depth: 1, Priority: homepagePriority})
	}
	f.Push(leadership.FetchTarget{URL: root.String(), Depth: 0, Priority: staticPathPriority})
	return f, nil
}

func (d *Discoverer) seed(homepage string, paths []string) (*Frontier, error) {
	root, err := parseHomepage(homepage)
	if err != nil {
		return nil, err
	}
	f := NewFrontier(d.maxPages * frontierFactor)
	f.root = root
	f.Push(leadership.FetchTarget{URL: root.String(), Depth: 0, Priority: homepagePriority})
	for _, p := range paths {
		f.Push(leadership.FetchTarget{URL: joinPath(root, p), Depth: 1, Priority: staticPathPriority})
	}
	return f, nil
}

// Expand scores the same-host anchors of a fetched page and pushes them onto
// the frontier. Pages at or beyond the depth cap are not expanded. It returns
// the number of targets added.
func (d *Discoverer) Expand(f *Frontier, from leadership.FetchTarget, doc *goquery.Document) int {
	if f == nil || doc == nil || from.Depth >= d.maxDepth {
		return 0
	}
	base, err := url.Parse(from.URL)
	if err != nil {
		return 0
	}
	root := f.Root()
	if root == nil {
		root = base
	}
	added, seen := 0, 0
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if seen >= maxAnchorsPerPage {
			return false
		}
		seen++
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return true
		}
		lower := strings.ToLower(href)
		if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") ||
			strings.HasPrefix(lower, "tel:") || strings.HasPrefix(lower, "data:") {
			return true
		}
		canon, target, err := leadership.ResolveURL(base, href)
		if err != nil || !leadership.SameHost(root, target) || assetPattern.MatchString(target.Path) {
			return true
		}
		priority := ScoreLink(canon, s.Text()) * keywordWeight
		if priority == 0 {
			priority = unscoredPriority
		}
		if f.Push(leadership.FetchTarget{URL: canon, Depth: from.Depth + 1, Priority: priority}) {
			added++
		}
		return true
	})
	if added > 0 {
		d.logger.Debug("Expanded frontier", zap.String("url", from.URL), zap.Int("added", added))
	}
	return added
}

// ScoreLink counts the link keywords present in an anchor's href or text.
func ScoreLink(href, text string) int {
	hay := strings.ToLower(href + " " + text)
	score := 0
	for _, kw := range LinkKeywords {
		if strings.Contains(hay, kw) {
			score++
		}
	}
	return score
}

func parseHomepage(homepage string) (*url.URL, error) {
	canon, err := leadership.CanonicalizeURL(homepage)
	if err != nil {
		return nil, fmt.Errorf("homepage: %w", err)
	}
	root, err := url.Parse(canon)
	if err != nil {
		return nil, fmt.Errorf("homepage: %w", err)
	}
	return root, nil
}

func joinPath(root *url.URL, p string) string {
	ref := *root
	ref.Path = "/" + strings.TrimPrefix(p, "/")
	ref.RawPath = ""
	return ref.String()
}
