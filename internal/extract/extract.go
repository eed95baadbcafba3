// Package extract turns rendered pages into raw leadership candidates.
//
// Strategies run independently over one parsed document and their output is
// concatenated. Structured markup is read first, before noise elements are
// stripped; the text-pair fallback only runs when the other strategies found
// fewer than two shape-valid candidates.
package extract

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadership-finder/internal/leadership"
	"github.com/JakeFAU/leadership-finder/internal/validate"
)

const minCandidatesBeforeFallback = 2

const noiseSelector = "script, style, noscript, iframe, footer, nav, header"

// Mode controls how a model strategy combines with the heuristic ones.
type Mode string

// Supported model modes.
const (
	ModeSupplement Mode = "supplement"
	ModeReplace    Mode = "replace"
)

// Document is one parsed page handed to every strategy.
type Document struct {
	URL string
	Raw string
	Doc *goquery.Document
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithModel plugs in a model-based strategy. In ModeReplace it takes the
// place of the card and text-pair strategies.
func WithModel(model leadership.CandidateExtractor, mode Mode) Option {
	return func(e *Extractor) {
		e.model = model
		if mode == ModeReplace {
			e.mode = ModeReplace
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// Extractor runs the extraction strategies over a page.
type Extractor struct {
	model  leadership.CandidateExtractor
	mode   Mode
	logger *zap.Logger
}

var _ leadership.CandidateExtractor = (*Extractor)(nil)

// New builds an Extractor.
func New(opts ...Option) *Extractor {
	e := &Extractor{mode: ModeSupplement, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns the unscored candidates found on page. Unparsable markup
// yields no candidates.
func (e *Extractor) Extract(ctx context.Context, page leadership.Page) []leadership.Candidate {
	source := page.FinalURL
	if source == "" {
		source = page.URL
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		e.logger.Debug("unparsable page", zap.String("url", source), zap.Error(err))
		return nil
	}
	d := &Document{URL: source, Raw: page.HTML, Doc: doc}

	var out candidateSet
	out.addAll(structured(d))

	doc.Find(noiseSelector).Remove()

	out.addAll(tables(d))
	if e.mode != ModeReplace {
		out.addAll(cards(d))
	}
	out.addAll(lists(d))

	if e.model != nil && ctx.Err() == nil {
		out.addAll(e.model.Extract(ctx, page))
	}
	if e.mode != ModeReplace && plausible(out.items) < minCandidatesBeforeFallback {
		out.addAll(textPairs(d))
	}

	e.logger.Debug("page extracted",
		zap.String("url", source),
		zap.Int("candidates", len(out.items)),
	)
	return out.items
}

// plausible counts candidates whose name and role pass the shape checks.
func plausible(cands []leadership.Candidate) int {
	n := 0
	for _, c := range cands {
		if validate.LooksLikeName(c.Name) && validate.LooksLikeRole(c.RoleText) {
			n++
		}
	}
	return n
}

// candidateSet drops repeated (name, role) pairs found on the same page.
type candidateSet struct {
	items []leadership.Candidate
	seen  map[string]struct{}
}

func (s *candidateSet) addAll(cands []leadership.Candidate) {
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	for _, c := range cands {
		key := strings.ToLower(normalize(c.Name)) + "|" + strings.ToLower(normalize(c.RoleText))
		if _, dup := s.seen[key]; dup {
			continue
		}
		s.seen[key] = struct{}{}
		s.items = append(s.items, c)
	}
}
