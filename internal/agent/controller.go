// Package agent drives one company through discovery, extraction and
// evaluation until it either fills a leadership bucket or runs out of
// attempts.
package agent

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadership-finder/internal/cache"
	"github.com/JakeFAU/leadership-finder/internal/classify"
	"github.com/JakeFAU/leadership-finder/internal/discovery"
	"github.com/JakeFAU/leadership-finder/internal/leadership"
	"github.com/JakeFAU/leadership-finder/internal/metrics"
	"github.com/JakeFAU/leadership-finder/internal/validate"
)

// Deps are the collaborators a Controller drives.
type Deps struct {
	Fetcher    leadership.PageFetcher
	Extractor  leadership.CandidateExtractor
	Classifier *classify.Classifier
	// Cache is optional.
	Cache  leadership.Cache
	Clock  leadership.Clock
	Logger *zap.Logger
}

// Option customizes a Controller.
type Option func(*Controller)

// WithPauser replaces the timer used between retry passes.
func WithPauser(p Pauser) Option {
	return func(c *Controller) {
		if p != nil {
			c.pauser = p
		}
	}
}

// WithJitter replaces the retry delay source.
func WithJitter(fn func(lo, hi time.Duration) time.Duration) Option {
	return func(c *Controller) {
		if fn != nil {
			c.jitter = fn
		}
	}
}

// Controller is the per-company state machine.
type Controller struct {
	cfg        leadership.EngineConfig
	discoverer *discovery.Discoverer
	fetcher    leadership.PageFetcher
	extractor  leadership.CandidateExtractor
	scorer     *validate.Scorer
	classifier *classify.Classifier
	cache      leadership.Cache
	clock      leadership.Clock
	pauser     Pauser
	jitter     func(lo, hi time.Duration) time.Duration
	logger     *zap.Logger
}

var _ leadership.Discoverer = (*Controller)(nil)

// New builds a Controller from an immutable engine config.
func New(cfg leadership.EngineConfig, deps Deps, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Fetcher == nil || deps.Extractor == nil {
		return nil, errors.New("agent: fetcher and extractor are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	classifier := deps.Classifier
	if classifier == nil {
		var err error
		if classifier, err = classify.New(nil); err != nil {
			return nil, err
		}
	}
	c := &Controller{
		cfg:        cfg,
		discoverer: discovery.New(cfg, logger),
		fetcher:    deps.Fetcher,
		extractor:  deps.Extractor,
		scorer:     validate.NewScorer(cfg.ConfidenceThreshold),
		classifier: classifier,
		cache:      deps.Cache,
		clock:      deps.Clock,
		pauser:     timerPauser{},
		jitter:     Jitter,
		logger:     logger.Named("agent"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// run is the mutable state of one Discover call.
type run struct {
	company  leadership.Company
	key      string
	homepage string
	state    *leadership.AttemptState
	frontier *discovery.Frontier
	raw      []leadership.Candidate
	scored   []leadership.Candidate
	buckets  map[leadership.Category]leadership.BucketEntry
	passErr  leadership.FailureClass
	started  time.Time
	logger   *zap.Logger
}

// Discover runs the state machine for company. It always returns a
// well-formed result; a company that yields nothing is a skip, not an error.
// A result served from the cache is returned exactly as stored.
func (c *Controller) Discover(ctx context.Context, company leadership.Company) leadership.Result {
	key := cache.Key(company)
	r := &run{
		company: company,
		key:     key,
		started: c.now(),
		state:   &leadership.AttemptState{MaxRetries: c.cfg.MaxRetries},
		logger:  c.logger.With(zap.String("company_key", key)),
	}

	if !c.cfg.Enabled {
		return leadership.NewResult(key, company)
	}

	homepage, err := leadership.CanonicalizeURL(company.Website)
	if err != nil {
		r.logger.Warn("Invalid company website", zap.String("website", company.Website), zap.Error(err))
		res := c.finish(r, StateDoneSkip)
		res.Metadata.SkipReason = "invalid website"
		return res
	}
	r.homepage = homepage

	if cached, ok := c.lookup(ctx, r); ok {
		return cached
	}

	runCtx := ctx
	if c.cfg.PerCompanyTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.cfg.PerCompanyTimeout)
		defer cancel()
	}

	session := c.fetcher.Open(r.state)
	defer session.Close()

	st := Decide(StateInit, Evaluation{})
	for !st.Terminal() {
		if ctx.Err() != nil {
			return c.timedOut(r)
		}
		r.logger.Debug("State transition", zap.String("state", string(st)), zap.Int("attempt", r.state.Attempt))
		var next State
		switch st {
		case StateDiscover:
			next, err = c.discover(r)
		case StateFetchExtract:
			c.pass(runCtx, r, session)
			next = Decide(st, Evaluation{})
		case StateEvaluate:
			next = Decide(st, c.evaluation(runCtx, r))
		case StateRetryWait:
			delay := c.jitter(c.cfg.RetryDelayMin, c.cfg.RetryDelayMax)
			r.logger.Info("Retrying after delay", zap.Duration("delay", delay), zap.Int("attempt", r.state.Attempt))
			c.pauser.Pause(runCtx, delay)
			_, err = c.discover(r)
			next = Decide(st, Evaluation{})
		case StateAlternate:
			r.state.EscalatedToAlternate = true
			r.frontier, err = c.discoverer.SeedAlternate(r.homepage, c.cfg.AlternatePaths)
			next = Decide(st, Evaluation{})
		default:
			next = StateDoneSkip
		}
		if err != nil {
			r.logger.Warn("Frontier seeding failed", zap.Error(err))
			next = StateDoneSkip
		}
		st = next
	}

	if ctx.Err() != nil {
		return c.timedOut(r)
	}
	res := c.finish(r, st)
	c.store(ctx, r, res)
	return res
}

func (c *Controller) discover(r *run) (State, error) {
	f, err := c.discoverer.Seed(r.homepage)
	if err != nil {
		return StateDoneSkip, err
	}
	r.frontier = f
	return Decide(StateDiscover, Evaluation{}), nil
}

// pass fetches up to MaxPages targets in priority order, expanding the
// frontier from every fetched page, then scores and buckets everything
// gathered so far. Fetch failures only skip the URL.
func (c *Controller) pass(ctx context.Context, r *run, session leadership.PageSession) {
	r.passErr = ""
	fetched := 0
	for fetched < c.discoverer.MaxPages() && ctx.Err() == nil {
		target, ok := r.frontier.Pop()
		if !ok {
			break
		}
		fetched++
		r.state.PagesChecked++

		page, err := session.Fetch(ctx, target.URL)
		if err != nil {
			class := leadership.ClassifyError(err)
			r.passErr = class
			r.state.LastErrorClass = string(class)
			r.logger.Warn("Page fetch failed",
				zap.String("url", target.URL),
				zap.String("error_class", string(class)),
				zap.Error(err),
			)
			continue
		}

		r.raw = append(r.raw, c.extractor.Extract(ctx, page)...)
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML)); err == nil {
			c.discoverer.Expand(r.frontier, target, doc)
		}
	}
	r.state.Attempt++

	r.scored = c.scorer.Filter(r.raw)
	r.buckets, _ = c.classifier.Assign(r.scored, c.cfg.MaxLeaders)
	r.logger.Debug("Pass complete",
		zap.Int("attempt", r.state.Attempt),
		zap.Int("pages", fetched),
		zap.Int("raw_candidates", len(r.raw)),
		zap.Int("accepted_candidates", len(r.scored)),
	)
}

func (c *Controller) evaluation(ctx context.Context, r *run) Evaluation {
	filled := 0
	for _, entry := range r.buckets {
		if entry.Filled() {
			filled++
		}
	}
	return Evaluation{
		BucketsFilled:   filled,
		Attempt:         r.state.Attempt,
		MaxAttempts:     c.cfg.MaxRetries,
		LastErrorClass:  r.passErr,
		AlternateUsed:   r.state.EscalatedToAlternate,
		SinglePass:      !c.cfg.UseAgent,
		BudgetExhausted: ctx.Err() != nil,
	}
}

func (c *Controller) lookup(ctx context.Context, r *run) (leadership.Result, bool) {
	if c.cache == nil {
		return leadership.Result{}, false
	}
	cached, ok, err := c.cache.Get(ctx, r.key)
	switch {
	case err != nil:
		metrics.ObserveCacheLookup("error")
		r.logger.Warn("Cache lookup failed", zap.Error(err))
		return leadership.Result{}, false
	case !ok:
		metrics.ObserveCacheLookup("miss")
		return leadership.Result{}, false
	}
	metrics.ObserveCacheLookup("hit")
	r.logger.Debug("Cache hit")
	return cached, true
}

func (c *Controller) store(ctx context.Context, r *run, res leadership.Result) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Set(ctx, r.key, res); err != nil {
		r.logger.Warn("Cache write failed", zap.Error(err))
	}
}

func (c *Controller) finish(r *run, st State) leadership.Result {
	res := leadership.NewResult(r.key, r.company)
	res.SetBuckets(r.buckets)
	res.Candidates = r.scored
	res.Outcome = leadership.OutcomeSkip
	if st == StateDoneSuccess && res.LeadershipFound {
		res.Outcome = leadership.OutcomeSuccess
	}
	c.fillMetadata(r, &res)
	for _, cand := range r.scored {
		metrics.ObserveCandidate(string(cand.Method))
	}
	metrics.ObserveCompany(string(res.Outcome), c.now().Sub(r.started))
	r.logger.Info("Company finished",
		zap.String("outcome", string(res.Outcome)),
		zap.Int("leaders", len(res.Leaders)),
		zap.Int("attempts", res.Metadata.Attempts),
		zap.Int("pages_checked", res.Metadata.PagesChecked),
		zap.Bool("fetch_mode_escalated", res.Metadata.FetchModeEscalated),
	)
	return res
}

func (c *Controller) timedOut(r *run) leadership.Result {
	res := leadership.TimedOutResult(r.key, r.company)
	c.fillMetadata(r, &res)
	res.Metadata.SkipReason = leadership.SkipReasonTimeout
	metrics.ObserveCompany(string(res.Outcome), c.now().Sub(r.started))
	r.logger.Warn("Company cut off by batch budget", zap.Int("attempts", r.state.Attempt))
	return res
}

func (c *Controller) fillMetadata(r *run, res *leadership.Result) {
	res.Metadata.PagesChecked = r.state.PagesChecked
	res.Metadata.FetchModeEscalated = r.state.Escalated
	res.Metadata.Attempts = r.state.Attempt
	res.Metadata.LastErrorClass = r.state.LastErrorClass
	res.Metadata.ElapsedMs = c.now().Sub(r.started).Milliseconds()
}

func (c *Controller) now() time.Time {
	if c.clock == nil {
		return time.Now().UTC()
	}
	return c.clock.Now()
}
