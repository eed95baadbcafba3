// Package adaptive combines the plain and browser fetch paths: pages are
// fetched plainly until a block is detected, after which the company run
// sticks to browser rendering.
package adaptive

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/leadership-finder/internal/headless/detector"
	"github.com/JakeFAU/leadership-finder/internal/leadership"
	"github.com/JakeFAU/leadership-finder/internal/metrics"
)

const (
	modePlain   = "plain"
	modeBrowser = "browser"
)

// BlockDetector classifies responses.
type BlockDetector interface {
	Detect(resp leadership.FetchResponse) detector.BlockType
	DetectRendered(resp leadership.FetchResponse) detector.BlockType
}

// Politeness gates requests to the same host.
type Politeness interface {
	Wait(ctx context.Context, rawURL string) error
}

// EscalationPolicy decides whether a blocked URL may be retried in a browser.
type EscalationPolicy interface {
	AllowHeadless(rawURL string) bool
}

// Config wires the fetch paths together.
type Config struct {
	PerPageTimeout time.Duration
	RespectRobots  bool
	Headers        http.Header
	// Escalation is optional; nil allows every escalation.
	Escalation EscalationPolicy
}

// Fetcher opens per-company sessions over shared, stateless fetch paths.
type Fetcher struct {
	cfg      Config
	plain    leadership.Fetcher
	browsers leadership.BrowserLauncher
	detector BlockDetector
	polite   Politeness
	logger   *zap.Logger
}

// New builds an adaptive fetcher. browsers and polite may be nil.
func New(cfg Config, plain leadership.Fetcher, browsers leadership.BrowserLauncher, det BlockDetector, polite Politeness, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PerPageTimeout <= 0 {
		cfg.PerPageTimeout = leadership.DefaultEngineConfig().PerPageTimeout
	}
	if det == nil {
		det = detector.NewHeuristic(0)
	}
	return &Fetcher{
		cfg:      cfg,
		plain:    plain,
		browsers: browsers,
		detector: det,
		polite:   polite,
		logger:   logger.Named("fetcher"),
	}
}

// Open starts a session bound to one company's attempt state. The session
// reads and sets state.Escalated; it must not be shared across companies.
func (f *Fetcher) Open(state *leadership.AttemptState) leadership.PageSession {
	if state == nil {
		state = &leadership.AttemptState{}
	}
	return &session{fetcher: f, state: state}
}

type session struct {
	fetcher *Fetcher
	state   *leadership.AttemptState
	browser leadership.Browser
}

// Fetch returns rendered markup for rawURL or a *leadership.FetchError.
func (s *session) Fetch(ctx context.Context, rawURL string) (leadership.Page, error) {
	f := s.fetcher
	if f.polite != nil {
		if err := f.polite.Wait(ctx, rawURL); err != nil {
			return leadership.Page{}, leadership.NewFetchError(leadership.FailureTimeout, rawURL, 0, err)
		}
	}
	ctx, cancel := context.WithTimeout(ctx, f.cfg.PerPageTimeout)
	defer cancel()

	if s.state.Escalated {
		return s.fetchBrowser(ctx, rawURL)
	}

	resp, err := f.plain.Fetch(ctx, f.request(rawURL))
	if err != nil {
		class := leadership.ClassifyError(err)
		metrics.ObservePageFetch(modePlain, string(class), 0)
		return leadership.Page{}, asFetchError(class, rawURL, err)
	}

	if block := f.detector.Detect(resp); block != detector.BlockNone {
		metrics.ObservePageFetch(modePlain, string(leadership.FailureBlocked), len(resp.Body))
		f.logger.Info("Block detected, escalating to browser",
			zap.String("url", rawURL),
			zap.String("block", string(block)),
			zap.Int("status", resp.StatusCode),
		)
		if f.cfg.Escalation != nil && !f.cfg.Escalation.AllowHeadless(rawURL) {
			return leadership.Page{}, leadership.NewFetchError(leadership.FailureBlocked, rawURL, resp.StatusCode,
				fmt.Errorf("%s: browser rendering disallowed for host", block))
		}
		if err := s.ensureBrowser(ctx); err != nil {
			return leadership.Page{}, leadership.NewFetchError(leadership.FailureBlocked, rawURL, resp.StatusCode,
				fmt.Errorf("%s: %w", block, err))
		}
		s.state.Escalated = true
		metrics.ObserveEscalation()
		return s.fetchBrowser(ctx, rawURL)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		metrics.ObservePageFetch(modePlain, string(leadership.FailureHTTP), len(resp.Body))
		return leadership.Page{}, leadership.NewFetchError(leadership.FailureHTTP, rawURL, resp.StatusCode, nil)
	}

	metrics.ObservePageFetch(modePlain, "ok", len(resp.Body))
	return leadership.Page{
		URL:        rawURL,
		FinalURL:   resp.URL,
		StatusCode: resp.StatusCode,
		HTML:       string(resp.Body),
	}, nil
}

func (s *session) fetchBrowser(ctx context.Context, rawURL string) (leadership.Page, error) {
	f := s.fetcher
	if err := s.ensureBrowser(ctx); err != nil {
		metrics.ObservePageFetch(modeBrowser, string(leadership.FailureBlocked), 0)
		return leadership.Page{}, leadership.NewFetchError(leadership.FailureBlocked, rawURL, 0, err)
	}
	resp, err := s.browser.Fetch(ctx, f.request(rawURL))
	if err != nil {
		class := leadership.ClassifyError(err)
		metrics.ObservePageFetch(modeBrowser, string(class), 0)
		f.logger.Warn("Browser fetch failed", zap.String("url", rawURL), zap.Error(err))
		return leadership.Page{}, asFetchError(class, rawURL, err)
	}
	if block := f.detector.DetectRendered(resp); block != detector.BlockNone {
		metrics.ObservePageFetch(modeBrowser, string(leadership.FailureBlocked), len(resp.Body))
		return leadership.Page{}, leadership.NewFetchError(leadership.FailureBlocked, rawURL, resp.StatusCode,
			errors.New(string(block)))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		metrics.ObservePageFetch(modeBrowser, string(leadership.FailureHTTP), len(resp.Body))
		return leadership.Page{}, leadership.NewFetchError(leadership.FailureHTTP, rawURL, resp.StatusCode, nil)
	}
	metrics.ObservePageFetch(modeBrowser, "ok", len(resp.Body))
	return leadership.Page{
		URL:        rawURL,
		FinalURL:   resp.URL,
		StatusCode: resp.StatusCode,
		HTML:       string(resp.Body),
		Rendered:   true,
	}, nil
}

func (s *session) ensureBrowser(ctx context.Context) error {
	if s.browser != nil {
		return nil
	}
	if s.fetcher.browsers == nil {
		return leadership.ErrHeadlessUnavailable
	}
	browser, err := s.fetcher.browsers.NewBrowser(ctx)
	if err != nil {
		return fmt.Errorf("open browser: %w", err)
	}
	s.browser = browser
	return nil
}

// Close releases the session's browser, if one was started.
func (s *session) Close() {
	if s.browser != nil {
		s.browser.Close()
		s.browser = nil
	}
}

func (f *Fetcher) request(rawURL string) leadership.FetchRequest {
	return leadership.FetchRequest{
		URL:           rawURL,
		Headers:       f.cfg.Headers,
		RespectRobots: f.cfg.RespectRobots,
	}
}

func asFetchError(class leadership.FailureClass, rawURL string, err error) error {
	var fe *leadership.FetchError
	if errors.As(err, &fe) {
		return fe
	}
	return leadership.NewFetchError(class, rawURL, 0, err)
}
