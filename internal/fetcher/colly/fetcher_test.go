package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/leadership-finder/internal/leadership"
)

func TestFetcherBuildCollector(t *testing.T) {
	t.Parallel()

	f := New(Config{UserAgents: []string{"coverage-agent"}, RespectRobots: false, Timeout: time.Second})
	collector := f.buildCollector(leadership.FetchRequest{URL: "https://example.com"}, time.Unix(0, 0),
		&leadership.FetchResponse{}, new(error))
	require.Equal(t, "coverage-agent", collector.UserAgent)
	require.True(t, collector.IgnoreRobotsTxt)
	require.True(t, collector.AllowURLRevisit)
	require.True(t, collector.ParseHTTPErrorResponse)
	require.Equal(t, DefaultMaxBodyBytes, collector.MaxBodySize)

	override := f.buildCollector(leadership.FetchRequest{URL: "https://example.com", UserAgent: "explicit", RespectRobots: true},
		time.Unix(0, 0), &leadership.FetchResponse{}, new(error))
	require.Equal(t, "explicit", override.UserAgent)
	require.False(t, override.IgnoreRobotsTxt)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	req := leadership.FetchRequest{
		URL:     "https://example.com",
		Headers: http.Header{"X-Trace": {"yes"}},
	}
	var result leadership.FetchResponse
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, req, time.Unix(0, 0), &result, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	require.Equal(t, "yes", collyReq.Headers.Get("X-Trace"))
	require.Equal(t, "en-US,en;q=0.9", collyReq.Headers.Get("Accept-Language"))

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusForbidden,
		Body:       []byte("denied"),
		Headers:    &http.Header{"Server": {"cloudflare"}},
		Request:    &colly.Request{URL: mustParseURL(t, "https://example.com")},
	})
	require.Equal(t, http.StatusForbidden, result.StatusCode)
	require.Equal(t, "denied", string(result.Body))
	require.Equal(t, "cloudflare", result.Headers.Get("Server"))

	hooks.onError(nil, errors.New("boom"))
	require.EqualError(t, fetchErr, "boom")
}

func TestFetchReturnsErrorStatusesAsResponses(t *testing.T) {
	t.Parallel()

	var gotUA atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA.Store(r.UserAgent())
		if r.URL.Path == "/missing" {
			http.Error(w, "gone", http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("<html><body><h1>Team</h1></body></html>"))
	}))
	t.Cleanup(srv.Close)

	f := New(Config{UserAgents: []string{"pool-agent"}, Timeout: 2 * time.Second})

	resp, err := f.Fetch(context.Background(), leadership.FetchRequest{URL: srv.URL + "/team"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(resp.Body), "<h1>Team</h1>")
	require.Equal(t, "pool-agent", gotUA.Load())

	resp, err = f.Fetch(context.Background(), leadership.FetchRequest{URL: srv.URL + "/missing"})
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Same URL twice is allowed across attempts.
	_, err = f.Fetch(context.Background(), leadership.FetchRequest{URL: srv.URL + "/team"})
	require.NoError(t, err)
}

func TestFetchCapsBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("a", 4096)))
	}))
	t.Cleanup(srv.Close)

	f := New(Config{MaxBodyBytes: 1024})
	resp, err := f.Fetch(context.Background(), leadership.FetchRequest{URL: srv.URL})
	require.NoError(t, err)
	require.Len(t, resp.Body, 1024)
}

func TestFetchClassifiesConnectionFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	f := New(Config{Timeout: time.Second})
	_, err := f.Fetch(context.Background(), leadership.FetchRequest{URL: addr})
	require.Error(t, err)
	var fe *leadership.FetchError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, leadership.FailureConnection, fe.Class)
}

func TestFetchHonoursContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	f := New(Config{Timeout: 5 * time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := f.Fetch(ctx, leadership.FetchRequest{URL: srv.URL})
	require.Equal(t, leadership.FailureTimeout, leadership.ClassifyError(err))
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}

func TestFetchConcurrentCallsShareClient(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("<html><body>ok</body></html>"))
	}))
	t.Cleanup(srv.Close)

	f := New(Config{Timeout: 2 * time.Second})
	const workers = 8
	errs := make(chan error, workers)
	for i := range workers {
		go func() {
			_, err := f.Fetch(context.Background(), leadership.FetchRequest{URL: fmt.Sprintf("%s/page-%d", srv.URL, i)})
			errs <- err
		}()
	}
	for range workers {
		require.NoError(t, <-errs)
	}
	require.Equal(t, int32(workers), hits.Load())
}

func TestFetchAppliesRequestTimeoutToClones(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	f := New(Config{Timeout: 100 * time.Millisecond})
	_, err := f.Fetch(context.Background(), leadership.FetchRequest{URL: srv.URL})
	require.Equal(t, leadership.FailureTimeout, leadership.ClassifyError(err))
}
