package headless

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/leadership-finder/internal/leadership"
)

func TestNewChromedpLimiterValidation(t *testing.T) {
	t.Parallel()

	_, err := NewChromedp(Config{MaxParallel: -1})
	require.Error(t, err)

	fetcher, err := NewChromedp(Config{MaxParallel: 2})
	require.NoError(t, err)
	t.Cleanup(fetcher.Close)
	require.Equal(t, 2, cap(fetcher.limiter))
}

func TestFetcherNavTimeoutDefault(t *testing.T) {
	t.Parallel()

	fetcher := &Fetcher{}
	require.Equal(t, defaultNavTimeout, fetcher.navTimeout())
	fetcher.cfg.NavigationTimeout = time.Second
	require.Equal(t, time.Second, fetcher.navTimeout())
}

func TestPickUserAgent(t *testing.T) {
	t.Parallel()

	require.Empty(t, (&Fetcher{}).pickUserAgent())
	f := &Fetcher{cfg: Config{UserAgents: []string{"a", "b"}}}
	for range 10 {
		require.Contains(t, []string{"a", "b"}, f.pickUserAgent())
	}
}

func TestCloneHeaderAndNetworkHeaders(t *testing.T) {
	t.Parallel()

	src := http.Header{"X-Test": {"a", "b"}, "X-One": {"1"}}
	cloned := cloneHeader(src)
	cloned.Add("X-Test", "c")
	require.Len(t, src["X-Test"], 2)

	netHeaders := toNetworkHeaders(src)
	require.Equal(t, []string{"a", "b"}, netHeaders["X-Test"])
	require.Equal(t, "1", netHeaders["X-One"])
}

func TestResponseMetaKeepsFirstDocument(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.captureEvent(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			Status:  403,
			URL:     "https://example.com/team",
			Headers: network.Headers{"Server": "cloudflare"},
		},
	})
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 200, URL: "https://example.com/frame"},
	})
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeScript,
		Response: &network.Response{Status: 500, URL: "https://example.com/app.js"},
	})

	status, headers, url := meta.snapshotWithFallbacks("https://req", "")
	require.Equal(t, 403, status)
	require.Equal(t, "cloudflare", headers.Get("Server"))
	require.Equal(t, "https://example.com/team", url)

	meta = newResponseMeta()
	status, _, url = meta.snapshotWithFallbacks("https://req", "https://final")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "https://final", url)
}

func TestNoopLauncher(t *testing.T) {
	t.Parallel()

	browser, err := NewNoop().NewBrowser(context.Background())
	require.Nil(t, browser)
	require.ErrorIs(t, err, leadership.ErrHeadlessUnavailable)
}

func TestSessionRendersPage(t *testing.T) {
	t.Parallel()
	if !chromeAvailable() {
		t.Skip("chrome not installed")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body><div id="app"></div>
<script>document.getElementById('app').innerHTML = '<h2>Priya Shah</h2><p>' + (navigator.webdriver === undefined ? 'stealth' : 'bot') + '</p>';</script>
</body></html>`))
	}))
	t.Cleanup(srv.Close)

	fetcher, err := NewChromedp(Config{MaxParallel: 1, UserAgents: []string{"leadfinder-test"}, SettleDelay: 10 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(fetcher.Close)

	browser, err := fetcher.NewBrowser(context.Background())
	require.NoError(t, err)
	t.Cleanup(browser.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	resp, err := browser.Fetch(ctx, leadership.FetchRequest{URL: srv.URL})
	require.NoError(t, err)
	require.True(t, resp.UsedHeadless)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(resp.Body), "<h2>Priya Shah</h2>")
	require.Contains(t, string(resp.Body), "stealth")
}

func chromeAvailable() bool {
	for _, name := range []string{"google-chrome", "chromium", "chromium-browser", "headless-shell", "chrome"} {
		if _, err := exec.LookPath(name); err == nil {
			return true
		}
	}
	return false
}
