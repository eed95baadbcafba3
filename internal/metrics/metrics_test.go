package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, SanitizeSite(tc.input))
		})
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	require.NotNil(t, pageFetchesTotal)
	require.NotNil(t, companiesTotal)
	require.NotNil(t, cacheLookupsTotal)
	require.NotNil(t, httpRequestsTotal)
}

func TestObservers(t *testing.T) {
	Init()

	before := testutil.ToFloat64(pageFetchesTotal.WithLabelValues("browser", "blocked"))
	ObservePageFetch("browser", "blocked", 512)
	require.InDelta(t, before+1, testutil.ToFloat64(pageFetchesTotal.WithLabelValues("browser", "blocked")), 0.001)

	before = testutil.ToFloat64(companiesTotal.WithLabelValues("timeout"))
	ObserveCompany("timeout", 3*time.Second)
	require.InDelta(t, before+1, testutil.ToFloat64(companiesTotal.WithLabelValues("timeout")), 0.001)

	before = testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("hit"))
	ObserveCacheLookup("hit")
	require.InDelta(t, before+1, testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("hit")), 0.001)

	before = testutil.ToFloat64(escalationsTotal)
	ObserveEscalation()
	require.InDelta(t, before+1, testutil.ToFloat64(escalationsTotal), 0.001)

	IncActiveWorkers()
	DecActiveWorkers()
	ObservePolitenessDelay("example.com", time.Second)
	require.Positive(t, testutil.CollectAndCount(politenessDelaySeconds))
}

func FuzzSanitizeSite(f *testing.F) {
	for _, tc := range []string{"http://example.com", "https://google.com", "ftp://example.com"} {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if SanitizeSite(orig) == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
