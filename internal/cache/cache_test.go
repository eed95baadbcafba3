package cache

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/leadership-finder/internal/leadership"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestKey(t *testing.T) {
	t.Parallel()

	require.Equal(t, "crm-42", Key(leadership.Company{ID: " crm-42 ", Name: "Acme", Website: "acme.test"}))
	require.Equal(t, "acme.test::cafe nero holdings",
		Key(leadership.Company{Name: "  Café   Nérö Holdings ", Website: "https://www.Acme.test:8443/about?x=1"}))

	long := Key(leadership.Company{Name: strings.Repeat("a", 200), Website: "acme.test"})
	require.Equal(t, "acme.test::"+strings.Repeat("a", maxNameRunes), long)
}

func TestNormalizeHost(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"https://WWW.Acme.test/team": "acme.test",
		"acme.test":                  "acme.test",
		"http://acme.test:8080":      "acme.test",
		"www.acme.test/about":        "acme.test",
		"":                           "",
	}
	for in, want := range cases {
		require.Equal(t, want, NormalizeHost(in), in)
	}
}

func TestNormalizeName(t *testing.T) {
	t.Parallel()

	require.Equal(t, "societe generale", NormalizeName("Société  Générale"))
	require.Equal(t, "acme pvt ltd", NormalizeName("ACME\tPvt Ltd"))
}

func TestMemoryTTL(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewMemory(time.Hour, clock)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)

	res := leadership.NewResult("k", leadership.Company{Name: "Acme", Website: "https://acme.test"})
	res.SetBuckets(map[leadership.Category]leadership.BucketEntry{
		leadership.CategoryExecutive: {Name: "Anita Verma", Designation: "CEO"},
	})
	res.Outcome = leadership.OutcomeSuccess
	require.NoError(t, c.Set(ctx, "k", res))

	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	want, err := json.Marshal(res)
	require.NoError(t, err)
	gotJSON, err := json.Marshal(got)
	require.NoError(t, err)
	require.JSONEq(t, string(want), string(gotJSON))

	clock.Advance(2 * time.Hour)
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 1, c.Len(), "stale entries are not evicted on read")
}

func TestMemoryIsolatesCallers(t *testing.T) {
	t.Parallel()

	c := NewMemory(0, nil)
	ctx := context.Background()
	res := leadership.NewResult("k", leadership.Company{Name: "Acme"})
	require.NoError(t, c.Set(ctx, "k", res))

	res.Buckets[leadership.CategoryFinance] = leadership.BucketEntry{Name: "Mutated Later"}
	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, got.Buckets[leadership.CategoryFinance].Filled())
}
