package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/leadership-finder/internal/leadership"
)

type stepClock struct{ now time.Time }

func (c *stepClock) Now() time.Time { return c.now }

func newCache(t *testing.T, clock leadership.Clock) *Cache {
	t.Helper()
	c, err := Open(context.Background(), filepath.Join(t.TempDir(), "cache.db"), 72*time.Hour, clock)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCacheRoundTripAndUpsert(t *testing.T) {
	t.Parallel()

	clock := &stepClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	c := newCache(t, clock)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "acme.test::acme")
	require.NoError(t, err)
	require.False(t, ok)

	res := leadership.NewResult("acme.test::acme", leadership.Company{Name: "Acme", Website: "https://acme.test"})
	res.SetBuckets(map[leadership.Category]leadership.BucketEntry{
		leadership.CategoryFinance: {Name: "Anita Verma", Designation: "CFO"},
	})
	res.Outcome = leadership.OutcomeSuccess
	require.NoError(t, c.Set(ctx, res.CompanyKey, res))

	got, ok, err := c.Get(ctx, res.CompanyKey)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Anita Verma", got.Buckets[leadership.CategoryFinance].Name)
	require.True(t, got.LeadershipFound)

	res.Outcome = leadership.OutcomeSkip
	require.NoError(t, c.Set(ctx, res.CompanyKey, res))
	got, ok, err = c.Get(ctx, res.CompanyKey)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, leadership.OutcomeSkip, got.Outcome)
}

func TestCacheExpiresEntries(t *testing.T) {
	t.Parallel()

	clock := &stepClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	c := newCache(t, clock)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", leadership.NewResult("k", leadership.Company{Name: "Acme"})))
	clock.now = clock.now.Add(73 * time.Hour)

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), "", time.Hour, nil)
	require.Error(t, err)
}
