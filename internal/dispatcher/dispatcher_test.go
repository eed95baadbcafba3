package dispatcher

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadership-finder/internal/cache"
	"github.com/JakeFAU/leadership-finder/internal/id/uuid"
	"github.com/JakeFAU/leadership-finder/internal/leadership"
	queuememory "github.com/JakeFAU/leadership-finder/internal/queue/memory"
	storememory "github.com/JakeFAU/leadership-finder/internal/storage/memory"
	"github.com/JakeFAU/leadership-finder/internal/worker"
)

type discoverFunc func(ctx context.Context, company leadership.Company) leadership.Result

func (f discoverFunc) Discover(ctx context.Context, company leadership.Company) leadership.Result {
	return f(ctx, company)
}

func instant(_ context.Context, c leadership.Company) leadership.Result {
	res := leadership.NewResult(cache.Key(c), c)
	res.SetBuckets(map[leadership.Category]leadership.BucketEntry{
		leadership.CategoryExecutive: {Name: "Anita Verma", Designation: "CEO"},
	})
	res.Outcome = leadership.OutcomeSuccess
	return res
}

// blocking waits for the company deadline and reports a timeout.
func blocking(ctx context.Context, c leadership.Company) leadership.Result {
	<-ctx.Done()
	return leadership.TimedOutResult(cache.Key(c), c)
}

func newDispatcher(t *testing.T, workers int, d leadership.Discoverer, cfg Config) (*Dispatcher, context.CancelFunc) {
	t.Helper()
	q := queuememory.NewQueue(16)
	store := storememory.NewBatchStore(nil)
	pool := make([]*worker.Worker, workers)
	for i := range pool {
		pool[i] = worker.New(q, store, d, nil, nil, worker.Config{}, zap.NewNop())
	}
	disp := New(q, store, uuid.New(), nil, pool, cfg, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- disp.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("dispatcher did not stop")
		}
	})
	return disp, cancel
}

func companies(n int) []leadership.Company {
	out := make([]leadership.Company, n)
	for i := range out {
		out[i] = leadership.Company{Name: "Company " + string(rune('A'+i)), Website: "https://c" + string(rune('a'+i)) + ".test"}
	}
	return out
}

func TestSubmitRunsEveryCompany(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	disp, _ := newDispatcher(t, 3, discoverFunc(func(ctx context.Context, c leadership.Company) leadership.Result {
		calls.Add(1)
		return instant(ctx, c)
	}), Config{})

	id, err := disp.Submit(context.Background(), companies(5), 0)
	require.NoError(t, err)
	require.True(t, uuid.Valid(id))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	batch, err := disp.Await(ctx, id)
	require.NoError(t, err)
	require.Equal(t, leadership.BatchStatusCompleted, batch.Status)
	require.Equal(t, 5, batch.Counters.Found)
	require.EqualValues(t, 5, calls.Load())
	for i, res := range batch.Results {
		require.NotNil(t, res)
		require.Equal(t, batch.Companies[i].Name, res.CompanyName)
	}
	require.True(t, batch.Deadline.IsZero())
}

func TestSubmitBudgetTimesOutUnfinishedCompanies(t *testing.T) {
	t.Parallel()

	disp, _ := newDispatcher(t, 1, discoverFunc(blocking), Config{})

	id, err := disp.Submit(context.Background(), companies(3), 50*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	batch, err := disp.Await(ctx, id)
	require.NoError(t, err)
	require.Equal(t, leadership.BatchStatusTimedOut, batch.Status)
	require.Equal(t, 3, batch.Counters.TimedOut)
	for _, res := range batch.Results {
		require.Equal(t, leadership.OutcomeTimeout, res.Outcome)
		require.Equal(t, leadership.SkipReasonTimeout, res.Metadata.SkipReason)
		require.Len(t, res.Buckets, len(leadership.Categories))
	}
	require.False(t, batch.Deadline.IsZero())
}

func TestSubmitDefaultBudgetAndLimits(t *testing.T) {
	t.Parallel()

	disp, _ := newDispatcher(t, 1, discoverFunc(blocking), Config{BatchTimeout: 30 * time.Millisecond, MaxCompanies: 2})

	_, err := disp.Submit(context.Background(), companies(3), 0)
	require.ErrorIs(t, err, ErrTooManyCompanies)

	id, err := disp.Submit(context.Background(), companies(1), 0)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	batch, err := disp.Await(ctx, id)
	require.NoError(t, err)
	require.Equal(t, leadership.BatchStatusTimedOut, batch.Status)
}

func TestSubmitEmptyBatchCompletesImmediately(t *testing.T) {
	t.Parallel()

	disp, _ := newDispatcher(t, 1, discoverFunc(instant), Config{})
	id, err := disp.Submit(context.Background(), nil, time.Minute)
	require.NoError(t, err)

	batch, err := disp.Batch(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, leadership.BatchStatusCompleted, batch.Status)
	require.Zero(t, batch.Counters.Total)
}

func TestAwaitUnknownBatch(t *testing.T) {
	t.Parallel()

	disp, _ := newDispatcher(t, 1, discoverFunc(instant), Config{})
	_, err := disp.Await(context.Background(), "missing")
	require.ErrorIs(t, err, leadership.ErrNotFound)
}
