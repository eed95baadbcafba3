package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadership-finder/internal/leadership"
	pubmemory "github.com/JakeFAU/leadership-finder/internal/publisher/memory"
	queuememory "github.com/JakeFAU/leadership-finder/internal/queue/memory"
	storememory "github.com/JakeFAU/leadership-finder/internal/storage/memory"
)

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

// discoverFunc adapts a function to leadership.Discoverer.
type discoverFunc func(ctx context.Context, company leadership.Company) leadership.Result

func (f discoverFunc) Discover(ctx context.Context, company leadership.Company) leadership.Result {
	return f(ctx, company)
}

func foundResult(company leadership.Company) leadership.Result {
	res := leadership.NewResult(company.ID, company)
	res.SetBuckets(map[leadership.Category]leadership.BucketEntry{
		leadership.CategoryExecutive: {Name: "Anita Verma", Designation: "CEO"},
	})
	res.Outcome = leadership.OutcomeSuccess
	return res
}

type harness struct {
	queue *queuememory.Queue
	store *storememory.BatchStore
	pub   *pubmemory.Publisher
	clock fakeClock
}

func newHarness(t *testing.T, companies ...leadership.Company) *harness {
	t.Helper()
	h := &harness{
		queue: queuememory.NewQueue(len(companies)),
		store: storememory.NewBatchStore(nil),
		pub:   pubmemory.New(),
		clock: fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
	}
	require.NoError(t, h.store.CreateBatch(context.Background(), leadership.Batch{ID: "b1", Companies: companies}))
	for i, c := range companies {
		require.NoError(t, h.queue.Enqueue(context.Background(), leadership.CompanyTask{
			BatchID: "b1", Index: i, Company: c, Deadline: h.clock.now.Add(time.Minute),
		}))
	}
	h.queue.Close()
	return h
}

func (h *harness) run(t *testing.T, d leadership.Discoverer) leadership.Batch {
	t.Helper()
	w := New(h.queue, h.store, d, h.pub, h.clock, Config{Topic: "results"}, zap.NewNop())
	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop after the queue closed")
	}
	batch, err := h.store.GetBatch(context.Background(), "b1")
	require.NoError(t, err)
	return batch
}

func TestWorkerRecordsAndPublishes(t *testing.T) {
	t.Parallel()

	companies := []leadership.Company{{ID: "a", Name: "Acme"}, {ID: "g", Name: "Globex"}}
	h := newHarness(t, companies...)

	var mu sync.Mutex
	var deadlines []time.Time
	batch := h.run(t, discoverFunc(func(ctx context.Context, c leadership.Company) leadership.Result {
		dl, _ := ctx.Deadline()
		mu.Lock()
		deadlines = append(deadlines, dl)
		mu.Unlock()
		if c.ID == "g" {
			return leadership.NewResult(c.ID, c)
		}
		return foundResult(c)
	}))

	require.Equal(t, leadership.BatchStatusCompleted, batch.Status)
	require.Equal(t, leadership.BatchCounters{Total: 2, Done: 2, Found: 1, Skipped: 1}, batch.Counters)
	require.Equal(t, leadership.OutcomeSuccess, batch.Results[0].Outcome)
	require.Equal(t, leadership.OutcomeSkip, batch.Results[1].Outcome)
	require.Equal(t, []time.Time{h.clock.now.Add(time.Minute), h.clock.now.Add(time.Minute)}, deadlines)

	msgs := h.pub.Messages()
	require.Len(t, msgs, 2)
	var ev Event
	require.NoError(t, json.Unmarshal(msgs[0].Data, &ev))
	require.Equal(t, "results", msgs[0].Topic)
	require.Equal(t, "b1", ev.BatchID)
	require.Equal(t, "a", ev.CompanyKey)
	require.True(t, ev.LeadershipFound)
	require.Equal(t, "2026-01-02T03:04:05Z", ev.Timestamp)
}

func TestWorkerSkipsTasksPastDeadline(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	require.NoError(t, h.store.CreateBatch(context.Background(), leadership.Batch{
		ID: "late", Companies: []leadership.Company{{ID: "a", Name: "Acme"}},
	}))
	q := queuememory.NewQueue(1)
	require.NoError(t, q.Enqueue(context.Background(), leadership.CompanyTask{
		BatchID: "late", Company: leadership.Company{ID: "a", Name: "Acme"}, Deadline: h.clock.now.Add(-time.Second),
	}))
	q.Close()

	called := false
	w := New(q, h.store, discoverFunc(func(context.Context, leadership.Company) leadership.Result {
		called = true
		return leadership.Result{}
	}), nil, h.clock, Config{}, nil)
	w.Run(context.Background())

	require.False(t, called)
	batch, err := h.store.GetBatch(context.Background(), "late")
	require.NoError(t, err)
	require.Equal(t, leadership.OutcomeTimeout, batch.Results[0].Outcome)
	require.Equal(t, leadership.SkipReasonTimeout, batch.Results[0].Metadata.SkipReason)
	require.Equal(t, 1, batch.Counters.TimedOut)
}

func TestWorkerSurvivesPanics(t *testing.T) {
	t.Parallel()

	companies := []leadership.Company{{ID: "boom", Name: "Boom"}, {ID: "ok", Name: "Okay"}}
	h := newHarness(t, companies...)
	batch := h.run(t, discoverFunc(func(_ context.Context, c leadership.Company) leadership.Result {
		if c.ID == "boom" {
			panic("parser exploded")
		}
		return foundResult(c)
	}))

	require.Equal(t, leadership.BatchStatusCompleted, batch.Status)
	require.Equal(t, leadership.OutcomeSkip, batch.Results[0].Outcome)
	require.Equal(t, PanicClass, batch.Results[0].Metadata.LastErrorClass)
	require.Len(t, batch.Results[0].Buckets, len(leadership.Categories))
	require.Equal(t, leadership.OutcomeSuccess, batch.Results[1].Outcome)
}

func TestWorkerPublishFailureKeepsResult(t *testing.T) {
	t.Parallel()

	h := newHarness(t, leadership.Company{ID: "a", Name: "Acme"})
	h.pub.FailWith(errors.New("broker down"))
	batch := h.run(t, discoverFunc(func(_ context.Context, c leadership.Company) leadership.Result {
		return foundResult(c)
	}))

	require.Equal(t, 1, batch.Counters.Found)
	require.Empty(t, h.pub.Messages())
}

func TestWorkerStopsOnContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	w := New(queuememory.NewQueue(1), storememory.NewBatchStore(nil), discoverFunc(nil), nil, nil, Config{}, nil)
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker ignored cancellation")
	}
}

func TestGuardPassesThroughResults(t *testing.T) {
	t.Parallel()

	c := leadership.Company{ID: "a", Name: "Acme"}
	res := Guard(context.Background(), discoverFunc(func(_ context.Context, c leadership.Company) leadership.Result {
		return foundResult(c)
	}), c, nil)
	require.True(t, res.LeadershipFound)
}
