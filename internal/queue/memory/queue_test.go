package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/leadership-finder/internal/leadership"
)

func task(i int) leadership.CompanyTask {
	return leadership.CompanyTask{BatchID: "b1", Index: i, Company: leadership.Company{Name: "Acme"}}
}

func TestQueueDeliversInOrder(t *testing.T) {
	t.Parallel()

	q := NewQueue(3)
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(context.Background(), task(i)))
	}
	require.Equal(t, 3, q.Len())
	for i := 0; i < 3; i++ {
		got, err := q.Dequeue(context.Background())
		require.NoError(t, err)
		require.Equal(t, i, got.Index)
	}
}

func TestQueueDequeueWaitsForProducer(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	got := make(chan leadership.CompanyTask, 1)
	go func() {
		tk, err := q.Dequeue(context.Background())
		if err == nil {
			got <- tk
		}
	}()
	require.NoError(t, q.Enqueue(context.Background(), task(7)))
	select {
	case tk := <-got:
		require.Equal(t, 7, tk.Index)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return the task")
	}
}

func TestQueueHonorsContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewQueue(1).Dequeue(ctx)
	require.ErrorIs(t, err, context.Canceled)

	full := NewQueue(1)
	require.NoError(t, full.Enqueue(context.Background(), task(0)))
	err = full.Enqueue(ctx, task(1))
	require.ErrorIs(t, err, context.Canceled)
}

func TestQueueCloseDrainsThenFails(t *testing.T) {
	t.Parallel()

	q := NewQueue(2)
	require.NoError(t, q.Enqueue(context.Background(), task(0)))
	q.Close()
	q.Close()

	require.True(t, errors.Is(q.Enqueue(context.Background(), task(1)), ErrClosed))
	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, got.Index)
	_, err = q.Dequeue(context.Background())
	require.ErrorIs(t, err, ErrClosed)
}

func TestQueueCloseReleasesBlockedProducers(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	require.NoError(t, q.Enqueue(context.Background(), task(0)))
	errCh := make(chan error, 1)
	go func() { errCh <- q.Enqueue(context.Background(), task(1)) }()

	time.Sleep(10 * time.Millisecond)
	q.Close()
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("blocked enqueue was not released")
	}
}
