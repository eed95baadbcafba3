// Package dispatcher accepts batches of companies and fans them out to a
// pool of workers under a batch-wide time budget.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/leadership-finder/internal/leadership"
	"github.com/JakeFAU/leadership-finder/internal/worker"
)

// Config controls batch admission.
type Config struct {
	// BatchTimeout is the budget used when Submit is given none. Zero means
	// batches run until every company finishes.
	BatchTimeout time.Duration
	// MaxCompanies caps the size of one batch. Zero means unlimited.
	MaxCompanies int
}

// ErrTooManyCompanies is returned when a batch exceeds MaxCompanies.
var ErrTooManyCompanies = errors.New("batch exceeds the company limit")

// Dispatcher fans out queued company tasks to a pool of workers.
type Dispatcher struct {
	queue   leadership.Queue
	store   leadership.BatchStore
	ids     leadership.IDGenerator
	clock   leadership.Clock
	workers []*worker.Worker
	cfg     Config
	logger  *zap.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// New creates a Dispatcher.
func New(
	queue leadership.Queue,
	store leadership.BatchStore,
	ids leadership.IDGenerator,
	clock leadership.Clock,
	workers []*worker.Worker,
	cfg Config,
	logger *zap.Logger,
) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		queue:   queue,
		store:   store,
		ids:     ids,
		clock:   clock,
		workers: workers,
		cfg:     cfg,
		logger:  logger.Named("dispatcher"),
		timers:  make(map[string]*time.Timer),
	}
}

// Run starts all workers and blocks until they have all returned, which
// happens when ctx finishes or the queue is closed.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range d.workers {
		g.Go(func() error {
			w.Run(gctx)
			return nil
		})
	}
	err := g.Wait()
	d.stopTimers()
	return err
}

// Submit registers a batch and starts enqueueing its companies. It returns
// as soon as the batch is recorded. When budget (or the configured default)
// is positive, companies not finished by then are recorded as timed out and
// no further companies are started.
func (d *Dispatcher) Submit(ctx context.Context, companies []leadership.Company, budget time.Duration) (string, error) {
	if d.cfg.MaxCompanies > 0 && len(companies) > d.cfg.MaxCompanies {
		return "", fmt.Errorf("%w: %d > %d", ErrTooManyCompanies, len(companies), d.cfg.MaxCompanies)
	}
	if budget <= 0 {
		budget = d.cfg.BatchTimeout
	}
	id, err := d.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("batch id: %w", err)
	}

	now := d.now()
	batch := leadership.Batch{
		ID:        id,
		Submitted: now,
		Companies: append([]leadership.Company(nil), companies...),
	}
	if budget > 0 {
		batch.Deadline = now.Add(budget)
	}
	if err := d.store.CreateBatch(ctx, batch); err != nil {
		return "", fmt.Errorf("create batch: %w", err)
	}
	if len(companies) == 0 {
		return id, nil
	}
	if err := d.store.MarkRunning(ctx, id); err != nil {
		return "", fmt.Errorf("mark batch running: %w", err)
	}

	logger := d.logger.With(zap.String("batch_id", id))
	logger.Info("Batch accepted", zap.Int("companies", len(companies)), zap.Duration("budget", budget))

	// Enqueueing outlives the submitting request.
	base := context.WithoutCancel(ctx)
	var (
		enqueueCtx context.Context
		cancel     context.CancelFunc
	)
	if budget > 0 {
		enqueueCtx, cancel = context.WithDeadline(base, batch.Deadline)
		d.armTimer(id, budget)
	} else {
		enqueueCtx, cancel = context.WithCancel(base)
	}
	go func() {
		defer cancel()
		d.enqueue(enqueueCtx, batch, logger)
	}()
	return id, nil
}

func (d *Dispatcher) enqueue(ctx context.Context, batch leadership.Batch, logger *zap.Logger) {
	for i, company := range batch.Companies {
		task := leadership.CompanyTask{BatchID: batch.ID, Index: i, Company: company, Deadline: batch.Deadline}
		if err := d.queue.Enqueue(ctx, task); err != nil {
			logger.Warn("Stopped enqueueing batch",
				zap.Int("enqueued", i),
				zap.Int("remaining", len(batch.Companies)-i),
				zap.Error(err),
			)
			return
		}
	}
	logger.Debug("Batch fully enqueued", zap.Int("companies", len(batch.Companies)))
}

func (d *Dispatcher) armTimer(id string, budget time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.timers[id] = time.AfterFunc(budget, func() { d.expire(id) })
}

// expire closes a batch whose budget ran out.
func (d *Dispatcher) expire(id string) {
	d.mu.Lock()
	delete(d.timers, id)
	d.mu.Unlock()
	if err := d.store.Finalize(context.Background(), id); err != nil {
		d.logger.Error("Finalize batch failed", zap.String("batch_id", id), zap.Error(err))
		return
	}
	d.logger.Info("Batch budget expired", zap.String("batch_id", id))
}

func (d *Dispatcher) stopTimers() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, t := range d.timers {
		t.Stop()
		delete(d.timers, id)
	}
}

// Await blocks until the batch is terminal and returns its final state.
func (d *Dispatcher) Await(ctx context.Context, batchID string) (leadership.Batch, error) {
	if err := d.store.Wait(ctx, batchID); err != nil {
		return leadership.Batch{}, fmt.Errorf("await batch %s: %w", batchID, err)
	}
	return d.store.GetBatch(ctx, batchID)
}

// Batch returns the current state of a batch.
func (d *Dispatcher) Batch(ctx context.Context, batchID string) (leadership.Batch, error) {
	return d.store.GetBatch(ctx, batchID)
}

// Close stops intake. Workers drain what is already queued and then return.
func (d *Dispatcher) Close() {
	d.queue.Close()
}

func (d *Dispatcher) now() time.Time {
	if d.clock == nil {
		return time.Now().UTC()
	}
	return d.clock.Now()
}
