// Package worker consumes company tasks, runs discovery for each and records
// the outcome against its batch.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/leadership-finder/internal/cache"
	"github.com/JakeFAU/leadership-finder/internal/leadership"
	"github.com/JakeFAU/leadership-finder/internal/metrics"
	"github.com/JakeFAU/leadership-finder/internal/queue/memory"
)

// PanicClass is recorded as the last error class of a company whose
// discovery panicked.
const PanicClass = "panic"

// Config controls Worker behavior.
type Config struct {
	// Topic receives one notification per finished company. Empty disables
	// notifications.
	Topic string
}

// Event is the per-company notification payload.
type Event struct {
	BatchID         string              `json:"batch_id"`
	Index           int                 `json:"index"`
	CompanyKey      string              `json:"company_key"`
	CompanyName     string              `json:"company_name"`
	Outcome         leadership.Outcome  `json:"outcome"`
	LeadershipFound bool                `json:"leadership_found"`
	Leaders         []leadership.Leader `json:"leaders"`
	Timestamp       string              `json:"timestamp"`
}

// Worker pulls tasks from the queue until it is closed or ctx ends.
type Worker struct {
	queue      leadership.Queue
	store      leadership.BatchStore
	discoverer leadership.Discoverer
	publisher  leadership.Publisher
	clock      leadership.Clock
	cfg        Config
	logger     *zap.Logger
}

// New constructs a Worker. publisher may be nil.
func New(
	queue leadership.Queue,
	store leadership.BatchStore,
	discoverer leadership.Discoverer,
	publisher leadership.Publisher,
	clock leadership.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:      queue,
		store:      store,
		discoverer: discoverer,
		publisher:  publisher,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run blocks, consuming tasks until the queue closes or ctx finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		task, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, memory.ErrClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued company",
			zap.String("batch_id", task.BatchID),
			zap.Int("index", task.Index),
			zap.String("company", task.Company.Name),
		)
		w.process(ctx, task)
	}
}

func (w *Worker) process(ctx context.Context, task leadership.CompanyTask) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	res := w.discover(ctx, task)

	if err := w.store.RecordResult(ctx, task.BatchID, task.Index, res); err != nil {
		w.logger.Error("record result failed",
			zap.String("batch_id", task.BatchID),
			zap.Int("index", task.Index),
			zap.Error(err),
		)
		return
	}
	w.notify(ctx, task, res)
}

// discover runs the company under the batch deadline. A task dequeued after
// its deadline is not started.
func (w *Worker) discover(ctx context.Context, task leadership.CompanyTask) leadership.Result {
	if !task.Deadline.IsZero() {
		if !w.now().Before(task.Deadline) {
			w.logger.Info("company skipped past batch deadline",
				zap.String("batch_id", task.BatchID),
				zap.Int("index", task.Index),
			)
			return leadership.TimedOutResult(cache.Key(task.Company), task.Company)
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, task.Deadline)
		defer cancel()
	}
	return Guard(ctx, w.discoverer, task.Company, w.logger)
}

// Guard runs d for company and turns a panic into a skip result.
func Guard(ctx context.Context, d leadership.Discoverer, company leadership.Company, logger *zap.Logger) (res leadership.Result) {
	defer func() {
		if rec := recover(); rec != nil {
			if logger != nil {
				logger.Error("discovery panicked",
					zap.String("company", company.Name),
					zap.String("panic", fmt.Sprint(rec)),
					zap.Stack("stack"),
				)
			}
			res = leadership.NewResult(cache.Key(company), company)
			res.Metadata.LastErrorClass = PanicClass
			res.Metadata.SkipReason = "internal error"
		}
	}()
	return d.Discover(ctx, company)
}

func (w *Worker) notify(ctx context.Context, task leadership.CompanyTask, res leadership.Result) {
	if w.cfg.Topic == "" || w.publisher == nil {
		return
	}
	event := Event{
		BatchID:         task.BatchID,
		Index:           task.Index,
		CompanyKey:      res.CompanyKey,
		CompanyName:     res.CompanyName,
		Outcome:         res.Outcome,
		LeadershipFound: res.LeadershipFound,
		Leaders:         res.Leaders,
		Timestamp:       w.now().Format(time.RFC3339),
	}
	id, err := w.publisher.Publish(ctx, w.cfg.Topic, event)
	if err != nil {
		metrics.ObserveNotificationFailure()
		w.logger.Warn("result notification failed",
			zap.String("batch_id", task.BatchID),
			zap.String("company_key", res.CompanyKey),
			zap.Error(err),
		)
		return
	}
	w.logger.Debug("result published",
		zap.String("batch_id", task.BatchID),
		zap.String("company_key", res.CompanyKey),
		zap.String("message_id", id),
	)
}

func (w *Worker) now() time.Time {
	if w.clock == nil {
		return time.Now().UTC()
	}
	return w.clock.Now()
}
