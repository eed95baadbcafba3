package leadership

import (
	"context"
	"io"
	"time"
)

// Fetcher performs a single low-level page fetch.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (FetchResponse, error)
}

// Browser is a scripted browser session owned by one company run.
type Browser interface {
	Fetch(ctx context.Context, req FetchRequest) (FetchResponse, error)
	Close()
}

// BrowserLauncher opens browser sessions.
type BrowserLauncher interface {
	NewBrowser(ctx context.Context) (Browser, error)
}

// PageSession fetches pages for one company run, honouring the sticky
// escalation flag of the AttemptState it was opened with.
type PageSession interface {
	Fetch(ctx context.Context, rawURL string) (Page, error)
	Close()
}

// PageFetcher opens per-company page sessions.
type PageFetcher interface {
	Open(state *AttemptState) PageSession
}

// CandidateExtractor proposes raw candidates from a page.
type CandidateExtractor interface {
	Extract(ctx context.Context, page Page) []Candidate
}

// Cache stores final per-company results. A miss returns found=false and a
// nil error; errors are reserved for backend faults.
type Cache interface {
	Get(ctx context.Context, key string) (Result, bool, error)
	Set(ctx context.Context, key string, result Result) error
}

// Discoverer runs the full per-company pipeline.
type Discoverer interface {
	Discover(ctx context.Context, company Company) Result
}

// Queue provides FIFO semantics for company tasks.
type Queue interface {
	Enqueue(ctx context.Context, task CompanyTask) error
	Dequeue(ctx context.Context) (CompanyTask, error)
	Close()
}

// BatchStore persists batches and their per-company results.
type BatchStore interface {
	CreateBatch(ctx context.Context, batch Batch) error
	MarkRunning(ctx context.Context, batchID string) error
	RecordResult(ctx context.Context, batchID string, index int, result Result) error
	Finalize(ctx context.Context, batchID string) error
	GetBatch(ctx context.Context, batchID string) (Batch, error)
	Wait(ctx context.Context, batchID string) error
}

// BlobStore persists export artifacts.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Publisher sends result notifications.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes stable content digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// IDGenerator yields unique identifiers.
type IDGenerator interface {
	NewID() (string, error)
}
