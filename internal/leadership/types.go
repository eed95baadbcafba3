package leadership

import (
	"net/http"
	"strings"
	"time"
)

// Category is one of the five fixed leadership slots.
type Category string

// Supported categories, in tie-resolution order.
const (
	CategoryExecutive    Category = "Executive Leadership"
	CategoryTechnology   Category = "Technology / Operations"
	CategoryFinance      Category = "Finance / Administration"
	CategoryBusinessDev  Category = "Business Development / Growth"
	CategoryMarketing    Category = "Marketing / Branding"
	CategoryUnclassified Category = ""
)

// Categories lists every category in their fixed order.
var Categories = []Category{
	CategoryExecutive,
	CategoryTechnology,
	CategoryFinance,
	CategoryBusinessDev,
	CategoryMarketing,
}

// Method names the extraction strategy that produced a candidate.
type Method string

// Extraction methods.
const (
	MethodStructured Method = "structured"
	MethodTable      Method = "table"
	MethodCard       Method = "card"
	MethodList       Method = "list"
	MethodTextPair   Method = "text_pair"
	MethodModel      Method = "model"
)

// Candidate is a proposed (name, role) pair. Strategies construct it with a
// zero confidence; the scorer fills it in.
type Candidate struct {
	Name       string  `json:"name"`
	RoleText   string  `json:"role"`
	Confidence float64 `json:"confidence"`
	SourceURL  string  `json:"source_url"`
	Method     Method  `json:"method"`
	Evidence   string  `json:"evidence,omitempty"`
	Email      string  `json:"email,omitempty"`
	Phone      string  `json:"phone,omitempty"`
	LinkedIn   string  `json:"linkedin,omitempty"`
}

// BucketEntry is the leader assigned to a category. Empty fields mean the
// category was not filled.
type BucketEntry struct {
	Name        string `json:"name"`
	Designation string `json:"designation"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	LinkedIn    string `json:"linkedin,omitempty"`
}

// Filled reports whether the entry names a person.
func (b BucketEntry) Filled() bool {
	return strings.TrimSpace(b.Name) != ""
}

// Leader is a populated bucket entry tagged with its category.
type Leader struct {
	Category Category `json:"category"`
	BucketEntry
}

// Outcome is the terminal state of one company run.
type Outcome string

// Supported outcomes.
const (
	OutcomeSuccess Outcome = "success"
	OutcomeSkip    Outcome = "skip"
	OutcomeTimeout Outcome = "timeout"
)

// SkipReasonTimeout marks companies cut off by the batch budget.
const SkipReasonTimeout = "skipped: timeout"

// Metadata describes how a result was produced.
type Metadata struct {
	PagesChecked       int    `json:"pages_checked"`
	FetchModeEscalated bool   `json:"fetch_mode_escalated"`
	Attempts           int    `json:"attempts"`
	ElapsedMs          int64  `json:"elapsed_ms"`
	LastErrorClass     string `json:"last_error_class,omitempty"`
	SkipReason         string `json:"skip_reason,omitempty"`
}

// Result is the per-company output. Buckets always holds all five categories.
type Result struct {
	CompanyKey      string                   `json:"company_key"`
	CompanyName     string                   `json:"company_name"`
	Website         string                   `json:"website"`
	Buckets         map[Category]BucketEntry `json:"buckets"`
	Leaders         []Leader                 `json:"leaders_flat"`
	Candidates      []Candidate              `json:"candidates,omitempty"`
	LeadershipFound bool                     `json:"leadership_found"`
	Outcome         Outcome                  `json:"outcome"`
	Metadata        Metadata                 `json:"metadata"`
}

// NewResult returns an empty result with every bucket present.
func NewResult(key string, company Company) Result {
	return Result{
		CompanyKey:  key,
		CompanyName: company.Name,
		Website:     company.Website,
		Buckets:     EmptyBuckets(),
		Leaders:     []Leader{},
		Outcome:     OutcomeSkip,
	}
}

// TimedOutResult is the placeholder recorded for a company cut off by a time
// budget before it finished.
func TimedOutResult(key string, company Company) Result {
	r := NewResult(key, company)
	r.Outcome = OutcomeTimeout
	r.Metadata.SkipReason = SkipReasonTimeout
	return r
}

// EmptyBuckets builds the five-entry bucket map with blank entries.
func EmptyBuckets() map[Category]BucketEntry {
	buckets := make(map[Category]BucketEntry, len(Categories))
	for _, c := range Categories {
		buckets[c] = BucketEntry{}
	}
	return buckets
}

// SetBuckets replaces the buckets and recomputes the derived fields.
func (r *Result) SetBuckets(buckets map[Category]BucketEntry) {
	r.Buckets = EmptyBuckets()
	r.Leaders = []Leader{}
	for _, c := range Categories {
		entry, ok := buckets[c]
		if !ok {
			continue
		}
		r.Buckets[c] = entry
		if entry.Filled() {
			r.Leaders = append(r.Leaders, Leader{Category: c, BucketEntry: entry})
		}
	}
	r.LeadershipFound = len(r.Leaders) > 0
}

// Company identifies one organization to process.
type Company struct {
	ID      string `json:"company_id,omitempty"`
	Name    string `json:"name"`
	Website string `json:"website"`
}

// FetchTarget is a candidate page in the frontier.
type FetchTarget struct {
	URL      string `json:"url"`
	Depth    int    `json:"depth"`
	Priority int    `json:"priority"`
	Visited  bool   `json:"visited"`
}

// AttemptState is scoped to one company run. Escalated is the sticky fetch
// mode flag: once set it stays set for the remainder of the run.
type AttemptState struct {
	Attempt              int
	MaxRetries           int
	EscalatedToAlternate bool
	LastErrorClass       string
	Escalated            bool
	PagesChecked         int
}

// Page is fetched, rendered markup.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	HTML       string
	Rendered   bool
}

// FetchRequest describes one low-level fetch.
type FetchRequest struct {
	URL           string
	UserAgent     string
	Headers       http.Header
	RespectRobots bool
}

// FetchResponse is the low-level fetch outcome.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// CompanyTask is one queued unit of batch work.
type CompanyTask struct {
	BatchID  string
	Index    int
	Company  Company
	Deadline time.Time
}

// BatchStatus is the lifecycle state of a batch.
type BatchStatus string

// Supported batch statuses.
const (
	BatchStatusQueued    BatchStatus = "queued"
	BatchStatusRunning   BatchStatus = "running"
	BatchStatusCompleted BatchStatus = "completed"
	BatchStatusTimedOut  BatchStatus = "timed_out"
)

// BatchCounters aggregate per-company outcomes.
type BatchCounters struct {
	Total    int `json:"total"`
	Done     int `json:"done"`
	Found    int `json:"found"`
	Skipped  int `json:"skipped"`
	TimedOut int `json:"timed_out"`
}

// Batch is a group of companies processed under one wall-clock budget.
type Batch struct {
	ID        string        `json:"id"`
	Status    BatchStatus   `json:"status"`
	Submitted time.Time     `json:"submitted"`
	Deadline  time.Time     `json:"deadline"`
	Finished  *time.Time    `json:"finished,omitempty"`
	Companies []Company     `json:"companies"`
	Results   []*Result     `json:"results"`
	Counters  BatchCounters `json:"counters"`
}
