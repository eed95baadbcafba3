package discovery

import (
	"container/heap"
	"net/url"

	"github.com/JakeFAU/leadership-finder/internal/leadership"
)

// Frontier is a bounded, deduplicated priority queue of fetch targets for a
// single company run. Higher priorities pop first; equal priorities pop in
// insertion order. A URL is accepted at most once for the frontier's lifetime.
type Frontier struct {
	root  *url.URL
	limit int
	seq   int
	seen  map[string]struct{}
	items targetHeap
}

// NewFrontier returns an empty frontier accepting at most limit targets.
// A non-positive limit means unbounded.
func NewFrontier(limit int) *Frontier {
	return &Frontier{
		limit: limit,
		seen:  make(map[string]struct{}),
	}
}

// Root is the homepage the frontier was seeded from.
func (f *Frontier) Root() *url.URL { return f.root }

// Push canonicalizes and enqueues target. It reports false for duplicates,
// unparsable URLs or when the frontier is full.
func (f *Frontier) Push(target leadership.FetchTarget) bool {
	canon, err := leadership.CanonicalizeURL(target.URL)
	if err != nil {
		return false
	}
	if _, dup := f.seen[canon]; dup {
		return false
	}
	if f.limit > 0 && len(f.seen) >= f.limit {
		return false
	}
	f.seen[canon] = struct{}{}
	target.URL = canon
	target.Visited = false
	heap.Push(&f.items, &queued{target: target, seq: f.seq})
	f.seq++
	return true
}

// Pop removes the highest-priority target and marks it visited.
func (f *Frontier) Pop() (leadership.FetchTarget, bool) {
	if f.items.Len() == 0 {
		return leadership.FetchTarget{}, false
	}
	item, ok := heap.Pop(&f.items).(*queued)
	if !ok {
		return leadership.FetchTarget{}, false
	}
	item.target.Visited = true
	return item.target, true
}

// Seen reports whether rawURL was already accepted.
func (f *Frontier) Seen(rawURL string) bool {
	canon, err := leadership.CanonicalizeURL(rawURL)
	if err != nil {
		return false
	}
	_, ok := f.seen[canon]
	return ok
}

// Len returns the number of targets still queued.
func (f *Frontier) Len() int { return f.items.Len() }

type queued struct {
	target leadership.FetchTarget
	seq    int
}

type targetHeap []*queued

func (h targetHeap) Len() int { return len(h) }

func (h targetHeap) Less(i, j int) bool {
	if h[i].target.Priority != h[j].target.Priority {
		return h[i].target.Priority > h[j].target.Priority
	}
	return h[i].seq < h[j].seq
}

func (h targetHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *targetHeap) Push(x any) {
	item, ok := x.(*queued)
	if !ok {
		return
	}
	*h = append(*h, item)
}

func (h *targetHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
