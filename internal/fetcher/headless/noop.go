package headless

import (
	"context"

	"github.com/JakeFAU/leadership-finder/internal/leadership"
)

// Noop is the launcher used when browser rendering is disabled.
type Noop struct{}

// NewNoop creates a new Noop launcher.
func NewNoop() *Noop {
	return &Noop{}
}

// NewBrowser always reports that no browser is available.
func (Noop) NewBrowser(_ context.Context) (leadership.Browser, error) {
	return nil, leadership.ErrHeadlessUnavailable
}
