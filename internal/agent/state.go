package agent

import "github.com/JakeFAU/leadership-finder/internal/leadership"

// State is a node of the per-company controller state machine.
type State string

// Controller states.
const (
	StateInit         State = "INIT"
	StateDiscover     State = "DISCOVER"
	StateFetchExtract State = "FETCH_EXTRACT"
	StateEvaluate     State = "EVALUATE"
	StateRetryWait    State = "RETRY_WAIT"
	StateAlternate    State = "ALTERNATE"
	StateDoneSuccess  State = "DONE_SUCCESS"
	StateDoneSkip     State = "DONE_SKIP"
)

// Terminal reports whether s ends the run.
func (s State) Terminal() bool {
	return s == StateDoneSuccess || s == StateDoneSkip
}

// Evaluation is everything Decide looks at.
type Evaluation struct {
	CacheHit bool
	// BucketsFilled counts populated categories after the latest pass.
	BucketsFilled int
	// Attempt is the number of completed fetch/extract passes.
	Attempt     int
	MaxAttempts int
	// LastErrorClass is the last fetch failure seen in the latest pass.
	LastErrorClass leadership.FailureClass
	AlternateUsed  bool
	// SinglePass disables retries and alternate passes.
	SinglePass bool
	// BudgetExhausted is set once the per-company time budget has run out.
	BudgetExhausted bool
}

// Decide returns the state that follows current given ev. It has no side
// effects.
func Decide(current State, ev Evaluation) State {
	switch current {
	case StateInit:
		if ev.CacheHit {
			return StateDoneSuccess
		}
		return StateDiscover
	case StateDiscover, StateRetryWait, StateAlternate:
		return StateFetchExtract
	case StateFetchExtract:
		return StateEvaluate
	case StateEvaluate:
		return evaluate(ev)
	default:
		return current
	}
}

func evaluate(ev Evaluation) State {
	maxAttempts := max(ev.MaxAttempts, 1)
	switch {
	case ev.BucketsFilled > 0:
		return StateDoneSuccess
	case ev.SinglePass, ev.BudgetExhausted, ev.Attempt >= maxAttempts:
		return StateDoneSkip
	}

	switch {
	case ev.LastErrorClass.Fatal():
		if ev.Attempt < maxAttempts-1 {
			return StateRetryWait
		}
		if !ev.AlternateUsed {
			return StateAlternate
		}
		return StateDoneSkip
	case ev.LastErrorClass == leadership.FailureBlocked:
		if !ev.AlternateUsed {
			return StateAlternate
		}
		return StateRetryWait
	case !ev.AlternateUsed:
		return StateAlternate
	default:
		return StateRetryWait
	}
}
