package algorithm

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"
)

// Engine applies one algorithm to encoded state. The encoding is private to
// the engine; callers store and return the blobs unchanged.
type Engine interface {
	// Kind names the algorithm.
	Kind() Kind

	// Apply evaluates cost against state at now. A nil or empty state is
	// replaced with the algorithm's initial state. The returned blob must
	// be persisted for the decision to take effect.
	Apply(state []byte, cost int64, p Params, now time.Time) (Result, []byte, error)
}

// New returns the Engine for kind.
func New(kind Kind) (Engine, error) {
	switch kind {
	case TokenBucket:
		return machine[TokenBucketState]{kind: kind, initial: NewTokenBucketState, step: CheckTokenBucket}, nil
	case FixedWindow:
		return machine[FixedWindowState]{kind: kind, initial: NewFixedWindowState, step: CheckFixedWindow}, nil
	case SlidingWindow:
		return machine[SlidingWindowState]{kind: kind, initial: NewSlidingWindowState, step: CheckSlidingWindow}, nil
	case LeakyBucket:
		return machine[LeakyBucketState]{kind: kind, initial: NewLeakyBucketState, step: CheckLeakyBucket}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

type machine[S any] struct {
	kind    Kind
	initial func(Params, time.Time) S
	step    func(S, int64, Params, time.Time) (Result, S)
}

func (m machine[S]) Kind() Kind {
	return m.kind
}

func (m machine[S]) Apply(state []byte, cost int64, p Params, now time.Time) (Result, []byte, error) {
	if err := p.Validate(); err != nil {
		return Result{}, nil, err
	}

	var current S
	if len(state) == 0 {
		current = m.initial(p, now)
	} else if err := json.Unmarshal(state, &current); err != nil {
		return Result{}, nil, fmt.Errorf("%w: %s: %v", ErrCorruptState, m.kind, err)
	}

	res, next := m.step(current, cost, p, now)

	blob, err := json.Marshal(next)
	if err != nil {
		return Result{}, nil, fmt.Errorf("encode %s state: %w", m.kind, err)
	}
	return res, blob, nil
}
