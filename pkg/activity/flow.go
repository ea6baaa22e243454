package activity

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/Combine-Capital/trail/pkg/errors"
)

// flow is the correlation context of one logical thread of work: a LIFO stack
// of the activities it has open. base is the activity the flow was forked
// from, nil for a root flow; it is not part of the stack.
type flow struct {
	id   uint64
	base *Activity

	mu      sync.Mutex
	frames  []*Activity
	pending *Activity // activity whose close was refused, nil when consistent
}

var flowSeq atomic.Uint64

// newFlow starts an empty flow forked from base.
func newFlow(base *Activity) *flow {
	return &flow{id: flowSeq.Add(1), base: base}
}

// top returns the innermost open activity, or base when the stack is empty.
// Callers hold f.mu.
func (f *flow) top() *Activity {
	if len(f.frames) == 0 {
		return f.base
	}
	return f.frames[len(f.frames)-1]
}

// push places a on the stack if parent is the innermost activity. It reports
// false when parent is not on top, in which case a belongs on a new flow.
func (f *flow) push(parent, a *Activity) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.pending != nil {
		return false, errors.NewInconsistentContext(f.pending.id.String())
	}
	if f.top() != parent {
		return false, nil
	}
	f.frames = append(f.frames, a)
	a.flow = f
	return true, nil
}

// pop removes a if it is the innermost activity. Otherwise the stack is left
// untouched and a NestingViolationError is returned; if a is still open
// further down, the flow stays inconsistent until a is closed properly.
func (f *flow) pop(a *Activity) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := len(f.frames)
	if n > 0 && f.frames[n-1] == a {
		f.frames[n-1] = nil
		f.frames = f.frames[:n-1]
		if f.pending == a {
			f.pending = nil
		}
		return nil
	}

	if n == 0 {
		return errors.NewNestingViolation(a.name, a.id.String(), "")
	}

	for _, open := range f.frames[:n-1] {
		if open == a && f.pending == nil {
			f.pending = a
			break
		}
	}
	return errors.NewNestingViolation(a.name, a.id.String(), f.frames[n-1].id.String())
}

// isTop reports whether a is the innermost open activity.
func (f *flow) isTop(a *Activity) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.frames)
	return n > 0 && f.frames[n-1] == a
}

// depth returns the number of open activities.
func (f *flow) depth() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

// scope is what a context carries: the current activity and the flow new
// children are pushed on.
type scope struct {
	act  *Activity
	flow *flow
}

type contextKey struct{}

func withScope(ctx context.Context, s scope) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

func scopeFrom(ctx context.Context) scope {
	s, _ := ctx.Value(contextKey{}).(scope)
	return s
}

// Current returns the activity ctx belongs to.
func Current(ctx context.Context) (*Activity, bool) {
	s := scopeFrom(ctx)
	return s.act, s.act != nil
}

// Fork returns a context whose children start a new flow below the current
// activity. Use it before handing ctx to goroutines that open activities
// concurrently, so that each one gets its own stack. Without a current
// activity ctx is returned unchanged.
func Fork(ctx context.Context) context.Context {
	s := scopeFrom(ctx)
	if s.act == nil {
		return ctx
	}
	return withScope(ctx, scope{act: s.act, flow: newFlow(s.act)})
}
