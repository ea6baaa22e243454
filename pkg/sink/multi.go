package sink

import (
	"context"
	"strings"
	"sync"

	"github.com/Combine-Capital/trail/pkg/errors"
	"github.com/Combine-Capital/trail/pkg/record"
)

// severity orders sink failure kinds; the highest wins when several sinks fail.
var severity = map[errors.SinkErrorKind]int{
	errors.ConnectionFailure:   1,
	errors.ConstraintViolation: 2,
	errors.SchemaMismatch:      3,
}

// pendingLimit caps how many partially delivered records a Multi remembers.
const pendingLimit = 4096

// Multi appends every record to several sinks.
//
// A record that some sinks stored and others rejected is remembered by its
// unique id, so that a retried Append or AppendBatch only reaches the sinks
// that still miss it. Records without a unique_id value are not tracked.
type Multi struct {
	sinks []Sink

	mu      sync.Mutex
	pending map[string][]bool
	order   []string
}

// MultiBatch is a Multi whose sinks all support batches.
type MultiBatch struct {
	*Multi
}

// NewMulti fans records out to sinks in order. All sinks are attempted even
// when one fails. The result implements BatchSink only if every sink does.
func NewMulti(sinks ...Sink) Sink {
	m := &Multi{sinks: sinks, pending: make(map[string][]bool)}
	for _, s := range sinks {
		if _, ok := s.(BatchSink); !ok {
			return m
		}
	}
	return &MultiBatch{Multi: m}
}

// Name implements Named.
func (m *Multi) Name() string {
	names := make([]string, len(m.sinks))
	for i, s := range m.sinks {
		names[i] = NameOf(s)
	}
	return "multi(" + strings.Join(names, ",") + ")"
}

// Sinks returns the fan-out targets.
func (m *Multi) Sinks() []Sink {
	return m.sinks
}

// Pending returns the number of records stored by some sinks but not all.
func (m *Multi) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Append appends rec to every sink that has not stored it yet.
func (m *Multi) Append(ctx context.Context, rec record.Record) error {
	key := rec.Text(record.FieldUniqueID)
	done := m.progress(key)

	errs := make([]error, 0)
	for i, s := range m.sinks {
		if done[i] {
			continue
		}
		if err := s.Append(ctx, rec); err != nil {
			errs = append(errs, err)
			continue
		}
		done[i] = true
	}

	m.settle(key, done, len(errs) > 0)
	return m.join(errs)
}

// AppendBatch appends recs to every sink, leaving out the records a sink
// already stored.
func (m *MultiBatch) AppendBatch(ctx context.Context, recs []record.Record) error {
	keys := make([]string, len(recs))
	done := make([][]bool, len(recs))
	for j, rec := range recs {
		keys[j] = rec.Text(record.FieldUniqueID)
		done[j] = m.progress(keys[j])
	}

	errs := make([]error, 0)
	for i, s := range m.sinks {
		missing := make([]record.Record, 0, len(recs))
		for j, rec := range recs {
			if !done[j][i] {
				missing = append(missing, rec)
			}
		}
		if len(missing) == 0 {
			continue
		}
		if err := s.(BatchSink).AppendBatch(ctx, missing); err != nil {
			errs = append(errs, err)
			continue
		}
		for j := range recs {
			done[j][i] = true
		}
	}

	for j, key := range keys {
		m.settle(key, done[j], len(errs) > 0)
	}
	return m.join(errs)
}

// progress returns which sinks already stored the record with key.
func (m *Multi) progress(key string) []bool {
	done := make([]bool, len(m.sinks))
	if key == "" {
		return done
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copy(done, m.pending[key])
	return done
}

// settle remembers done for key after a failed append and forgets it once
// the record is fully delivered.
func (m *Multi) settle(key string, done []bool, failed bool) {
	if key == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	complete := true
	for _, ok := range done {
		complete = complete && ok
	}
	if !failed || complete {
		delete(m.pending, key)
		return
	}

	if _, ok := m.pending[key]; !ok {
		m.order = append(m.order, key)
	}
	m.pending[key] = done
	for len(m.order) > pendingLimit {
		delete(m.pending, m.order[0])
		m.order[0] = ""
		m.order = m.order[1:]
	}
}

// join combines failures so that the most severe kind is the one reported.
func (m *Multi) join(errs []error) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	}

	var worst errors.SinkErrorKind
	for _, err := range errs {
		if k := errors.SinkKind(err); severity[k] > severity[worst] {
			worst = k
		}
	}

	joined := errors.Join(errs...)
	if worst == 0 {
		return joined
	}
	return errors.NewSinkError(worst, m.Name(), joined)
}
