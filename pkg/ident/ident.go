// Package ident allocates the identifiers that link activities together.
//
// Identifiers are random version 4 UUIDs, so they are unique without
// coordination between goroutines or processes. A failure of the entropy
// source cannot be recovered from and is reported as an identity exhaustion.
package ident

import (
	"fmt"
	"sync/atomic"

	"github.com/Combine-Capital/trail/pkg/errors"
	"github.com/google/uuid"
)

// ID is a 128-bit activity identifier.
type ID = uuid.UUID

// Nil is the zero identifier. It never identifies an activity.
var Nil = uuid.Nil

// Allocator produces unique identifiers.
type Allocator interface {
	NewID() (ID, error)
}

// AllocatorFunc adapts a function to the Allocator interface.
type AllocatorFunc func() (ID, error)

// NewID calls f.
func (f AllocatorFunc) NewID() (ID, error) {
	return f()
}

// Random allocates version 4 UUIDs from crypto/rand.
type Random struct{}

// NewID returns a fresh random identifier.
func (Random) NewID() (ID, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return Nil, errors.NewIdentityExhaustion(err)
	}
	return id, nil
}

// New returns a fresh random identifier. It panics with an
// *errors.IdentityExhaustionError if the entropy source fails.
func New() ID {
	return MustNew(Random{})
}

// MustNew allocates from a, panicking with an *errors.IdentityExhaustionError
// on failure.
func MustNew(a Allocator) ID {
	id, err := a.NewID()
	if err != nil {
		if !errors.IsIdentityExhaustion(err) {
			err = errors.NewIdentityExhaustion(err)
		}
		panic(err)
	}
	if id == Nil {
		panic(errors.NewIdentityExhaustion(fmt.Errorf("allocator returned the nil id")))
	}
	return id
}

// Parse decodes the canonical textual form of an identifier.
func Parse(s string) (ID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return Nil, errors.NewInvalidInputWithCause("id", fmt.Sprintf("%q is not a uuid", s), err)
	}
	return id, nil
}

// Sequence hands out predictable identifiers 00000000-0000-0000-0000-000000000001,
// ...0002 and so on. It is meant for tests that compare persisted rows.
type Sequence struct {
	next atomic.Uint64
}

// NewID returns the next identifier of the sequence.
func (s *Sequence) NewID() (ID, error) {
	n := s.next.Add(1)
	var id ID
	for i := 0; i < 8; i++ {
		id[15-i] = byte(n >> (8 * i))
	}
	return id, nil
}
