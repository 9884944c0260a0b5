// Package offsets tracks in-flight stream offsets for the ingestion consumer.
//
// The consumer processes batches out of order but may only commit an offset
// once everything before it has completed. A Tracker records which offsets of
// a contiguous offset space are still in flight and exposes the lowest offset
// that is safe to commit.
package offsets

import "github.com/pkg/errors"

type state uint8

const (
	// stateSkipped marks offsets inside the tracked range that were never
	// added; gaps in the offset space are legal.
	stateSkipped state = iota
	statePending
	stateDone
)

// Tracker records which offsets are in flight versus complete. Offsets must
// be added in strictly increasing order and each added offset removed exactly
// once. A Tracker is not safe for concurrent use.
type Tracker struct {
	epoch     int64
	completed []state
}

// NewTracker returns a Tracker whose offset space starts at epoch.
func NewTracker(epoch int64) *Tracker {
	return &Tracker{epoch: epoch}
}

// Add marks offset as in flight. Offsets must move monotonically: adding an
// offset at or below the highest known offset is an error. Skipped offsets in
// between are recorded as gaps.
func (t *Tracker) Add(offset int64) error {
	index := offset - t.epoch
	if index < int64(len(t.completed)) {
		return errors.Errorf("offset %d must move monotonically", offset)
	}

	for int64(len(t.completed)) < index {
		t.completed = append(t.completed, stateSkipped)
	}
	t.completed = append(t.completed, statePending)
	return nil
}

// Remove marks offset as complete. The offset must currently be in flight;
// removing an unknown, skipped or already-completed offset is an error.
func (t *Tracker) Remove(offset int64) error {
	index := offset - t.epoch
	if index < 0 || index >= int64(len(t.completed)) {
		return errors.Errorf("offset %d out of range", offset)
	}
	if t.completed[index] != statePending {
		return errors.Errorf("offset %d is not in flight", offset)
	}

	t.completed[index] = stateDone
	return nil
}

// Value returns the committable offset: the earliest offset still in flight,
// or one past the last known offset when nothing is in flight.
func (t *Tracker) Value() int64 {
	for i, s := range t.completed {
		if s == statePending {
			return t.epoch + int64(i)
		}
	}
	return t.epoch + int64(len(t.completed))
}

// Len returns the number of offsets currently in flight.
func (t *Tracker) Len() int {
	count := 0
	for _, s := range t.completed {
		if s == statePending {
			count++
		}
	}
	return count
}

// Offsets returns the in-flight offsets in increasing order.
func (t *Tracker) Offsets() []int64 {
	pending := make([]int64, 0, t.Len())
	for i, s := range t.completed {
		if s == statePending {
			pending = append(pending, t.epoch+int64(i))
		}
	}
	return pending
}
