package vistore

import (
	"errors"

	"github.com/i2y/vistore/internal/storage"
)

// ErrIteratorClosed is returned by Collect on an iterator that was already
// consumed or closed.
var ErrIteratorClosed = errors.New("iterator already consumed")

// Iterator is a finite, one-shot sequence of instances returned by
// Store.Stream. It is not safe for concurrent use.
//
//	it, err := store.Stream(ctx, vistore.ReadOnly)
//	if err != nil { ... }
//	defer it.Close()
//	for it.Next() {
//		inst := it.Instance()
//	}
//	if err := it.Err(); err != nil { ... }
type Iterator[T any] struct {
	records []*storage.InstanceRecord
	decode  func(*storage.InstanceRecord) (T, error)
	current T
	id      string
	err     error
	started bool
	closed  bool
}

func newIterator[T any](records []*storage.InstanceRecord, decode func(*storage.InstanceRecord) (T, error)) *Iterator[T] {
	return &Iterator[T]{records: records, decode: decode}
}

// Next advances to the next instance. It returns false when the sequence is
// exhausted, closed or a decode error occurred.
func (it *Iterator[T]) Next() bool {
	it.started = true
	var zero T
	it.current, it.id = zero, ""
	if it.closed || it.err != nil || len(it.records) == 0 {
		return false
	}

	rec := it.records[0]
	it.records[0] = nil
	it.records = it.records[1:]

	inst, err := it.decode(rec)
	if err != nil {
		it.err = err
		return false
	}
	it.current, it.id = inst, rec.ID
	return true
}

// Instance returns the instance at the current position.
func (it *Iterator[T]) Instance() T {
	return it.current
}

// InstanceID returns the id of the instance at the current position.
func (it *Iterator[T]) InstanceID() string {
	return it.id
}

// Err returns the first error encountered while decoding.
func (it *Iterator[T]) Err() error {
	return it.err
}

// Remaining returns the number of instances not yet returned.
func (it *Iterator[T]) Remaining() int {
	if it.closed {
		return 0
	}
	return len(it.records)
}

// Close releases the buffered rows. Further calls to Next return false.
func (it *Iterator[T]) Close() error {
	it.closed = true
	it.records = nil
	return nil
}

// Collect drains the iterator into a slice and closes it.
func (it *Iterator[T]) Collect() ([]T, error) {
	if it.closed || it.started {
		return nil, ErrIteratorClosed
	}
	defer func() { _ = it.Close() }()

	out := make([]T, 0, len(it.records))
	for it.Next() {
		out = append(out, it.Instance())
	}
	return out, it.Err()
}
