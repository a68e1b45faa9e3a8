// Package cursor implements lazily-produced, closable result sequences.
//
// An Iterator owns whatever resource feeds it (typically *sql.Rows on a
// checked-out *sql.Conn). Close releases that resource, is safe to call any
// number of times and runs automatically once the sequence is exhausted or
// fails. Callers that stop early must still call Close:
//
//	it, err := svc.ModifiedSince(ctx, id, folder, since, cols)
//	if err != nil { ... }
//	defer it.Close()
//	for it.Next() {
//	    use(it.Value())
//	}
//	if err := it.Err(); err != nil { ... }
package cursor

import (
	"database/sql"
	"errors"

	"github.com/dmitrijs2005/groupware/internal/dbx"
)

// Iterator is a forward-only sequence of T.
type Iterator[T any] struct {
	next    func() (T, bool, error)
	release func() error

	cur    T
	err    error
	closed bool
}

// New builds an iterator from a producer and an optional release function.
// next reports ok=false when the sequence is exhausted.
func New[T any](next func() (T, bool, error), release func() error) *Iterator[T] {
	return &Iterator[T]{next: next, release: release}
}

// Next advances to the next element.
func (it *Iterator[T]) Next() bool {
	if it.closed {
		return false
	}
	v, ok, err := it.next()
	if err != nil {
		it.err = err
		_ = it.Close()
		return false
	}
	if !ok {
		_ = it.Close()
		return false
	}
	it.cur = v
	return true
}

// Value returns the current element.
func (it *Iterator[T]) Value() T { return it.cur }

// Err returns the first error met while producing or releasing.
func (it *Iterator[T]) Err() error { return it.err }

// Close releases the underlying resource. Only the first call does work.
func (it *Iterator[T]) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	var zero T
	it.cur = zero
	if it.release == nil {
		return nil
	}
	err := it.release()
	if err != nil && it.err == nil {
		it.err = err
	}
	return err
}

// OnClose registers fn to run after the iterator's own release, typically
// to return the connection the iterator was opened on.
func (it *Iterator[T]) OnClose(fn func() error) *Iterator[T] {
	prev := it.release
	it.release = func() error {
		var err error
		if prev != nil {
			err = prev()
		}
		return errors.Join(err, fn())
	}
	return it
}

// Closed reports whether the resource was released.
func (it *Iterator[T]) Closed() bool { return it.closed }

// Empty returns an exhausted iterator.
func Empty[T any]() *Iterator[T] {
	return FromSlice[T](nil)
}

// FromSlice iterates over an already materialized result.
func FromSlice[T any](items []T) *Iterator[T] {
	i := 0
	return New(func() (T, bool, error) {
		if i >= len(items) {
			var zero T
			return zero, false, nil
		}
		v := items[i]
		i++
		return v, true, nil
	}, nil)
}

// FromRows scans rows lazily. release runs after rows are closed and returns
// the connection the rows were read on; it may be nil.
func FromRows[T any](rows *sql.Rows, scan func(*sql.Rows) (T, error), release func() error) *Iterator[T] {
	return New(func() (T, bool, error) {
		var zero T
		if !rows.Next() {
			if err := rows.Err(); err != nil {
				return zero, false, dbx.Translate(err)
			}
			return zero, false, nil
		}
		v, err := scan(rows)
		if err != nil {
			return zero, false, dbx.Translate(err)
		}
		return v, true, nil
	}, func() error {
		err := rows.Close()
		if release != nil {
			err = errors.Join(err, release())
		}
		if err != nil {
			return dbx.Translate(err)
		}
		return nil
	})
}

// Chunked splits keys into blocks of size and opens one inner iterator per
// block, lazily, once the previous block is consumed.
func Chunked[K, T any](keys []K, size int, open func(block []K) (*Iterator[T], error)) *Iterator[T] {
	if size <= 0 {
		size = len(keys)
	}
	var inner *Iterator[T]
	pos := 0

	next := func() (T, bool, error) {
		var zero T
		for {
			if inner != nil {
				if inner.Next() {
					return inner.Value(), true, nil
				}
				err := inner.Err()
				inner = nil
				if err != nil {
					return zero, false, err
				}
			}
			if pos >= len(keys) {
				return zero, false, nil
			}
			end := pos + size
			if end > len(keys) {
				end = len(keys)
			}
			it, err := open(keys[pos:end])
			pos = end
			if err != nil {
				return zero, false, err
			}
			inner = it
		}
	}
	release := func() error {
		if inner == nil {
			return nil
		}
		err := inner.Close()
		inner = nil
		return err
	}
	return New(next, release)
}

// Filter drops elements for which keep returns false.
func Filter[T any](src *Iterator[T], keep func(T) bool) *Iterator[T] {
	return New(func() (T, bool, error) {
		for src.Next() {
			if v := src.Value(); keep(v) {
				return v, true, nil
			}
		}
		var zero T
		return zero, false, src.Err()
	}, src.Close)
}

// Map converts every element of src.
func Map[T, U any](src *Iterator[T], fn func(T) U) *Iterator[U] {
	return New(func() (U, bool, error) {
		if src.Next() {
			return fn(src.Value()), true, nil
		}
		var zero U
		return zero, false, src.Err()
	}, src.Close)
}

// Collect drains and closes it.
func Collect[T any](it *Iterator[T]) ([]T, error) {
	defer it.Close()
	var out []T
	for it.Next() {
		out = append(out, it.Value())
	}
	return out, it.Err()
}
