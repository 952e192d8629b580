// Package store defines the persistence primitives the bot core relies on.
// Any backend offering them can hold memos, work logs and scheduled tasks.
// Every method must be safe for concurrent use.
package store

import (
	"context"
	"errors"
	"fmt"
)

type Store interface {
	// ListAppend appends value to the list at key.
	ListAppend(ctx context.Context, key string, value string) error
	// ListRange returns the whole list at key in insertion order.
	ListRange(ctx context.Context, key string) ([]string, error)
	// Delete removes keys of any type. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error

	SetAdd(ctx context.Context, key string, members ...string) error
	SetMembers(ctx context.Context, key string) ([]string, error)

	HashSet(ctx context.Context, key string, fields map[string]string) error
	// HashGetAll returns an empty map for a missing key.
	HashGetAll(ctx context.Context, key string) (map[string]string, error)

	SortedAdd(ctx context.Context, key string, member string, score float64) error
	// SortedRangeByScore returns members with min <= score <= max, ordered
	// by score and then member.
	SortedRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error)
	SortedRemove(ctx context.Context, key string, members ...string) error

	Close() error
}

// ListTrimmer is implemented by backends that can drop the head of a list
// without touching entries appended after it was read.
type ListTrimmer interface {
	// ListDropFront removes the first n entries of the list at key.
	ListDropFront(ctx context.Context, key string, n int) error
}

// DropFront removes the first n entries of the list at key. Backends
// without ListTrimmer fall back to deleting the whole key.
func DropFront(ctx context.Context, s Store, key string, n int) error {
	if n <= 0 {
		return nil
	}
	if t, ok := s.(ListTrimmer); ok {
		return t.ListDropFront(ctx, key, n)
	}
	return s.Delete(ctx, key)
}

// Error wraps a backend failure.
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Kind() string { return "PersistenceError" }

// Wrap returns nil for a nil err.
func Wrap(op string, key string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Key: key, Err: err}
}

// IsPersistence reports whether err came from a store backend.
func IsPersistence(err error) bool {
	var storeErr *Error
	return errors.As(err, &storeErr)
}
