package domain

import "encoding/json"

// ResultStatus tells found, missing and failed lookups apart.
type ResultStatus uint8

const (
	StatusOK ResultStatus = iota
	StatusNotFound
	StatusError
)

// Result is the outcome of resolving one item of a batch.
type Result[T any] struct {
	Status ResultStatus
	Value  T
	Err    error
}

// Ok wraps a resolved value.
func Ok[T any](v T) Result[T] {
	return Result[T]{Status: StatusOK, Value: v}
}

// NotFound marks a missing item.
func NotFound[T any]() Result[T] {
	return Result[T]{Status: StatusNotFound}
}

// Failed marks an item that could not be resolved.
func Failed[T any](err error) Result[T] {
	return Result[T]{Status: StatusError, Err: err}
}

// IsOK reports whether the result holds a value.
func (r Result[T]) IsOK() bool { return r.Status == StatusOK }

// MarshalJSON writes the value, null for a missing item, or an error object.
func (r Result[T]) MarshalJSON() ([]byte, error) {
	switch r.Status {
	case StatusOK:
		return json.Marshal(r.Value)
	case StatusNotFound:
		return []byte("null"), nil
	default:
		msg := "unknown error"
		if r.Err != nil {
			msg = r.Err.Error()
		}
		return json.Marshal(map[string]string{"error": msg})
	}
}
