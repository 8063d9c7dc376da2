package models

import "fmt"

// MissingFieldError reports a required XML node that has no match.
type MissingFieldError struct {
	File  string
	Field string
	Path  string
}

func (e *MissingFieldError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("missing field %s (%s) in %s", e.Field, e.Path, e.File)
	}
	return fmt.Sprintf("missing field %s (%s)", e.Field, e.Path)
}

// EmptyAggregationError reports an aggregation over an empty collection.
type EmptyAggregationError struct {
	What string
}

func (e *EmptyAggregationError) Error() string {
	return fmt.Sprintf("nothing to aggregate: %s", e.What)
}
