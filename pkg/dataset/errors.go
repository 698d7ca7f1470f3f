package dataset

import "errors"

var (
	// ErrConfig is returned when a catalog's configuration violates its invariants
	ErrConfig = errors.New("dataset configuration error")
	// ErrUnknownImplementation is returned when a persisted document names an
	// implementation that has not been registered
	ErrUnknownImplementation = errors.New("unknown dataset implementation")
	// ErrSpansPeriods is returned when a single canonical path is requested for
	// dates that fall into more than one output period
	ErrSpansPeriods = errors.New("dates span more than one output period")
)
