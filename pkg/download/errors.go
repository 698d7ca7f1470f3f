package download

import "errors"

var (
	// ErrRunAlreadyStarted is returned when Run is called more than once
	ErrRunAlreadyStarted = errors.New("acquisition run already started")
	// ErrInvalidDateRange is returned when a start date falls after its end date
	ErrInvalidDateRange = errors.New("invalid date range")
	// ErrUnitPanicked wraps a recovered panic from a fetch unit
	ErrUnitPanicked = errors.New("fetch unit panicked")
	// ErrNoFetcher is returned when an orchestrator is built without a fetcher
	ErrNoFetcher = errors.New("no fetcher configured")
)
