package ncdata

import "errors"

var (
	// ErrDataSet is the root error for malformed or unreadable datasets
	ErrDataSet = errors.New("dataset error")
	// ErrNoTimeAxis is returned when a dataset has no recognised time coordinate
	ErrNoTimeAxis = errors.New("no time axis")
	// ErrShapeMismatch is returned when two datasets cannot be combined
	ErrShapeMismatch = errors.New("dataset shapes differ")
	// ErrEmpty is returned when writing a dataset with no time steps
	ErrEmpty = errors.New("dataset has no time steps")
)
