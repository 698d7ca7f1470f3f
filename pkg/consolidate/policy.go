package consolidate

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConflictingInput is returned when both paths and an in-memory dataset are supplied
	ErrConflictingInput = errors.New("supply either paths or a dataset, not both")
	// ErrUnknownMergePolicy is returned for unrecognised policy names
	ErrUnknownMergePolicy = errors.New("unknown merge policy")
)

// MergePolicy decides which side wins when existing and incoming data share
// a timestamp
type MergePolicy string

const (
	// PreferExisting keeps values already on disk
	PreferExisting MergePolicy = "prefer-existing"
	// PreferIncoming replaces values on disk with freshly fetched ones
	PreferIncoming MergePolicy = "prefer-incoming"
)

// ParseMergePolicy converts a policy name, defaulting to PreferExisting
func ParseMergePolicy(name string) (MergePolicy, error) {
	switch MergePolicy(strings.ToLower(strings.TrimSpace(name))) {
	case "", PreferExisting:
		return PreferExisting, nil
	case PreferIncoming:
		return PreferIncoming, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMergePolicy, name)
	}
}
