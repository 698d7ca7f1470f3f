package dataset

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// LevelSet is the list of vertical levels requested for one variable. An
// empty set means the variable has no vertical dimension.
type LevelSet []int

// UnmarshalJSON accepts null entries, which denote "no level"
func (l *LevelSet) UnmarshalJSON(data []byte) error {
	var raw []*int
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := LevelSet{}
	for _, v := range raw {
		if v != nil {
			out = append(out, *v)
		}
	}

	*l = out

	return nil
}

// ParseLevels parses the CLI levels syntax: one comma separated entry per
// variable, "|" between multiple levels, and an empty entry for none
func ParseLevels(raw string, vars int) ([]LevelSet, error) {
	out := make([]LevelSet, vars)
	for i := range out {
		out[i] = LevelSet{}
	}

	if strings.TrimSpace(raw) == "" {
		return out, nil
	}

	entries := strings.Split(raw, ",")
	if len(entries) != vars {
		return nil, fmt.Errorf("%w: %d level entries for %d variables", ErrConfig, len(entries), vars)
	}

	for i, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		for _, part := range strings.Split(entry, "|") {
			level, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				return nil, fmt.Errorf("%w: invalid level %q: %w", ErrConfig, part, err)
			}
			out[i] = append(out[i], level)
		}
	}

	return out, nil
}

// Slot is one (variable, level) acquisition target within a dataset
type Slot struct {
	// Prefix is the variable name as known to the source
	Prefix string
	// Level is the vertical level, nil when the variable has none
	Level *int
	// Name is the composite of prefix and level, used for inventory keys
	// and file names
	Name string
	// Path is the directory holding canonical files, partitioned by storage
	// frequency and region
	Path string
	// RootPath is the region-partitioned directory for raw artifacts
	RootPath string
}

// CompositeName joins a variable prefix with an optional level
func CompositeName(prefix string, level *int) string {
	if level == nil {
		return prefix
	}

	return prefix + strconv.Itoa(*level)
}
