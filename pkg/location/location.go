// Package location describes the spatial extent of a dataset.
package location

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidRegion is returned when a region is constructed with neither
	// or both of a hemisphere and an explicit bounding box
	ErrInvalidRegion = errors.New("provide either a hemisphere or bounds, not both")
	// ErrInvalidBounds is returned when a bounding box does not have four values
	ErrInvalidBounds = errors.New("bounds must be [north, west, south, east]")
	// ErrUnknownHemisphere is returned for hemisphere names other than north and south
	ErrUnknownHemisphere = errors.New("unknown hemisphere")
)

// Bounds is a bounding box ordered north, west, south, east
type Bounds [4]float64

// Sum adds the four edges together
func (b Bounds) Sum() float64 {
	return b[0] + b[1] + b[2] + b[3]
}

//nolint:gochecknoglobals // canonical hemisphere boxes
var (
	northBounds = Bounds{90, -180, 0, 180}
	southBounds = Bounds{0, -180, -90, 180}
	worldBounds = Bounds{90, -180, -90, 180}
)

// Region is an immutable named spatial extent
type Region struct {
	name   string
	bounds Bounds
	north  bool
	south  bool
}

// New creates a region from an explicit bounding box
func New(name string, bounds []float64) (Region, error) {
	if name == "" {
		return Region{}, fmt.Errorf("%w: name is required", ErrInvalidRegion)
	}

	if len(bounds) != 4 {
		return Region{}, fmt.Errorf("%w: got %d values", ErrInvalidBounds, len(bounds))
	}

	if bounds[0] < bounds[2] {
		return Region{}, fmt.Errorf("%w: north %.2f is below south %.2f", ErrInvalidBounds, bounds[0], bounds[2])
	}

	return Region{name: name, bounds: Bounds{bounds[0], bounds[1], bounds[2], bounds[3]}}, nil
}

// North returns the northern hemisphere
func North() Region {
	return Region{name: "north", bounds: northBounds, north: true}
}

// South returns the southern hemisphere
func South() Region {
	return Region{name: "south", bounds: southBounds, south: true}
}

// Global returns a region flagged as covering both hemispheres
func Global() Region {
	return Region{name: "global", bounds: worldBounds, north: true, south: true}
}

// FromHemisphere resolves "north", "south" or "global" to a canonical region
func FromHemisphere(hemisphere string) (Region, error) {
	switch strings.ToLower(strings.TrimSpace(hemisphere)) {
	case "north":
		return North(), nil
	case "south":
		return South(), nil
	case "global", "world":
		return Global(), nil
	default:
		return Region{}, fmt.Errorf("%w: %q", ErrUnknownHemisphere, hemisphere)
	}
}

// Resolve builds a region from either a hemisphere name or explicit bounds.
// Exactly one of the two must be supplied.
func Resolve(hemisphere string, bounds []float64) (Region, error) {
	switch {
	case hemisphere != "" && len(bounds) > 0:
		return Region{}, ErrInvalidRegion
	case hemisphere != "":
		return FromHemisphere(hemisphere)
	case len(bounds) > 0:
		return New(boundsName(bounds), bounds)
	default:
		return Region{}, ErrInvalidRegion
	}
}

func boundsName(bounds []float64) string {
	parts := make([]string, 0, len(bounds))
	for _, b := range bounds {
		parts = append(parts, strings.ReplaceAll(fmt.Sprintf("%g", b), "-", "m"))
	}

	return strings.Join(parts, "_")
}

// Name is used as a path component in the canonical layout
func (r Region) Name() string { return r.name }

// Bounds returns the bounding box
func (r Region) Bounds() Bounds { return r.bounds }

// IsNorth reports whether the region was built from the northern hemisphere
func (r Region) IsNorth() bool { return r.north }

// IsSouth reports whether the region was built from the southern hemisphere
func (r Region) IsSouth() bool { return r.south }

// World reports whether the region covers the whole globe
func (r Region) World() bool {
	return (r.north && r.south) || r.bounds.Sum() == 540
}

// IsZero reports whether the region is unset
func (r Region) IsZero() bool {
	return r.name == ""
}

// String implements fmt.Stringer
func (r Region) String() string {
	return fmt.Sprintf("%s%v", r.name, [4]float64(r.bounds))
}

type regionJSON struct {
	Name   string    `json:"name"`
	Bounds []float64 `json:"bounds"`
	North  bool      `json:"north"`
	South  bool      `json:"south"`
}

// MarshalJSON serializes the region descriptor
func (r Region) MarshalJSON() ([]byte, error) {
	return json.Marshal(regionJSON{
		Name:   r.name,
		Bounds: r.bounds[:],
		North:  r.north,
		South:  r.south,
	})
}

// UnmarshalJSON reconstructs a region from its descriptor. Hemisphere flags
// take precedence over stored bounds.
func (r *Region) UnmarshalJSON(data []byte) error {
	var raw regionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var (
		parsed Region
		err    error
	)

	switch {
	case raw.North && raw.South:
		parsed = Global()
	case raw.North:
		parsed = North()
	case raw.South:
		parsed = South()
	default:
		parsed, err = New(raw.Name, raw.Bounds)
		if err != nil {
			return err
		}
	}

	if raw.Name != "" {
		parsed.name = raw.Name
	}

	*r = parsed

	return nil
}
