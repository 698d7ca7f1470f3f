package frequency

import (
	"fmt"
	"time"
)

// Attribute names a calendar component that dates can be grouped by
type Attribute string

// Supported grouping attributes
const (
	AttributeYear  Attribute = "year"
	AttributeMonth Attribute = "month"
	AttributeDay   Attribute = "day"
	AttributeDate  Attribute = "date"
	AttributeHour  Attribute = "hour"
)

// ParseAttribute validates an attribute name
func ParseAttribute(name string) (Attribute, error) {
	a := Attribute(name)
	switch a {
	case AttributeYear, AttributeMonth, AttributeDay, AttributeDate, AttributeHour:
		return a, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAttribute, name)
	}
}

// Value extracts the attribute from t. AttributeMonth is the month number
// only, so January of two different years compare equal.
func (a Attribute) Value(t time.Time) int {
	switch a {
	case AttributeYear:
		return t.Year()
	case AttributeMonth:
		return int(t.Month())
	case AttributeDay:
		return t.Day()
	case AttributeDate:
		return t.Year()*10000 + int(t.Month())*100 + t.Day()
	case AttributeHour:
		return t.Hour()
	default:
		return 0
	}
}
