package planner

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geofetch/geofetch/pkg/frequency"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestBatch(t *testing.T) {
	tests := []struct {
		name  string
		dates []time.Time
		attr  frequency.Attribute
		want  [][]time.Time
	}{
		{
			name: "empty input",
			attr: frequency.AttributeMonth,
		},
		{
			name:  "single date",
			dates: []time.Time{day(2020, 1, 1)},
			attr:  frequency.AttributeMonth,
			want:  [][]time.Time{{day(2020, 1, 1)}},
		},
		{
			name:  "unsorted input is sorted first",
			dates: []time.Time{day(2020, 2, 2), day(2020, 1, 5), day(2020, 2, 1)},
			attr:  frequency.AttributeMonth,
			want:  [][]time.Time{{day(2020, 1, 5)}, {day(2020, 2, 1), day(2020, 2, 2)}},
		},
		{
			name:  "same month different year splits",
			dates: []time.Time{day(2019, 1, 31), day(2020, 1, 1)},
			attr:  frequency.AttributeYear,
			want:  [][]time.Time{{day(2019, 1, 31)}, {day(2020, 1, 1)}},
		},
		{
			name:  "duplicates preserved",
			dates: []time.Time{day(2020, 3, 1), day(2020, 3, 1)},
			attr:  frequency.AttributeMonth,
			want:  [][]time.Time{{day(2020, 3, 1), day(2020, 3, 1)}},
		},
		{
			name:  "daily attribute splits every date",
			dates: []time.Time{day(2020, 3, 1), day(2020, 3, 2)},
			attr:  frequency.AttributeDate,
			want:  [][]time.Time{{day(2020, 3, 1)}, {day(2020, 3, 2)}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Batch(tt.dates, tt.attr))
		})
	}
}

func TestBatchMonthScenario(t *testing.T) {
	dates := frequency.Day.Range(day(2020, 1, 1), day(2020, 3, 10))

	batches := Batch(dates, frequency.AttributeMonth)
	require.Len(t, batches, 3)

	assert.Equal(t, day(2020, 1, 1), batches[0][0])
	assert.Equal(t, day(2020, 1, 31), batches[0][len(batches[0])-1])
	assert.Equal(t, day(2020, 2, 1), batches[1][0])
	assert.Equal(t, day(2020, 2, 29), batches[1][len(batches[1])-1])
	assert.Equal(t, day(2020, 3, 1), batches[2][0])
	assert.Equal(t, day(2020, 3, 10), batches[2][len(batches[2])-1])
}

func TestBatchMonthAttributeIgnoresYear(t *testing.T) {
	// January 2019 and January 2020 are only adjacent when nothing sits
	// between them, in which case the month attribute treats them as one run.
	dates := []time.Time{day(2019, 1, 15), day(2020, 1, 15)}
	assert.Len(t, Batch(dates, frequency.AttributeMonth), 1)
}

func TestBatchCompleteness(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	attrs := []frequency.Attribute{
		frequency.AttributeYear,
		frequency.AttributeMonth,
		frequency.AttributeDate,
	}

	for i := 0; i < 50; i++ {
		n := rng.Intn(200)
		dates := make([]time.Time, n)
		for j := range dates {
			dates[j] = day(2018, 1, 1).AddDate(0, 0, rng.Intn(1000))
		}

		for _, attr := range attrs {
			batches := Batch(dates, attr)
			assert.ElementsMatch(t, dates, Flatten(batches))

			if n > 0 {
				assert.NotEmpty(t, batches)
			}

			for _, b := range batches {
				for k := 1; k < len(b); k++ {
					assert.Equal(t, attr.Value(b[k-1]), attr.Value(b[k]))
					assert.False(t, b[k].Before(b[k-1]))
				}
			}

			for k := 1; k < len(batches); k++ {
				prev := batches[k-1]
				assert.NotEqual(t, attr.Value(prev[len(prev)-1]), attr.Value(batches[k][0]))
			}
		}
	}
}
