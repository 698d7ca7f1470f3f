package ftpsrc

import (
	"time"

	"github.com/geofetch/geofetch/pkg/location"
)

type span struct {
	from, to string
}

// osisafInvalid lists days of the OSI-SAF sea ice concentration record known
// to be unusable, per hemisphere. Single days use an empty to.
//
//nolint:gochecknoglobals // static data table
var osisafInvalid = map[string][]span{
	"north": {
		{"1979-05-21", "1979-06-04"}, {"1979-06-10", "1979-06-26"}, {"1979-07-01", ""},
		{"1979-07-24", "1979-07-28"}, {"1980-01-04", "1980-01-10"}, {"1980-02-27", "1980-03-04"},
		{"1980-03-16", "1980-03-22"}, {"1980-04-09", "1980-04-15"}, {"1981-02-27", "1981-03-05"},
		{"1984-08-12", "1984-08-24"}, {"1984-09-14", ""}, {"1985-09-22", "1985-09-28"},
		{"1986-03-29", "1986-07-01"}, {"1987-01-03", "1987-01-19"}, {"1987-01-29", "1987-02-02"},
		{"1987-02-23", ""}, {"1987-02-26", "1987-03-02"}, {"1987-03-13", ""},
		{"1987-03-22", "1987-03-26"}, {"1987-04-03", "1987-04-17"}, {"1987-12-01", "1988-01-12"},
		{"1989-01-03", ""}, {"1990-01-26", ""}, {"1990-12-21", "1990-12-26"}, {"2022-11-09", ""},
	},
	"south": {
		{"1979-02-05", ""}, {"1979-02-25", ""}, {"1979-03-23", ""}, {"1979-03-26", "1979-03-30"},
		{"1979-04-12", ""}, {"1979-05-16", ""}, {"1979-05-21", "1979-05-27"}, {"1979-07-10", "1979-07-18"},
		{"1979-08-10", ""}, {"1979-09-03", ""}, {"1980-01-04", "1980-01-10"}, {"1980-02-16", ""},
		{"1980-02-27", "1980-03-04"}, {"1980-03-14", "1980-03-22"}, {"1980-03-31", ""},
		{"1980-04-09", "1980-04-15"}, {"1980-04-22", ""}, {"1981-02-27", "1981-03-05"},
		{"1981-06-10", ""}, {"1981-08-03", "1982-08-09"}, {"1983-07-07", "1983-07-11"},
		{"1983-07-22", ""}, {"1984-06-12", ""}, {"1984-08-12", "1984-08-24"},
		{"1984-09-13", "1984-09-17"}, {"1984-10-03", "1984-10-09"}, {"1984-11-18", "1984-11-22"},
		{"1985-07-23", ""}, {"1985-09-22", "1985-09-28"}, {"1986-03-29", "1986-11-02"},
		{"1987-01-03", "1987-01-15"}, {"1987-12-01", "1988-01-12"}, {"1990-08-14", "1990-08-15"},
		{"1990-08-24", ""}, {"1990-12-22", "1990-12-26"}, {"2022-11-09", ""},
	},
}

// OSISAFInvalidDays returns the known bad days for the region's hemisphere as
// YYYY-MM-DD strings
func OSISAFInvalidDays(region location.Region) []string {
	key := "north"
	if region.IsSouth() && !region.IsNorth() {
		key = "south"
	}

	var out []string
	for _, s := range osisafInvalid[key] {
		from, _ := time.Parse(time.DateOnly, s.from)
		to := from
		if s.to != "" {
			to, _ = time.Parse(time.DateOnly, s.to)
		}

		for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
			out = append(out, d.Format(time.DateOnly))
		}
	}

	return out
}
