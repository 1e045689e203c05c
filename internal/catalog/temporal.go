package catalog

import "fmt"

// TemporalRange is the inclusive [FirstYear, LastYear] span over which an
// entity is known to have existed. The zero value means "unset"; both bounds
// are always set together.
type TemporalRange struct {
	FirstYear int `json:"first_year,omitempty"`
	LastYear  int `json:"last_year,omitempty"`
}

// HasRange reports whether both bounds are set.
func (r TemporalRange) HasRange() bool {
	return r.FirstYear != 0 && r.LastYear != 0
}

// AddYear widens the range to include year. The range only ever grows;
// a year already inside the bounds is a no-op.
func (r *TemporalRange) AddYear(year int) {
	if year == 0 {
		return
	}
	if r.FirstYear == 0 {
		r.FirstYear = year
	}
	if r.LastYear == 0 {
		r.LastYear = year
	}
	if year < r.FirstYear {
		r.FirstYear = year
	} else if year > r.LastYear {
		r.LastYear = year
	}
}

// Merge widens the range to include another range's bounds.
func (r *TemporalRange) Merge(other TemporalRange) {
	r.AddYear(other.FirstYear)
	r.AddYear(other.LastYear)
}

// Contains reports whether year falls inside the range (inclusive).
// An unset range contains nothing.
func (r TemporalRange) Contains(year int) bool {
	return r.HasRange() && r.FirstYear <= year && year <= r.LastYear
}

func (r TemporalRange) String() string {
	if !r.HasRange() {
		return "unset"
	}
	return fmt.Sprintf("%d-%d", r.FirstYear, r.LastYear)
}
