// Package filters owns the catalog filter fields (search text, make, year
// range) and their mirror in the URL query string.
//
// The wire contract is sparse: a key is present only when its field is
// set, so an absent key always means "no filter on that dimension".
package filters

import (
	"math"
	"net/url"
	"strconv"
	"strings"
)

// Query keys recognized on the wire.
const (
	KeySearch   = "search"
	KeyMake     = "make"
	KeyYearFrom = "yearFrom"
	KeyYearTo   = "yearTo"
)

// State is the set of user-entered filters. Nil years mean "unbounded".
type State struct {
	Search   string `json:"search,omitempty"`
	Make     string `json:"make,omitempty"`
	YearFrom *int   `json:"yearFrom,omitempty"`
	YearTo   *int   `json:"yearTo,omitempty"`
}

// FromQuery reads a State from URL query values. Empty strings and
// unparsable or zero years leave the corresponding field unset.
func FromQuery(q url.Values) State {
	var s State
	if v := q.Get(KeySearch); v != "" {
		s.Search = v
	}
	if v := q.Get(KeyMake); v != "" {
		s.Make = v
	}
	s.YearFrom = parseYear(q.Get(KeyYearFrom))
	s.YearTo = parseYear(q.Get(KeyYearTo))
	return s
}

// parseYear follows numeric coercion of query strings: surrounding space is
// ignored, fractions are truncated, and NaN, out-of-range values and 0 are
// absent.
func parseYear(raw string) *int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.Abs(f) > math.MaxInt32 {
		return nil
	}
	n := int(f)
	if n == 0 {
		return nil
	}
	return &n
}

// Query renders s as sparse query values: only truthy fields are emitted.
func (s State) Query() url.Values {
	q := url.Values{}
	if s.Search != "" {
		q.Set(KeySearch, s.Search)
	}
	if s.Make != "" {
		q.Set(KeyMake, s.Make)
	}
	if s.YearFrom != nil && *s.YearFrom != 0 {
		q.Set(KeyYearFrom, strconv.Itoa(*s.YearFrom))
	}
	if s.YearTo != nil && *s.YearTo != 0 {
		q.Set(KeyYearTo, strconv.Itoa(*s.YearTo))
	}
	return q
}

// Equal reports whether two states hold the same filter values.
func (s State) Equal(o State) bool {
	return s.Search == o.Search && s.Make == o.Make &&
		intPtrEqual(s.YearFrom, o.YearFrom) && intPtrEqual(s.YearTo, o.YearTo)
}

// IsZero reports whether no filter is set.
func (s State) IsZero() bool {
	return s.Equal(State{})
}

// Match reports whether a vehicle passes every set filter. Search is a
// case-insensitive substring of "make model"; make compares
// case-insensitively; the year range is inclusive.
func (s State) Match(mk, model string, year int) bool {
	if s.Search != "" {
		hay := strings.ToLower(mk + " " + model)
		if !strings.Contains(hay, strings.ToLower(strings.TrimSpace(s.Search))) {
			return false
		}
	}
	if s.Make != "" && !strings.EqualFold(s.Make, mk) {
		return false
	}
	if s.YearFrom != nil && *s.YearFrom != 0 && year < *s.YearFrom {
		return false
	}
	if s.YearTo != nil && *s.YearTo != 0 && year > *s.YearTo {
		return false
	}
	return true
}

// Year returns a pointer to y, for building States in code.
func Year(y int) *int {
	return &y
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
