package filters

import (
	"net/url"
	"testing"
)

func TestFromQuery(t *testing.T) {
	// WHAT: Strings copy when non-empty, years parse numerically.
	// WHY: The URL is the source of truth on page load.
	q, _ := url.ParseQuery("search=camry&make=Toyota&yearFrom=2010&yearTo=%202020%20")
	s := FromQuery(q)
	if s.Search != "camry" || s.Make != "Toyota" {
		t.Errorf("strings: got %+v", s)
	}
	if s.YearFrom == nil || *s.YearFrom != 2010 {
		t.Errorf("yearFrom: got %v", s.YearFrom)
	}
	if s.YearTo == nil || *s.YearTo != 2020 {
		t.Errorf("yearTo: got %v", s.YearTo)
	}
}

func TestFromQuery_FalsyYearsAbsent(t *testing.T) {
	// WHAT: 0, garbage and empty years stay unset.
	// WHY: Year 0 is not a representable filter value.
	for _, raw := range []string{"yearFrom=0", "yearFrom=abc", "yearFrom=", "yearFrom=NaN", "yearFrom=Infinity"} {
		q, _ := url.ParseQuery(raw)
		if s := FromQuery(q); s.YearFrom != nil {
			t.Errorf("%s: got %d, want absent", raw, *s.YearFrom)
		}
	}
}

func TestStateQuery_Sparse(t *testing.T) {
	// WHAT: Only truthy fields are written.
	// WHY: Absence of a key must mean "no filter".
	s := State{Search: "", Make: "BMW", YearFrom: Year(0), YearTo: Year(2015)}
	got := s.Query().Encode()
	if got != "make=BMW&yearTo=2015" {
		t.Errorf("got %q", got)
	}
	if enc := (State{}).Query().Encode(); enc != "" {
		t.Errorf("zero state: got %q", enc)
	}
}

func TestMatch(t *testing.T) {
	// WHAT: Search, make and year range combine with AND.
	// WHY: The list endpoint relies on this predicate.
	s := State{Search: "cam", Make: "toyota", YearFrom: Year(2015), YearTo: Year(2020)}
	if !s.Match("Toyota", "Camry", 2018) {
		t.Error("expected match")
	}
	if s.Match("Toyota", "Camry", 2021) {
		t.Error("year above range matched")
	}
	if s.Match("Toyota", "Corolla", 2018) {
		t.Error("search mismatch matched")
	}
	if s.Match("Honda", "Camry", 2018) {
		t.Error("make mismatch matched")
	}
	if !(State{}).Match("Any", "Thing", 1) {
		t.Error("zero state must match everything")
	}
}

func newLoc(t *testing.T, raw string) *URLLocation {
	t.Helper()
	loc, err := NewURLLocation(raw)
	if err != nil {
		t.Fatalf("location: %v", err)
	}
	return loc
}

func TestController_NoWritesWhileRestoring(t *testing.T) {
	// WHAT: Edits before Mount do not touch the URL.
	// WHY: The user's URL must be read before anything overwrites it.
	loc := newLoc(t, "/cars?make=Audi&yearFrom=2012")
	c := NewController(loc, nil)

	c.SetSearch("a4")
	c.SetYearTo(Year(2019))
	if loc.Writes() != 0 {
		t.Fatalf("writes before mount: got %d, want 0", loc.Writes())
	}
	if c.Phase() != Restoring {
		t.Fatalf("phase: got %s", c.Phase())
	}

	c.Mount()
	if c.Phase() != Active {
		t.Fatalf("phase after mount: got %s", c.Phase())
	}
	if loc.Writes() != 1 {
		t.Fatalf("writes after mount: got %d, want 1", loc.Writes())
	}
	got := loc.Query()
	if got.Get("make") != "Audi" || got.Get("yearFrom") != "2012" || got.Get("search") != "a4" || got.Get("yearTo") != "2019" {
		t.Errorf("final query: got %v", got)
	}
}

func TestController_MountWithoutChangesDoesNotWrite(t *testing.T) {
	// WHAT: Mounting on an empty URL with no edits writes nothing.
	// WHY: No spurious history replacement on first render.
	loc := newLoc(t, "/cars")
	c := NewController(loc, nil)
	c.Mount()
	if loc.Writes() != 0 {
		t.Errorf("writes: got %d, want 0", loc.Writes())
	}
}

func TestController_MountOnce(t *testing.T) {
	// WHAT: A second Mount does not restore again.
	// WHY: The Restoring -> Active transition is one-way.
	loc := newLoc(t, "/cars?make=Audi")
	c := NewController(loc, nil)
	c.Mount()
	c.SetMake("")
	c.Mount()
	if c.State().Make != "" {
		t.Errorf("make restored twice: %q", c.State().Make)
	}
}

func TestController_ActiveEditsSync(t *testing.T) {
	// WHAT: Each change while Active writes the URL once.
	// WHY: The URL must always reflect the visible filters.
	loc := newLoc(t, "/cars")
	c := NewController(loc, nil)
	c.Mount()

	c.SetSearch("golf")
	c.SetSearch("golf") // unchanged, no write
	c.SetYearFrom(Year(2005))
	if loc.Writes() != 2 {
		t.Fatalf("writes: got %d, want 2", loc.Writes())
	}
	if got := loc.Query().Encode(); got != "search=golf&yearFrom=2005" {
		t.Errorf("query: got %q", got)
	}

	c.SetYearFrom(nil)
	if got := loc.Query().Encode(); got != "search=golf" {
		t.Errorf("query after clear: got %q", got)
	}
}

func TestController_Reset(t *testing.T) {
	// WHAT: Reset clears every field and syncs immediately.
	// WHY: The "clear filters" action must empty the URL.
	loc := newLoc(t, "/cars?search=x&make=Kia&yearFrom=2000&yearTo=2010")
	c := NewController(loc, nil)
	c.Mount()
	before := loc.Writes()

	c.Reset()
	if !c.State().IsZero() {
		t.Errorf("state: got %+v", c.State())
	}
	if loc.Writes() != before+1 {
		t.Errorf("writes: got %d, want %d", loc.Writes(), before+1)
	}
	if loc.String() != "/cars" {
		t.Errorf("url: got %q", loc.String())
	}
}
