package filters

import (
	"log/slog"
	"net/url"
	"sync"
)

// Location is the navigable URL the controller mirrors its state into.
// Replace must overwrite the current history entry rather than push one.
type Location interface {
	Query() url.Values
	Replace(q url.Values)
}

// Phase is the controller lifecycle. The only transition is
// Restoring -> Active, taken once by Mount.
type Phase int

const (
	Restoring Phase = iota
	Active
)

func (p Phase) String() string {
	switch p {
	case Restoring:
		return "restoring"
	case Active:
		return "active"
	default:
		return "unknown"
	}
}

// Controller keeps a State in sync with a Location.
//
// While Restoring, field changes are recorded but never written to the
// URL, so a query the user navigated to cannot be clobbered before it has
// been read. Once Active, every change is written synchronously.
type Controller struct {
	mu     sync.Mutex
	loc    Location
	logger *slog.Logger
	phase  Phase
	state  State
	dirty  bool // changed while Restoring
}

// NewController returns a controller in the Restoring phase with all
// fields at their defaults.
func NewController(loc Location, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{loc: loc, logger: logger}
}

// Phase returns the current lifecycle phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// State returns a copy of the current filters.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Mount restores the filters from the location and switches to Active.
// If anything changed while restoring, the final state is written once.
// Calls after the first are no-ops.
func (c *Controller) Mount() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != Restoring {
		return
	}
	c.restoreFromURL()
	c.phase = Active
	if c.dirty {
		c.syncToURL()
	}
	c.dirty = false
	c.logger.Debug("filters: mounted", "query", c.state.Query().Encode())
}

func (c *Controller) restoreFromURL() {
	q := c.loc.Query()
	next := c.state
	if v := q.Get(KeySearch); v != "" {
		next.Search = v
	}
	if v := q.Get(KeyMake); v != "" {
		next.Make = v
	}
	if y := parseYear(q.Get(KeyYearFrom)); y != nil {
		next.YearFrom = y
	}
	if y := parseYear(q.Get(KeyYearTo)); y != nil {
		next.YearTo = y
	}
	c.apply(next)
}

// SetSearch updates the search text.
func (c *Controller) SetSearch(v string) { c.update(func(s *State) { s.Search = v }) }

// SetMake updates the make filter.
func (c *Controller) SetMake(v string) { c.update(func(s *State) { s.Make = v }) }

// SetYearFrom updates the lower year bound; nil clears it.
func (c *Controller) SetYearFrom(v *int) { c.update(func(s *State) { s.YearFrom = copyInt(v) }) }

// SetYearTo updates the upper year bound; nil clears it.
func (c *Controller) SetYearTo(v *int) { c.update(func(s *State) { s.YearTo = copyInt(v) }) }

// Reset clears every field and writes the (empty) query immediately.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = State{}
	c.syncToURL()
}

// SyncToURL writes the current state to the location.
func (c *Controller) SyncToURL() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.syncToURL()
}

func (c *Controller) syncToURL() {
	c.loc.Replace(c.state.Query())
}

func (c *Controller) update(fn func(*State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.state
	fn(&next)
	if !c.apply(next) {
		return
	}
	if c.phase == Active {
		c.syncToURL()
	}
}

// apply stores next and reports whether it differs from the current state.
func (c *Controller) apply(next State) bool {
	if next.Equal(c.state) {
		return false
	}
	c.state = next
	if c.phase == Restoring {
		c.dirty = true
	}
	return true
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}

// URLLocation is a Location backed by a url.URL. It counts writes so
// callers can tell whether a sync happened.
type URLLocation struct {
	mu     sync.Mutex
	u      url.URL
	writes int
}

// NewURLLocation parses raw into a URLLocation.
func NewURLLocation(raw string) (*URLLocation, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &URLLocation{u: *u}, nil
}

// Query returns the current query values.
func (l *URLLocation) Query() url.Values {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.u.Query()
}

// Replace overwrites the query string in place.
func (l *URLLocation) Replace(q url.Values) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.u.RawQuery = q.Encode()
	l.writes++
}

// Writes returns how many times Replace was called.
func (l *URLLocation) Writes() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writes
}

// String returns the current URL.
func (l *URLLocation) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.u.String()
}
