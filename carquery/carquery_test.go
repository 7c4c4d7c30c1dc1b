package carquery

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/carcatalog/observability"
)

// fakeCarQuery serves body for every request and records the last query.
type fakeCarQuery struct {
	srv   *httptest.Server
	calls atomic.Int32
	last  atomic.Value // raw query of the last request
}

func newFakeCarQuery(t *testing.T, status int, body string) *fakeCarQuery {
	t.Helper()
	f := &fakeCarQuery{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		f.last.Store(r.URL.RawQuery)
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeCarQuery) proxy() *Proxy {
	up := NewUpstream(UpstreamConfig{BaseURL: f.srv.URL + "/api/0.3/"}, f.srv.Client())
	return NewProxy(up, nil)
}

const v6Only = `{"Trims":[{
	"model_id":"44721","model_make_display":"Toyota","model_name":"Camry","model_trim":"LE",
	"model_body":"","model_engine_name":"V6","model_transmission_name":"","model_drive_name":"",
	"model_fuel_name":"","model_doors":0,"model_seats":0,"model_price_msrp":0,
	"model_price_invoice":0,"model_mpg_city":0,"model_mpg_hwy":0,"model_mpg_comb":0}]}`

const twoTrims = `?({"Trims":[
	{"model_id":"1","model_make_display":"Honda","model_name":"Civic","model_trim":"EX",
	 "model_body":"Sedan","model_engine_name":"2.0L I4","model_transmission_name":"CVT",
	 "model_drive_name":"FWD","model_fuel_name":"Gasoline","model_doors":"4","model_seats":5,
	 "model_price_msrp":"24000","model_price_invoice":null,"model_mpg_city":31,"model_mpg_hwy":"40",
	 "model_mpg_comb":""},
	{"model_id":2,"model_name":"Civic","model_trim":"Si","model_doors":2,"model_seats":0,
	 "model_price_msrp":0}
]});`

func TestDetails_FalsyOmissionAsymmetry(t *testing.T) {
	// WHAT: Zero summary fields are absent, zero trim fields stay literal.
	// WHY: 0 means "unknown" upstream; the trims table shows raw values.
	f := newFakeCarQuery(t, http.StatusOK, v6Only)
	d, err := f.proxy().Details(context.Background(), "Toyota", "Camry", "2020")
	if err != nil {
		t.Fatalf("details: %v", err)
	}

	if d.Engine == nil || *d.Engine != "V6" {
		t.Fatalf("engine: got %v", d.Engine)
	}
	if d.Transmission != nil || d.Drive != nil || d.Doors != nil || d.Seats != nil {
		t.Errorf("unexpected summary fields: %+v", d.Enrichment)
	}
	if d.FuelEconomy != nil || d.Price != nil {
		t.Errorf("fuel economy / price should be absent: %+v %+v", d.FuelEconomy, d.Price)
	}

	if len(d.Trims) != 1 {
		t.Fatalf("trims: got %d, want 1", len(d.Trims))
	}
	tr := d.Trims[0]
	if tr.ID != "44721" || tr.EngineName != "V6" || tr.Doors != 0 || tr.MSRP != 0 || tr.MPGCity != 0 {
		t.Errorf("trim: got %+v", tr)
	}

	// Zeros must survive on the wire for trims and be absent at the top.
	raw, _ := json.Marshal(d)
	s := string(raw)
	if !strings.Contains(s, `"doors":0`) || !strings.Contains(s, `"msrp":0`) {
		t.Errorf("trim zeros missing from JSON: %s", s)
	}
	if strings.Contains(s, `"fuelEconomy"`) || strings.Contains(s, `"seats"`) {
		t.Errorf("absent summary fields serialized: %s", s)
	}
}

func TestDetails_RaggedSchemaAndJSONP(t *testing.T) {
	// WHAT: Numeric strings, nulls, "" and a JSONP wrapper all decode.
	// WHY: CarQuery mixes types between records and wraps in a callback.
	f := newFakeCarQuery(t, http.StatusOK, twoTrims)
	d, err := f.proxy().Details(context.Background(), "Honda", "Civic", "2018")
	if err != nil {
		t.Fatalf("details: %v", err)
	}
	if d.Doors == nil || *d.Doors != 4 {
		t.Errorf("doors: got %v", d.Doors)
	}
	if d.Price == nil || d.Price.MSRP == nil || *d.Price.MSRP != 24000 || d.Price.Invoice != nil {
		t.Errorf("price: got %+v", d.Price)
	}
	if d.FuelEconomy == nil || *d.FuelEconomy.Highway != 40 || d.FuelEconomy.Combined != nil {
		t.Errorf("fuel economy: got %+v", d.FuelEconomy)
	}
	if len(d.Trims) != 2 || d.Trims[1].ID != "2" || d.Trims[1].TrimName != "Si" {
		t.Errorf("trims: got %+v", d.Trims)
	}
	if d.Trims[1].SeatCount != 0 || d.Trims[1].ModelDisplayName != "" {
		t.Errorf("second trim: got %+v", d.Trims[1])
	}

	q, _ := f.last.Load().(string)
	for _, want := range []string{"cmd=getTrims", "make=Honda", "model=Civic", "year=2018"} {
		if !strings.Contains(q, want) {
			t.Errorf("upstream query %q lacks %q", q, want)
		}
	}
}

func TestDetails_NoTrims(t *testing.T) {
	// WHAT: An empty Trims array is a valid, non-error answer.
	// WHY: "No data" must be distinguishable from a transport failure.
	f := newFakeCarQuery(t, http.StatusOK, `{"Trims":[]}`)
	d, err := f.proxy().Details(context.Background(), "Lada", "Niva", "2021")
	if err != nil {
		t.Fatalf("details: %v", err)
	}
	if d.Make != "Lada" || d.Model != "Niva" || d.Year != 2021 {
		t.Errorf("identity: got %+v", d)
	}
	raw, _ := json.Marshal(d)
	if string(raw) != `{"make":"Lada","model":"Niva","year":2021,"trims":[]}` {
		t.Errorf("json: got %s", raw)
	}
}

func TestDetails_BadRequestSkipsUpstream(t *testing.T) {
	// WHAT: Missing parts fail fast without calling upstream.
	// WHY: Incomplete identities would waste the rate-limited quota.
	f := newFakeCarQuery(t, http.StatusOK, `{"Trims":[]}`)
	p := f.proxy()
	for _, in := range [][3]string{{"", "Camry", "2020"}, {"Toyota", "", "2020"}, {"Toyota", "Camry", ""}, {"Toyota", "Camry", "20x0"}} {
		if _, err := p.Details(context.Background(), in[0], in[1], in[2]); !errors.Is(err, ErrBadRequest) {
			t.Errorf("%v: expected ErrBadRequest, got %v", in, err)
		}
	}
	if n := f.calls.Load(); n != 0 {
		t.Errorf("upstream calls: got %d, want 0", n)
	}
}

func TestDetails_UpstreamFailureIsOpaque(t *testing.T) {
	// WHAT: Non-2xx and malformed bodies map to ErrUpstream only.
	// WHY: Upstream error detail must not leak to callers.
	for _, tc := range []struct {
		status int
		body   string
	}{
		{http.StatusServiceUnavailable, "upstream exploded: secret-token"},
		{http.StatusOK, "<html>not json</html>"},
	} {
		f := newFakeCarQuery(t, tc.status, tc.body)
		_, err := f.proxy().Details(context.Background(), "Toyota", "Camry", "2020")
		if err != ErrUpstream {
			t.Errorf("status %d: got %v, want bare ErrUpstream", tc.status, err)
		}
	}
}

func TestUpstream_RateLimited(t *testing.T) {
	// WHAT: Requests are spaced by MinInterval.
	// WHY: CarQuery throttles aggressive clients.
	f := newFakeCarQuery(t, http.StatusOK, `{"Trims":[]}`)
	up := NewUpstream(UpstreamConfig{BaseURL: f.srv.URL, MinInterval: 50 * time.Millisecond}, f.srv.Client())
	p := NewProxy(up, nil)

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := p.Details(context.Background(), "A", "B", "2000"); err != nil {
			t.Fatalf("details: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("3 calls took %v, expected >= ~100ms", elapsed)
	}
}

// recorder keeps every datapoint in memory.
type recorder struct {
	mu     sync.Mutex
	points []*observability.Metric
}

func (r *recorder) Record(m *observability.Metric) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.points = append(r.points, m)
}

func (r *recorder) outcomes(name string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, m := range r.points {
		if m.Name == name {
			out = append(out, m.Labels["outcome"])
		}
	}
	return out
}

func TestUpstream_RecordsMetrics(t *testing.T) {
	// WHAT: Each request records its latency and outcome, plus the limiter wait.
	// WHY: Upstream failures are opaque to callers; the metrics keep the cause.
	rec := &recorder{}
	ok := newFakeCarQuery(t, http.StatusOK, `{"Trims":[]}`)
	broken := newFakeCarQuery(t, http.StatusServiceUnavailable, "")
	garbled := newFakeCarQuery(t, http.StatusOK, "<html>")

	for _, f := range []*fakeCarQuery{ok, broken, garbled} {
		up := NewUpstream(UpstreamConfig{BaseURL: f.srv.URL}, f.srv.Client(), WithMetrics(rec))
		NewProxy(up, nil).Details(context.Background(), "Toyota", "Camry", "2020")
	}

	got := rec.outcomes(observability.MetricUpstreamRequestMs)
	want := []string{"ok", "http_error", "decode_error"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("outcomes: got %v, want %v", got, want)
	}
	if waits := rec.outcomes(observability.MetricRateLimitWaitMs); len(waits) != 3 {
		t.Errorf("rate-limit waits: got %d, want 3", len(waits))
	}
	for _, m := range rec.points {
		if m.Unit != observability.UnitMilliseconds || m.Value < 0 {
			t.Errorf("datapoint: %+v", m)
		}
	}
}

func newProxyServer(t *testing.T, p *Proxy) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	p.Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestHandler_StatusCodes(t *testing.T) {
	// WHAT: 200 on success, 400 on missing parts, 500 on upstream failure.
	// WHY: This is the HTTP contract the store's remote client relies on.
	ok := newProxyServer(t, newFakeCarQuery(t, http.StatusOK, v6Only).proxy())
	broken := newProxyServer(t, newFakeCarQuery(t, http.StatusBadGateway, "").proxy())

	cases := []struct {
		srv    *httptest.Server
		path   string
		status int
		errMsg string
	}{
		{ok, "/proxy/details/Toyota/Camry/2020", 200, ""},
		{ok, "/proxy/details/Land%20Rover/Range%20Rover/2018", 200, ""},
		{ok, "/proxy/details/Toyota/Camry", 400, msgMissingParams},
		{ok, "/proxy/details/", 400, msgMissingParams},
		{ok, "/proxy/details/Toyota/Camry/abcd", 400, msgInvalidYear},
		{broken, "/proxy/details/Toyota/Camry/2020", 500, msgUpstream},
	}
	for _, tc := range cases {
		resp, err := http.Get(tc.srv.URL + tc.path)
		if err != nil {
			t.Fatalf("GET %s: %v", tc.path, err)
		}
		var body map[string]any
		json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()

		if resp.StatusCode != tc.status {
			t.Errorf("GET %s: status %d, want %d", tc.path, resp.StatusCode, tc.status)
			continue
		}
		if tc.errMsg != "" && body["error"] != tc.errMsg {
			t.Errorf("GET %s: error %v, want %q", tc.path, body["error"], tc.errMsg)
		}
		if tc.status == 200 && body["engine"] != "V6" {
			t.Errorf("GET %s: body %v", tc.path, body)
		}
	}
}

func TestClient_RoundTrip(t *testing.T) {
	// WHAT: Client decodes proxy answers and maps status codes to sentinels.
	// WHY: The store may talk to a proxy in another process.
	okSrv := newProxyServer(t, newFakeCarQuery(t, http.StatusOK, twoTrims).proxy())
	c, err := NewClient(okSrv.URL, okSrv.Client())
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	d, err := c.Details(context.Background(), "Honda", "Civic", "2018")
	if err != nil {
		t.Fatalf("details: %v", err)
	}
	if d.Engine == nil || *d.Engine != "2.0L I4" || len(d.Trims) != 2 {
		t.Errorf("got %+v", d)
	}

	if _, err := c.Details(context.Background(), "Honda", "", "2018"); !errors.Is(err, ErrBadRequest) {
		t.Errorf("missing model: got %v", err)
	}

	badSrv := newProxyServer(t, newFakeCarQuery(t, http.StatusInternalServerError, "").proxy())
	c, _ = NewClient(badSrv.URL, badSrv.Client())
	if _, err := c.Details(context.Background(), "Honda", "Civic", "2018"); !errors.Is(err, ErrUpstream) {
		t.Errorf("upstream failure: got %v", err)
	}

	if _, err := NewClient("ftp://nope", nil); err == nil {
		t.Error("expected error for ftp base URL")
	}
}
