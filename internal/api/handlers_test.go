package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"aicaptain/internal/catalog"
	"aicaptain/internal/events"
	"aicaptain/internal/orchestrator"
	"aicaptain/internal/session"
	"aicaptain/internal/store"
	"aicaptain/internal/transport"
)

const routeJSON = `{
  "waypoints": [
    {"id":"wp-1","name":"Singapore","lat":1.26,"lon":103.82},
    {"id":"wp-9","name":"Suez","lat":30.0,"lon":32.5},
    {"id":"wp-2","name":"Rotterdam","lat":51.95,"lon":4.14}
  ],
  "metrics": {"distance_nm":8400,"time_hours":560,"fuel_tons":900,"cost_usd":450000,"risk_score":0.3},
  "blockages": [],
  "generated_at": "2024-05-01T10:20:30"
}`

// upstream fakes the optimization service. Optimize answers with status
// (200 by default) after gate is closed, when gate is set.
type upstream struct {
	*httptest.Server
	optimizeCalls atomic.Int32
	status        atomic.Int32
	gate          chan struct{}
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	u := &upstream{}
	u.status.Store(http.StatusOK)
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/waypoints":
			_, _ = w.Write([]byte(`{"waypoints":[{"id":"wp-1","name":"Singapore","latitude":1.26,"longitude":103.82,"port_type":"port"},{"id":"wp-2","name":"Rotterdam","latitude":51.95,"longitude":4.14,"port_type":"port"}]}`))
		case "/api/v1/health":
			_, _ = w.Write([]byte(`{"status":"healthy"}`))
		case "/api/v1/route/optimize":
			u.optimizeCalls.Add(1)
			if u.gate != nil {
				<-u.gate
			}
			if st := int(u.status.Load()); st != http.StatusOK {
				w.WriteHeader(st)
				_, _ = w.Write([]byte(`{"detail":"Not authenticated"}`))
				return
			}
			_, _ = w.Write([]byte(routeJSON))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(u.Close)
	return u
}

type fixture struct {
	srv      *Server
	handler  http.Handler
	upstream *upstream
	creds    *session.Memory
	broker   *events.Broker
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	up := newUpstream(t)
	creds := session.NewMemory("tok-1")
	broker := events.NewBroker()
	client := transport.New(up.URL+"/api/v1", creds,
		transport.WithUnauthorizedHandler(func(context.Context) {
			broker.Publish(events.TopicSession, events.Event{Type: events.TypeSessionExpired, Data: map[string]any{"redirect": "/login"}})
		}))
	history := store.NewMemory()
	pool := orchestrator.NewPool(client, catalog.NewLoader(client, nil),
		orchestrator.WithEvents(broker), orchestrator.WithHistory(history))
	if opts.AllowOrigins == nil {
		opts.AllowOrigins = []string{"http://localhost:3000"}
	}
	s := &Server{Pool: pool, Upstream: client, Creds: creds, History: history, Broker: broker, Log: zap.NewNop(), Opts: opts}
	return &fixture{srv: s, handler: s.Handler(), upstream: up, creds: creds, broker: broker}
}

func (f *fixture) do(t *testing.T, method, path string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func (f *fixture) openClient(t *testing.T) string {
	t.Helper()
	rr := f.do(t, http.MethodPost, "/v1/clients", nil, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("open client: %d %s", rr.Code, rr.Body)
	}
	var out struct {
		ID        string `json:"id"`
		Waypoints int    `json:"waypoints"`
	}
	decode(t, rr, &out)
	if out.ID == "" || out.Waypoints != 2 {
		t.Fatalf("open client: %s", rr.Body)
	}
	return out.ID
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %s: %v", rr.Body, err)
	}
}

func (f *fixture) wait(t *testing.T, id string) orchestrator.State {
	t.Helper()
	o, ok := f.srv.Pool.Get(id)
	if !ok {
		t.Fatalf("client %s not found", id)
	}
	o.Wait()
	return o.Snapshot()
}

func formFields() map[string]any {
	return map[string]any{
		"vessel_name": "Maritime Explorer", "mmsi": "636016829", "imo": "9123456", "call_sign": "CALL1",
		"length_m": 190, "beam_m": "32", "draught_m": "11", "depth_m": "18", "type_code": "70",
		"latitude": 1.3521, "longitude": "103.8198", "sog_knots": "15", "cog_degrees": "90",
		"heading_degrees": "88", "nav_status": "0",
		"start_port": "wp-1", "end_port": "wp-2", "fuel_price": "500",
		"weight_time": "1", "weight_cost": "1", "weight_risk": "1",
		"avoid_piracy_zones": true,
	}
}

func TestHealthReady(t *testing.T) {
	f := newFixture(t, Options{})
	rr := f.do(t, http.MethodGet, "/healthz", nil, nil)
	if rr.Code != 200 {
		t.Fatalf("health: got %d", rr.Code)
	}
	rr = f.do(t, http.MethodGet, "/readyz", nil, nil)
	if rr.Code != 200 {
		t.Fatalf("ready: got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"healthy"`) {
		t.Fatalf("ready should report upstream health: %s", rr.Body)
	}
}

func TestWaypointsWithDefaults(t *testing.T) {
	f := newFixture(t, Options{})
	id := f.openClient(t)
	rr := f.do(t, http.MethodGet, "/v1/waypoints", nil, map[string]string{clientHeader: id})
	if rr.Code != 200 {
		t.Fatalf("waypoints: %d", rr.Code)
	}
	var out struct {
		Waypoints    []map[string]any `json:"waypoints"`
		DefaultStart string           `json:"defaultStart"`
		DefaultEnd   string           `json:"defaultEnd"`
	}
	decode(t, rr, &out)
	if len(out.Waypoints) != 2 || out.DefaultStart != "wp-1" || out.DefaultEnd != "wp-2" {
		t.Fatalf("unexpected waypoints body: %s", rr.Body)
	}
}

func TestUnknownClient(t *testing.T) {
	f := newFixture(t, Options{})
	rr := f.do(t, http.MethodGet, "/v1/state", nil, map[string]string{clientHeader: "nope"})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown client: got %d", rr.Code)
	}
}

func TestOptimizeLifecycleAndHistory(t *testing.T) {
	f := newFixture(t, Options{})
	id := f.openClient(t)
	hdr := map[string]string{clientHeader: id}

	rr := f.do(t, http.MethodPost, "/v1/optimize", formFields(), hdr)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("optimize: %d %s", rr.Code, rr.Body)
	}
	if !strings.Contains(rr.Body.String(), `"phase":"loading"`) {
		t.Fatalf("optimize should answer with the loading state: %s", rr.Body)
	}

	st := f.wait(t, id)
	if st.Phase != orchestrator.PhaseSuccess || st.Route == nil || st.Route.Metrics.DistanceNM != 8400 {
		t.Fatalf("final state: %+v", st)
	}
	rr = f.do(t, http.MethodGet, "/v1/state", nil, hdr)
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), `"phase":"success"`) {
		t.Fatalf("state: %d %s", rr.Code, rr.Body)
	}

	rr = f.do(t, http.MethodGet, "/v1/routes?limit=10", nil, nil)
	var list struct {
		Items []store.RouteRecord `json:"items"`
	}
	decode(t, rr, &list)
	if rr.Code != 200 || len(list.Items) != 1 {
		t.Fatalf("routes: %d %s", rr.Code, rr.Body)
	}
	rid := list.Items[0].ID
	if rr = f.do(t, http.MethodGet, "/v1/routes/"+rid, nil, nil); rr.Code != 200 {
		t.Fatalf("route get: %d", rr.Code)
	}
	if rr = f.do(t, http.MethodDelete, "/v1/routes/"+rid, nil, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("route delete: %d", rr.Code)
	}
	if rr = f.do(t, http.MethodGet, "/v1/routes/"+rid, nil, nil); rr.Code != http.StatusNotFound {
		t.Fatalf("route get after delete: %d", rr.Code)
	}
	if rr = f.do(t, http.MethodGet, "/v1/routes?limit=x", nil, nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad limit: %d", rr.Code)
	}
}

func TestOptimizeValidationError(t *testing.T) {
	f := newFixture(t, Options{})
	id := f.openClient(t)
	fields := formFields()
	fields["end_port"] = "wp-404"
	rr := f.do(t, http.MethodPost, "/v1/optimize", fields, map[string]string{clientHeader: id})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("validation: %d %s", rr.Code, rr.Body)
	}
	var p Problem
	decode(t, rr, &p)
	if p.Field != "end_port" || p.State == nil || p.State.Phase != orchestrator.PhaseError {
		t.Fatalf("problem: %+v", p)
	}
	if n := f.upstream.optimizeCalls.Load(); n != 0 {
		t.Fatalf("validation failure reached the service %d times", n)
	}
}

func TestOptimizeFormEncoded(t *testing.T) {
	f := newFixture(t, Options{})
	id := f.openClient(t)
	form := url.Values{}
	for k, v := range formFields() {
		b, _ := json.Marshal(v)
		form.Set(k, strings.Trim(string(b), `"`))
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/optimize", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(clientHeader, id)
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("form optimize: %d %s", rr.Code, rr.Body)
	}
	if st := f.wait(t, id); st.Phase != orchestrator.PhaseSuccess {
		t.Fatalf("form optimize final state: %+v", st)
	}
}

func TestOptimizeInFlightConflict(t *testing.T) {
	f := newFixture(t, Options{})
	f.upstream.gate = make(chan struct{})
	id := f.openClient(t)
	hdr := map[string]string{clientHeader: id}

	if rr := f.do(t, http.MethodPost, "/v1/optimize", formFields(), hdr); rr.Code != http.StatusAccepted {
		t.Fatalf("first optimize: %d", rr.Code)
	}
	rr := f.do(t, http.MethodPost, "/v1/optimize", formFields(), hdr)
	if rr.Code != http.StatusConflict {
		t.Fatalf("second optimize: got %d want 409", rr.Code)
	}
	close(f.upstream.gate)
	f.wait(t, id)
	if n := f.upstream.optimizeCalls.Load(); n != 1 {
		t.Fatalf("optimize calls: %d", n)
	}
}

func TestAbandonViaDeleteState(t *testing.T) {
	f := newFixture(t, Options{})
	f.upstream.gate = make(chan struct{})
	id := f.openClient(t)
	hdr := map[string]string{clientHeader: id}

	f.do(t, http.MethodPost, "/v1/optimize", formFields(), hdr)
	rr := f.do(t, http.MethodDelete, "/v1/state", nil, hdr)
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), `"phase":"idle"`) {
		t.Fatalf("abandon: %d %s", rr.Code, rr.Body)
	}
	close(f.upstream.gate)
	if st := f.wait(t, id); st.Phase != orchestrator.PhaseIdle || st.Route != nil {
		t.Fatalf("late response applied: %+v", st)
	}
}

func TestUnauthorizedEndsInErrorAndClearsSession(t *testing.T) {
	f := newFixture(t, Options{})
	f.upstream.status.Store(http.StatusUnauthorized)
	id := f.openClient(t)
	sess := f.broker.Subscribe(events.TopicSession)
	defer f.broker.Unsubscribe(events.TopicSession, sess)

	f.do(t, http.MethodPost, "/v1/optimize", formFields(), map[string]string{clientHeader: id})
	st := f.wait(t, id)
	if st.Phase != orchestrator.PhaseError || st.Error.Kind != orchestrator.KindUnauthorized || st.Error.Message != "Not authenticated" {
		t.Fatalf("state after 401: %+v", st)
	}
	select {
	case evt := <-sess:
		if evt.Type != events.TypeSessionExpired || evt.Data["redirect"] != "/login" {
			t.Fatalf("session event: %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("no session.expired event")
	}
	rr := f.do(t, http.MethodGet, "/v1/session", nil, nil)
	if !strings.Contains(rr.Body.String(), `"authenticated":false`) {
		t.Fatalf("session should be cleared: %s", rr.Body)
	}
}

func TestSessionPutDelete(t *testing.T) {
	f := newFixture(t, Options{})
	if rr := f.do(t, http.MethodPut, "/v1/session", map[string]string{"token": "tok-2"}, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("put session: %d", rr.Code)
	}
	if tok, _ := f.creds.Token(context.Background()); tok != "tok-2" {
		t.Fatalf("token: %q", tok)
	}
	rr := f.do(t, http.MethodPut, "/v1/session", nil, map[string]string{"Authorization": "Bearer tok-3"})
	if rr.Code != http.StatusNoContent {
		t.Fatalf("put session via header: %d", rr.Code)
	}
	if tok, _ := f.creds.Token(context.Background()); tok != "tok-3" {
		t.Fatalf("token: %q", tok)
	}
	if rr := f.do(t, http.MethodPut, "/v1/session", map[string]string{}, nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("empty token: %d", rr.Code)
	}
	if rr := f.do(t, http.MethodDelete, "/v1/session", nil, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("delete session: %d", rr.Code)
	}
	if tok, _ := f.creds.Token(context.Background()); tok != "" {
		t.Fatalf("token after logout: %q", tok)
	}
}

func TestDefaultClient(t *testing.T) {
	f := newFixture(t, Options{})
	rr := f.do(t, http.MethodGet, "/v1/state", nil, nil)
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), `"phase":"idle"`) {
		t.Fatalf("default state: %d %s", rr.Code, rr.Body)
	}
	if f.srv.Pool.Len() != 1 {
		t.Fatalf("default client should be opened once, pool has %d", f.srv.Pool.Len())
	}
	f.do(t, http.MethodGet, "/v1/state", nil, nil)
	if f.srv.Pool.Len() != 1 {
		t.Fatalf("default client reopened, pool has %d", f.srv.Pool.Len())
	}
}

func TestDefaultClientReopensAfterClose(t *testing.T) {
	f := newFixture(t, Options{})
	rr := f.do(t, http.MethodGet, "/v1/state", nil, nil)
	var st orchestrator.State
	decode(t, rr, &st)
	if rr.Code != 200 || st.ID == "" {
		t.Fatalf("default state: %d %s", rr.Code, rr.Body)
	}
	if rr := f.do(t, http.MethodDelete, "/v1/clients/"+st.ID, nil, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("close default: %d", rr.Code)
	}
	rr = f.do(t, http.MethodGet, "/v1/state", nil, nil)
	var again orchestrator.State
	decode(t, rr, &again)
	if rr.Code != 200 || again.ID == "" || again.ID == st.ID || again.Phase != orchestrator.PhaseIdle {
		t.Fatalf("default after close: %d %s", rr.Code, rr.Body)
	}
	if n := f.srv.Pool.Len(); n != 1 {
		t.Fatalf("pool has %d members", n)
	}
}

func TestCloseClient(t *testing.T) {
	f := newFixture(t, Options{})
	id := f.openClient(t)
	if rr := f.do(t, http.MethodDelete, "/v1/clients/"+id, nil, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("close: %d", rr.Code)
	}
	if rr := f.do(t, http.MethodDelete, "/v1/clients/"+id, nil, nil); rr.Code != http.StatusNotFound {
		t.Fatalf("second close: %d", rr.Code)
	}
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, Options{RateRPS: 1, RateBurst: 2})
	codes := []int{}
	for i := 0; i < 3; i++ {
		codes = append(codes, f.do(t, http.MethodGet, "/v1/session", nil, nil).Code)
	}
	if codes[0] != 200 || codes[1] != 200 || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("rate limit codes: %v", codes)
	}
	if rr := f.do(t, http.MethodGet, "/healthz", nil, nil); rr.Code != 200 {
		t.Fatalf("health is not rate limited: %d", rr.Code)
	}
}

func TestCORS(t *testing.T) {
	f := newFixture(t, Options{})
	rr := f.do(t, http.MethodGet, "/healthz", nil, map[string]string{"Origin": "http://localhost:3000"})
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("allow origin: %q", got)
	}
}

func TestMetricsAndDebug(t *testing.T) {
	f := newFixture(t, Options{Debug: map[string]any{"api_base_url": "http://x"}})
	f.do(t, http.MethodGet, "/healthz", nil, nil)
	rr := f.do(t, http.MethodGet, "/metrics", nil, nil)
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), `http_requests_total{method="GET",path="/healthz",status="200"}`) {
		t.Fatalf("metrics: %d", rr.Code)
	}
	rr = f.do(t, http.MethodGet, "/debug/info", nil, nil)
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), `"api_base_url":"http://x"`) {
		t.Fatalf("debug: %d %s", rr.Code, rr.Body)
	}
}

func TestEventStream(t *testing.T) {
	f := newFixture(t, Options{})
	ts := httptest.NewServer(f.handler)
	defer ts.Close()
	id := f.openClient(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/v1/events/stream?client="+id, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type: %q", ct)
	}

	lines := make(chan string, 64)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()
	next := func() string {
		for {
			select {
			case l, ok := <-lines:
				if !ok {
					t.Fatal("stream closed")
				}
				if strings.HasPrefix(l, "data: ") {
					return l
				}
			case <-time.After(2 * time.Second):
				t.Fatal("timed out waiting for event")
			}
		}
	}
	if l := next(); !strings.Contains(l, `"phase":"idle"`) {
		t.Fatalf("initial event: %s", l)
	}

	f.do(t, http.MethodPost, "/v1/optimize", formFields(), map[string]string{clientHeader: id})
	var phases []string
	for _, want := range []string{"validating", "loading", "success"} {
		l := next()
		if !strings.Contains(l, `"phase":"`+want+`"`) {
			t.Fatalf("want %s event, got %s (so far %v)", want, l, phases)
		}
		phases = append(phases, want)
	}
	f.wait(t, id)
	cancel()
}

func TestWebSocketSubmit(t *testing.T) {
	f := newFixture(t, Options{})
	ts := httptest.NewServer(f.handler)
	defer ts.Close()
	id := f.openClient(t)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/v1/ws?client="+id, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	read := func() wsMessage {
		var m wsMessage
		if err := conn.ReadJSON(&m); err != nil {
			t.Fatalf("read: %v", err)
		}
		return m
	}
	if err := conn.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		t.Fatal(err)
	}
	if m := read(); m.Type != "connection_ack" {
		t.Fatalf("want ack, got %+v", m)
	}
	if m := read(); m.Type != "next" || !strings.Contains(string(m.Payload), `"phase":"idle"`) {
		t.Fatalf("want initial state, got %s", m.Payload)
	}

	if err := conn.WriteJSON(wsMessage{Type: "submit", ID: "0", Payload: json.RawMessage(`{"vessel_name":["x"]}`)}); err != nil {
		t.Fatal(err)
	}
	for {
		m := read()
		if m.Type == "error" {
			if m.ID != "0" || !strings.Contains(string(m.Payload), "Invalid payload") {
				t.Fatalf("want invalid payload, got %+v %s", m, m.Payload)
			}
			break
		}
	}

	bad, _ := json.Marshal(map[string]string{"start_port": "wp-1"})
	_ = conn.WriteJSON(wsMessage{Type: "submit", ID: "1", Payload: bad})
	sawError := false
	for !sawError {
		m := read()
		if m.Type == "error" {
			if m.ID != "1" || !strings.Contains(string(m.Payload), `"field":"vessel_name"`) {
				t.Fatalf("error message: %+v %s", m, m.Payload)
			}
			sawError = true
		}
	}

	// Numbers and booleans are accepted as JSON scalars, as on POST.
	good, _ := json.Marshal(formFields())
	_ = conn.WriteJSON(wsMessage{Type: "submit", ID: "2", Payload: good})
	for {
		m := read()
		if m.Type == "next" && strings.Contains(string(m.Payload), `"phase":"success"`) {
			break
		}
		if m.Type == "error" {
			t.Fatalf("unexpected error: %s", m.Payload)
		}
	}
	f.wait(t, id)
}
