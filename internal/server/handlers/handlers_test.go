package handlers

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
	"github.com/gorilla/websocket"

	"metromap/internal/domain/layer"
	"metromap/internal/service/cache"
	"metromap/internal/service/live"
)

type stubSource struct {
	key   layer.Key
	mu    sync.Mutex
	env   layer.Envelope
	err   error
	calls atomic.Int32
}

func (s *stubSource) Key() layer.Key { return s.key }

func (s *stubSource) Fetch(ctx context.Context) (layer.Envelope, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.env, s.err
}

func (s *stubSource) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func busEnvelope(at time.Time) layer.Envelope {
	return layer.NewEnvelope(layer.Transit, []layer.Point{
		{ID: "bus-1", Type: "bus", Title: "Route 8", Latitude: 28.54, Longitude: -81.38, Color: "#3b82f6"},
	}, nil, at)
}

func newTestManager(t *testing.T, clk *clock, sources ...*stubSource) *cache.Manager {
	t.Helper()
	m := cache.NewManager(cache.Config{Now: clk.Now})
	for _, s := range sources {
		if err := m.Register(s, layer.ConfigFor(s.key).TTL); err != nil {
			t.Fatalf("Register(%s): %v", s.key, err)
		}
	}
	return m
}

func newTestRouter(lh *LayerHandler, ah *AssistHandler, ls *LayerStream) *chi.Mux {
	r := chi.NewRouter()
	if lh != nil {
		r.Get("/api/v1/layers", lh.Catalog)
		r.Get("/api/v1/layers/all", lh.GetAll)
		r.Get("/api/v1/layers/{key}", lh.GetLayer)
	}
	if ah != nil {
		r.Post("/api/v1/layers/analyze", ah.Analyze)
		r.Post("/api/v1/narrate", ah.Narrate)
	}
	if ls != nil {
		r.Get("/ws/layers/{key}", ls.ServeHTTP)
	}
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) layer.Envelope {
	t.Helper()
	var env layer.Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v\n%s", err, rec.Body.String())
	}
	return env
}

func TestGetLayerServesFromCacheWithinTTL(t *testing.T) {
	clk := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	src := &stubSource{key: layer.Transit, env: busEnvelope(clk.now)}
	router := newTestRouter(NewLayerHandler(newTestManager(t, clk, src), nil), nil, nil)

	first := do(t, router, http.MethodGet, "/api/v1/layers/transit", "")
	clk.Advance(5 * time.Second)
	second := do(t, router, http.MethodGet, "/api/v1/layers/transit", "")

	for _, rec := range []*httptest.ResponseRecorder{first, second} {
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if got := rec.Header().Get("Cache-Control"); got != "public, max-age=15" {
			t.Errorf("Cache-Control = %q", got)
		}
		if env := decodeEnvelope(t, rec); env.Count != 1 || len(env.Items) != 1 {
			t.Errorf("unexpected envelope %+v", env)
		}
	}
	if n := src.calls.Load(); n != 1 {
		t.Errorf("source called %d times, want 1", n)
	}
	if second.Header().Get("X-Cache") != "hit" {
		t.Errorf("second response X-Cache = %q", second.Header().Get("X-Cache"))
	}
}

func TestGetLayerUnknownKeys(t *testing.T) {
	clk := &clock{now: time.Now()}
	router := newTestRouter(NewLayerHandler(newTestManager(t, clk), nil), nil, nil)

	for _, path := range []string{"/api/v1/layers/trains", "/api/v1/layers/transit"} {
		if rec := do(t, router, http.MethodGet, path, ""); rec.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", path, rec.Code)
		}
	}
}

func TestGetLayerFailureStatuses(t *testing.T) {
	tests := []struct {
		key  layer.Key
		want int
	}{
		{layer.Transit, http.StatusInternalServerError},
		{layer.TransitShapes, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(string(tt.key), func(t *testing.T) {
			clk := &clock{now: time.Now()}
			src := &stubSource{key: tt.key, err: layer.Upstream(tt.key, errors.New("status 502"))}
			router := newTestRouter(NewLayerHandler(newTestManager(t, clk, src), nil), nil, nil)

			rec := do(t, router, http.MethodGet, "/api/v1/layers/"+string(tt.key), "")
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			env := decodeEnvelope(t, rec)
			if env.Error == "" || env.Count != 0 || env.Items == nil {
				t.Errorf("failure envelope = %+v", env)
			}
			if !strings.Contains(rec.Body.String(), `"items":[]`) {
				t.Errorf("items should serialise as an empty array: %s", rec.Body.String())
			}
		})
	}
}

func TestGetLayerMissingCredential(t *testing.T) {
	clk := &clock{now: time.Now()}
	msg := "NREL_API_KEY not configured. Get a free key at https://developer.nrel.gov/signup/"
	src := &stubSource{key: layer.EVChargers, err: layer.MissingConfig(layer.EVChargers, msg)}
	router := newTestRouter(NewLayerHandler(newTestManager(t, clk, src), nil), nil, nil)

	rec := do(t, router, http.MethodGet, "/api/v1/layers/evChargers", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if env := decodeEnvelope(t, rec); env.Error != msg || len(env.Items) != 0 {
		t.Errorf("envelope = %+v", env)
	}
}

func TestGetLayerServesStaleAfterFailure(t *testing.T) {
	clk := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	src := &stubSource{key: layer.Transit, env: busEnvelope(clk.now)}
	router := newTestRouter(NewLayerHandler(newTestManager(t, clk, src), nil), nil, nil)

	do(t, router, http.MethodGet, "/api/v1/layers/transit", "")
	clk.Advance(time.Minute)
	src.fail(layer.Upstream(layer.Transit, errors.New("timeout")))

	rec := do(t, router, http.MethodGet, "/api/v1/layers/transit", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Cache-Control"); got != "public, max-age=300" {
		t.Errorf("Cache-Control = %q", got)
	}
	env := decodeEnvelope(t, rec)
	if !env.Stale || env.Count != 1 {
		t.Errorf("expected the previous envelope marked stale, got %+v", env)
	}
}

func TestCatalogAndAll(t *testing.T) {
	clk := &clock{now: time.Now()}
	transit := &stubSource{key: layer.Transit, env: busEnvelope(clk.now)}
	weather := &stubSource{key: layer.Weather, env: layer.NewEnvelope(layer.Weather, nil, nil, clk.now)}
	router := newTestRouter(NewLayerHandler(newTestManager(t, clk, transit, weather), nil), nil, nil)

	rec := do(t, router, http.MethodGet, "/api/v1/layers", "")
	var catalog struct {
		Layers []layer.Config `json:"layers"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &catalog); err != nil {
		t.Fatalf("decode catalog: %v", err)
	}
	if len(catalog.Layers) != 2 || catalog.Layers[0].Key != layer.Weather || catalog.Layers[1].Key != layer.Transit {
		t.Errorf("catalog = %+v", catalog.Layers)
	}
	if catalog.Layers[1].TTLSeconds != 15 {
		t.Errorf("transit ttlSeconds = %d", catalog.Layers[1].TTLSeconds)
	}

	rec = do(t, router, http.MethodGet, "/api/v1/layers/all", "")
	var all struct {
		Layers map[layer.Key]layer.Envelope `json:"layers"`
		Count  int                          `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &all); err != nil {
		t.Fatalf("decode all: %v", err)
	}
	if all.Count != 2 || all.Layers[layer.Transit].Count != 1 {
		t.Errorf("all = %+v", all)
	}
}

type stubAnalyst struct {
	got any
	err error
}

func (s *stubAnalyst) Analyze(ctx context.Context, key layer.Key, payload any) (layer.Analysis, error) {
	s.got = payload
	if s.err != nil {
		return layer.Analysis{}, s.err
	}
	return layer.Analysis{Key: key, Text: "Twelve buses are running.", Model: "test-model"}, nil
}

type stubNarrator struct{}

func (stubNarrator) Narrate(ctx context.Context, text string) ([]byte, error) {
	return []byte("RIFF" + text), nil
}

func TestAnalyze(t *testing.T) {
	analyst := &stubAnalyst{}
	router := newTestRouter(nil, NewAssistHandler(analyst, nil, nil), nil)

	rec := do(t, router, http.MethodPost, "/api/v1/layers/analyze", `{"layerKey":"transit","data":{"count":12}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["analysis"] != "Twelve buses are running." || body["model"] != "test-model" {
		t.Errorf("body = %v", body)
	}
	if raw, ok := analyst.got.(json.RawMessage); !ok || string(raw) != `{"count":12}` {
		t.Errorf("payload passed through as %T %v", analyst.got, analyst.got)
	}
}

func TestAnalyzeErrors(t *testing.T) {
	tests := []struct {
		name    string
		analyst layer.Analyst
		body    string
		want    int
	}{
		{"unknown key", &stubAnalyst{}, `{"layerKey":"trains","data":{}}`, http.StatusBadRequest},
		{"bad json", &stubAnalyst{}, `{`, http.StatusBadRequest},
		{"not configured", nil, `{"layerKey":"transit","data":{}}`, http.StatusServiceUnavailable},
		{"analyst failure", &stubAnalyst{err: errors.New("boom")}, `{"layerKey":"transit"}`, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(nil, NewAssistHandler(tt.analyst, nil, nil), nil)
			if rec := do(t, router, http.MethodPost, "/api/v1/layers/analyze", tt.body); rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestNarrate(t *testing.T) {
	router := newTestRouter(nil, NewAssistHandler(nil, stubNarrator{}, nil), nil)
	rec := do(t, router, http.MethodPost, "/api/v1/narrate", `{"text":"hello"}`)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "audio/wav" || rec.Body.String() != "RIFFhello" {
		t.Errorf("got %d %q %q", rec.Code, rec.Header().Get("Content-Type"), rec.Body.String())
	}

	if rec := do(t, router, http.MethodPost, "/api/v1/narrate", `{"text":""}`); rec.Code != http.StatusBadRequest {
		t.Errorf("empty text status = %d", rec.Code)
	}

	unconfigured := newTestRouter(nil, NewAssistHandler(nil, nil, nil), nil)
	if rec := do(t, unconfigured, http.MethodPost, "/api/v1/narrate", `{"text":"hi"}`); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unconfigured status = %d", rec.Code)
	}
}

type fakeSubscriber struct {
	mu           sync.Mutex
	handlers     map[string]func([]byte)
	unsubscribed chan string
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{handlers: make(map[string]func([]byte)), unsubscribed: make(chan string, 4)}
}

func (f *fakeSubscriber) Subscribe(subject string, fn func([]byte)) (func(), error) {
	f.mu.Lock()
	f.handlers[subject] = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.handlers, subject)
		f.mu.Unlock()
		f.unsubscribed <- subject
	}, nil
}

func (f *fakeSubscriber) publish(subject string, data []byte) bool {
	f.mu.Lock()
	fn := f.handlers[subject]
	f.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(data)
	return true
}

func TestLayerStreamForwardsUpdates(t *testing.T) {
	clk := &clock{now: time.Now()}
	src := &stubSource{key: layer.Transit, env: busEnvelope(clk.now)}
	sub := newFakeSubscriber()
	stream := NewLayerStream(newTestManager(t, clk, src), sub, "layers", []string{"*"}, nil)

	srv := httptest.NewServer(newTestRouter(nil, nil, stream))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/layers/transit"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	_, first, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	var snapshot live.Update
	if err := json.Unmarshal(first, &snapshot); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snapshot.Layer != layer.Transit || snapshot.Envelope.Count != 1 {
		t.Errorf("snapshot = %+v", snapshot)
	}

	if !sub.publish("layers.transit.updated", []byte(`{"id":"u1","layer":"transit"}`)) {
		t.Fatal("stream did not subscribe to layers.transit.updated")
	}
	_, next, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read update: %v", err)
	}
	if string(next) != `{"id":"u1","layer":"transit"}` {
		t.Errorf("forwarded %s", next)
	}

	conn.Close()
	select {
	case subject := <-sub.unsubscribed:
		if subject != "layers.transit.updated" {
			t.Errorf("unsubscribed from %q", subject)
		}
	case <-time.After(3 * time.Second):
		t.Error("subscription was not released after the client left")
	}
}

func TestLayerStreamRejects(t *testing.T) {
	clk := &clock{now: time.Now()}
	mgr := newTestManager(t, clk, &stubSource{key: layer.Transit})

	noNATS := newTestRouter(nil, nil, NewLayerStream(mgr, nil, "", nil, nil))
	if rec := do(t, noNATS, http.MethodGet, "/ws/layers/transit", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}

	router := newTestRouter(nil, nil, NewLayerStream(mgr, newFakeSubscriber(), "", nil, nil))
	for _, path := range []string{"/ws/layers/trains", "/ws/layers/aircraft"} {
		if rec := do(t, router, http.MethodGet, path, ""); rec.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", path, rec.Code)
		}
	}
}
