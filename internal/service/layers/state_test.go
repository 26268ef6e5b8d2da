package layers

import (
	"context"
	"errors"
	"sync"
	"testing"

	"metromap/internal/domain/layer"
)

func envelope(key layer.Key, n int) layer.Envelope {
	items := make([]layer.Point, n)
	return layer.Envelope{Layer: key, Items: items, Count: n}
}

func TestToggleScenario(t *testing.T) {
	s := Initial()

	s = Reduce(s, Toggle{Key: layer.Transit})
	s = Reduce(s, LoadStart{Key: layer.Transit})
	if s.Status(layer.Transit) != Loading {
		t.Fatalf("transit status = %v, want Loading", s.Status(layer.Transit))
	}
	s = Reduce(s, DataReady{Key: layer.Transit, Payload: envelope(layer.Transit, 3)})
	if s.Status(layer.Transit) != Loaded || s.Data[layer.Transit].Count != 3 {
		t.Fatalf("transit not loaded: %+v", s)
	}
	s = Reduce(s, AnalysisReady{Key: layer.Transit, Text: "Buses are on time", Model: "m"})

	s = Reduce(s, Toggle{Key: layer.Aircraft})
	if s.Active != layer.Aircraft {
		t.Fatalf("active = %q, want aircraft", s.Active)
	}
	if _, ok := s.Data[layer.Transit]; ok {
		t.Error("transit data should be cleared when another layer activates")
	}
	if s.Analysis != nil {
		t.Error("analysis should be cleared on toggle")
	}
	if len(s.Loading) != 0 {
		t.Errorf("loading = %v", s.Loading)
	}

	s = Reduce(s, Toggle{Key: layer.Aircraft})
	if s.Active != "" || len(s.Data) != 0 || len(s.Loading) != 0 {
		t.Errorf("second toggle should deactivate: %+v", s)
	}
}

func TestLateActionsForInactiveLayerAreIgnored(t *testing.T) {
	s := Reduce(Initial(), Toggle{Key: layer.Aircraft})

	for _, a := range []Action{
		LoadStart{Key: layer.Transit},
		DataReady{Key: layer.Transit, Payload: envelope(layer.Transit, 1)},
		AnalysisReady{Key: layer.Transit, Text: "late"},
	} {
		next := Reduce(s, a)
		if len(next.Data) != 0 || len(next.Loading) != 0 || next.Analysis != nil {
			t.Errorf("%T for inactive layer changed state: %+v", a, next)
		}
		if next.Active != layer.Aircraft {
			t.Errorf("%T changed the active layer", a)
		}
	}
}

func TestExclusivity(t *testing.T) {
	actions := []Action{
		Toggle{Key: layer.Weather},
		LoadStart{Key: layer.Weather},
		Toggle{Key: layer.CityData},
		DataReady{Key: layer.Weather, Payload: envelope(layer.Weather, 1)},
		LoadStart{Key: layer.CityData},
		DataReady{Key: layer.CityData, Payload: envelope(layer.CityData, 2)},
		Toggle{Key: layer.SunRail},
		Toggle{Key: layer.SunRail},
		Toggle{Key: layer.EVChargers},
		ClearAll{},
	}

	s := Initial()
	for i, a := range actions {
		s = Reduce(s, a)
		if len(s.Loading) > 1 || len(s.Data) > 1 {
			t.Fatalf("step %d: more than one layer tracked: %+v", i, s)
		}
		for k := range s.Loading {
			if k != s.Active {
				t.Fatalf("step %d: loading %q while %q active", i, k, s.Active)
			}
		}
		for k := range s.Data {
			if k != s.Active {
				t.Fatalf("step %d: data for %q while %q active", i, k, s.Active)
			}
		}
	}
	if s.Active != "" {
		t.Errorf("ClearAll left %q active", s.Active)
	}
}

func TestReduceDoesNotMutateInput(t *testing.T) {
	s := Reduce(Initial(), Toggle{Key: layer.Transit})
	before := len(s.Loading)
	_ = Reduce(s, LoadStart{Key: layer.Transit})
	if len(s.Loading) != before {
		t.Error("Reduce mutated its input state")
	}
}

func TestDismissAnalysisAndWeatherSubType(t *testing.T) {
	s := Reduce(Initial(), Toggle{Key: layer.Weather})
	s = Reduce(s, AnalysisReady{Key: layer.Weather, Text: "Rain later"})
	s = Reduce(s, DismissAnalysis{})
	if s.Analysis != nil || s.Active != layer.Weather {
		t.Errorf("dismiss should only clear analysis: %+v", s)
	}

	s = Reduce(s, SetWeatherSubType{SubType: layer.WeatherRadar})
	if s.WeatherSubType != layer.WeatherRadar {
		t.Errorf("sub-type = %q", s.WeatherSubType)
	}
	s = Reduce(s, SetWeatherSubType{SubType: "hail"})
	if s.WeatherSubType != layer.WeatherRadar {
		t.Errorf("invalid sub-type accepted: %q", s.WeatherSubType)
	}
	if got := Reduce(s, nil); got.Active != s.Active {
		t.Error("nil action should be a no-op")
	}
}

type stubFetcher struct {
	env layer.Envelope
	err error
}

func (f stubFetcher) Fetch(context.Context, layer.Key) (layer.Envelope, error) {
	return f.env, f.err
}

type stubAnalyst struct {
	calls int
}

func (a *stubAnalyst) Analyze(_ context.Context, key layer.Key, _ any) (layer.Analysis, error) {
	a.calls++
	return layer.Analysis{Key: key, Text: "42 buses running", Model: "test-model"}, nil
}

func TestControllerToggleLoadsAndAnalyzes(t *testing.T) {
	analyst := &stubAnalyst{}
	c := NewController(stubFetcher{env: envelope(layer.Transit, 42)}, analyst, nil)

	var mu sync.Mutex
	var seen []Status
	unsubscribe := c.Subscribe(func(s State) {
		mu.Lock()
		seen = append(seen, s.Status(layer.Transit))
		mu.Unlock()
	})
	defer unsubscribe()

	s := c.Toggle(context.Background(), layer.Transit)
	if s.Status(layer.Transit) != Loaded || s.Data[layer.Transit].Count != 42 {
		t.Fatalf("state = %+v", s)
	}
	if s.Analysis == nil || s.Analysis.Text != "42 buses running" || s.Analysis.Model != "test-model" {
		t.Errorf("analysis = %+v", s.Analysis)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []Status{Loaded, Loading, Loaded, Loaded}
	if len(seen) != len(want) {
		t.Fatalf("listener saw %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("listener saw %v, want %v", seen, want)
		}
	}
}

func TestControllerFetchErrorYieldsEmptyEnvelope(t *testing.T) {
	analyst := &stubAnalyst{}
	c := NewController(stubFetcher{err: errors.New("network down")}, analyst, nil)

	s := c.Toggle(context.Background(), layer.Aircraft)
	env, ok := s.Data[layer.Aircraft]
	if !ok {
		t.Fatal("failed load should still store an envelope")
	}
	if env.Error != "Failed to fetch aircraft data" || env.Items == nil {
		t.Errorf("envelope = %+v", env)
	}
	if analyst.calls != 0 {
		t.Error("failed payloads should not be analyzed")
	}

	s = c.Toggle(context.Background(), layer.Aircraft)
	if s.Active != "" {
		t.Errorf("second toggle should deactivate, active = %q", s.Active)
	}
}

// gatedFetcher blocks its first call until release is closed
type gatedFetcher struct {
	mu      sync.Mutex
	calls   int
	started chan struct{}
	release chan struct{}
}

func (f *gatedFetcher) Fetch(_ context.Context, key layer.Key) (layer.Envelope, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()

	if call == 1 {
		close(f.started)
		<-f.release
		return envelope(key, 1), nil
	}
	return envelope(key, 2), nil
}

func TestControllerDropsLoadFromEarlierActivation(t *testing.T) {
	f := &gatedFetcher{started: make(chan struct{}), release: make(chan struct{})}
	analyst := &stubAnalyst{}
	c := NewController(f, analyst, nil)

	first := make(chan State)
	go func() { first <- c.Toggle(context.Background(), layer.Transit) }()
	<-f.started

	c.Toggle(context.Background(), layer.Transit) // off
	s := c.Toggle(context.Background(), layer.Transit)
	if s.Data[layer.Transit].Count != 2 {
		t.Fatalf("second activation loaded %+v", s.Data[layer.Transit])
	}

	close(f.release)
	<-first

	s = c.State()
	if !s.IsActive(layer.Transit) || s.Status(layer.Transit) != Loaded {
		t.Fatalf("state = %+v", s)
	}
	if got := s.Data[layer.Transit].Count; got != 2 {
		t.Errorf("data count = %d, want the second activation's 2", got)
	}
	if analyst.calls != 1 {
		t.Errorf("analyst called %d times, want 1", analyst.calls)
	}
}
