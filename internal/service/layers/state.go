// internal/service/layers/state.go

package layers

import "metromap/internal/domain/layer"

// Status is the visible state of one layer
type Status int

const (
	Inactive Status = iota
	Loading
	Loaded
)

// State is the layer activation state. At most one layer is active and
// every other map only ever holds data for that layer.
type State struct {
	Active         layer.Key
	Loading        map[layer.Key]bool
	Data           map[layer.Key]layer.Envelope
	Analysis       *layer.Analysis
	WeatherSubType layer.WeatherSubType
}

// Initial returns the state with no active layer
func Initial() State {
	return State{
		Loading:        map[layer.Key]bool{},
		Data:           map[layer.Key]layer.Envelope{},
		WeatherSubType: layer.WeatherTemperature,
	}
}

// IsActive reports whether key is the active layer
func (s State) IsActive(key layer.Key) bool {
	return key != "" && s.Active == key
}

// Status reports the visible status of key
func (s State) Status(key layer.Key) Status {
	switch {
	case !s.IsActive(key):
		return Inactive
	case s.Loading[key]:
		return Loading
	default:
		return Loaded
	}
}

// Action is an event applied by Reduce
type Action interface {
	apply(State) State
}

// Toggle activates key, or deactivates it if already active
type Toggle struct{ Key layer.Key }

// LoadStart marks the active layer as loading
type LoadStart struct{ Key layer.Key }

// DataReady stores the payload for the active layer
type DataReady struct {
	Key     layer.Key
	Payload layer.Envelope
}

// AnalysisReady stores the analysis for the active layer
type AnalysisReady struct {
	Key   layer.Key
	Text  string
	Model string
}

// DismissAnalysis clears the analysis
type DismissAnalysis struct{}

// ClearAll deactivates everything
type ClearAll struct{}

// SetWeatherSubType switches the weather rendering
type SetWeatherSubType struct{ SubType layer.WeatherSubType }

// Reduce returns the state after applying a. It never mutates s.
func Reduce(s State, a Action) State {
	if a == nil {
		return s
	}
	return a.apply(s)
}

func (a Toggle) apply(s State) State {
	next := Initial()
	next.WeatherSubType = s.WeatherSubType
	if a.Key == "" || s.Active == a.Key {
		return next
	}
	next.Active = a.Key
	return next
}

func (a LoadStart) apply(s State) State {
	if !s.IsActive(a.Key) {
		return s
	}
	next := s.clone()
	next.Loading[a.Key] = true
	return next
}

func (a DataReady) apply(s State) State {
	if !s.IsActive(a.Key) {
		return s
	}
	next := s.clone()
	delete(next.Loading, a.Key)
	next.Data[a.Key] = a.Payload
	return next
}

func (a AnalysisReady) apply(s State) State {
	if !s.IsActive(a.Key) {
		return s
	}
	next := s.clone()
	next.Analysis = &layer.Analysis{Key: a.Key, Text: a.Text, Model: a.Model}
	return next
}

func (DismissAnalysis) apply(s State) State {
	if s.Analysis == nil {
		return s
	}
	next := s.clone()
	next.Analysis = nil
	return next
}

func (ClearAll) apply(s State) State {
	next := Initial()
	next.WeatherSubType = s.WeatherSubType
	return next
}

func (a SetWeatherSubType) apply(s State) State {
	if !a.SubType.Valid() || s.WeatherSubType == a.SubType {
		return s
	}
	next := s.clone()
	next.WeatherSubType = a.SubType
	return next
}

func (s State) clone() State {
	next := State{
		Active:         s.Active,
		Loading:        make(map[layer.Key]bool, len(s.Loading)),
		Data:           make(map[layer.Key]layer.Envelope, len(s.Data)),
		Analysis:       s.Analysis,
		WeatherSubType: s.WeatherSubType,
	}
	for k, v := range s.Loading {
		next.Loading[k] = v
	}
	for k, v := range s.Data {
		next.Data[k] = v
	}
	return next
}
