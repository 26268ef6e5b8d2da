package layer

import (
	"errors"
	"fmt"
)

// Error kinds. A *SourceError unwraps to exactly one of these.
var (
	ErrConfigurationMissing = errors.New("configuration missing")
	ErrUpstreamUnavailable  = errors.New("upstream unavailable")
	ErrDecodeFailure        = errors.New("decode failure")
	ErrInvalidInput         = errors.New("invalid input")
)

// SourceError is the typed failure returned by a Source
type SourceError struct {
	Source Key
	Kind   error
	Err    error
}

func (e *SourceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Source, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Source, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As
func (e *SourceError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Upstream wraps a transport failure or non-2xx response
func Upstream(key Key, err error) error {
	return &SourceError{Source: key, Kind: ErrUpstreamUnavailable, Err: err}
}

// Decode wraps a payload that could not be parsed
func Decode(key Key, err error) error {
	return &SourceError{Source: key, Kind: ErrDecodeFailure, Err: err}
}

// MissingConfig reports a required credential that is not set.
// The message is shown to users as is.
func MissingConfig(key Key, message string) error {
	return &SourceError{Source: key, Kind: ErrConfigurationMissing, Err: errors.New(message)}
}

// Invalid reports bad caller input
func Invalid(key Key, err error) error {
	return &SourceError{Source: key, Kind: ErrInvalidInput, Err: err}
}

// UserMessage returns the text that should reach clients for err.
// Configuration errors carry their own guidance; everything else gets fallback.
func UserMessage(err error, fallback string) string {
	var se *SourceError
	if errors.As(err, &se) && errors.Is(se.Kind, ErrConfigurationMissing) && se.Err != nil {
		return se.Err.Error()
	}
	return fallback
}
