package layer

import "context"

// Analysis is a short prose summary of a layer payload
type Analysis struct {
	Key   Key    `json:"layerKey"`
	Text  string `json:"analysis"`
	Model string `json:"model,omitempty"`
}

// Analyst turns a layer payload into an analysis
type Analyst interface {
	Analyze(ctx context.Context, key Key, payload any) (Analysis, error)
}

// Narrator turns prose into audio
type Narrator interface {
	Narrate(ctx context.Context, text string) ([]byte, error)
}
