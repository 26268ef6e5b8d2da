package layer

import "context"

// DevelopmentProject is one curated downtown project
type DevelopmentProject struct {
	Name               string  `json:"name"`
	Status             string  `json:"status"`
	Category           string  `json:"category"`
	Description        string  `json:"description"`
	Address            string  `json:"address"`
	Latitude           float64 `json:"lat"`
	Longitude          float64 `json:"lng"`
	ImageURL           string  `json:"imageUrl,omitempty"`
	TimelineStart      string  `json:"timelineStart,omitempty"`
	TimelineCompletion string  `json:"timelineCompletion,omitempty"`
	Investment         string  `json:"investment,omitempty"`
}

// ProjectStore lists curated development projects
type ProjectStore interface {
	ListProjects(ctx context.Context) ([]DevelopmentProject, error)
}
