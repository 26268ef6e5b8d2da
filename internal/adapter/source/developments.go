package source

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"metromap/internal/domain/layer"
)

//go:embed data/developments.json
var embeddedDevelopments []byte

var developmentStatusColors = map[string]string{
	"proposed":    "#f59e0b",
	"in-progress": "#3b82f6",
	"completed":   "#22c55e",
}

var developmentCategoryColors = map[string]string{
	"residential":   "#a855f7",
	"commercial":    "#f97316",
	"mixed-use":     "#3b82f6",
	"institutional": "#06b6d4",
	"public-space":  "#22c55e",
	"hospitality":   "#ec4899",
}

const otherDevelopmentColor = "#94a3b8"

// embeddedProjects serves the registry compiled into the binary
type embeddedProjects struct{}

func (embeddedProjects) ListProjects(context.Context) ([]layer.DevelopmentProject, error) {
	var projects []layer.DevelopmentProject
	if err := json.Unmarshal(embeddedDevelopments, &projects); err != nil {
		return nil, fmt.Errorf("decode embedded developments: %w", err)
	}
	return projects, nil
}

// EmbeddedProjects returns the registry compiled into the binary
func EmbeddedProjects() layer.ProjectStore {
	return embeddedProjects{}
}

// Developments serves curated downtown development projects
type Developments struct {
	store layer.ProjectStore
	now   func() time.Time
}

// NewDevelopments creates the developments source. A nil store falls back to
// the embedded registry.
func NewDevelopments(store layer.ProjectStore) *Developments {
	if store == nil {
		store = embeddedProjects{}
	}
	return &Developments{store: store, now: time.Now}
}

// Key implements layer.Source
func (s *Developments) Key() layer.Key { return layer.Developments }

// Fetch implements layer.Source
func (s *Developments) Fetch(ctx context.Context) (layer.Envelope, error) {
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		return layer.Envelope{}, layer.Upstream(s.Key(), err)
	}

	points := make([]layer.Point, 0, len(projects))
	summary := map[string]int{"total": 0, "proposed": 0, "inProgress": 0, "completed": 0}
	for i, p := range projects {
		statusColor := developmentStatusColors[p.Status]
		if statusColor == "" {
			statusColor = otherDevelopmentColor
		}
		color := developmentCategoryColors[p.Category]
		if color == "" {
			color = otherDevelopmentColor
		}

		before := len(points)
		points = appendValid(points, layer.Point{
			ID:          stableID("dev", "", i),
			Type:        "development",
			Title:       p.Name,
			Description: p.Description,
			Address:     p.Address,
			Latitude:    p.Latitude,
			Longitude:   p.Longitude,
			Color:       color,
			Details: layer.DevelopmentDetails{
				Status:             p.Status,
				Category:           p.Category,
				ImageURL:           p.ImageURL,
				TimelineStart:      p.TimelineStart,
				TimelineCompletion: p.TimelineCompletion,
				Investment:         p.Investment,
				StatusColor:        statusColor,
			},
		})
		if len(points) == before {
			continue
		}
		switch p.Status {
		case "proposed":
			summary["proposed"]++
		case "in-progress":
			summary["inProgress"]++
		case "completed":
			summary["completed"]++
		}
	}
	summary["total"] = len(points)

	env := layer.NewEnvelope(s.Key(), points, nil, s.now())
	env.Summary = summary
	return env, nil
}
