package assist

import (
	"encoding/json"
	"fmt"
	"strings"

	"metromap/internal/domain/layer"
)

const systemPrompt = "You are the assistant for an interactive Orlando city map. " +
	"Provide brief, helpful analysis of live city data. " +
	"Use a friendly, knowledgeable tone. No markdown formatting."

var layerPrompts = map[layer.Key]string{
	layer.Weather: "Analyze this Orlando weather data. Mention temperature, conditions, and any " +
		"recommendations for outdoor events. Be concise (2-3 sentences).",
	layer.Transit: "Summarize this LYNX bus transit data for Orlando. Note how many buses are " +
		"active, any patterns, and coverage. Be concise (2-3 sentences).",
	layer.CityData: "Summarize this Orlando city data. First briefly explain what code enforcement " +
		"cases are (property maintenance violations, zoning issues and building code complaints " +
		"reported by residents, such as overgrown lots or unpermitted construction). Then note " +
		"patterns, hotspots, or notable activity in the data. Be concise (3-4 sentences).",
	layer.NWSAlerts: "Summarize these NWS weather alerts for Central Florida. Note the severity, " +
		"type of alert, and any actions people should take. Be concise (2-3 sentences).",
	layer.Aircraft: "Summarize this live aircraft data near Orlando International Airport (MCO). " +
		"Note how many planes are in the air, altitude patterns, and traffic level. Be concise (2-3 sentences).",
	layer.SunRail: "Summarize this SunRail commuter rail data. Describe the route coverage from " +
		"DeBary to Poinciana, the three zones, and how many stations there are. Be concise (2-3 sentences).",
	layer.CountyData: "Summarize this Orange County GIS data showing parks, trails, public art " +
		"installations, and fire stations. Note the distribution and any interesting highlights. " +
		"Be concise (2-3 sentences).",
	layer.Developments: "Summarize these Downtown Orlando development projects. Mention the total " +
		"investment pipeline, 2-3 notable projects by name with dollar amounts, and the overall " +
		"status mix. Be concise (2-3 sentences max).",
}

const singleProjectPrompt = "Describe this Downtown Orlando development project. Note its " +
	"significance, what it brings to the neighborhood, and any notable details about timeline " +
	"or investment. Be conversational and concise (1-2 sentences)."

const (
	maxDataChars        = 4000
	maxDevelopmentChars = 6000
	maxProjectChars     = 1000

	layerMaxTokens   = 200
	projectMaxTokens = 100
)

// Prompt is one request to the analysis model
type Prompt struct {
	System    string
	User      string
	MaxTokens int
}

type projectForAnalysis struct {
	Name               string `json:"name"`
	Status             string `json:"status"`
	Category           string `json:"category,omitempty"`
	Investment         string `json:"investment,omitempty"`
	TimelineStart      string `json:"timelineStart,omitempty"`
	TimelineCompletion string `json:"timelineCompletion,omitempty"`
	Description        string `json:"description,omitempty"`
}

// developmentPayload accepts either a bare project list, a layer envelope,
// or a single {"project": ...} selection.
type developmentPayload struct {
	Project  *projectForAnalysis  `json:"project"`
	Projects []projectForAnalysis `json:"projects"`
	Items    []layer.Point        `json:"items"`
	Summary  map[string]float64   `json:"summary"`
}

// BuildPrompt renders the model prompt for a layer payload
func BuildPrompt(key layer.Key, payload any) (Prompt, error) {
	raw, err := payloadJSON(payload)
	if err != nil {
		return Prompt{}, layer.Invalid(key, err)
	}

	instruction, ok := layerPrompts[key]
	if !ok {
		instruction = fmt.Sprintf("Analyze this %s data for Orlando. Summarize key insights in 2-3 sentences.",
			layer.ConfigFor(key).Label)
	}
	maxTokens := layerMaxTokens
	limit := maxDataChars
	var data string

	switch {
	case key == layer.Developments:
		var dp developmentPayload
		if err := json.Unmarshal(raw, &dp); err != nil {
			return Prompt{}, layer.Invalid(key, fmt.Errorf("developments payload: %w", err))
		}
		if dp.Project != nil {
			instruction = singleProjectPrompt
			maxTokens = projectMaxTokens
			limit = maxProjectChars
			data = describeProject(*dp.Project)
		} else {
			limit = maxDevelopmentChars
			data = condenseDevelopments(dp)
		}
	default:
		var s string
		if json.Unmarshal(raw, &s) == nil {
			data = s
		} else {
			var indented strings.Builder
			if err := indentJSON(&indented, raw); err != nil {
				return Prompt{}, layer.Invalid(key, err)
			}
			data = indented.String()
		}
	}

	return Prompt{
		System:    systemPrompt,
		User:      instruction + "\n\nData:\n" + truncate(data, limit),
		MaxTokens: maxTokens,
	}, nil
}

func payloadJSON(payload any) (json.RawMessage, error) {
	switch v := payload.(type) {
	case nil:
		return json.RawMessage("null"), nil
	case json.RawMessage:
		if !json.Valid(v) {
			return nil, fmt.Errorf("payload is not valid JSON")
		}
		return v, nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		return b, nil
	}
}

func indentJSON(sb *strings.Builder, raw json.RawMessage) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	sb.Write(b)
	return nil
}

func describeProject(p projectForAnalysis) string {
	parts := []string{p.Name, p.Status}
	for _, s := range []string{p.Category, p.Investment, p.Description} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	if p.TimelineStart != "" {
		parts = append(parts, "start: "+p.TimelineStart)
	}
	if p.TimelineCompletion != "" {
		parts = append(parts, "completion: "+p.TimelineCompletion)
	}
	return strings.Join(parts, " | ")
}

// condenseDevelopments writes one short line per project so the whole
// registry fits the prompt budget.
func condenseDevelopments(dp developmentPayload) string {
	projects := dp.Projects
	if len(projects) == 0 {
		for _, item := range dp.Items {
			projects = append(projects, projectFromPoint(item))
		}
	}

	var lines []string
	if dp.Summary != nil {
		lines = append(lines, fmt.Sprintf("Summary: %d projects (%d proposed, %d in-progress, %d completed)",
			int(dp.Summary["total"]), int(dp.Summary["proposed"]),
			int(dp.Summary["inProgress"]), int(dp.Summary["completed"])))
	}
	lines = append(lines, "")

	for _, p := range projects {
		parts := []string{p.Name, p.Status}
		if p.Category != "" {
			parts = append(parts, p.Category)
		}
		if p.Investment != "" {
			parts = append(parts, p.Investment)
		}
		if p.TimelineStart != "" && p.TimelineStart != "TBD" {
			parts = append(parts, "start: "+p.TimelineStart)
		}
		if p.TimelineCompletion != "" && p.TimelineCompletion != "TBD" {
			parts = append(parts, "completion: "+p.TimelineCompletion)
		}
		lines = append(lines, "- "+strings.Join(parts, " | "))
	}
	return strings.Join(lines, "\n")
}

func projectFromPoint(p layer.Point) projectForAnalysis {
	out := projectForAnalysis{Name: p.Title, Description: p.Description}
	var d layer.DevelopmentDetails
	switch v := p.Details.(type) {
	case layer.DevelopmentDetails:
		d = v
	case layer.RawDetails:
		_ = json.Unmarshal(v, &d)
	}
	out.Status = d.Status
	out.Category = d.Category
	out.Investment = d.Investment
	out.TimelineStart = d.TimelineStart
	out.TimelineCompletion = d.TimelineCompletion
	return out
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return strings.ToValidUTF8(s[:limit], "") + "\n..."
}
