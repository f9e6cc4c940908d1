package generator

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/GoSim-25-26J-441/uml-studio-backend/internal/projects/domain"
)

// ErrUnparseable is returned when the model output is not the expected JSON.
var ErrUnparseable = errors.New("unparseable generator output")

var fenced = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

type wireDiagram struct {
	Type   string `json:"type"`
	Kind   string `json:"kind"`
	Title  string `json:"title"`
	Source string `json:"source"`
	// Older prompt revisions asked for "plantuml".
	PlantUML string `json:"plantuml"`
}

type wireResponse struct {
	Diagrams []wireDiagram `json:"diagrams"`
}

// parseDiagrams decodes a model response. Markdown fences are stripped,
// kinds outside the closed set and empty sources are dropped.
func parseDiagrams(raw string) ([]domain.GeneratedDiagram, error) {
	text := strings.TrimSpace(raw)
	if m := fenced.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}

	var resp wireResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}

	out := make([]domain.GeneratedDiagram, 0, len(resp.Diagrams))
	for _, d := range resp.Diagrams {
		kind := d.Type
		if kind == "" {
			kind = d.Kind
		}
		k, ok := domain.ParseKind(kind)
		if !ok {
			continue
		}
		src := d.Source
		if strings.TrimSpace(src) == "" {
			src = d.PlantUML
		}
		src = strings.TrimSpace(src)
		if src == "" {
			continue
		}
		out = append(out, domain.GeneratedDiagram{Kind: k, Title: strings.TrimSpace(d.Title), Source: src})
	}
	return out, nil
}

// pickKind returns the first diagram of kind k, or the first diagram when
// the model mislabeled its single answer.
func pickKind(diagrams []domain.GeneratedDiagram, k domain.DiagramKind) (*domain.GeneratedDiagram, error) {
	if len(diagrams) == 0 {
		return nil, fmt.Errorf("%w: no diagrams", ErrUnparseable)
	}
	for i := range diagrams {
		if diagrams[i].Kind == k {
			return &diagrams[i], nil
		}
	}
	d := diagrams[0]
	d.Kind = k
	return &d, nil
}
