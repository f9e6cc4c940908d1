package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/GoSim-25-26J-441/uml-studio-backend/internal/projects/domain"
)

// UpstreamGenerator delegates generation to an internal HTTP service that
// speaks the diagrams JSON contract.
type UpstreamGenerator struct {
	BaseURL string
	HTTP    *http.Client
}

func NewUpstreamGenerator(baseURL string, timeout time.Duration) *UpstreamGenerator {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &UpstreamGenerator{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
	}
}

type upstreamRequest struct {
	Prompt         string   `json:"prompt"`
	Kinds          []string `json:"kinds"`
	Dialect        string   `json:"dialect"`
	PreviousSource string   `json:"previous_source,omitempty"`
}

type upstreamResponse struct {
	OK       bool          `json:"ok"`
	Error    string        `json:"error,omitempty"`
	Diagrams []wireDiagram `json:"diagrams"`
}

func (c *UpstreamGenerator) GenerateBulk(ctx context.Context, req domain.BulkRequest) ([]domain.GeneratedDiagram, error) {
	kinds := make([]string, 0, len(req.Kinds))
	for _, k := range req.Kinds {
		kinds = append(kinds, string(k))
	}
	return c.call(ctx, "/generate", upstreamRequest{
		Prompt:  req.Prompt,
		Kinds:   kinds,
		Dialect: string(dialectOrDefault(req.Dialect)),
	})
}

func (c *UpstreamGenerator) GenerateOne(ctx context.Context, req domain.SingleRequest) (*domain.GeneratedDiagram, error) {
	diagrams, err := c.call(ctx, "/regenerate", upstreamRequest{
		Prompt:         req.Prompt,
		Kinds:          []string{string(req.Kind)},
		Dialect:        string(dialectOrDefault(req.Dialect)),
		PreviousSource: req.PreviousSource,
	})
	if err != nil {
		return nil, err
	}
	return pickKind(diagrams, req.Kind)
}

func (c *UpstreamGenerator) call(ctx context.Context, path string, body upstreamRequest) ([]domain.GeneratedDiagram, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("upstream %s: %w", path, err)
	}
	defer resp.Body.Close()

	var out upstreamResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("upstream decode: %w", err)
	}
	if resp.StatusCode >= 400 || !out.OK {
		if out.Error != "" {
			return nil, fmt.Errorf("upstream error (status %d): %s", resp.StatusCode, out.Error)
		}
		return nil, fmt.Errorf("upstream error (status %d)", resp.StatusCode)
	}

	// Re-use the model output parser so both providers normalize kinds the same way.
	raw, err := json.Marshal(wireResponse{Diagrams: out.Diagrams})
	if err != nil {
		return nil, err
	}
	return parseDiagrams(string(raw))
}
