package generator

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"github.com/GoSim-25-26J-441/uml-studio-backend/internal/projects/domain"
)

// OpenAIOptions configures an OpenAIGenerator.
type OpenAIOptions struct {
	APIKey      string
	Model       string
	BaseURL     string // optional, for OpenAI-compatible gateways
	Temperature float32
	Timeout     time.Duration
}

// OpenAIGenerator produces diagram sources with a chat completion model in JSON mode.
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	temperature float32
	prompts     *Prompts
	log         zerolog.Logger
}

func NewOpenAIGenerator(opts OpenAIOptions, prompts *Prompts, log zerolog.Logger) (*OpenAIGenerator, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("openai: api key is required")
	}
	if opts.Model == "" {
		opts.Model = openai.GPT4oMini
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 90 * time.Second
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: opts.Timeout}

	return &OpenAIGenerator{
		client:      openai.NewClientWithConfig(cfg),
		model:       opts.Model,
		temperature: opts.Temperature,
		prompts:     prompts,
		log:         log.With().Str("component", "generator").Str("provider", "openai").Logger(),
	}, nil
}

func (g *OpenAIGenerator) GenerateBulk(ctx context.Context, req domain.BulkRequest) ([]domain.GeneratedDiagram, error) {
	user, err := g.prompts.Bulk(req)
	if err != nil {
		return nil, err
	}
	raw, err := g.complete(ctx, g.prompts.System(req.Dialect), user)
	if err != nil {
		return nil, err
	}
	return parseDiagrams(raw)
}

func (g *OpenAIGenerator) GenerateOne(ctx context.Context, req domain.SingleRequest) (*domain.GeneratedDiagram, error) {
	user, err := g.prompts.Regenerate(req)
	if err != nil {
		return nil, err
	}
	raw, err := g.complete(ctx, g.prompts.System(req.Dialect), user)
	if err != nil {
		return nil, err
	}
	diagrams, err := parseDiagrams(raw)
	if err != nil {
		return nil, err
	}
	return pickKind(diagrams, req.Kind)
}

func (g *OpenAIGenerator) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature:    g.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	g.log.Debug().
		Str("model", g.model).
		Str("finish_reason", string(resp.Choices[0].FinishReason)).
		Int("tokens", resp.Usage.TotalTokens).
		Msg("completion received")
	return resp.Choices[0].Message.Content, nil
}
