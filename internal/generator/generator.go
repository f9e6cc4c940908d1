// Package generator turns a system description into UML diagram sources
// using a language model.
package generator

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/GoSim-25-26J-441/uml-studio-backend/internal/projects/domain"
)

const (
	ProviderOpenAI   = "openai"
	ProviderUpstream = "upstream"
	ProviderStatic   = "static"
)

// Options selects and configures a provider.
type Options struct {
	Provider    string
	PromptsFile string
	OpenAI      OpenAIOptions
	UpstreamURL string
	Timeout     time.Duration
}

// Generator is what every provider implements.
type Generator interface {
	GenerateBulk(ctx context.Context, req domain.BulkRequest) ([]domain.GeneratedDiagram, error)
	GenerateOne(ctx context.Context, req domain.SingleRequest) (*domain.GeneratedDiagram, error)
}

// New builds the configured provider.
func New(opts Options, log zerolog.Logger) (Generator, error) {
	switch opts.Provider {
	case ProviderOpenAI, "":
		var data []byte
		if opts.PromptsFile != "" {
			b, err := os.ReadFile(opts.PromptsFile)
			if err != nil {
				return nil, fmt.Errorf("read prompts: %w", err)
			}
			data = b
		}
		prompts, err := LoadPrompts(data)
		if err != nil {
			return nil, err
		}
		if opts.OpenAI.Timeout <= 0 {
			opts.OpenAI.Timeout = opts.Timeout
		}
		return NewOpenAIGenerator(opts.OpenAI, prompts, log)
	case ProviderUpstream:
		if opts.UpstreamURL == "" {
			return nil, fmt.Errorf("generator: upstream url is required")
		}
		return NewUpstreamGenerator(opts.UpstreamURL, opts.Timeout), nil
	case ProviderStatic:
		return Static{}, nil
	default:
		return nil, fmt.Errorf("generator: unknown provider %q", opts.Provider)
	}
}
