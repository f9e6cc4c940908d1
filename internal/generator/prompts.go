package generator

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/GoSim-25-26J-441/uml-studio-backend/internal/projects/domain"
)

//go:embed prompts.yaml
var defaultPrompts []byte

type promptFile struct {
	System     map[string]string `yaml:"system"`
	Bulk       string            `yaml:"bulk"`
	Regenerate string            `yaml:"regenerate"`
}

// Prompts renders the system and user messages sent to the model.
type Prompts struct {
	system     map[domain.Dialect]string
	bulk       *template.Template
	regenerate *template.Template
}

// LoadPrompts parses a prompt file. An empty input loads the built-in prompts.
func LoadPrompts(data []byte) (*Prompts, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		data = defaultPrompts
	}
	var f promptFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse prompts: %w", err)
	}

	p := &Prompts{system: make(map[domain.Dialect]string, len(f.System))}
	for k, v := range f.System {
		d, ok := domain.ParseDialect(k)
		if !ok {
			return nil, fmt.Errorf("prompts: unknown dialect %q", k)
		}
		p.system[d] = strings.TrimSpace(v)
	}
	if _, ok := p.system[domain.DialectPlantUML]; !ok {
		return nil, fmt.Errorf("prompts: missing system prompt for %s", domain.DialectPlantUML)
	}

	funcs := template.FuncMap{"join": strings.Join}
	var err error
	if p.bulk, err = template.New("bulk").Funcs(funcs).Option("missingkey=error").Parse(f.Bulk); err != nil {
		return nil, fmt.Errorf("prompts: bulk: %w", err)
	}
	if p.regenerate, err = template.New("regenerate").Funcs(funcs).Option("missingkey=error").Parse(f.Regenerate); err != nil {
		return nil, fmt.Errorf("prompts: regenerate: %w", err)
	}
	return p, nil
}

// System returns the system prompt for the dialect, falling back to PlantUML.
func (p *Prompts) System(d domain.Dialect) string {
	if s, ok := p.system[d]; ok {
		return s
	}
	return p.system[domain.DialectPlantUML]
}

type bulkView struct {
	Prompt  string
	Kinds   []string
	Dialect domain.Dialect
}

func (p *Prompts) Bulk(req domain.BulkRequest) (string, error) {
	kinds := make([]string, 0, len(req.Kinds))
	for _, k := range req.Kinds {
		kinds = append(kinds, string(k))
	}
	var b strings.Builder
	if err := p.bulk.Execute(&b, bulkView{Prompt: req.Prompt, Kinds: kinds, Dialect: dialectOrDefault(req.Dialect)}); err != nil {
		return "", fmt.Errorf("render bulk prompt: %w", err)
	}
	return b.String(), nil
}

func (p *Prompts) Regenerate(req domain.SingleRequest) (string, error) {
	req.Dialect = dialectOrDefault(req.Dialect)
	var b strings.Builder
	if err := p.regenerate.Execute(&b, req); err != nil {
		return "", fmt.Errorf("render regenerate prompt: %w", err)
	}
	return b.String(), nil
}

func dialectOrDefault(d domain.Dialect) domain.Dialect {
	if d == "" {
		return domain.DialectPlantUML
	}
	return d
}
