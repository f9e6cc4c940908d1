package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/GoSim-25-26J-441/uml-studio-backend/internal/events"
	"github.com/GoSim-25-26J-441/uml-studio-backend/internal/projects/domain"
)

type fakeGenerator struct {
	mu       sync.Mutex
	bulk     []domain.GeneratedDiagram
	bulkErr  error
	oneErr   error
	oneTitle string
	calls    int
	lastOne  domain.SingleRequest
	// beforeBulk runs at the start of GenerateBulk.
	beforeBulk func()
}

func (g *fakeGenerator) GenerateBulk(_ context.Context, req domain.BulkRequest) ([]domain.GeneratedDiagram, error) {
	if g.beforeBulk != nil {
		g.beforeBulk()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.bulkErr != nil {
		return nil, g.bulkErr
	}
	if g.bulk != nil {
		return g.bulk, nil
	}
	out := make([]domain.GeneratedDiagram, 0, len(req.Kinds))
	for _, k := range req.Kinds {
		out = append(out, domain.GeneratedDiagram{Kind: k, Title: string(k) + " view", Source: "@startuml\n' " + string(k) + "\n@enduml"})
	}
	return out, nil
}

func (g *fakeGenerator) GenerateOne(_ context.Context, req domain.SingleRequest) (*domain.GeneratedDiagram, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.lastOne = req
	if g.oneErr != nil {
		return nil, g.oneErr
	}
	return &domain.GeneratedDiagram{
		Kind:   req.Kind,
		Title:  g.oneTitle,
		Source: fmt.Sprintf("%s\n' revised %d", req.PreviousSource, g.calls),
	}, nil
}

type fakeRenderer struct {
	mu       sync.Mutex
	fail     bool
	n        int
	released []string
	relErr   error
}

func (r *fakeRenderer) Render(_ context.Context, _ string, dialect domain.Dialect) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return "", errors.New("renderer unavailable")
	}
	r.n++
	return fmt.Sprintf("https://img.test/%s/%d.png", dialect, r.n), nil
}

func (r *fakeRenderer) Release(_ context.Context, ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released = append(r.released, ref)
	return r.relErr
}

func (r *fakeRenderer) setFail(v bool) {
	r.mu.Lock()
	r.fail = v
	r.mu.Unlock()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
}

func (p *recordingPublisher) ofType(t events.Type) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, ev := range p.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
