package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/GoSim-25-26J-441/uml-studio-backend/internal/projects/domain"
)

// Static returns fixed skeleton diagrams. Used for local development
// without model credentials.
type Static struct{}

func (Static) GenerateBulk(_ context.Context, req domain.BulkRequest) ([]domain.GeneratedDiagram, error) {
	out := make([]domain.GeneratedDiagram, 0, len(req.Kinds))
	for _, k := range req.Kinds {
		out = append(out, skeleton(k, dialectOrDefault(req.Dialect), 1))
	}
	return out, nil
}

func (Static) GenerateOne(_ context.Context, req domain.SingleRequest) (*domain.GeneratedDiagram, error) {
	d := skeleton(req.Kind, dialectOrDefault(req.Dialect), revision(req.PreviousSource)+1)
	return &d, nil
}

func skeleton(k domain.DiagramKind, d domain.Dialect, rev int) domain.GeneratedDiagram {
	title := fmt.Sprintf("%s diagram", strings.ReplaceAll(strings.ToLower(string(k)), "_", " "))
	if d == domain.DialectMermaid {
		return domain.GeneratedDiagram{Kind: k, Title: title, Source: mermaidSkeleton(k, rev)}
	}
	return domain.GeneratedDiagram{
		Kind:   k,
		Title:  title,
		Source: fmt.Sprintf("@startuml\ntitle %s\n' revision %d\n%s\n@enduml", title, rev, plantumlBody(k)),
	}
}

func plantumlBody(k domain.DiagramKind) string {
	switch k {
	case domain.KindSequence:
		return "actor User\nUser -> System: request\nSystem --> User: response"
	case domain.KindActivity:
		return "start\n:Handle request;\nstop"
	case domain.KindUseCase:
		return "actor User\nUser -- (Use system)"
	case domain.KindState:
		return "[*] --> Idle\nIdle --> Busy\nBusy --> [*]"
	case domain.KindComponent:
		return "[API] --> [Store]"
	default:
		return "class System"
	}
}

func mermaidSkeleton(k domain.DiagramKind, rev int) string {
	var body string
	switch k {
	case domain.KindSequence:
		body = "sequenceDiagram\n  User->>System: request\n  System-->>User: response"
	case domain.KindActivity:
		body = "flowchart TD\n  A([start]) --> B[Handle request] --> C([stop])"
	case domain.KindUseCase:
		body = "flowchart LR\n  User((User)) --- U(Use system)"
	case domain.KindState:
		body = "stateDiagram-v2\n  [*] --> Idle\n  Idle --> Busy\n  Busy --> [*]"
	case domain.KindComponent:
		body = "flowchart LR\n  API --> Store"
	default:
		body = "classDiagram\n  class System"
	}
	return fmt.Sprintf("%s\n%%%% revision %d", body, rev)
}

// revision reads the revision marker written by skeleton, 1 when absent.
func revision(source string) int {
	i := strings.Index(source, "revision ")
	if i < 0 {
		return 1
	}
	var n int
	if _, err := fmt.Sscanf(source[i:], "revision %d", &n); err != nil || n < 1 {
		return 1
	}
	return n
}
