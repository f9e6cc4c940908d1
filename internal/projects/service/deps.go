package service

import (
	"context"
	"time"

	"github.com/GoSim-25-26J-441/uml-studio-backend/internal/events"
	"github.com/GoSim-25-26J-441/uml-studio-backend/internal/projects/domain"
)

// Store is the persistence the services need. Implemented by
// repository.PostgresStore and repository.MemoryStore.
type Store interface {
	CreateProject(ctx context.Context, p *domain.Project) error
	GetProject(ctx context.Context, id string) (*domain.Project, error)
	GetProjectTree(ctx context.Context, id string) (*domain.Project, error)
	ListProjects(ctx context.Context, ownerUID string) ([]domain.Project, error)
	SetProjectStatus(ctx context.Context, id string, status domain.ProjectStatus, errMsg *string) error
	DeleteProject(ctx context.Context, id string) error
	ListArtifacts(ctx context.Context, projectID string) ([]string, error)

	CreateDiagramWithVersion(ctx context.Context, in domain.NewDiagramInput) (*domain.Diagram, error)
	GetDiagram(ctx context.Context, id string) (*domain.Diagram, error)
	LoadDiagramContext(ctx context.Context, diagramID string) (*domain.DiagramContext, error)

	MaxVersionNumber(ctx context.Context, diagramID string) (int, error)
	AppendVersion(ctx context.Context, in domain.NewVersionInput) (*domain.DiagramVersion, error)
	ListVersions(ctx context.Context, diagramID string) ([]domain.DiagramVersion, error)
	GetVersion(ctx context.Context, diagramID, versionID string) (*domain.DiagramVersion, error)
	SetCurrentVersion(ctx context.Context, diagramID, versionID string) (*domain.Diagram, error)

	FailStalePending(ctx context.Context, cutoff time.Time, message string) (int64, error)
}

// ContentGenerator produces diagram sources from a description.
type ContentGenerator interface {
	GenerateBulk(ctx context.Context, req domain.BulkRequest) ([]domain.GeneratedDiagram, error)
	GenerateOne(ctx context.Context, req domain.SingleRequest) (*domain.GeneratedDiagram, error)
}

// Renderer turns diagram source into a stored image and can release it again.
type Renderer interface {
	Render(ctx context.Context, source string, dialect domain.Dialect) (string, error)
	Release(ctx context.Context, artifactRef string) error
}

// Publisher receives progress events. Publishing never fails the caller.
type Publisher interface {
	Publish(ctx context.Context, ev events.Event)
}

func authorize(p *domain.Project, uid string) error {
	if uid != "" && !p.OwnedBy(uid) {
		return domain.Unauthorized("project", p.ID)
	}
	return nil
}
