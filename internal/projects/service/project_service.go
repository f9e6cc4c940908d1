package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/GoSim-25-26J-441/uml-studio-backend/internal/events"
	"github.com/GoSim-25-26J-441/uml-studio-backend/internal/metrics"
	"github.com/GoSim-25-26J-441/uml-studio-backend/internal/projects/domain"
)

// ProjectService handles reads and deletion of projects.
type ProjectService struct {
	store    Store
	renderer Renderer
	events   Publisher
	log      zerolog.Logger
}

// NewProjectService creates a new project service
func NewProjectService(store Store, renderer Renderer, pub Publisher, log zerolog.Logger) *ProjectService {
	if pub == nil {
		pub = events.Nop{}
	}
	return &ProjectService{
		store:    store,
		renderer: renderer,
		events:   pub,
		log:      log.With().Str("component", "projects").Logger(),
	}
}

// Get returns the project with its diagrams and their current versions.
func (s *ProjectService) Get(ctx context.Context, id, callerUID string) (*domain.Project, error) {
	p, err := s.store.GetProjectTree(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(p, callerUID); err != nil {
		return nil, err
	}
	return p, nil
}

// List returns the caller's projects, newest first, with their diagrams and
// current versions.
func (s *ProjectService) List(ctx context.Context, ownerUID string) ([]domain.Project, error) {
	return s.store.ListProjects(ctx, ownerUID)
}

// Delete releases every rendered image under the project and then deletes
// it, cascading to diagrams and versions. Release failures are logged only.
func (s *ProjectService) Delete(ctx context.Context, id, callerUID string) error {
	p, err := s.store.GetProject(ctx, id)
	if err != nil {
		return err
	}
	if err := authorize(p, callerUID); err != nil {
		return err
	}

	artifacts, err := s.store.ListArtifacts(ctx, id)
	if err != nil {
		return err
	}
	for _, ref := range artifacts {
		err := s.renderer.Release(ctx, ref)
		metrics.ObserveRelease(err)
		if err != nil {
			s.log.Warn().Err(err).Str("project_id", id).Str("artifact", ref).Msg("release artifact failed")
		}
	}

	if err := s.store.DeleteProject(ctx, id); err != nil {
		return err
	}
	s.log.Info().Str("project_id", id).Int("artifacts", len(artifacts)).Msg("project deleted")
	s.events.Publish(ctx, events.Event{Type: events.TypeDeleted, ProjectID: id})
	return nil
}

// FailStale moves projects stuck in PENDING for longer than staleAfter to ERROR.
func (s *ProjectService) FailStale(ctx context.Context, staleAfter time.Duration) (int64, error) {
	n, err := s.store.FailStalePending(ctx, time.Now().Add(-staleAfter), "generation timed out")
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.AddStaleProjects(n)
		s.log.Warn().Int64("projects", n).Dur("stale_after", staleAfter).Msg("failed stale pending projects")
	}
	return n, nil
}
