package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/GoSim-25-26J-441/uml-studio-backend/internal/projects/domain"
	"github.com/GoSim-25-26J-441/uml-studio-backend/internal/projects/utils"
)

// MemoryStore is a process-local store with the same invariants as
// PostgresStore: unique (diagram, version number), cascade delete and
// same-diagram current pointers. Used for local development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	now      func() time.Time
	projects map[string]*domain.Project
	diagrams map[string]*domain.Diagram
	versions map[string]*domain.DiagramVersion
	// diagramID -> versionNumber -> versionID
	numbers map[string]map[int]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:      time.Now,
		projects: make(map[string]*domain.Project),
		diagrams: make(map[string]*domain.Diagram),
		versions: make(map[string]*domain.DiagramVersion),
		numbers:  make(map[string]map[int]string),
	}
}

func (s *MemoryStore) CreateProject(_ context.Context, p *domain.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := utils.ClaimTextID(projectIDPrefix, projectIDAttempts, func(id string) (bool, error) {
		_, taken := s.projects[id]
		return !taken, nil
	})
	if err != nil {
		return err
	}
	if p.Status == "" {
		p.Status = domain.StatusPending
	}
	p.ID = id
	p.CreatedAt = s.now()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	cp.Diagrams = nil
	cp.Warnings = nil
	s.projects[id] = &cp
	return nil
}

func (s *MemoryStore) GetProject(_ context.Context, id string) (*domain.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[id]
	if !ok {
		return nil, domain.NotFound("project", id)
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) GetProjectTree(_ context.Context, id string) (*domain.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[id]
	if !ok {
		return nil, domain.NotFound("project", id)
	}
	out := s.tree(p)
	return &out, nil
}

func (s *MemoryStore) ListProjects(_ context.Context, ownerUID string) ([]domain.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Project, 0, 16)
	for _, p := range s.projects {
		if p.OwnerUID != nil && *p.OwnerUID == ownerUID {
			out = append(out, s.tree(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) SetProjectStatus(_ context.Context, id string, status domain.ProjectStatus, errMsg *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[id]
	if !ok {
		return domain.NotFound("project", id)
	}
	if p.Status != domain.StatusPending {
		return domain.InvalidState("project", id, "project already "+string(p.Status))
	}
	p.Status = status
	p.ErrorMessage = errMsg
	p.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) CreateDiagramWithVersion(_ context.Context, in domain.NewDiagramInput) (*domain.Diagram, error) {
	diagramID, err := utils.NewID(diagramIDPrefix)
	if err != nil {
		return nil, err
	}
	versionID, err := utils.NewID(versionIDPrefix)
	if err != nil {
		return nil, err
	}
	if in.Dialect == "" {
		in.Dialect = domain.DialectPlantUML
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[in.ProjectID]; !ok {
		return nil, domain.NotFound("project", in.ProjectID)
	}

	now := s.now()
	v := &domain.DiagramVersion{
		ID:            versionID,
		DiagramID:     diagramID,
		VersionNumber: 1,
		DSL:           in.DSL,
		ImageURL:      in.ImageURL,
		CreatedAt:     now,
	}
	d := &domain.Diagram{
		ID:               diagramID,
		ProjectID:        in.ProjectID,
		Kind:             in.Kind,
		Dialect:          in.Dialect,
		Title:            in.Title,
		CurrentVersionID: &versionID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	s.diagrams[diagramID] = d
	s.versions[versionID] = v
	s.numbers[diagramID] = map[int]string{1: versionID}

	out := s.withCurrent(d)
	return &out, nil
}

func (s *MemoryStore) GetDiagram(_ context.Context, id string) (*domain.Diagram, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.diagrams[id]
	if !ok {
		return nil, domain.NotFound("diagram", id)
	}
	out := s.withCurrent(d)
	return &out, nil
}

func (s *MemoryStore) LoadDiagramContext(_ context.Context, diagramID string) (*domain.DiagramContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.diagrams[diagramID]
	if !ok {
		return nil, domain.NotFound("diagram", diagramID)
	}
	p, ok := s.projects[d.ProjectID]
	if !ok {
		return nil, domain.NotFound("project", d.ProjectID)
	}

	out := &domain.DiagramContext{Diagram: s.withCurrent(d), Project: *p}
	if max := s.maxNumber(diagramID); max > 0 {
		v := *s.versions[s.numbers[diagramID][max]]
		out.Latest = &v
	}
	return out, nil
}

func (s *MemoryStore) MaxVersionNumber(_ context.Context, diagramID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxNumber(diagramID), nil
}

func (s *MemoryStore) AppendVersion(_ context.Context, in domain.NewVersionInput) (*domain.DiagramVersion, error) {
	versionID, err := utils.NewID(versionIDPrefix)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.diagrams[in.DiagramID]
	if !ok {
		return nil, domain.NotFound("diagram", in.DiagramID)
	}
	if _, taken := s.numbers[in.DiagramID][in.VersionNumber]; taken {
		return nil, domain.VersionConflict(in.DiagramID, in.VersionNumber)
	}

	now := s.now()
	v := &domain.DiagramVersion{
		ID:            versionID,
		DiagramID:     in.DiagramID,
		VersionNumber: in.VersionNumber,
		DSL:           in.DSL,
		ImageURL:      in.ImageURL,
		CreatedAt:     now,
	}
	s.versions[versionID] = v
	if s.numbers[in.DiagramID] == nil {
		s.numbers[in.DiagramID] = make(map[int]string)
	}
	s.numbers[in.DiagramID][in.VersionNumber] = versionID

	d.CurrentVersionID = &versionID
	if in.Title != "" {
		d.Title = in.Title
	}
	d.UpdatedAt = now

	out := *v
	return &out, nil
}

func (s *MemoryStore) ListVersions(_ context.Context, diagramID string) ([]domain.DiagramVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.diagrams[diagramID]; !ok {
		return nil, domain.NotFound("diagram", diagramID)
	}
	out := make([]domain.DiagramVersion, 0, len(s.numbers[diagramID]))
	for _, id := range s.numbers[diagramID] {
		out = append(out, *s.versions[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VersionNumber > out[j].VersionNumber })
	return out, nil
}

func (s *MemoryStore) GetVersion(_ context.Context, diagramID, versionID string) (*domain.DiagramVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.versions[versionID]
	if !ok || v.DiagramID != diagramID {
		return nil, domain.NotFound("diagram_version", versionID)
	}
	out := *v
	return &out, nil
}

func (s *MemoryStore) SetCurrentVersion(_ context.Context, diagramID, versionID string) (*domain.Diagram, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.diagrams[diagramID]
	if !ok {
		return nil, domain.NotFound("diagram", diagramID)
	}
	v, ok := s.versions[versionID]
	if !ok || v.DiagramID != diagramID {
		return nil, domain.NotFound("diagram_version", versionID)
	}
	id := versionID
	d.CurrentVersionID = &id
	d.UpdatedAt = s.now()

	out := s.withCurrent(d)
	return &out, nil
}

func (s *MemoryStore) ListArtifacts(_ context.Context, projectID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for _, v := range s.versions {
		d := s.diagrams[v.DiagramID]
		if d != nil && d.ProjectID == projectID && v.ImageURL != nil {
			out = append(out, *v.ImageURL)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) DeleteProject(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[id]; !ok {
		return domain.NotFound("project", id)
	}
	for did, d := range s.diagrams {
		if d.ProjectID != id {
			continue
		}
		for _, vid := range s.numbers[did] {
			delete(s.versions, vid)
		}
		delete(s.numbers, did)
		delete(s.diagrams, did)
	}
	delete(s.projects, id)
	return nil
}

func (s *MemoryStore) FailStalePending(_ context.Context, cutoff time.Time, message string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, p := range s.projects {
		if p.Status == domain.StatusPending && p.UpdatedAt.Before(cutoff) {
			msg := message
			p.Status = domain.StatusError
			p.ErrorMessage = &msg
			p.UpdatedAt = s.now()
			n++
		}
	}
	return n, nil
}

// tree copies p with its diagrams in creation order. Caller holds the lock.
func (s *MemoryStore) tree(p *domain.Project) domain.Project {
	out := *p
	out.Diagrams = make([]domain.Diagram, 0, 6)
	for _, d := range s.diagrams {
		if d.ProjectID == p.ID {
			out.Diagrams = append(out.Diagrams, s.withCurrent(d))
		}
	}
	sort.Slice(out.Diagrams, func(i, j int) bool {
		if out.Diagrams[i].CreatedAt.Equal(out.Diagrams[j].CreatedAt) {
			return out.Diagrams[i].ID < out.Diagrams[j].ID
		}
		return out.Diagrams[i].CreatedAt.Before(out.Diagrams[j].CreatedAt)
	})
	return out
}

// withCurrent copies d and attaches its current version. Caller holds the lock.
func (s *MemoryStore) withCurrent(d *domain.Diagram) domain.Diagram {
	out := *d
	if d.CurrentVersionID != nil {
		if v, ok := s.versions[*d.CurrentVersionID]; ok {
			cv := *v
			out.CurrentVersion = &cv
		}
	}
	return out
}

func (s *MemoryStore) maxNumber(diagramID string) int {
	max := 0
	for n := range s.numbers[diagramID] {
		if n > max {
			max = n
		}
	}
	return max
}
