package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoSim-25-26J-441/uml-studio-backend/internal/projects/domain"
)

func seedDiagram(t *testing.T, s *MemoryStore) (*domain.Project, *domain.Diagram) {
	t.Helper()
	ctx := context.Background()
	p := &domain.Project{Title: "t", Prompt: "p"}
	require.NoError(t, s.CreateProject(ctx, p))
	d, err := s.CreateDiagramWithVersion(ctx, domain.NewDiagramInput{
		ProjectID: p.ID, Kind: domain.KindClass, Title: "Classes", DSL: "v1",
	})
	require.NoError(t, err)
	return p, d
}

func TestMemoryStore_VersionNumbersAreUnique(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_, d := seedDiagram(t, s)

	_, err := s.AppendVersion(ctx, domain.NewVersionInput{DiagramID: d.ID, VersionNumber: 1, DSL: "dup"})
	assert.True(t, errors.Is(err, domain.ErrVersionConflict))

	v2, err := s.AppendVersion(ctx, domain.NewVersionInput{DiagramID: d.ID, VersionNumber: 2, DSL: "v2", Title: "Renamed"})
	require.NoError(t, err)

	got, err := s.GetDiagram(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, v2.ID, *got.CurrentVersionID)
	assert.Equal(t, "Renamed", got.Title)

	n, err := s.MaxVersionNumber(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	dc, err := s.LoadDiagramContext(ctx, d.ID)
	require.NoError(t, err)
	require.NotNil(t, dc.Latest)
	assert.Equal(t, "v2", dc.Latest.DSL)
}

func TestMemoryStore_SetCurrentVersionRejectsForeignVersion(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	p, d := seedDiagram(t, s)
	other, err := s.CreateDiagramWithVersion(ctx, domain.NewDiagramInput{ProjectID: p.ID, Kind: domain.KindState, DSL: "x"})
	require.NoError(t, err)

	_, err = s.SetCurrentVersion(ctx, d.ID, *other.CurrentVersionID)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	got, err := s.GetDiagram(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, *d.CurrentVersionID, *got.CurrentVersionID)
}

func TestMemoryStore_DoneIsTerminal(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	p, _ := seedDiagram(t, s)

	require.NoError(t, s.SetProjectStatus(ctx, p.ID, domain.StatusDone, nil))
	msg := "late"
	err := s.SetProjectStatus(ctx, p.ID, domain.StatusError, &msg)
	assert.True(t, errors.Is(err, domain.ErrInvalidState))
}

func TestMemoryStore_ErrorIsTerminal(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	p, _ := seedDiagram(t, s)

	n, err := s.FailStalePending(ctx, time.Now().Add(time.Minute), "generation timed out")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	err = s.SetProjectStatus(ctx, p.ID, domain.StatusDone, nil)
	assert.True(t, errors.Is(err, domain.ErrInvalidState))

	got, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "generation timed out", *got.ErrorMessage)
}

func TestMemoryStore_DeleteCascades(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	p, d := seedDiagram(t, s)
	img := "https://img/2.png"
	v2, err := s.AppendVersion(ctx, domain.NewVersionInput{DiagramID: d.ID, VersionNumber: 2, DSL: "v2", ImageURL: &img})
	require.NoError(t, err)

	refs, err := s.ListArtifacts(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{img}, refs)

	require.NoError(t, s.DeleteProject(ctx, p.ID))

	_, err = s.GetDiagram(ctx, d.ID)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	_, err = s.GetVersion(ctx, d.ID, v2.ID)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	_, err = s.ListVersions(ctx, d.ID)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.True(t, errors.Is(s.DeleteProject(ctx, p.ID), domain.ErrNotFound))
}
