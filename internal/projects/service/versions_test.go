package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoSim-25-26J-441/uml-studio-backend/internal/events"
	"github.com/GoSim-25-26J-441/uml-studio-backend/internal/projects/domain"
)

func TestSwitchVersion_ForeignVersionIsNotFound(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.create(t, domain.KindClass, domain.KindSequence)
	class := diagramOfKind(t, p, domain.KindClass)
	seq := diagramOfKind(t, p, domain.KindSequence)

	_, err := h.versions.SwitchVersion(ctx, class.ID, *seq.CurrentVersionID, "user-1")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	after, err := h.store.GetDiagram(ctx, class.ID)
	require.NoError(t, err)
	assert.Equal(t, *class.CurrentVersionID, *after.CurrentVersionID)
}

func TestSwitchVersion_CurrentIsNoop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.create(t, domain.KindClass)
	d := p.Diagrams[0]

	before, err := h.store.GetDiagram(ctx, d.ID)
	require.NoError(t, err)

	got, err := h.versions.SwitchVersion(ctx, d.ID, *d.CurrentVersionID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, before, got)

	after, err := h.store.GetDiagram(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Empty(t, h.pub.ofType(events.TypeVersionSwitched))
}

func TestSwitchVersion_PublishesEvent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.create(t, domain.KindClass)
	d := p.Diagrams[0]
	_, err := h.orch.RegenerateDiagram(ctx, d.ID, "user-1")
	require.NoError(t, err)

	got, err := h.versions.SwitchVersion(ctx, d.ID, *d.CurrentVersionID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, *d.CurrentVersionID, *got.CurrentVersionID)

	evs := h.pub.ofType(events.TypeVersionSwitched)
	require.Len(t, evs, 1)
	assert.Equal(t, p.ID, evs[0].ProjectID)
	assert.Equal(t, d.ID, evs[0].DiagramID)
}

func TestVersionManager_Errors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.create(t, domain.KindClass)
	d := p.Diagrams[0]

	t.Run("unknown diagram", func(t *testing.T) {
		_, err := h.versions.ListVersions(ctx, "dgm_missing", "user-1")
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})
	t.Run("unknown version", func(t *testing.T) {
		_, err := h.versions.SwitchVersion(ctx, d.ID, "dver_missing", "user-1")
		assert.True(t, errors.Is(err, domain.ErrNotFound))
		_, err = h.versions.GetVersion(ctx, d.ID, "dver_missing", "user-1")
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})
	t.Run("other owner", func(t *testing.T) {
		_, err := h.versions.ListVersions(ctx, d.ID, "intruder")
		assert.True(t, errors.Is(err, domain.ErrUnauthorized))
		_, err = h.versions.SwitchVersion(ctx, d.ID, *d.CurrentVersionID, "intruder")
		assert.True(t, errors.Is(err, domain.ErrUnauthorized))
	})
}
