package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/GoSim-25-26J-441/uml-studio-backend/internal/events"
	"github.com/GoSim-25-26J-441/uml-studio-backend/internal/metrics"
	"github.com/GoSim-25-26J-441/uml-studio-backend/internal/projects/domain"
)

const (
	defaultParallelism       = 4
	defaultMaxVersionRetries = 3
	maxTitleLength           = 200
	maxPromptLength          = 20000
)

// CreateProjectInput is a request to generate a new set of diagrams.
type CreateProjectInput struct {
	Title    string
	Prompt   string
	Kinds    []domain.DiagramKind
	Dialect  domain.Dialect
	OwnerUID string
}

func (in *CreateProjectInput) Validate() error {
	return validation.ValidateStruct(in,
		validation.Field(&in.Title, validation.Required, validation.Length(1, maxTitleLength)),
		validation.Field(&in.Prompt, validation.Required, validation.Length(1, maxPromptLength)),
		validation.Field(&in.Kinds, validation.Required, validation.Each(validation.By(validKind))),
		validation.Field(&in.Dialect, validation.By(validDialect)),
	)
}

func validKind(v interface{}) error {
	if k, ok := v.(domain.DiagramKind); !ok || !k.Valid() {
		return fmt.Errorf("unknown diagram kind %v", v)
	}
	return nil
}

func validDialect(v interface{}) error {
	if d, ok := v.(domain.Dialect); !ok || (d != "" && !d.Valid()) {
		return fmt.Errorf("unknown dialect %v", v)
	}
	return nil
}

// OrchestratorDeps bundles the collaborators of an Orchestrator.
type OrchestratorDeps struct {
	Store     Store
	Generator ContentGenerator
	Renderer  Renderer
	Events    Publisher
	Logger    zerolog.Logger

	// Parallelism bounds concurrent per-diagram processing during project creation.
	Parallelism int
	// MaxVersionRetries bounds re-allocation of a version number after a conflict.
	MaxVersionRetries int
}

// Orchestrator drives the generator, the renderer and the store through
// project creation and diagram regeneration.
type Orchestrator struct {
	store      Store
	gen        ContentGenerator
	renderer   Renderer
	events     Publisher
	log        zerolog.Logger
	parallel   int
	maxRetries int
}

func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	o := &Orchestrator{
		store:      deps.Store,
		gen:        deps.Generator,
		renderer:   deps.Renderer,
		events:     deps.Events,
		log:        deps.Logger.With().Str("component", "orchestrator").Logger(),
		parallel:   deps.Parallelism,
		maxRetries: deps.MaxVersionRetries,
	}
	if o.events == nil {
		o.events = events.Nop{}
	}
	if o.parallel <= 0 {
		o.parallel = defaultParallelism
	}
	if o.maxRetries <= 0 {
		o.maxRetries = defaultMaxVersionRetries
	}
	return o
}

// CreateProject creates the project, generates every requested diagram and
// stores version 1 of each. On generator failure the project is left in
// ERROR and returned together with an ErrGenerationFailed error. Render
// failures only degrade the affected version (nil image).
func (o *Orchestrator) CreateProject(ctx context.Context, in CreateProjectInput) (*domain.Project, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Prompt = strings.TrimSpace(in.Prompt)
	in.Kinds = uniqueKinds(in.Kinds)
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if in.Dialect == "" {
		in.Dialect = domain.DialectPlantUML
	}

	// Once accepted, the operation runs to completion even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	p := &domain.Project{
		Title:  in.Title,
		Prompt: in.Prompt,
		Status: domain.StatusPending,
	}
	if in.OwnerUID != "" {
		owner := in.OwnerUID
		p.OwnerUID = &owner
	}
	if err := o.store.CreateProject(ctx, p); err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	log := o.log.With().Str("project_id", p.ID).Logger()
	log.Info().Int("kinds", len(in.Kinds)).Str("dialect", string(in.Dialect)).Msg("project accepted")
	o.publishStatus(ctx, p.ID, domain.StatusPending, "")

	start := time.Now()
	generated, err := o.gen.GenerateBulk(ctx, domain.BulkRequest{
		Prompt:  in.Prompt,
		Kinds:   in.Kinds,
		Dialect: in.Dialect,
	})
	if err == nil && len(generated) == 0 {
		err = errors.New("generator returned no diagrams")
	}
	metrics.ObserveGeneration("bulk", err, time.Since(start))
	if err != nil {
		log.Error().Err(err).Msg("content generation failed")
		return o.failProject(ctx, p.ID, domain.GenerationFailed("project", p.ID, err))
	}

	warnings := kindWarnings(in.Kinds, generated)
	for _, w := range warnings {
		log.Warn().Msg(w)
		o.events.Publish(ctx, events.Event{Type: events.TypeKindsMismatch, ProjectID: p.ID, Message: w})
	}

	if err := o.processDiagrams(ctx, p.ID, in.Dialect, generated, log); err != nil {
		return o.failProject(ctx, p.ID, err)
	}

	if err := o.store.SetProjectStatus(ctx, p.ID, domain.StatusDone, nil); err != nil {
		if !errors.Is(err, domain.ErrInvalidState) {
			return nil, fmt.Errorf("mark project done: %w", err)
		}
		// The project left PENDING while generating, e.g. the stale sweep failed it.
		log.Warn().Err(err).Msg("project no longer pending, generation result discarded")
		out, gerr := o.store.GetProjectTree(ctx, p.ID)
		if gerr != nil {
			return nil, errors.Join(err, gerr)
		}
		return out, domain.GenerationFailed("project", p.ID, err)
	}
	o.publishStatus(ctx, p.ID, domain.StatusDone, "")
	log.Info().Int("diagrams", len(generated)).Dur("took", time.Since(start)).Msg("project generated")

	out, err := o.store.GetProjectTree(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	out.Warnings = warnings
	return out, nil
}

// processDiagrams renders and stores every generated diagram. Diagrams are
// independent: one diagram's failure never cancels its siblings. Render
// failures are absorbed; store failures are collected and returned together.
func (o *Orchestrator) processDiagrams(ctx context.Context, projectID string, dialect domain.Dialect, generated []domain.GeneratedDiagram, log zerolog.Logger) error {
	errs := make([]error, len(generated))

	var g errgroup.Group
	g.SetLimit(o.parallel)
	for i, gd := range generated {
		g.Go(func() error {
			outcome := o.render(ctx, gd.Source, dialect)
			if outcome.Degraded() {
				log.Warn().Err(outcome.Cause()).Str("kind", string(gd.Kind)).Msg("render failed, storing source without image")
			}

			title := strings.TrimSpace(gd.Title)
			if title == "" {
				title = defaultTitle(gd.Kind)
			}
			d, err := o.store.CreateDiagramWithVersion(ctx, domain.NewDiagramInput{
				ProjectID: projectID,
				Kind:      gd.Kind,
				Dialect:   dialect,
				Title:     title,
				DSL:       gd.Source,
				ImageURL:  outcome.ImageURL(),
			})
			if err != nil {
				o.releaseOrphan(ctx, outcome)
				errs[i] = fmt.Errorf("store %s diagram: %w", gd.Kind, err)
				return nil
			}

			ev := events.Event{Type: events.TypeDiagramReady, ProjectID: projectID, DiagramID: d.ID, VersionID: *d.CurrentVersionID}
			if outcome.Degraded() {
				ev.Type = events.TypeRenderDegraded
				ev.Message = outcome.Cause().Error()
			}
			o.events.Publish(ctx, ev)
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

// RegenerateDiagram asks the generator for an improved version of the
// diagram and appends it as the new current version. On generator failure
// nothing is written.
func (o *Orchestrator) RegenerateDiagram(ctx context.Context, diagramID, callerUID string) (*domain.DiagramVersion, error) {
	ctx = context.WithoutCancel(ctx)

	dc, err := o.store.LoadDiagramContext(ctx, diagramID)
	if err != nil {
		return nil, err
	}
	if err := authorize(&dc.Project, callerUID); err != nil {
		return nil, err
	}
	if dc.Diagram.CurrentVersionID == nil || dc.Latest == nil {
		return nil, domain.InvalidState("diagram", diagramID, "diagram has no current version")
	}
	log := o.log.With().Str("project_id", dc.Project.ID).Str("diagram_id", diagramID).Logger()

	start := time.Now()
	gd, err := o.gen.GenerateOne(ctx, domain.SingleRequest{
		Prompt:         dc.Project.Prompt,
		Kind:           dc.Diagram.Kind,
		Dialect:        dc.Diagram.Dialect,
		PreviousSource: dc.Latest.DSL,
	})
	if err == nil && strings.TrimSpace(gd.Source) == "" {
		err = errors.New("generator returned an empty source")
	}
	metrics.ObserveGeneration("single", err, time.Since(start))
	if err != nil {
		log.Error().Err(err).Msg("regeneration failed")
		return nil, domain.GenerationFailed("diagram", diagramID, err)
	}

	outcome := o.render(ctx, gd.Source, dc.Diagram.Dialect)
	if outcome.Degraded() {
		log.Warn().Err(outcome.Cause()).Msg("render failed, storing source without image")
	}

	v, err := o.appendVersion(ctx, domain.NewVersionInput{
		DiagramID:     diagramID,
		VersionNumber: dc.Latest.VersionNumber + 1,
		DSL:           gd.Source,
		ImageURL:      outcome.ImageURL(),
		Title:         strings.TrimSpace(gd.Title),
	})
	if err != nil {
		o.releaseOrphan(ctx, outcome)
		return nil, err
	}

	log.Info().Int("version", v.VersionNumber).Bool("image", v.ImageURL != nil).Msg("diagram regenerated")
	o.events.Publish(ctx, events.Event{
		Type:      events.TypeVersionCreated,
		ProjectID: dc.Project.ID,
		DiagramID: diagramID,
		VersionID: v.ID,
	})
	return v, nil
}

// appendVersion inserts the version, re-reading the current maximum and
// retrying when a concurrent writer took the number first.
func (o *Orchestrator) appendVersion(ctx context.Context, in domain.NewVersionInput) (*domain.DiagramVersion, error) {
	var lastErr error
	for attempt := 0; attempt <= o.maxRetries; attempt++ {
		if attempt > 0 {
			latest, err := o.store.MaxVersionNumber(ctx, in.DiagramID)
			if err != nil {
				return nil, err
			}
			in.VersionNumber = latest + 1
		}

		v, err := o.store.AppendVersion(ctx, in)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return nil, err
		}
		metrics.IncVersionConflict()
		o.log.Warn().Str("diagram_id", in.DiagramID).Int("version", in.VersionNumber).Int("attempt", attempt+1).
			Msg("version number taken, retrying")
		lastErr = err
	}
	return nil, lastErr
}

func (o *Orchestrator) render(ctx context.Context, source string, dialect domain.Dialect) RenderOutcome {
	start := time.Now()
	ref, err := o.renderer.Render(ctx, source, dialect)
	var out RenderOutcome
	if err != nil {
		out = Degraded(err)
	} else {
		out = Rendered(ref)
	}
	metrics.ObserveRender(string(dialect), !out.Degraded(), time.Since(start))
	return out
}

// releaseOrphan drops an image that was rendered but never attached to a version.
func (o *Orchestrator) releaseOrphan(ctx context.Context, outcome RenderOutcome) {
	url := outcome.ImageURL()
	if url == nil {
		return
	}
	err := o.renderer.Release(ctx, *url)
	metrics.ObserveRelease(err)
	if err != nil {
		o.log.Warn().Err(err).Str("artifact", *url).Msg("release orphaned artifact failed")
	}
}

// failProject records cause on the project and returns the project (now in
// ERROR) alongside cause.
func (o *Orchestrator) failProject(ctx context.Context, projectID string, cause error) (*domain.Project, error) {
	msg := cause.Error()
	if err := o.store.SetProjectStatus(ctx, projectID, domain.StatusError, &msg); err != nil {
		o.log.Error().Err(err).Str("project_id", projectID).Msg("mark project failed")
	}
	o.publishStatus(ctx, projectID, domain.StatusError, msg)

	p, err := o.store.GetProjectTree(ctx, projectID)
	if err != nil {
		return nil, errors.Join(cause, err)
	}
	return p, cause
}

func (o *Orchestrator) publishStatus(ctx context.Context, projectID string, status domain.ProjectStatus, msg string) {
	o.events.Publish(ctx, events.Event{
		Type:      events.TypeStatus,
		ProjectID: projectID,
		Status:    string(status),
		Message:   msg,
	})
}

// kindWarnings describes how the generated set differs from the requested one.
func kindWarnings(requested []domain.DiagramKind, generated []domain.GeneratedDiagram) []string {
	want := make(map[domain.DiagramKind]bool, len(requested))
	for _, k := range requested {
		want[k] = true
	}
	got := make(map[domain.DiagramKind]int, len(generated))
	for _, gd := range generated {
		got[gd.Kind]++
	}

	var missing, extra, dup []string
	for _, k := range requested {
		if got[k] == 0 {
			missing = append(missing, string(k))
		}
	}
	for k, n := range got {
		if !want[k] {
			extra = append(extra, string(k))
		}
		if n > 1 {
			dup = append(dup, string(k))
		}
	}
	sort.Strings(extra)
	sort.Strings(dup)

	var out []string
	if len(missing) > 0 {
		out = append(out, "generator did not return requested kinds: "+strings.Join(missing, ", "))
	}
	if len(extra) > 0 {
		out = append(out, "generator returned unrequested kinds: "+strings.Join(extra, ", "))
	}
	if len(dup) > 0 {
		out = append(out, "generator returned more than one diagram of kind: "+strings.Join(dup, ", "))
	}
	return out
}

func uniqueKinds(kinds []domain.DiagramKind) []domain.DiagramKind {
	seen := make(map[domain.DiagramKind]bool, len(kinds))
	out := make([]domain.DiagramKind, 0, len(kinds))
	for _, k := range kinds {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}

func defaultTitle(k domain.DiagramKind) string {
	words := strings.Split(strings.ToLower(string(k)), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ") + " Diagram"
}
