package http

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/GoSim-25-26J-441/uml-studio-backend/internal/events"
	"github.com/GoSim-25-26J-441/uml-studio-backend/internal/projects/service"
)

// Subscriber streams project events. Implemented by events.RedisBus.
type Subscriber interface {
	Subscribe(ctx context.Context, projectID string) (<-chan events.Event, func() error, error)
	LastStatus(ctx context.Context, projectID string) (string, error)
}

// ImagePaths resolves an image URL to a file. Implemented by renderer.LocalObjectStore.
type ImagePaths interface {
	Path(url string) (string, error)
}

// Deps bundles the dependencies for project and diagram endpoints.
type Deps struct {
	Orchestrator *service.Orchestrator
	Projects     *service.ProjectService
	Versions     *service.VersionManager
	// Events is optional; without it the event stream polls the store.
	Events Subscriber
	// Images, when set, serves locally stored images from disk instead of
	// redirecting to their URL.
	Images ImagePaths
	// UID extracts the caller's firebase uid.
	UID    func(*gin.Context) string
	Logger zerolog.Logger
}

// Handler serves the /projects and /diagrams endpoints.
type Handler struct {
	orch     *service.Orchestrator
	projects *service.ProjectService
	versions *service.VersionManager
	events   Subscriber
	images   ImagePaths
	uid      func(*gin.Context) string
	log      zerolog.Logger

	keepAlive    time.Duration
	pollInterval time.Duration
}

func New(deps Deps) *Handler {
	uid := deps.UID
	if uid == nil {
		uid = func(c *gin.Context) string { return c.GetString("firebase_uid") }
	}
	return &Handler{
		orch:         deps.Orchestrator,
		projects:     deps.Projects,
		versions:     deps.Versions,
		events:       deps.Events,
		images:       deps.Images,
		uid:          uid,
		log:          deps.Logger.With().Str("component", "projects_http").Logger(),
		keepAlive:    15 * time.Second,
		pollInterval: time.Second,
	}
}

type createProjectReq struct {
	Title        string   `json:"title" binding:"required"`
	Prompt       string   `json:"prompt" binding:"required"`
	DiagramTypes []string `json:"diagram_types" binding:"required,min=1"`
	Dialect      string   `json:"dialect"`
}

type switchVersionReq struct {
	VersionID string `json:"version_id" binding:"required"`
}
