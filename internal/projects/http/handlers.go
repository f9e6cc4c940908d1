package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/GoSim-25-26J-441/uml-studio-backend/internal/projects/domain"
	"github.com/GoSim-25-26J-441/uml-studio-backend/internal/projects/service"
)

func (h *Handler) createProject(c *gin.Context) {
	var req createProjectReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body: " + err.Error()})
		return
	}

	kinds := make([]domain.DiagramKind, 0, len(req.DiagramTypes))
	for _, raw := range req.DiagramTypes {
		k, ok := domain.ParseKind(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "unknown diagram type: " + raw})
			return
		}
		kinds = append(kinds, k)
	}
	dialect, ok := domain.ParseDialect(req.Dialect)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "unknown dialect: " + req.Dialect})
		return
	}

	p, err := h.orch.CreateProject(c.Request.Context(), service.CreateProjectInput{
		Title:    req.Title,
		Prompt:   req.Prompt,
		Kinds:    kinds,
		Dialect:  dialect,
		OwnerUID: h.uid(c),
	})
	if err != nil {
		if errors.Is(err, domain.ErrGenerationFailed) && p != nil {
			c.JSON(http.StatusBadGateway, gin.H{"ok": false, "error": err.Error(), "project": p})
			return
		}
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ok": true, "project": p})
}

func (h *Handler) listProjects(c *gin.Context) {
	items, err := h.projects.List(c.Request.Context(), h.uid(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "projects": items})
}

func (h *Handler) getProject(c *gin.Context) {
	p, err := h.projects.Get(c.Request.Context(), c.Param("id"), h.uid(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "project": p})
}

func (h *Handler) deleteProject(c *gin.Context) {
	if err := h.projects.Delete(c.Request.Context(), c.Param("id"), h.uid(c)); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) getDiagram(c *gin.Context) {
	d, err := h.versions.GetDiagram(c.Request.Context(), c.Param("id"), h.uid(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "diagram": d})
}

// getDiagramSource downloads the current version's source.
func (h *Handler) getDiagramSource(c *gin.Context) {
	d, err := h.versions.GetDiagram(c.Request.Context(), c.Param("id"), h.uid(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if d.CurrentVersion == nil {
		h.writeError(c, domain.NotFound("diagram_version", d.ID))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, sourceFilename(d)))
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(d.CurrentVersion.DSL))
}

// getDiagramImage serves the current version's image. Versions stored
// without an image (render failed) are 404.
func (h *Handler) getDiagramImage(c *gin.Context) {
	d, err := h.versions.GetDiagram(c.Request.Context(), c.Param("id"), h.uid(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if d.CurrentVersion == nil || d.CurrentVersion.ImageURL == nil {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "diagram image not found"})
		return
	}
	url := *d.CurrentVersion.ImageURL
	if h.images != nil {
		if path, err := h.images.Path(url); err == nil {
			c.File(path)
			return
		}
	}
	c.Redirect(http.StatusFound, url)
}

func sourceFilename(d *domain.Diagram) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '"', '/', '\\', '\r', '\n':
			return '_'
		}
		return r
	}, strings.TrimSpace(d.Title))
	if name == "" {
		name = d.ID
	}
	if d.Dialect == domain.DialectMermaid {
		return name + ".mmd"
	}
	return name + ".puml"
}

func (h *Handler) regenerateDiagram(c *gin.Context) {
	v, err := h.orch.RegenerateDiagram(c.Request.Context(), c.Param("id"), h.uid(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ok": true, "version": v})
}

func (h *Handler) listVersions(c *gin.Context) {
	items, err := h.versions.ListVersions(c.Request.Context(), c.Param("id"), h.uid(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "versions": items})
}

func (h *Handler) getVersion(c *gin.Context) {
	v, err := h.versions.GetVersion(c.Request.Context(), c.Param("id"), c.Param("version_id"), h.uid(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "version": v})
}

func (h *Handler) switchVersion(c *gin.Context) {
	var req switchVersionReq
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.VersionID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "version_id is required"})
		return
	}
	d, err := h.versions.SwitchVersion(c.Request.Context(), c.Param("id"), strings.TrimSpace(req.VersionID), h.uid(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "diagram": d})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrGenerationFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(c *gin.Context, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		msg = "internal error"
	}
	_ = c.Error(err)
	c.JSON(code, gin.H{"ok": false, "error": msg})
}
