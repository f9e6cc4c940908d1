package http

import "github.com/gin-gonic/gin"

// Register attaches project and diagram routes to rg. limit, when non-nil,
// guards the endpoints that call the content generator.
func (h *Handler) Register(rg *gin.RouterGroup, limit gin.HandlerFunc) {
	guard := []gin.HandlerFunc{}
	if limit != nil {
		guard = append(guard, limit)
	}

	projects := rg.Group("/projects")
	projects.POST("", append(guard, h.createProject)...)
	projects.GET("", h.listProjects)
	projects.GET("/:id", h.getProject)
	projects.DELETE("/:id", h.deleteProject)
	projects.GET("/:id/events", h.streamProjectEvents)

	diagrams := rg.Group("/diagrams")
	diagrams.GET("/:id", h.getDiagram)
	diagrams.GET("/:id/source", h.getDiagramSource)
	diagrams.GET("/:id/image", h.getDiagramImage)
	diagrams.POST("/:id/regenerate", append(guard, h.regenerateDiagram)...)
	diagrams.GET("/:id/versions", h.listVersions)
	diagrams.GET("/:id/versions/:version_id", h.getVersion)
	diagrams.PUT("/:id/current-version", h.switchVersion)
}
