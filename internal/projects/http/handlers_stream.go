package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GoSim-25-26J-441/uml-studio-backend/internal/events"
	"github.com/GoSim-25-26J-441/uml-studio-backend/internal/projects/domain"
)

// streamProjectEvents streams generation progress for a project using Server-Sent Events (SSE)
func (h *Handler) streamProjectEvents(c *gin.Context) {
	projectID := c.Param("id")
	ctx := c.Request.Context()

	// Verify the project exists and the caller may see it
	p, err := h.projects.Get(ctx, projectID, h.uid(c))
	if err != nil {
		h.writeError(c, err)
		return
	}

	var (
		stream  <-chan events.Event
		closeFn func() error
	)
	if h.events != nil {
		stream, closeFn, err = h.events.Subscribe(ctx, projectID)
		if err != nil {
			h.log.Warn().Err(err).Str("project_id", projectID).Msg("subscribe failed, falling back to polling")
			stream = nil
		} else {
			defer func() { _ = closeFn() }()
		}
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "streaming unsupported"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // nginx: disable buffering
	c.Status(http.StatusOK)

	initial := gin.H{"project": p}
	if h.events != nil {
		if s, err := h.events.LastStatus(ctx, projectID); err == nil && s != "" {
			initial["last_status"] = s
		}
	}
	writeSSE(c, "initial", initial)
	flusher.Flush()

	keepAlive := time.NewTicker(h.keepAlive)
	defer keepAlive.Stop()

	if stream == nil {
		h.pollProject(c, flusher, p, keepAlive)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			fmt.Fprint(c.Writer, ": keep-alive\n\n")
			flusher.Flush()
		case ev, ok := <-stream:
			if !ok {
				return
			}
			writeSSE(c, string(ev.Type), ev)
			flusher.Flush()
			if ev.Type == events.TypeDeleted {
				return
			}
		}
	}
}

// pollProject is the stream used without a Pub/Sub backend: it re-reads the
// project and emits a status event whenever it changed.
func (h *Handler) pollProject(c *gin.Context, flusher http.Flusher, last *domain.Project, keepAlive *time.Ticker) {
	ctx := c.Request.Context()
	poll := time.NewTicker(h.pollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			fmt.Fprint(c.Writer, ": keep-alive\n\n")
			flusher.Flush()
		case <-poll.C:
			p, err := h.projects.Get(ctx, last.ID, h.uid(c))
			if errors.Is(err, domain.ErrNotFound) {
				writeSSE(c, string(events.TypeDeleted), events.Event{Type: events.TypeDeleted, ProjectID: last.ID, At: time.Now().UTC()})
				flusher.Flush()
				return
			}
			if err != nil {
				continue
			}
			if p.UpdatedAt.After(last.UpdatedAt) || p.Status != last.Status {
				last = p
				writeSSE(c, string(events.TypeStatus), gin.H{"project": p})
				flusher.Flush()
			}
		}
	}
}

func writeSSE(c *gin.Context, event string, payload any) {
	data, _ := json.Marshal(payload)
	fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, data)
}
