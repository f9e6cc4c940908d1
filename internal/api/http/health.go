package http

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Check is one dependency probed by the health endpoints.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

func PgxCheck(name string, pool *pgxpool.Pool) Check {
	return Check{Name: name, Ping: pool.Ping}
}

func SQLCheck(name string, db *sql.DB) Check {
	return Check{Name: name, Ping: db.PingContext}
}

func RedisCheck(client *redis.Client) Check {
	return Check{Name: "redis", Ping: func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}}
}

type HealthHandler struct {
	serviceName string
	version     string
	checks      []Check
	timeout     time.Duration
}

func NewHealthHandler(serviceName, version string, checks ...Check) *HealthHandler {
	return &HealthHandler{
		serviceName: serviceName,
		version:     version,
		checks:      checks,
		timeout:     time.Second,
	}
}

// HealthCheck is the liveness probe: it always answers 200 and reports
// dependency state for information.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	resp, _ := h.probe(c.Request.Context())
	c.JSON(http.StatusOK, resp)
}

// ReadyCheck answers 503 while any dependency is down.
func (h *HealthHandler) ReadyCheck(c *gin.Context) {
	resp, ok := h.probe(c.Request.Context())
	code := http.StatusOK
	if !ok {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, resp)
}

func (h *HealthHandler) probe(ctx context.Context) (HealthResponse, bool) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Service:   h.serviceName,
		Version:   h.version,
	}
	if len(h.checks) == 0 {
		return resp, true
	}

	resp.Checks = make(map[string]string, len(h.checks))
	ok := true
	for _, chk := range h.checks {
		pingCtx, cancel := context.WithTimeout(ctx, h.timeout)
		err := chk.Ping(pingCtx)
		cancel()
		if err != nil {
			resp.Checks[chk.Name] = "down"
			ok = false
		} else {
			resp.Checks[chk.Name] = "up"
		}
	}
	if !ok {
		resp.Status = "degraded"
	}
	return resp, ok
}

func (h *HealthHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", h.HealthCheck)
	r.GET("/healthz", h.ReadyCheck)
}
