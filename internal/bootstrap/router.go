package bootstrap

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpapi "github.com/GoSim-25-26J-441/uml-studio-backend/internal/api/http"
	"github.com/GoSim-25-26J-441/uml-studio-backend/internal/api/http/middleware"
	"github.com/GoSim-25-26J-441/uml-studio-backend/internal/auth"
	authmw "github.com/GoSim-25-26J-441/uml-studio-backend/internal/auth/middleware"
	projecthttp "github.com/GoSim-25-26J-441/uml-studio-backend/internal/projects/http"
	"github.com/GoSim-25-26J-441/uml-studio-backend/internal/users"
)

const serviceName = "uml-studio-backend"

// BuildRouter mounts health, metrics, uploads and the authenticated /api/v1 surface.
func BuildRouter(a *App) *gin.Engine {
	cfg := a.Config

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware(a.Log))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-User-Id", "X-Request-Id"},
		ExposeHeaders:    []string{"X-Request-Id", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	var checks []httpapi.Check
	if a.SQL != nil {
		checks = append(checks, httpapi.SQLCheck("postgres", a.SQL))
	}
	if a.Pool != nil {
		checks = append(checks, httpapi.PgxCheck("postgres_pool", a.Pool))
	}
	if a.Redis != nil {
		checks = append(checks, httpapi.RedisCheck(a.Redis))
	}
	httpapi.NewHealthHandler(serviceName, cfg.App.Version, checks...).RegisterRoutes(r)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if a.LocalUploads != nil {
		r.Static("/uploads", a.LocalUploads.Dir())
	}

	api := r.Group("/api/v1")
	if a.Verifier != nil {
		api.Use(authmw.FirebaseAuthMiddleware(a.Verifier))
	} else {
		api.Use(auth.DevUser())
	}
	if a.Users != nil {
		api.Use(auth.WithUser(a.Users, a.Log))
		users.NewHandler(a.Users, auth.UserFirebaseUID).Register(api)
	}

	var limit gin.HandlerFunc
	if cfg.Limits.GenerationsPerMinute > 0 {
		limit = middleware.NewUserRateLimiter(cfg.Limits.GenerationsPerMinute, cfg.Limits.GenerationBurst).
			Middleware(auth.UserFirebaseUID)
	}

	var sub projecthttp.Subscriber
	if a.Bus != nil {
		sub = a.Bus
	}
	var images projecthttp.ImagePaths
	if a.LocalUploads != nil {
		images = a.LocalUploads
	}
	projecthttp.New(projecthttp.Deps{
		Orchestrator: a.Orchestrator,
		Projects:     a.Projects,
		Versions:     a.Versions,
		Events:       sub,
		Images:       images,
		UID:          auth.UserFirebaseUID,
		Logger:       a.Log,
	}).Register(api, limit)

	return r
}
