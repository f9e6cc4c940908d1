package bootstrap

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// SetGinMode selects gin's mode for env and sends route registration
// output to log at debug level instead of stdout.
func SetGinMode(env string, log zerolog.Logger) {
	switch env {
	case "production":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}
	gin.DebugPrintRouteFunc = func(method, path, handler string, handlers int) {
		log.Debug().Str("method", method).Str("path", path).Str("handler", handler).
			Int("handlers", handlers).Msg("route registered")
	}
}
