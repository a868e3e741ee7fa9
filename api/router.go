package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"spinearn/metrics"
	"spinearn/service"
)

// RouterConfig holds what the router needs beyond the action handler
type RouterConfig struct {
	AllowedOrigins []string
	Debug          bool
	// HealthCheck reports whether storage is reachable; nil means always healthy
	HealthCheck func(ctx context.Context) error
}

// NewRouter builds the HTTP surface: the action endpoint, health and metrics
func NewRouter(handler *Handler, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(jsonRecovery(cfg.Debug))
	r.Use(requestLogger())
	r.Use(requestMetrics())
	r.Use(corsMiddleware(cfg.AllowedOrigins))

	r.GET("/healthz", healthz(cfg.HealthCheck))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/api", handler.Dispatch)
	r.GET("/api", handler.Dispatch)

	return r
}

func healthz(check func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if check != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				log.WithError(err).Warn("Health check failed")
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// jsonRecovery turns panics into the uniform failure body
func jsonRecovery(debug bool) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.WithFields(log.Fields{
			"path":  c.Request.URL.Path,
			"panic": recovered,
		}).Error("Recovered from panic in request handler")

		body := gin.H{
			"success": false,
			"message": service.GenericFailureMessage,
		}
		if debug {
			body["debug"] = recovered
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, body)
	})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log.WithFields(log.Fields{
			"method":    c.Request.Method,
			"path":      path,
			"status":    c.Writer.Status(),
			"latency":   time.Since(start).String(),
			"client_ip": c.ClientIP(),
		}).Debug("HTTP request")
	}
}

func requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPResponseTime.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	corsConfig := cors.DefaultConfig()
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		// Credentials cannot be combined with a wildcard origin
		corsConfig.AllowOriginFunc = func(string) bool { return true }
	} else {
		corsConfig.AllowOrigins = origins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"}
	corsConfig.AllowCredentials = true
	corsConfig.MaxAge = 12 * time.Hour
	return cors.New(corsConfig)
}
