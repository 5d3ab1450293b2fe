package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/garyjia/expense-attest/internal/domain/entity"
)

const actorKey = "actor"

// authMiddleware builds the actor from the headers injected by the upstream
// authenticator. A missing identity or unknown role is rejected with 401.
func authMiddleware(identityHeader, roleHeader string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, err := entity.NewActor(c.GetHeader(identityHeader), c.GetHeader(roleHeader))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
				Success: false,
				Error:   err.Error(),
				Code:    entity.ErrorCode(err),
			})
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

// actorFrom returns the actor set by authMiddleware
func actorFrom(c *gin.Context) entity.Actor {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(entity.Actor); ok {
			return actor
		}
	}
	return entity.Actor{}
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(logger Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger.Info("HTTP request",
			"method", c.Request.Method,
			"path", path,
			"query", query,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		)
	}
}

// corsMiddleware adds CORS headers for the configured origins
func corsMiddleware(cfg ServerConfig) gin.HandlerFunc {
	allowAll := lo.Contains(cfg.AllowedOrigins, "*")
	allowHeaders := strings.Join([]string{"Content-Type", "Authorization", cfg.IdentityHeader, cfg.RoleHeader}, ", ")

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case allowAll:
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && lo.Contains(cfg.AllowedOrigins, origin):
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Add("Vary", "Origin")
		}
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", allowHeaders)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
