package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/metrics"
	"storefront-checkout/internal/service/checkout"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ctxKey string

const (
	projectCtxKey ctxKey = "project"
	sessionCtxKey ctxKey = "session"
)

func projectMiddleware(repo projectRepo) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.Param("projectKey"))
		if key == "" {
			abortError(c, http.StatusBadRequest, "INVALID_REQUEST", "project key required")
			return
		}
		p, err := repo.GetByKey(c.Request.Context(), key)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				abortError(c, http.StatusNotFound, "NOT_FOUND", "project not found")
				return
			}
			abortError(c, http.StatusInternalServerError, "UNKNOWN", "failed to load project")
			return
		}
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), projectCtxKey, p))
		c.Next()
	}
}

// sessionMiddleware resolves the bearer token, if any. A bad token is not
// rejected here; it is recorded so non-guest routes can refuse it.
func sessionMiddleware(sessions sessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var sess checkout.Session
		if token := bearerToken(c.GetHeader("Authorization")); token != "" {
			claims, err := sessions.Verify(projectFrom(c).ID, token)
			if err != nil {
				sess.Invalid = true
			} else {
				sess.CustomerID = claims.CustomerID()
				sess.AnonymousID = claims.AnonymousID
			}
		}
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), sessionCtxKey, sess))
		c.Next()
	}
}

func requireCustomer() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessionFrom(c)
		if sess.Invalid || sess.CustomerID == "" {
			abortError(c, http.StatusUnauthorized, string(checkout.CodeUnauthorized), "sign in required")
			return
		}
		c.Next()
	}
}

func requestLogger(logger *zap.Logger, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		switch {
		case status >= 500:
			logger.Error("http request", fields...)
		case status >= 400:
			logger.Info("http request", fields...)
		default:
			logger.Debug("http request", fields...)
		}
	}
}

func projectFrom(c *gin.Context) *domain.Project {
	p, _ := c.Request.Context().Value(projectCtxKey).(*domain.Project)
	if p == nil {
		return &domain.Project{}
	}
	return p
}

func sessionFrom(c *gin.Context) checkout.Session {
	s, _ := c.Request.Context().Value(sessionCtxKey).(checkout.Session)
	return s
}

func ownerFrom(c *gin.Context) domain.CartOwner {
	s := sessionFrom(c)
	return domain.CartOwner{CustomerID: s.CustomerID, AnonymousID: s.AnonymousID}
}

func bearerToken(header string) string {
	const prefix = "bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
