package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// GinSubjectKey is the gin context key holding the authenticated subject.
const GinSubjectKey = "auth.subject"

// MiddlewareConfig 配置身份认证中间件的行为。
type MiddlewareConfig struct {
	// RequiredPermissions 定义每个 HTTP 方法所需的权限列表，"*" 作为兜底。
	RequiredPermissions map[string][]string
	// AuditEvent 指定记录审计日志时使用的事件名称。
	AuditEvent string
}

// Middleware 返回处理认证与授权的 gin 中间件。服务未启用时直接放行。
func (s *Service) Middleware(cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.Enabled() {
			c.Next()
			return
		}
		r := c.Request
		subject, err := s.AuthenticateRequest(r.Header.Get("Authorization"))
		if err == nil {
			perms := cfg.RequiredPermissions[r.Method]
			if len(perms) == 0 {
				perms = cfg.RequiredPermissions["*"]
			}
			err = subject.Authorize(perms...)
		}
		if err != nil {
			status := http.StatusUnauthorized
			if errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrSubjectRevoked) {
				status = http.StatusForbidden
			}
			s.audit.Warn("access_denied",
				"path", r.URL.Path,
				"method", r.Method,
				"status", status,
				"error", err.Error(),
			)
			c.AbortWithStatusJSON(status, gin.H{"error": http.StatusText(status)})
			return
		}

		start := time.Now()
		c.Set(GinSubjectKey, subject)
		c.Request = r.WithContext(WithSubject(r.Context(), subject))
		c.Next()

		event := cfg.AuditEvent
		if event == "" {
			event = c.FullPath()
		}
		s.audit.Info("api_request",
			"event", event,
			"method", r.Method,
			"path", r.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"user", subject.ID,
		)
	}
}
