package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ForesightX/internal/agent"
	"ForesightX/internal/auth"
	"ForesightX/internal/character"
	"ForesightX/internal/events"
	"ForesightX/internal/observability/metrics"
	"ForesightX/internal/storage/ledger"
	"ForesightX/internal/task"
	"ForesightX/pkg/logger"
)

const (
	defaultWaitTimeout  = 60 * time.Second
	maxWaitTimeout      = 5 * time.Minute
	defaultWaitInterval = 200 * time.Millisecond
)

// Catalogue 提供人设与已注册动作的只读视图，通常由 agent.Agent 实现。
type Catalogue interface {
	Character() *character.Character
	Actions() []agent.Action
}

// Server 负责暴露 REST 接口，供外部提交消息并查询处理结果。
type Server struct {
	addr            string
	tasks           *task.Service
	catalogue       Catalogue
	ledger          ledger.Repository
	hub             *events.Hub
	metrics         *metrics.Registry
	auth            *auth.Service
	shutdownTimeout time.Duration
	waitTimeout     time.Duration
	waitInterval    time.Duration
	log             *slog.Logger

	engine *gin.Engine
}

// Option 配置 Server。
type Option func(*Server)

// WithLedger 启用交易与市场查询接口。
func WithLedger(repo ledger.Repository) Option {
	return func(s *Server) { s.ledger = repo }
}

// WithHub 启用 /ws 事件流，并在提交消息时广播任务事件。
func WithHub(hub *events.Hub) Option {
	return func(s *Server) { s.hub = hub }
}

// WithMetrics 启用 /metrics 与请求指标中间件。
func WithMetrics(registry *metrics.Registry) Option {
	return func(s *Server) { s.metrics = registry }
}

// WithAuth 为 /api/v1 下的接口启用 JWT 校验。
func WithAuth(svc *auth.Service) Option {
	return func(s *Server) { s.auth = svc }
}

// WithShutdownTimeout 设置优雅关闭的最长等待时间。
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		if timeout > 0 {
			s.shutdownTimeout = timeout
		}
	}
}

// WithWaitTimeout 设置 ?wait=true 时的默认等待时间。
func WithWaitTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		if timeout > 0 {
			s.waitTimeout = timeout
		}
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, tasks *task.Service, catalogue Catalogue, opts ...Option) *Server {
	s := &Server{
		addr:            addr,
		tasks:           tasks,
		catalogue:       catalogue,
		shutdownTimeout: 5 * time.Second,
		waitTimeout:     defaultWaitTimeout,
		waitInterval:    defaultWaitInterval,
		log:             logger.Named("api"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.engine = s.routes()
	return s
}

// Handler 返回完整的路由，便于测试或挂载到其他服务器。
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	if s.metrics != nil {
		r.Use(s.metrics.Middleware())
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
	r.GET("/healthz", s.handleHealth)
	if s.hub != nil {
		r.GET("/ws", gin.WrapH(s.hub))
	}

	v1 := r.Group("/api/v1")
	if s.auth != nil {
		v1.Use(s.auth.Middleware(auth.MiddlewareConfig{RequiredPermissions: map[string][]string{
			http.MethodPost: {auth.PermMessagesWrite},
			"*":             {auth.PermTasksRead},
		}}))
	}
	{
		v1.POST("/messages", s.handleSubmitMessage)
		v1.GET("/tasks", s.handleListTasks)
		v1.GET("/tasks/stats", s.handleTaskStats)
		v1.GET("/tasks/:id", s.handleTaskDetail)
		v1.GET("/character", s.handleCharacter)
		v1.GET("/actions", s.handleActions)
		v1.GET("/transactions", s.handleListTransactions)
		v1.GET("/transactions/:hash", s.handleTransactionDetail)
		v1.GET("/markets/*slug", s.handleMarket)
	}
	return r
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("api server listening", "addr", s.addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// requestLogger 以 debug 级别记录每个请求。
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	body := gin.H{"status": "ok"}
	if s.hub != nil {
		body["ws_clients"] = s.hub.ClientCount()
	}
	c.JSON(http.StatusOK, body)
}
