package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/isdmx/coderunner/config"
	"github.com/isdmx/coderunner/metrics"
	"github.com/isdmx/coderunner/sandbox"
	"github.com/isdmx/coderunner/workspace"
)

const readHeaderTimeout = 10 * time.Second

// ProjectStore is the workspace surface the API needs.
type ProjectStore interface {
	CreateProject(projectID, language string) error
	Tree(projectID string) ([]workspace.FileNode, error)
	ReadFile(projectID, relPath string) (string, error)
	SaveFile(projectID, relPath, content string) error
	CreateEntry(projectID, relPath, entryType string) error
	Archive(projectID string, extraExcludes ...string) ([]byte, error)
}

// Server is the IDE's REST API.
type Server struct {
	logger     *zap.Logger
	addr       string
	engine     *gin.Engine
	httpServer *http.Server
	store      ProjectStore
	executor   sandbox.Executor
	metrics    *metrics.Metrics
}

// New creates the REST server and registers its routes.
func New(cfg *config.Config, logger *zap.Logger, store ProjectStore, executor sandbox.Executor, m *metrics.Metrics) *Server {
	if cfg.Logging.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		logger:   logger,
		addr:     fmt.Sprintf(":%d", cfg.Server.APIPort),
		engine:   gin.New(),
		store:    store,
		executor: executor,
		metrics:  m,
	}

	s.engine.Use(gin.Recovery(), requestLogger(logger), CORSMiddleware(DefaultCORSConfig(cfg.Server.CORSAllowedOrigins)))
	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.handleHealth)
	if s.metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	api := s.engine.Group("/api")
	api.POST("/compile", s.handleCompile)

	projects := api.Group("/projects")
	projects.POST("/create", s.handleCreateProject)
	projects.GET("/:projectId/files", s.handleListFiles)
	projects.POST("/:projectId/files", s.handleCreateEntry)
	projects.GET("/:projectId/file-content", s.handleReadFile)
	projects.POST("/:projectId/save", s.handleSaveFile)
	projects.GET("/:projectId/archive", s.handleArchive)
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start binds the listen address and serves in the background.
func (s *Server) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.logger.Info("starting REST API", zap.String("addr", ln.Addr().String()))
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("REST API stopped", zap.Error(err))
		}
	}()
	return nil
}

// Stop waits for in-flight requests until ctx ends.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping REST API")
	return s.httpServer.Shutdown(ctx)
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)))
	}
}
