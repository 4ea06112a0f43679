// Package server is the HTTP API of the release dashboard.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sathwikvintha/release-automation/internal/app/history"
	"github.com/sathwikvintha/release-automation/internal/app/logs"
	"github.com/sathwikvintha/release-automation/internal/app/runstep"
	"github.com/sathwikvintha/release-automation/internal/app/status"
	"github.com/sathwikvintha/release-automation/internal/log"
	"github.com/sathwikvintha/release-automation/internal/model"
	"github.com/sathwikvintha/release-automation/internal/step"
)

// StepRunner triggers steps.
type StepRunner interface {
	Run(ctx context.Context, req runstep.Request) (*runstep.Response, error)
}

// StatusGetter returns the pipeline status.
type StatusGetter interface {
	Run(ctx context.Context) (*status.Response, error)
}

// LogGetter returns step logs.
type LogGetter interface {
	Run(ctx context.Context, req logs.Request) (*logs.Response, error)
}

// HistoryLister lists step runs.
type HistoryLister interface {
	Run(ctx context.Context, req history.Request) ([]model.Run, error)
}

// Artifacts gives access to the pipeline files.
type Artifacts interface {
	ListJSONFiles(ctx context.Context) ([]string, error)
	ResolveDownload(ctx context.Context, filename string) (string, error)
}

// Config is the configuration of the API server.
type Config struct {
	RunStep   StepRunner
	Status    StatusGetter
	Logs      LogGetter
	History   HistoryLister
	Artifacts Artifacts
	// StaticDir is served under /static when set.
	StaticDir string
	// TemplatesDir holds the dashboard pages served at / and /staas when set.
	TemplatesDir string
	Logger       log.Logger
}

func (c *Config) defaults() error {
	if c.RunStep == nil {
		return fmt.Errorf("run step service is required")
	}

	if c.Status == nil {
		return fmt.Errorf("status service is required")
	}

	if c.Logs == nil {
		return fmt.Errorf("logs service is required")
	}

	if c.History == nil {
		return fmt.Errorf("history service is required")
	}

	if c.Artifacts == nil {
		return fmt.Errorf("artifacts service is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "server.Server"})

	return nil
}

// Server is the HTTP API server.
type Server struct {
	runStep   StepRunner
	status    StatusGetter
	logs      LogGetter
	history   HistoryLister
	artifacts    Artifacts
	staticDir    string
	templatesDir string
	logger       log.Logger
}

const (
	dashboardPage = "dashboard.html"
	staasPage     = "staas.html"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

// New returns a new API server.
func New(cfg Config) (*Server, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &Server{
		runStep:      cfg.RunStep,
		status:       cfg.Status,
		logs:         cfg.Logs,
		history:      cfg.History,
		artifacts:    cfg.Artifacts,
		staticDir:    cfg.StaticDir,
		templatesDir: cfg.TemplatesDir,
		logger:       cfg.Logger,
	}, nil
}

// Handler returns the HTTP router with every API endpoint.
func (s *Server) Handler() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.logRequests)

	// The dashboard may be served from a different origin.
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	})

	router.GET("/health", s.handleHealth)
	router.GET("/status", s.getStatus)
	router.POST("/run/:step", s.runStepHandler)
	router.GET("/logs/:step", s.getLogs)
	router.GET("/runs/:step", s.listRuns)
	router.GET("/json-files", s.listJSONFiles)
	router.GET("/download/:filename", s.download)

	if s.staticDir != "" {
		router.Static("/static", s.staticDir)
	}

	if s.templatesDir != "" {
		router.GET("/", s.page(dashboardPage))
		router.GET("/staas", s.page(staasPage))
	}

	return router
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()

	s.logger.WithValues(log.Kv{
		"method":   c.Request.Method,
		"path":     c.Request.URL.Path,
		"status":   c.Writer.Status(),
		"duration": time.Since(start).String(),
	}).Debugf("HTTP request handled")
}

// page serves an HTML page of the templates directory.
func (s *Server) page(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := filepath.Join(s.templatesDir, name)
		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() {
			s.writeError(c, fmt.Errorf("page %s: %w", name, model.ErrNotFound))
			return
		}

		c.Header("Content-Type", "text/html; charset=utf-8")
		c.File(p)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) writeError(c *gin.Context, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrNotValid):
		code = http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, model.ErrStepRunning):
		code = http.StatusConflict
	case errors.Is(err, step.ErrDispatcherClosed):
		code = http.StatusServiceUnavailable
	}

	if code == http.StatusInternalServerError {
		s.logger.Errorf("request %s %s failed: %s", c.Request.Method, c.Request.URL.Path, err)
	}

	c.JSON(code, ErrorResponse{
		Error:  err.Error(),
		Status: code,
	})
}
