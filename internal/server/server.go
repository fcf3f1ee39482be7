// Package server provides the HTTP server for health checks and published
// GC reports.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/gc-sentinel/gc-sentinel/internal/config"
	"github.com/gc-sentinel/gc-sentinel/internal/event"
	"github.com/gc-sentinel/gc-sentinel/internal/model"
	"github.com/gc-sentinel/gc-sentinel/internal/store"
)

const (
	// DefaultEventLimit is the page size of the events endpoint.
	DefaultEventLimit = 500
	// MaxEventLimit caps the page size of the events endpoint.
	MaxEventLimit = 10000
)

// ReportSource exposes the latest published reports.
type ReportSource interface {
	Resources() []string
	Report(resource string) (*model.Report, bool)
	Reports() []*model.Report
	IsAnalyzing() bool
}

// History is the summary history store.
type History interface {
	Ping(ctx context.Context) error
	Recent(ctx context.Context, resource string, limit int) ([]store.Record, error)
}

// Server provides HTTP endpoints for health checks and reports.
type Server struct {
	cfg     *config.ServerConfig
	reports ReportSource
	history History
	logger  *slog.Logger
	app     *fiber.App

	mu      sync.Mutex
	started time.Time
	serving bool
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string    `json:"status"`
	Uptime    string    `json:"uptime,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Pending   []string  `json:"pending,omitempty"`
	Analyzing bool      `json:"analyzing,omitempty"`
	Database  *DBHealth `json:"database,omitempty"`
}

// DBHealth represents history store connectivity status.
type DBHealth struct {
	Connected bool   `json:"connected"`
	Latency   string `json:"latency,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ReportEntry is one resource in the report listing.
type ReportEntry struct {
	Index    int           `json:"index"`
	Resource string        `json:"resource"`
	Report   *model.Report `json:"report,omitempty"`
}

// EventView is the JSON form of one event.
type EventView struct {
	Line       int         `json:"line,omitempty"`
	Timestamp  *float64    `json:"timestamp,omitempty"`
	Date       *time.Time  `json:"date,omitempty"`
	Type       string      `json:"type"`
	Category   string      `json:"category,omitempty"`
	Generation string      `json:"generation"`
	Pause      float64     `json:"pause"`
	PreUsed    *int64      `json:"pre_used_kb,omitempty"`
	PostUsed   *int64      `json:"post_used_kb,omitempty"`
	Total      *int64      `json:"total_kb,omitempty"`
	Details    []EventView `json:"details,omitempty"`
}

// EventPage is one page of the events endpoint.
type EventPage struct {
	Resource string      `json:"resource"`
	Total    int         `json:"total"`
	Offset   int         `json:"offset"`
	Events   []EventView `json:"events"`
}

// New creates a new Server. history may be nil.
func New(cfg *config.ServerConfig, reports ReportSource, history History, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:     cfg,
		reports: reports,
		history: history,
		logger:  logger,
		started: time.Now(),
	}

	app := fiber.New(fiber.Config{
		AppName:               "gc-sentinel",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
	})
	app.Get("/healthz", s.handleHealth)
	app.Get("/readyz", s.handleReady)
	app.Get("/livez", s.handleLive)

	api := app.Group("/api")
	api.Get("/reports", s.handleReports)
	api.Get("/reports/:index", s.handleReport)
	api.Get("/reports/:index/events", s.handleEvents)
	api.Get("/history", s.handleHistory)

	s.app = app
	return s
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.serving {
		return nil
	}
	s.started = time.Now()
	s.serving = true

	addr := fmt.Sprintf(":%d", s.cfg.Port)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		if err := s.app.Listen(addr); err != nil {
			s.logger.Error("http server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.serving {
		return nil
	}
	s.serving = false
	return s.app.ShutdownWithContext(ctx)
}

// handleHealth handles /healthz endpoint (combined check).
func (s *Server) handleHealth(c *fiber.Ctx) error {
	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		Analyzing: s.reports.IsAnalyzing(),
	}

	// Perform deep check if enabled
	if s.cfg.DeepCheck && s.history != nil {
		dbHealth := s.checkDatabase(c.UserContext())
		response.Database = dbHealth
		if !dbHealth.Connected {
			response.Status = "degraded"
		}
	}

	statusCode := fiber.StatusOK
	if response.Status != "ok" {
		statusCode = fiber.StatusServiceUnavailable
	}
	return c.Status(statusCode).JSON(response)
}

// handleReady handles /readyz endpoint. Ready means every resource has a
// published report and the history store, if any, answers.
func (s *Server) handleReady(c *fiber.Ctx) error {
	var pending []string
	for _, r := range s.reports.Resources() {
		if _, ok := s.reports.Report(r); !ok {
			pending = append(pending, r)
		}
	}

	response := HealthResponse{
		Status:    "ready",
		Timestamp: time.Now(),
		Pending:   pending,
	}
	if s.history != nil {
		response.Database = s.checkDatabase(c.UserContext())
	}

	if len(pending) > 0 || (response.Database != nil && !response.Database.Connected) {
		response.Status = "not ready"
		return c.Status(fiber.StatusServiceUnavailable).JSON(response)
	}
	return c.JSON(response)
}

// handleLive handles /livez endpoint (liveness check).
func (s *Server) handleLive(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:    "alive",
		Timestamp: time.Now(),
		Uptime:    time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleReports(c *fiber.Ctx) error {
	resources := s.reports.Resources()
	entries := make([]ReportEntry, 0, len(resources))
	for i, r := range resources {
		rep, _ := s.reports.Report(r)
		entries = append(entries, ReportEntry{Index: i, Resource: r, Report: rep})
	}
	return c.JSON(entries)
}

func (s *Server) handleReport(c *fiber.Ctx) error {
	rep, err := s.reportAt(c)
	if err != nil {
		return err
	}
	return c.JSON(rep)
}

// handleEvents pages through the events of one report, optionally
// restricted to one category with ?category=young|full|concurrent.
func (s *Server) handleEvents(c *fiber.Ctx) error {
	rep, err := s.reportAt(c)
	if err != nil {
		return err
	}
	if rep.Model == nil {
		return fiber.NewError(fiber.StatusNotFound, "report has no events")
	}

	var events []*event.Event
	switch category := c.Query("category"); category {
	case "":
		events = make([]*event.Event, 0, rep.Model.Size())
		for e := range rep.Model.All() {
			events = append(events, e)
		}
	case "young":
		events = rep.Model.Young()
	case "full":
		events = rep.Model.Full()
	case "concurrent":
		events = rep.Model.Concurrent()
	default:
		return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("unknown category %q", category))
	}

	offset := c.QueryInt("offset", 0)
	limit := c.QueryInt("limit", DefaultEventLimit)
	if offset < 0 || limit <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "offset and limit must be positive")
	}
	limit = min(limit, MaxEventLimit)

	page := EventPage{Resource: rep.Resource, Total: len(events), Offset: offset, Events: []EventView{}}
	if offset < len(events) {
		end := min(offset+limit, len(events))
		for _, e := range events[offset:end] {
			page.Events = append(page.Events, viewOf(e, true))
		}
	}
	return c.JSON(page)
}

func (s *Server) handleHistory(c *fiber.Ctx) error {
	if s.history == nil {
		return fiber.NewError(fiber.StatusNotFound, "history store disabled")
	}
	resource := c.Query("resource")
	if resource == "" {
		return fiber.NewError(fiber.StatusBadRequest, "resource is required")
	}

	records, err := s.history.Recent(c.UserContext(), resource, c.QueryInt("limit", 100))
	if err != nil {
		s.logger.Error("querying history failed", "resource", resource, "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, "querying history failed")
	}
	if records == nil {
		records = []store.Record{}
	}
	return c.JSON(records)
}

// reportAt resolves the :index route parameter to a published report.
func (s *Server) reportAt(c *fiber.Ctx) (*model.Report, error) {
	index, err := c.ParamsInt("index")
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "index must be an integer")
	}
	resources := s.reports.Resources()
	if index < 0 || index >= len(resources) {
		return nil, fiber.NewError(fiber.StatusNotFound, fmt.Sprintf("no resource at index %d", index))
	}
	rep, ok := s.reports.Report(resources[index])
	if !ok {
		return nil, fiber.NewError(fiber.StatusNotFound, fmt.Sprintf("%s has not been parsed yet", resources[index]))
	}
	return rep, nil
}

// checkDatabase tests history store connectivity.
func (s *Server) checkDatabase(ctx context.Context) *DBHealth {
	health := &DBHealth{}

	start := time.Now()
	err := s.history.Ping(ctx)
	latency := time.Since(start)

	if err != nil {
		health.Connected = false
		health.Error = err.Error()
	} else {
		health.Connected = true
		health.Latency = latency.String()
	}

	return health
}

func viewOf(e *event.Event, top bool) EventView {
	v := EventView{
		Line:       e.Line,
		Type:       e.TypeName(),
		Generation: e.Generation().String(),
		Pause:      e.Pause,
	}
	if top {
		v.Category = model.Classify(e).String()
	}
	if e.HasTimestamp {
		ts := e.Timestamp
		v.Timestamp = &ts
	}
	if e.HasDate() {
		d := e.Date
		v.Date = &d
	}
	if e.HasMemory {
		pre, post, total := e.PreUsed, e.PostUsed, e.Total
		v.PreUsed, v.PostUsed, v.Total = &pre, &post, &total
	}
	for _, d := range e.Details {
		v.Details = append(v.Details, viewOf(d, false))
	}
	return v
}
