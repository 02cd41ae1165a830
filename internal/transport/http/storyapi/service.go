// Package storyapi is the document management and dev-console API:
// story documents, element state, share links and system status.
package storyapi

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"storyview-server-go/internal/domain/events"
	"storyview-server-go/internal/domain/share"
	"storyview-server-go/internal/domain/story"
	"storyview-server-go/internal/platform/config"
	"storyview-server-go/internal/platform/errors"
	"storyview-server-go/internal/platform/logging"
	httptransport "storyview-server-go/internal/transport/http"
)

// Options wires the service. Share, Journal, CacheStats and WSCounts
// are optional; the matching endpoints degrade when absent.
type Options struct {
	Config     *config.Config
	Logger     *logging.Logger
	Registry   *story.Registry
	Share      *share.Service
	Journal    *events.Journal
	CacheStats func(ctx context.Context) (map[string]any, error)
	WSCounts   func() (clients int, sessions int)
}

// Service serves the story API routes.
type Service struct {
	opts      Options
	startedAt time.Time
}

// NewService validates the wiring and builds the service.
func NewService(opts Options) (*Service, error) {
	if opts.Config == nil {
		return nil, errors.Wrap(errors.KindConfig, "storyapi.new", "config is required", nil)
	}
	if opts.Logger == nil {
		return nil, errors.Wrap(errors.KindConfig, "storyapi.new", "logger is required", nil)
	}
	if opts.Registry == nil {
		return nil, errors.Wrap(errors.KindConfig, "storyapi.new", "document registry is required", nil)
	}
	return &Service{opts: opts, startedAt: time.Now()}, nil
}

// Register mounts the story API routes on the API group.
func (s *Service) Register(ctx context.Context, router *gin.RouterGroup) error {
	router.GET("/documents", s.handleDocumentsList)
	router.POST("/documents", s.handleDocumentsCreate)
	router.GET("/documents/:id", s.handleDocumentGet)
	router.DELETE("/documents/:id", s.handleDocumentDelete)
	router.GET("/documents/:id/elements/:el", s.handleElementGet)
	router.GET("/documents/:id/events", s.handleDocumentEvents)

	router.POST("/share", s.handleShareCreate)
	router.GET("/share/:token", s.handleShareResolve)
	router.DELETE("/share/:id", s.handleShareRevoke)

	router.GET("/system", s.handleSystemGet)

	s.opts.Logger.InfoTag("HTTP", "story API routes registered")
	return nil
}

// @Summary List story documents
// @Tags Story
// @Produce json
// @Router /documents [get]
func (s *Service) handleDocumentsList(c *gin.Context) {
	docs := s.opts.Registry.List()
	out := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		out = append(out, map[string]any{
			"id":         doc.ID(),
			"title":      doc.Title(),
			"created_at": doc.CreatedAt(),
			"elements":   len(doc.Elements()),
		})
	}
	httptransport.RespondSuccess(c, http.StatusOK, out, "")
}

type createDocumentRequest struct {
	Title string `json:"title" binding:"required"`
}

// @Summary Create a story document
// @Tags Story
// @Accept json
// @Produce json
// @Router /documents [post]
func (s *Service) handleDocumentsCreate(c *gin.Context) {
	var req createDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	doc, err := s.opts.Registry.Create(c.Request.Context(), req.Title)
	if err != nil {
		s.opts.Logger.ErrorTag("HTTP", "document create failed: %v", err)
		httptransport.RespondError(c, http.StatusInternalServerError, "document create failed", nil)
		return
	}
	httptransport.RespondSuccess(c, http.StatusCreated, doc.Describe(), "")
}

func (s *Service) handleDocumentGet(c *gin.Context) {
	doc, ok := s.opts.Registry.Get(c.Param("id"))
	if !ok {
		httptransport.RespondError(c, http.StatusNotFound, "document not found", nil)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, doc.Describe(), "")
}

func (s *Service) handleDocumentDelete(c *gin.Context) {
	if err := s.opts.Registry.Remove(c.Request.Context(), c.Param("id")); err != nil {
		if errors.IsKind(err, errors.KindConfig) {
			httptransport.RespondError(c, http.StatusNotFound, "document not found", nil)
			return
		}
		s.opts.Logger.ErrorTag("HTTP", "document delete failed: %v", err)
		httptransport.RespondError(c, http.StatusInternalServerError, "document delete failed", nil)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, nil, "deleted")
}

func (s *Service) handleElementGet(c *gin.Context) {
	el, ok := s.opts.Registry.Element(c.Param("id"), c.Param("el"))
	if !ok {
		httptransport.RespondError(c, http.StatusNotFound, "element not found", nil)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, el.Describe(), "")
}

// handleDocumentEvents replays the journaled lifecycle events of one
// document for the dev console.
func (s *Service) handleDocumentEvents(c *gin.Context) {
	if s.opts.Journal == nil {
		httptransport.RespondError(c, http.StatusNotImplemented, "event journal disabled", nil)
		return
	}
	rows, err := s.opts.Journal.ByDocument(c.Request.Context(), c.Param("id"), 500)
	if err != nil {
		s.opts.Logger.ErrorTag("HTTP", "journal read failed: %v", err)
		httptransport.RespondError(c, http.StatusInternalServerError, "journal read failed", nil)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, rows, "")
}

type shareCreateRequest struct {
	DocumentID string `json:"document_id" binding:"required"`
}

// @Summary Issue a share link for a document
// @Tags Share
// @Accept json
// @Produce json
// @Router /share [post]
func (s *Service) handleShareCreate(c *gin.Context) {
	if s.opts.Share == nil {
		httptransport.RespondError(c, http.StatusNotImplemented, "sharing disabled", nil)
		return
	}
	var req shareCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if _, ok := s.opts.Registry.Get(req.DocumentID); !ok {
		httptransport.RespondError(c, http.StatusNotFound, "document not found", nil)
		return
	}
	link, err := s.opts.Share.Create(req.DocumentID)
	if err != nil {
		s.opts.Logger.ErrorTag("HTTP", "share create failed: %v", err)
		httptransport.RespondError(c, http.StatusInternalServerError, "share create failed", nil)
		return
	}
	httptransport.RespondSuccess(c, http.StatusCreated, link, "")
}

func (s *Service) handleShareResolve(c *gin.Context) {
	if s.opts.Share == nil {
		httptransport.RespondError(c, http.StatusNotImplemented, "sharing disabled", nil)
		return
	}
	docID, err := s.opts.Share.Resolve(c.Param("token"))
	if err != nil {
		httptransport.RespondError(c, http.StatusUnauthorized, "share link rejected", nil)
		return
	}
	doc, ok := s.opts.Registry.Get(docID)
	if !ok {
		httptransport.RespondError(c, http.StatusNotFound, "document no longer exists", nil)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, doc.Describe(), "")
}

func (s *Service) handleShareRevoke(c *gin.Context) {
	if s.opts.Share == nil {
		httptransport.RespondError(c, http.StatusNotImplemented, "sharing disabled", nil)
		return
	}
	if err := s.opts.Share.Revoke(c.Param("id")); err != nil {
		if errors.IsKind(err, errors.KindTransport) {
			httptransport.RespondError(c, http.StatusNotFound, "unknown share link", nil)
			return
		}
		s.opts.Logger.ErrorTag("HTTP", "share revoke failed: %v", err)
		httptransport.RespondError(c, http.StatusInternalServerError, "share revoke failed", nil)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, nil, "revoked")
}

// handleSystemGet reports process and machine health for the dev
// console.
// @Summary System status
// @Tags System
// @Produce json
// @Router /system [get]
func (s *Service) handleSystemGet(c *gin.Context) {
	status := map[string]any{
		"uptime_s":   int64(time.Since(s.startedAt).Seconds()),
		"goroutines": runtime.NumGoroutine(),
		"documents":  len(s.opts.Registry.List()),
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		status["cpu_percent"] = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		status["mem_used_percent"] = vm.UsedPercent
		status["mem_total"] = vm.Total
	}
	if up, err := host.Uptime(); err == nil {
		status["host_uptime_s"] = up
	}
	if s.opts.CacheStats != nil {
		if stats, err := s.opts.CacheStats(c.Request.Context()); err == nil {
			status["cache"] = stats
		}
	}
	if s.opts.WSCounts != nil {
		clients, sessions := s.opts.WSCounts()
		status["ws_clients"] = clients
		status["ws_sessions"] = sessions
	}

	httptransport.RespondSuccess(c, http.StatusOK, status, "")
}
