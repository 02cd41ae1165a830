// Package render exposes the placeholder and source-selection pipeline
// over HTTP, so hosts without a websocket session can use it
// request/response style.
package render

import (
	"bytes"
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"storyview-server-go/internal/domain/placeholder"
	"storyview-server-go/internal/domain/srcset"
	"storyview-server-go/internal/platform/config"
	"storyview-server-go/internal/platform/errors"
	"storyview-server-go/internal/platform/logging"
	httptransport "storyview-server-go/internal/transport/http"
)

// Service serves the render endpoints.
type Service struct {
	logger    *logging.Logger
	config    *config.Config
	generator *placeholder.Generator
}

// NewService validates the wiring and builds the service.
func NewService(cfg *config.Config, generator *placeholder.Generator, logger *logging.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.Wrap(errors.KindConfig, "render.new", "config is required", nil)
	}
	if generator == nil {
		return nil, errors.Wrap(errors.KindConfig, "render.new", "placeholder generator is required", nil)
	}
	if logger == nil {
		return nil, errors.Wrap(errors.KindConfig, "render.new", "logger is required", nil)
	}
	return &Service{
		logger:    logger,
		config:    cfg,
		generator: generator,
	}, nil
}

// Register mounts the render routes on the API group.
func (s *Service) Register(ctx context.Context, router *gin.RouterGroup) error {
	router.POST("/render/placeholder", s.handlePlaceholder)
	router.POST("/srcset/select", s.handleSelect)

	s.logger.InfoTag("HTTP", "render routes registered")
	return nil
}

type placeholderRequest struct {
	Descriptor string `json:"descriptor" binding:"required"`
	Width      int    `json:"width" binding:"required"`
	Height     int    `json:"height" binding:"required"`
}

// handlePlaceholder paints and blurs a placeholder synchronously and
// returns it as PNG.
// @Summary Render a blurred mosaic placeholder
// @Tags Render
// @Accept json
// @Produce image/png
// @Router /render/placeholder [post]
func (s *Service) handlePlaceholder(c *gin.Context) {
	var req placeholderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	var buf bytes.Buffer
	if err := s.generator.RenderPNG(req.Descriptor, req.Width, req.Height, &buf); err != nil {
		if errors.IsKind(err, errors.KindPlaceholder) {
			httptransport.RespondError(c, http.StatusUnprocessableEntity, err.Error(), nil)
			return
		}
		s.logger.ErrorTag("HTTP", "placeholder render failed: %v", err)
		httptransport.RespondError(c, http.StatusInternalServerError, "render failed", nil)
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

type selectRequest struct {
	Declaration   string  `json:"declaration" binding:"required"`
	ViewportWidth int     `json:"viewport_width"`
	DPR           float64 `json:"dpr"`
}

type selectResponse struct {
	URL     string  `json:"url"`
	Mode    string  `json:"mode"`
	Width   int     `json:"width,omitempty"`
	Density float64 `json:"density,omitempty"`
}

// handleSelect parses a srcset declaration and returns the candidate
// for the given viewport.
// @Summary Select the best source for a viewport
// @Tags Render
// @Accept json
// @Produce json
// @Router /srcset/select [post]
func (s *Service) handleSelect(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if req.ViewportWidth < 0 || req.DPR < 0 {
		httptransport.RespondError(c, http.StatusBadRequest, "viewport_width and dpr must not be negative", nil)
		return
	}
	if req.ViewportWidth == 0 {
		req.ViewportWidth = s.config.Runtime.ViewportWidth
	}
	if req.DPR == 0 {
		req.DPR = s.config.Runtime.DPR
	}

	set, err := srcset.Parse(req.Declaration)
	if err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	cand, err := set.Select(req.ViewportWidth, req.DPR)
	if err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, selectResponse{
		URL:     cand.URL,
		Mode:    string(set.Mode()),
		Width:   cand.Width,
		Density: cand.Density,
	}, "")
}
