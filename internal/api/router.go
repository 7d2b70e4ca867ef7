// Package api exposes health, on-demand classification and cycle control over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Adda-Baaj/trendwatch/internal/domain"
	"github.com/Adda-Baaj/trendwatch/internal/logger"
	"github.com/Adda-Baaj/trendwatch/internal/pipeline"
	"github.com/Adda-Baaj/trendwatch/internal/relevance"
	"github.com/Adda-Baaj/trendwatch/internal/scheduler"
	"github.com/Adda-Baaj/trendwatch/pkg/providers"

	"github.com/gin-gonic/gin"
)

const maxClassifyArticles = 500

// Classifier scores articles without touching history.
type Classifier interface {
	Classify(ctx context.Context, articles []domain.Article) ([]relevance.Result, error)
	Providers() []providers.Provider
}

// Cycles starts and reports scrape cycles.
type Cycles interface {
	Trigger(ctx context.Context) (pipeline.Report, error)
	Status() scheduler.Status
}

type handlers struct {
	cls    Classifier
	cycles Cycles
	log    logger.Logger
}

// NewRouter constructs a Gin engine with registered routes.
func NewRouter(cls Classifier, cycles Cycles, log logger.Logger) *gin.Engine {
	h := &handlers{cls: cls, cycles: cycles, log: logger.Ensure(log)}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(h.log))

	r.GET("/healthz", handleHealth)

	v1 := r.Group("/api/v1")
	v1.POST("/classify", h.classify)
	v1.GET("/providers", h.providers)
	v1.GET("/cycles", h.cycleStatus)
	v1.POST("/cycles", h.triggerCycle)
	return r
}

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ClassifyRequest is the body of POST /api/v1/classify.
type ClassifyRequest struct {
	Articles []domain.Article `json:"articles" binding:"required"`
}

// ClassifyResponse lists the results in input order, duplicates and
// already alerted articles removed.
type ClassifyResponse struct {
	Results []relevance.Result `json:"results"`
}

func (h *handlers) classify(c *gin.Context) {
	var req ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Articles) > maxClassifyArticles {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "too many articles"})
		return
	}

	results, err := h.cls.Classify(c.Request.Context(), req.Articles)
	if err != nil {
		h.log.ErrorObj("classify request failed", "api_classify_error", map[string]any{"error": err})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "classification failed"})
		return
	}
	if results == nil {
		results = []relevance.Result{}
	}
	c.JSON(http.StatusOK, ClassifyResponse{Results: results})
}

func (h *handlers) providers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"providers": h.cls.Providers()})
}

func (h *handlers) cycleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.cycles.Status())
}

func (h *handlers) triggerCycle(c *gin.Context) {
	// the cycle outlives a disconnecting client
	rep, err := h.cycles.Trigger(context.WithoutCancel(c.Request.Context()))
	switch {
	case errors.Is(err, scheduler.ErrBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, scheduler.ErrStopped):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "report": rep})
	default:
		c.JSON(http.StatusOK, rep)
	}
}

func requestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.DebugObj("http request", "http_request", map[string]any{
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
		})
	}
}
