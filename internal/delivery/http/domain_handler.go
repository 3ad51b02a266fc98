package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Harsh-BH/Intelligenter/internal/domain"
)

// Analyzer is the part of the orchestrator the HTTP layer depends on.
type Analyzer interface {
	Lookup(ctx context.Context, name string) (*domain.Result, error)
	StartAnalysis(ctx context.Context, name string) (*domain.Result, error)
	Status(ctx context.Context, name string) (*domain.Result, error)
}

type domainQuery struct {
	Domain string `form:"domain" binding:"required,fqdn,max=253"`
}

type domainRequest struct {
	Domain string `json:"domain" binding:"required,fqdn,max=253"`
}

// DomainHandler handles HTTP requests for domain lookups and analyses.
type DomainHandler struct {
	analyzer Analyzer
	logger   *zap.Logger
}

// NewDomainHandler creates a new DomainHandler.
func NewDomainHandler(analyzer Analyzer, logger *zap.Logger) *DomainHandler {
	return &DomainHandler{analyzer: analyzer, logger: logger}
}

// Get handles GET /api/v1/domains?domain=
func (h *DomainHandler) Get(c *gin.Context) {
	var q domainQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid domain: " + err.Error()})
		return
	}
	name := domain.NormalizeName(q.Domain)

	res, err := h.analyzer.Lookup(c.Request.Context(), name)
	if err != nil {
		h.fail(c, "Lookup failed", name, err)
		return
	}
	c.JSON(statusCode(res), res)
}

// Post handles POST /api/v1/domains
func (h *DomainHandler) Post(c *gin.Context) {
	var req domainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	name := domain.NormalizeName(req.Domain)

	res, err := h.analyzer.StartAnalysis(c.Request.Context(), name)
	if err != nil {
		h.fail(c, "Start analysis failed", name, err)
		return
	}
	c.JSON(statusCode(res), res)
}

func (h *DomainHandler) fail(c *gin.Context, msg, name string, err error) {
	h.logger.Error(msg, zap.String("domain", name), zap.Error(err))
	if domain.IsPersistenceError(err) || errors.Is(err, domain.ErrAnalysisUnavailable) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}

// statusCode maps a result shape to its HTTP status. An in-flight analysis
// is 202; final data and the failure message are both 200.
func statusCode(res *domain.Result) int {
	if res.Status == domain.ResultOnAnalysis {
		return http.StatusAccepted
	}
	return http.StatusOK
}
