package analysis

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mbd888/pagewatch/internal/events"
	"github.com/mbd888/pagewatch/internal/logging"
	"github.com/mbd888/pagewatch/internal/phishing"
	"github.com/mbd888/pagewatch/internal/validation"
)

// Handler provides HTTP endpoints for event analysis
type Handler struct {
	service *Service
}

// NewHandler creates a new analysis handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up analysis endpoints
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/schema", h.GetSchema)
	r.POST("/analyze/event", h.AnalyzeEvent)
	r.POST("/analyze/batch", h.AnalyzeBatch)
	r.POST("/analyze/url", h.AnalyzeURL)
}

// GetSchema describes the accepted event types, their meta shapes and examples.
// GET /schema
func (h *Handler) GetSchema(c *gin.Context) {
	c.JSON(http.StatusOK, events.Describe())
}

// AnalyzeEvent classifies a single event.
// POST /analyze/event
func (h *Handler) AnalyzeEvent(c *gin.Context) {
	data, ok := validation.ReadBody(c)
	if !ok {
		return
	}
	e, err := events.DecodeEvent(data)
	if err != nil {
		validation.Abort(c, events.AsValidation(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"reasons": h.service.ClassifyEvent(c.Request.Context(), e)})
}

// AnalyzeBatch summarizes a batch of events and attaches the page verdict.
// POST /analyze/batch
func (h *Handler) AnalyzeBatch(c *gin.Context) {
	data, ok := validation.ReadBody(c)
	if !ok {
		return
	}
	req, err := DecodeBatchRequest(data)
	if err != nil {
		validation.Abort(c, events.AsValidation(err))
		return
	}

	result, err := h.service.AnalyzeBatch(c.Request.Context(), req)
	if err != nil {
		abortLookupError(c, err)
		return
	}

	logging.L(c.Request.Context()).Info("batch analyzed",
		"url", req.URL,
		"events", result.Summary.TotalEvents,
		"status", result.Phishing.Status,
	)
	c.JSON(http.StatusOK, result)
}

// AnalyzeURL returns the phishing verdict for a page URL.
// POST /analyze/url
func (h *Handler) AnalyzeURL(c *gin.Context) {
	var req URLRequest
	if !validation.DecodeJSON(c, &req) {
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		validation.Abort(c, errs)
		return
	}

	verdict, err := h.service.AnalyzeURL(c.Request.Context(), req.URL)
	if err != nil {
		abortLookupError(c, err)
		return
	}
	c.JSON(http.StatusOK, verdict)
}

// abortLookupError maps a lookup failure to its HTTP response.
func abortLookupError(c *gin.Context, err error) {
	var lerr *phishing.Error
	if errors.As(err, &lerr) {
		body := gin.H{
			"error":   string(lerr.Code),
			"message": lerr.Message(),
		}
		if lerr.UpstreamStatus != 0 {
			body["upstream_status"] = lerr.UpstreamStatus
		}
		c.AbortWithStatusJSON(lerr.HTTPStatus(), body)
		return
	}

	logging.L(c.Request.Context()).Error("phishing lookup failed", "error", err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"error":   "internal_error",
		"message": "Internal server error",
	})
}
