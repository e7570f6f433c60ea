package eventlog

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mbd888/pagewatch/internal/events"
	"github.com/mbd888/pagewatch/internal/logging"
	"github.com/mbd888/pagewatch/internal/metrics"
	"github.com/mbd888/pagewatch/internal/phishing"
	"github.com/mbd888/pagewatch/internal/realtime"
	"github.com/mbd888/pagewatch/internal/validation"
)

// Default page sizes for the list endpoints.
const (
	DefaultEventsLimit  = 100
	DefaultDomainsLimit = 50
)

// Publisher receives log activity for live streaming.
type Publisher interface {
	Publish(kind realtime.Kind, domain string, data any)
}

// Handler provides HTTP endpoints for the event and domain logs
type Handler struct {
	log    *Log
	lookup phishing.Lookup
	pub    Publisher
}

// NewHandler creates a new event log handler. lookup and pub may be nil.
func NewHandler(log *Log, lookup phishing.Lookup, pub Publisher) *Handler {
	return &Handler{log: log, lookup: lookup, pub: pub}
}

// RegisterRoutes sets up event log endpoints
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.POST("/events", h.StoreEvent)
	r.GET("/events", h.ListEvents)
	r.POST("/domains", h.StoreDomain)
	r.GET("/domains", h.ListDomains)
	r.GET("/summary", h.GetSummary)
}

// StoreEvent records a client-submitted event.
// POST /events
func (h *Handler) StoreEvent(c *gin.Context) {
	data, ok := validation.ReadBody(c)
	if !ok {
		return
	}
	e, err := DecodeStoredEvent(data)
	if err != nil {
		validation.Abort(c, events.AsValidation(err))
		return
	}

	h.log.PushEvent(e)
	logging.L(c.Request.Context()).Debug("event stored", "type", e.Type, "url", e.URL)
	h.publish(realtime.KindEventStored, validation.Hostname(e.URL), e)

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ListEvents returns the most recent events, newest first.
// GET /events?limit=N
func (h *Handler) ListEvents(c *gin.Context) {
	limit, verr := validation.QueryInt(c, "limit", DefaultEventsLimit)
	if verr != nil {
		validation.Abort(c, validation.ValidationErrors{*verr})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": h.log.Events(limit)})
}

// StoreDomain records the page's hostname and asks the phishing analyzer about
// the URL. Lookup failures are logged and otherwise ignored; a DANGER or
// CAUTION verdict is recorded as a phishing event.
// POST /domains
func (h *Handler) StoreDomain(c *gin.Context) {
	var req DomainRequest
	if !validation.DecodeJSON(c, &req) {
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		validation.Abort(c, errs)
		return
	}

	ctx := c.Request.Context()
	if d, ok := h.log.PushDomain(req.URL); ok {
		h.publish(realtime.KindDomainSeen, d.Domain, d)
	}

	if h.lookup != nil {
		verdict, err := h.lookup.Analyze(ctx, req.URL)
		switch {
		case err != nil:
			logging.L(ctx).Warn("domain lookup skipped", "url", req.URL, "error", err)
		case verdict.Status.Risky():
			e := PhishingEvent(req.URL, verdict, h.log.Now())
			h.log.PushEvent(e)
			metrics.PhishingEventsTotal.WithLabelValues(string(verdict.Status)).Inc()
			logging.L(ctx).Info("phishing verdict recorded", "url", req.URL, "status", verdict.Status)
			h.publish(realtime.KindPhishingDetected, validation.Hostname(req.URL), e)
		}
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ListDomains returns the most recently seen domains, newest first.
// GET /domains?limit=N
func (h *Handler) ListDomains(c *gin.Context) {
	limit, verr := validation.QueryInt(c, "limit", DefaultDomainsLimit)
	if verr != nil {
		validation.Abort(c, validation.ValidationErrors{*verr})
		return
	}
	c.JSON(http.StatusOK, gin.H{"domains": h.log.Domains(limit)})
}

// GetSummary summarizes the full event log.
// GET /summary
func (h *Handler) GetSummary(c *gin.Context) {
	eventCap, _ := h.log.Capacity()
	c.JSON(http.StatusOK, gin.H{"summary": BuildSummary(h.log.Events(eventCap))})
}

func (h *Handler) publish(kind realtime.Kind, domain string, data any) {
	if h.pub != nil {
		h.pub.Publish(kind, domain, data)
	}
}

// PhishingEvent builds the stored event recorded for a risky verdict. Its
// reasons are the analyzer's reports.
func PhishingEvent(pageURL string, v *phishing.Verdict, now time.Time) StoredEvent {
	var source any
	if v.DetectionSource != "" {
		source = v.DetectionSource
	}
	reasons := append([]string{}, v.Reports...)
	ok := true
	return StoredEvent{
		TS:   now,
		Type: events.TypePhishing,
		URL:  pageURL,
		Meta: map[string]any{
			"ai_status":        string(v.Status),
			"detection_source": source,
		},
		Reasons: reasons,
		OK:      &ok,
	}
}
