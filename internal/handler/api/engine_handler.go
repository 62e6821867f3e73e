package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"MarginFlow/internal/antifragile"
	"MarginFlow/internal/domain/models"
	domrepo "MarginFlow/internal/domain/repository"
	"MarginFlow/internal/margin"
	"MarginFlow/internal/monitoring"
	"MarginFlow/internal/router"
	icache "MarginFlow/internal/service/cache"
	svcmetrics "MarginFlow/internal/service/metrics"
	"MarginFlow/internal/service/ratelimit"
	xhttp "MarginFlow/pkg/http"
	xlogger "MarginFlow/pkg/logger"
	"MarginFlow/pkg/util"

	"github.com/labstack/echo/v4"
)

// StressEventSource reads persisted stress events for the query endpoint.
type StressEventSource interface {
	QueryStressEvents(ctx context.Context, from, to time.Time, limit int) ([]*models.StressEvent, error)
}

// EngineHandler exposes the resilience engine over REST.
type EngineHandler struct {
	logger   *xlogger.Logger
	routing  *router.Router
	monitor  *monitoring.Monitor
	engine   *antifragile.Engine
	managers map[string]*margin.Manager
	order    []string
	events   StressEventSource

	rl        *ratelimit.Limiter
	cache     icache.BytesCache
	snapshots domrepo.SnapshotCache
}

// NewEngineHandler creates the handler over the router, managers, adaptation
// engine, and monitor.
func NewEngineHandler(l *xlogger.Logger, routing *router.Router, monitor *monitoring.Monitor, engine *antifragile.Engine, managers []*margin.Manager) *EngineHandler {
	svcmetrics.Register()
	h := &EngineHandler{
		logger:   l,
		routing:  routing,
		monitor:  monitor,
		engine:   engine,
		managers: make(map[string]*margin.Manager, len(managers)),
		rl:       ratelimit.New(),
		cache:    icache.NewTTLCache(),
	}
	for _, m := range managers {
		h.managers[m.Domain()] = m
		h.order = append(h.order, m.Domain())
	}
	return h
}

// SetCache swaps the response cache; the default is in-process TTL.
func (h *EngineHandler) SetCache(c icache.BytesCache) { h.cache = c }

// SetStressEventSource enables the persisted stress-event query endpoint.
func (h *EngineHandler) SetStressEventSource(src StressEventSource) { h.events = src }

// SetSnapshotCache enables the last-persisted-snapshot endpoint.
func (h *EngineHandler) SetSnapshotCache(sc domrepo.SnapshotCache) { h.snapshots = sc }

// RegisterRoutes implements http.Handler.
func (h *EngineHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/signals", h.IngestSignals)
	g.GET("/status", h.Status)
	g.GET("/status/:domain", h.DomainStatus)
	g.POST("/margin/:domain/allocate", h.Allocate)
	g.POST("/margin/:domain/deploy", h.Deploy)
	g.POST("/margin/:domain/recover", h.Recover)
	g.GET("/metrics/current", h.CurrentMetrics)
	g.GET("/metrics/last", h.LastPersistedMetrics)
	g.GET("/metrics/history", h.MetricsHistory)
	g.GET("/events/stress", h.StressEvents)
	g.GET("/alerts", h.Alerts)
	g.POST("/alerts/:id/ack", h.AcknowledgeAlert)
	g.POST("/alerts/:id/resolve", h.ResolveAlert)
}

// IngestSignals accepts a signal batch and routes it synchronously.
func (h *EngineHandler) IngestSignals(c echo.Context) error {
	start := time.Now()
	defer func() {
		svcmetrics.APILatency.WithLabelValues("signals").Observe(time.Since(start).Seconds())
	}()

	if !h.rl.Allow(c.RealIP()+":signals", 20, 10) {
		return xhttp.DataResponse(c, http.StatusTooManyRequests, "rate limited")
	}

	req := &models.IngestSignalsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		svcmetrics.APIErrors.WithLabelValues("signals").Inc()
		return xhttp.BadRequestResponse(c, verr)
	}

	result := h.routing.Route(c.Request().Context(), req.Signals)
	return xhttp.SuccessResponse(c, result)
}

// engineStatus is the composite /api/status payload.
type engineStatus struct {
	Domains     []models.DomainStatus    `json:"domains"`
	Antifragile models.AntifragileStatus `json:"antifragile"`
}

// Status returns the snapshot of every margin domain plus the adaptation
// engine. Cached briefly: status reads dominate traffic and tolerate
// staleness.
func (h *EngineHandler) Status(c echo.Context) error {
	const key = "status:all"
	if b, ok, _ := h.cache.GetBytes(key); ok {
		return c.JSONBlob(http.StatusOK, b)
	}

	out := engineStatus{Domains: make([]models.DomainStatus, 0, len(h.order))}
	for _, name := range h.order {
		out.Domains = append(out.Domains, h.managers[name].Status())
	}
	out.Antifragile = h.engine.Status()

	resp := xhttp.APIResponse{Status: http.StatusOK, Message: http.StatusText(http.StatusOK), Data: out}
	if b, err := json.Marshal(resp); err == nil {
		_ = h.cache.SetBytes(key, b, 2*time.Second)
	}
	return xhttp.SuccessResponse(c, out)
}

// DomainStatus returns one domain's snapshot.
func (h *EngineHandler) DomainStatus(c echo.Context) error {
	m, err := h.manager(c.Param("domain"))
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, m.Status())
}

// Allocate reserves margin in a domain.
func (h *EngineHandler) Allocate(c echo.Context) error {
	m, err := h.manager(c.Param("domain"))
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}

	req := &models.AllocateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	alloc, err := m.Allocate(req.OperationID, req.Amount, models.Severity(req.Priority), req.Reason)
	if err != nil {
		svcmetrics.APIErrors.WithLabelValues("allocate").Inc()
		h.logger.Warn("allocate failed", xlogger.String("domain", m.Domain()), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, mapDomainError(err))
	}
	return xhttp.CreatedResponse(c, alloc)
}

// Deploy consumes part of an allocation.
func (h *EngineHandler) Deploy(c echo.Context) error {
	m, err := h.manager(c.Param("domain"))
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}

	req := &models.DeployRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	dep, err := m.Deploy(req.AllocationID, req.Amount, req.Reason)
	if err != nil {
		svcmetrics.APIErrors.WithLabelValues("deploy").Inc()
		h.logger.Warn("deploy failed", xlogger.String("domain", m.Domain()), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, mapDomainError(err))
	}
	return xhttp.CreatedResponse(c, dep)
}

// Recover releases an allocation's remainder.
func (h *EngineHandler) Recover(c echo.Context) error {
	m, err := h.manager(c.Param("domain"))
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}

	req := &models.RecoverRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	recovered, err := m.Recover(req.AllocationID, req.Reason)
	if err != nil {
		svcmetrics.APIErrors.WithLabelValues("recover").Inc()
		h.logger.Warn("recover failed", xlogger.String("domain", m.Domain()), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, mapDomainError(err))
	}
	return xhttp.SuccessResponse(c, map[string]bool{"recovered": recovered})
}

// CurrentMetrics returns the latest resilience snapshot.
func (h *EngineHandler) CurrentMetrics(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.monitor.Current(c.Request().Context()))
}

// LastPersistedMetrics returns the newest snapshot that made it to durable
// storage, which may predate the monitor's in-memory view after a restart.
func (h *EngineHandler) LastPersistedMetrics(c echo.Context) error {
	if h.snapshots == nil {
		return xhttp.AppErrorResponse(c,
			xhttp.NewAppError("ERR_NO_SNAPSHOT_CACHE", "", "snapshot persistence is not configured", http.StatusNotImplemented))
	}
	m, err := h.snapshots.GetMetrics(c.Request().Context())
	if err != nil {
		return xhttp.AppErrorResponse(c, mapDomainError(err))
	}
	return xhttp.SuccessResponse(c, m)
}

// MetricsHistory returns recent snapshots, newest first.
func (h *EngineHandler) MetricsHistory(c echo.Context) error {
	req := &models.MetricsHistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rows := h.monitor.History(req.Limit)
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

// StressEvents returns persisted stress events in a time range, newest
// first. Unavailable without durable storage.
func (h *EngineHandler) StressEvents(c echo.Context) error {
	if h.events == nil {
		return xhttp.AppErrorResponse(c,
			xhttp.NewAppError("ERR_NO_EVENT_STORE", "", "stress event storage is not configured", http.StatusNotImplemented))
	}

	now := time.Now()
	from := xhttp.ParseTimeDefault(c.QueryParam("from"), now.Add(-24*time.Hour))
	to := xhttp.ParseTimeDefault(c.QueryParam("to"), now)
	limit := xhttp.ParseIntDefault(c.QueryParam("limit"), 100)
	if limit < 1 || limit > 1000 {
		return xhttp.BadRequestResponse(c, "limit must be between 1 and 1000")
	}
	from, to = util.AlignRange(from, to, time.Second)

	rows, err := h.events.QueryStressEvents(c.Request().Context(), from, to, limit)
	if err != nil {
		svcmetrics.APIErrors.WithLabelValues("stress_events").Inc()
		h.logger.Error("stress event query failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("stress event query failed"))
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

// Alerts returns active alerts, or the full book with ?all=true.
func (h *EngineHandler) Alerts(c echo.Context) error {
	req := &models.AlertsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	var rows []*models.MonitoringAlert
	if req.All {
		rows = h.monitor.AllAlerts(req.Limit)
	} else {
		rows = h.monitor.ActiveAlerts()
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

// AcknowledgeAlert transitions an alert to ACKNOWLEDGED.
func (h *EngineHandler) AcknowledgeAlert(c echo.Context) error {
	alert, err := h.monitor.AcknowledgeAlert(c.Param("id"))
	if err != nil {
		return xhttp.AppErrorResponse(c, mapDomainError(err))
	}
	return xhttp.SuccessResponse(c, alert)
}

// ResolveAlert transitions an alert to RESOLVED.
func (h *EngineHandler) ResolveAlert(c echo.Context) error {
	req := &models.ResolveAlertRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	alert, err := h.monitor.ResolveAlert(c.Param("id"), req.Resolution)
	if err != nil {
		return xhttp.AppErrorResponse(c, mapDomainError(err))
	}
	return xhttp.SuccessResponse(c, alert)
}

func (h *EngineHandler) manager(domain string) (*margin.Manager, error) {
	m, ok := h.managers[domain]
	if !ok {
		return nil, xhttp.NotFoundErrorf("unknown margin domain %q", domain)
	}
	return m, nil
}

// mapDomainError translates engine sentinel errors into HTTP app errors.
func mapDomainError(err error) error {
	switch {
	case errors.Is(err, models.ErrInvalidRequest):
		return xhttp.BadRequestError(err.Error())
	case errors.Is(err, models.ErrNotFound):
		return xhttp.NotFoundError(err.Error())
	case errors.Is(err, models.ErrInsufficientCapacity):
		return xhttp.NewAppError("ERR_INSUFFICIENT_CAPACITY", "", err.Error(), http.StatusConflict)
	case errors.Is(err, models.ErrOverDeployment):
		return xhttp.NewAppError("ERR_OVER_DEPLOYMENT", "", err.Error(), http.StatusConflict)
	case errors.Is(err, models.ErrAlreadyRecovered):
		return xhttp.NewAppError("ERR_ALREADY_RECOVERED", "", err.Error(), http.StatusConflict)
	case errors.Is(err, models.ErrDomainDisabled):
		return xhttp.NewAppError("ERR_DOMAIN_DISABLED", "", err.Error(), http.StatusServiceUnavailable)
	default:
		return xhttp.InternalError(err.Error())
	}
}

var _ xhttp.Handler = (*EngineHandler)(nil)
