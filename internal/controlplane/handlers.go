// Package controlplane implements the admin HTTP API: every mutating and
// read-only operation an operator can perform against a running resolver.
// Each configuration-changing route records an audit entry on success;
// read-only routes and POST /login do not.
//
// @title dnsden Control Plane API
// @version 1.0
// @description Admin HTTP API for the dnsden caching ad-blocking DNS forwarder.
//
// @license.name MIT
//
// @host localhost:8181
// @BasePath /api/v1
//
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
package controlplane

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jroosing/dnsden/internal/auditlog"
	"github.com/jroosing/dnsden/internal/cachelayer"
	"github.com/jroosing/dnsden/internal/configstore"
	"github.com/jroosing/dnsden/internal/credentials"
	"github.com/jroosing/dnsden/internal/helpers"
	"github.com/jroosing/dnsden/internal/resolvercore"
)

// maxAuditLimit bounds how many rows GET /audit can return in one call,
// regardless of what the caller passes in ?limit.
const maxAuditLimit = 1000

// Restarter is the collaborator surface ProcessBootstrap provides so
// POST /restart can trigger a graceful re-exec without this package
// knowing anything about process lifecycle.
type Restarter interface {
	Restart() error
}

// Handler holds every dependency a route needs.
type Handler struct {
	Core      *resolvercore.Context
	Configs   *configstore.Store
	Audit     *auditlog.DB
	Logger    *slog.Logger
	Restarter Restarter

	startTime time.Time
}

// newHandler constructs a Handler. Restarter may be nil, in which case
// POST /restart reports 503.
func newHandler(core *resolvercore.Context, configs *configstore.Store, audit *auditlog.DB, logger *slog.Logger, restarter Restarter) *Handler {
	return &Handler{Core: core, Configs: configs, Audit: audit, Logger: logger, Restarter: restarter, startTime: time.Now()}
}

// audit records a successful mutation. A write failure is logged at warn
// and never fails the triggering request — the audit trail is best-effort.
func (h *Handler) audit(actor, action, target, detail string) {
	if h.Audit == nil {
		return
	}
	if err := h.Audit.Append(time.Now(), actor, action, target, detail); err != nil && h.Logger != nil {
		h.Logger.Warn("controlplane: audit append failed", "action", action, "target", target, "error", err)
	}
}

func actorFromRequest(c *gin.Context) string {
	if v := c.GetHeader("X-Actor"); v != "" {
		return v
	}
	return c.ClientIP()
}

// EnableAdCache godoc
// @Summary Enable the ad-blocking cache
// @Tags adcache
// @Produce json
// @Success 200 {object} StatusResponse
// @Security ApiKeyAuth
// @Router /adcache/enable [post]
func (h *Handler) EnableAdCache(c *gin.Context) {
	h.Core.SetAdCacheEnabled(true)
	h.audit(actorFromRequest(c), "adcache.enable", "adcache", "")
	c.JSON(http.StatusOK, StatusResponse{Status: "ok"})
}

// DisableAdCache godoc
// @Summary Disable the ad-blocking cache
// @Tags adcache
// @Produce json
// @Success 200 {object} StatusResponse
// @Security ApiKeyAuth
// @Router /adcache/disable [post]
func (h *Handler) DisableAdCache(c *gin.Context) {
	h.Core.SetAdCacheEnabled(false)
	h.audit(actorFromRequest(c), "adcache.disable", "adcache", "")
	c.JSON(http.StatusOK, StatusResponse{Status: "ok"})
}

// GetUpstreamDNS godoc
// @Summary Get the current upstream resolver
// @Tags upstream
// @Produce json
// @Success 200 {object} UpstreamResponse
// @Security ApiKeyAuth
// @Router /upstream [get]
func (h *Handler) GetUpstreamDNS(c *gin.Context) {
	c.JSON(http.StatusOK, UpstreamResponse{UpstreamIP: h.Core.UpstreamIP()})
}

// SetUpstreamDNS godoc
// @Summary Set the upstream resolver
// @Tags upstream
// @Accept json
// @Produce json
// @Param body body SetUpstreamRequest true "New upstream IP"
// @Success 200 {object} StatusResponse
// @Failure 400 {object} ErrorResponse
// @Security ApiKeyAuth
// @Router /upstream [put]
func (h *Handler) SetUpstreamDNS(c *gin.Context) {
	var req SetUpstreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	h.Core.SetUpstreamIP(req.UpstreamIP)
	if h.Configs != nil {
		if err := h.Configs.SetUpstreamIP(req.UpstreamIP); err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
			return
		}
	}

	h.audit(actorFromRequest(c), "upstream.set", req.UpstreamIP, "")
	c.JSON(http.StatusOK, StatusResponse{Status: "ok"})
}

// AddLocalDomain godoc
// @Summary Add a local DNS override
// @Tags local
// @Accept json
// @Produce json
// @Param body body LocalDomainRequest true "Override to add"
// @Success 200 {object} StatusResponse
// @Failure 400 {object} ErrorResponse
// @Security ApiKeyAuth
// @Router /local [post]
func (h *Handler) AddLocalDomain(c *gin.Context) {
	var req LocalDomainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if h.Configs == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "configuration store not available"})
		return
	}

	if err := h.Configs.AddLocalEntry(req.IP, req.Domain, req.Name); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	if err := h.Core.Cache.ReloadLocalOverrides(h.Configs); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	h.audit(actorFromRequest(c), "local.add", req.Domain, req.IP)
	c.JSON(http.StatusOK, StatusResponse{Status: "ok"})
}

// RemoveLocalDomain godoc
// @Summary Remove a local DNS override
// @Tags local
// @Produce json
// @Param url path string true "Domain to remove"
// @Success 200 {object} StatusResponse
// @Failure 404 {object} ErrorResponse
// @Security ApiKeyAuth
// @Router /local/{url} [delete]
func (h *Handler) RemoveLocalDomain(c *gin.Context) {
	url := c.Param("url")
	if h.Configs == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "configuration store not available"})
		return
	}

	removed, err := h.Configs.RemoveLocalEntry(url)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no such local override"})
		return
	}
	h.Core.Cache.RemovePositive(url)

	h.audit(actorFromRequest(c), "local.remove", url, "")
	c.JSON(http.StatusOK, StatusResponse{Status: "ok"})
}

// AddAdlist godoc
// @Summary Add a blocklist URL
// @Tags adlists
// @Accept json
// @Produce json
// @Param body body AdlistRequest true "Blocklist URL"
// @Success 200 {object} StatusResponse
// @Failure 400 {object} ErrorResponse
// @Security ApiKeyAuth
// @Router /adlists [post]
func (h *Handler) AddAdlist(c *gin.Context) {
	var req AdlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if h.Configs == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "configuration store not available"})
		return
	}

	if err := h.Configs.AddAdlist(req.URL); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	h.audit(actorFromRequest(c), "adlist.add", req.URL, "")
	c.JSON(http.StatusOK, StatusResponse{Status: "ok"})
}

// RemoveAdlist godoc
// @Summary Remove a blocklist URL
// @Tags adlists
// @Produce json
// @Param url path string true "Blocklist URL"
// @Success 200 {object} StatusResponse
// @Failure 404 {object} ErrorResponse
// @Security ApiKeyAuth
// @Router /adlists/{url} [delete]
func (h *Handler) RemoveAdlist(c *gin.Context) {
	url := c.Param("url")
	if h.Configs == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "configuration store not available"})
		return
	}

	found, err := h.Configs.RemoveAdlist(url)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no such adlist"})
		return
	}

	h.audit(actorFromRequest(c), "adlist.remove", url, "")
	c.JSON(http.StatusOK, StatusResponse{Status: "ok"})
}

// EnableAdlist godoc
// @Summary Enable a blocklist
// @Tags adlists
// @Produce json
// @Param url path string true "Blocklist URL"
// @Success 200 {object} StatusResponse
// @Failure 404 {object} ErrorResponse
// @Security ApiKeyAuth
// @Router /adlists/{url}/enable [post]
func (h *Handler) EnableAdlist(c *gin.Context) {
	h.setAdlistEnabled(c, true)
}

// DisableAdlist godoc
// @Summary Disable a blocklist
// @Tags adlists
// @Produce json
// @Param url path string true "Blocklist URL"
// @Success 200 {object} StatusResponse
// @Failure 404 {object} ErrorResponse
// @Security ApiKeyAuth
// @Router /adlists/{url}/disable [post]
func (h *Handler) DisableAdlist(c *gin.Context) {
	h.setAdlistEnabled(c, false)
}

func (h *Handler) setAdlistEnabled(c *gin.Context, enabled bool) {
	url := c.Param("url")
	if h.Configs == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "configuration store not available"})
		return
	}

	var found bool
	var err error
	action := "adlist.disable"
	if enabled {
		found, err = h.Configs.EnableAdlist(url)
		action = "adlist.enable"
	} else {
		found, err = h.Configs.DisableAdlist(url)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no such adlist"})
		return
	}

	h.audit(actorFromRequest(c), action, url, "")
	c.JSON(http.StatusOK, StatusResponse{Status: "ok"})
}

// ReloadAdlists godoc
// @Summary Reload every enabled blocklist from disk
// @Tags adlists
// @Produce json
// @Success 200 {object} StatusResponse
// @Failure 503 {object} ErrorResponse
// @Security ApiKeyAuth
// @Router /adlists/reload [post]
func (h *Handler) ReloadAdlists(c *gin.Context) {
	if h.Configs == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "configuration store not available"})
		return
	}

	h.Core.Cache.WipeBlocklist()
	if err := h.Core.Cache.LoadBlocklists(h.Configs); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	h.audit(actorFromRequest(c), "adlist.reload", "all", "")
	c.JSON(http.StatusOK, StatusResponse{Status: "ok"})
}

// SetNumThreads godoc
// @Summary Persist the worker thread count
// @Description Takes effect after the next restart.
// @Tags threads
// @Accept json
// @Produce json
// @Param body body ThreadsRequest true "Thread count"
// @Success 200 {object} StatusResponse
// @Failure 400 {object} ErrorResponse
// @Security ApiKeyAuth
// @Router /threads [put]
func (h *Handler) SetNumThreads(c *gin.Context) {
	var req ThreadsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if req.Threads <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "threads must be positive"})
		return
	}
	if h.Configs == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "configuration store not available"})
		return
	}

	if err := h.Configs.SetThreads(req.Threads); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	h.audit(actorFromRequest(c), "threads.set", "threads", "")
	c.JSON(http.StatusOK, StatusResponse{Status: "ok"})
}

// NumQueries godoc
// @Summary Query-processing counters
// @Tags stats
// @Produce json
// @Success 200 {object} QueryStatsResponse
// @Security ApiKeyAuth
// @Router /stats/queries [get]
func (h *Handler) NumQueries(c *gin.Context) {
	snap := h.Core.Counters.Snapshot()
	c.JSON(http.StatusOK, QueryStatsResponse{
		ProcessedQueries: snap.ProcessedQueries,
		BlockedQueries:   snap.BlockedQueries,
		CacheHits:        snap.CacheHits,
		QueueDepth:       snap.QueueDepth,
	})
}

// DomainsInAdlist godoc
// @Summary Blocklist domain counts
// @Tags stats
// @Produce json
// @Success 200 {object} AdlistStatsResponse
// @Security ApiKeyAuth
// @Router /stats/adlist [get]
func (h *Handler) DomainsInAdlist(c *gin.Context) {
	c.JSON(http.StatusOK, AdlistStatsResponse{
		DomainsInAdlist: h.Core.Cache.BlocklistDomains(),
		PositiveCache:   h.Core.Cache.PositiveSize(),
	})
}

// msPerSample converts a statswindow average, stored in fractional
// seconds, to milliseconds for display.
func msPerSample(avgSeconds float64) float64 {
	return avgSeconds * 1000
}

// GetAvgTimes godoc
// @Summary Rolling average latency windows
// @Tags stats
// @Produce json
// @Success 200 {object} LatencyStatsResponse
// @Security ApiKeyAuth
// @Router /stats/latency [get]
func (h *Handler) GetAvgTimes(c *gin.Context) {
	c.JSON(http.StatusOK, LatencyStatsResponse{
		AvgCacheLookupMs:      msPerSample(h.Core.Stats.CacheLookupLatency.Average()),
		AvgCachedResponseMs:   msPerSample(h.Core.Stats.CachedResponseLatency.Average()),
		AvgUncachedResponseMs: msPerSample(h.Core.Stats.UncachedResponseLatency.Average()),
	})
}

// TerminalOutput godoc
// @Summary Tail of the flat server log
// @Tags log
// @Produce json
// @Success 200 {object} LogResponse
// @Failure 503 {object} ErrorResponse
// @Security ApiKeyAuth
// @Router /log [get]
func (h *Handler) TerminalOutput(c *gin.Context) {
	if h.Configs == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "configuration store not available"})
		return
	}

	out, err := h.Configs.TerminalOutput()
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, LogResponse{Output: out})
}

// ValidateLogin godoc
// @Summary Validate admin credentials
// @Description A first successful call with no stored account bootstraps one.
// @Tags auth
// @Accept json
// @Produce json
// @Param body body LoginRequest true "Credentials"
// @Success 200 {object} StatusResponse
// @Failure 401 {object} ErrorResponse
// @Router /login [post]
func (h *Handler) ValidateLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if h.Configs == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "configuration store not available"})
		return
	}

	ok, err := credentials.ValidateLogin(h.Configs, req.User, req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})
		return
	}

	c.JSON(http.StatusOK, StatusResponse{Status: "ok"})
}

// Restart godoc
// @Summary Restart the resolver process
// @Description Triggers a graceful re-exec; out of scope of the core resolver itself.
// @Tags system
// @Produce json
// @Success 202 {object} StatusResponse
// @Failure 503 {object} ErrorResponse
// @Security ApiKeyAuth
// @Router /restart [post]
func (h *Handler) Restart(c *gin.Context) {
	if h.Restarter == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "restart not supported by this deployment"})
		return
	}

	if err := h.Restarter.Restart(); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	h.audit(actorFromRequest(c), "system.restart", "process", "")
	c.JSON(http.StatusAccepted, StatusResponse{Status: "restarting"})
}

// Audit godoc
// @Summary Recent control-plane mutations, optionally scoped to one target
// @Tags audit
// @Produce json
// @Param limit query int false "Maximum rows to return (default 50)"
// @Param target query string false "Restrict to entries whose target exactly matches (e.g. a local domain or adlist URL)"
// @Success 200 {object} AuditResponse
// @Failure 503 {object} ErrorResponse
// @Security ApiKeyAuth
// @Router /audit [get]
func (h *Handler) Audit(c *gin.Context) {
	if h.Audit == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "audit log not available"})
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := parseLimit(raw); err == nil && n > 0 {
			limit = helpers.ClampInt(n, 1, maxAuditLimit)
		}
	}

	var (
		entries []auditlog.Entry
		err     error
	)
	if target := c.Query("target"); target != "" {
		entries, err = h.Audit.ForTarget(target, limit)
	} else {
		entries, err = h.Audit.Recent(limit)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	resp := AuditResponse{Entries: make([]AuditEntryResponse, len(entries))}
	for i, e := range entries {
		resp.Entries[i] = AuditEntryResponse{
			ID: e.ID, OccurredAt: e.OccurredAt, Actor: e.Actor,
			Action: e.Action, Target: e.Target, Detail: e.Detail,
		}
	}
	c.JSON(http.StatusOK, resp)
}

func parseLimit(raw string) (int, error) {
	return strconv.Atoi(raw)
}

// ensure the cachelayer collaborator interfaces this file relies on
// (ReloadLocalOverrides/LoadBlocklists taking *configstore.Store) stay
// satisfied; referenced here only to keep the import meaningful if the
// handlers above are trimmed during review.
var _ cachelayer.LocalOverridesSource = (*configstore.Store)(nil)
var _ cachelayer.BlocklistSource = (*configstore.Store)(nil)
