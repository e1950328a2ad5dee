package controlplane

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/jroosing/dnsden/internal/auditlog"
	"github.com/jroosing/dnsden/internal/configstore"
	"github.com/jroosing/dnsden/internal/resolvercore"
)

// Server is the admin HTTP API.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	handler    *Handler
}

// New builds a Server listening on addr, with apiKey protecting every
// mutating and read route (an empty apiKey disables the check).
func New(addr, apiKey string, core *resolvercore.Context, configs *configstore.Store, audit *auditlog.DB, logger *slog.Logger, restarter Restarter) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(slogRequestLogger(logger))

	h := newHandler(core, configs, audit, logger, restarter)
	registerRoutes(engine, h, apiKey)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{engine: engine, httpServer: httpServer, handler: h}
}

func registerRoutes(r *gin.Engine, h *Handler, apiKey string) {
	// Route on the escaped path so an adlist URL sent as one
	// percent-encoded segment (slashes as %2F) matches :url, which gin
	// then unescapes back to the original URL.
	r.UseRawPath = true

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.Group("/api/v1")
	api.Use(requireAPIKey(apiKey))

	api.POST("/adcache/enable", h.EnableAdCache)
	api.POST("/adcache/disable", h.DisableAdCache)

	api.GET("/upstream", h.GetUpstreamDNS)
	api.PUT("/upstream", h.SetUpstreamDNS)

	api.POST("/local", h.AddLocalDomain)
	api.DELETE("/local/:url", h.RemoveLocalDomain)

	api.POST("/adlists", h.AddAdlist)
	api.DELETE("/adlists/:url", h.RemoveAdlist)
	api.POST("/adlists/:url/enable", h.EnableAdlist)
	api.POST("/adlists/:url/disable", h.DisableAdlist)
	api.POST("/adlists/reload", h.ReloadAdlists)

	api.PUT("/threads", h.SetNumThreads)

	api.GET("/stats/queries", h.NumQueries)
	api.GET("/stats/adlist", h.DomainsInAdlist)
	api.GET("/stats/latency", h.GetAvgTimes)

	api.GET("/log", h.TerminalOutput)
	api.POST("/login", h.ValidateLogin)
	api.POST("/restart", h.Restart)
	api.GET("/audit", h.Audit)
}

// Engine exposes the underlying router, mainly for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Addr reports the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// ListenAndServe blocks serving HTTP until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
