package exporter

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rxtx-hosting/hostpulse/pkg/clientip"
	"github.com/rxtx-hosting/hostpulse/pkg/limiter"
	"github.com/rxtx-hosting/hostpulse/pkg/stats"
)

const (
	// UnknownClient keys requests whose address could not be resolved.
	UnknownClient = "unknown"

	topClients      = 5
	timestampLayout = "2006-01-02T15:04:05.000Z07:00"

	rateLimitedMessage = "Too many requests, please try again later"
	internalMessage    = "Internal server error"
)

// Request outcomes reported to the metrics exporter.
const (
	OutcomeServed      = "served"
	OutcomeRateLimited = "rate_limited"
	OutcomeError       = "error"
)

type StatsProvider interface {
	Get() *stats.Snapshot
}

type RequestObserver interface {
	ObserveRequest(outcome string)
}

type Deps struct {
	Resolver *clientip.Resolver
	Counter  *limiter.Counter
	// Limiter is nil when rate limiting is disabled.
	Limiter  *limiter.RateLimiter
	Stats    StatsProvider
	Observer RequestObserver
}

type APIServer struct {
	deps   Deps
	logger *slog.Logger
	now    func() time.Time
}

type statusResponse struct {
	Success   bool              `json:"success"`
	System    *stats.Snapshot   `json:"system"`
	TopIPs    []limiter.IPCount `json:"topIPs"`
	Timestamp string            `json:"timestamp"`
}

type failureResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func NewAPIServer(deps Deps, logger *slog.Logger) *APIServer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &APIServer{
		deps:   deps,
		logger: logger,
		now:    time.Now,
	}
}

func (a *APIServer) Handler() *gin.Engine {
	r := gin.New()
	r.Use(gin.CustomRecovery(a.recoverHandler))
	r.Use(a.logMiddleware())

	r.GET("/api/status", a.handleStatus)
	r.GET("/healthz", a.handleHealth)

	return r
}

// StartServer blocks serving addr until ctx is cancelled.
func (a *APIServer) StartServer(ctx context.Context, addr string) error {
	ln, err := listen(addr)
	if err != nil {
		return err
	}
	return a.Serve(ctx, ln)
}

func (a *APIServer) Serve(ctx context.Context, ln net.Listener) error {
	gin.SetMode(gin.ReleaseMode)
	return serve(ctx, newHTTPServer(a.Handler()), ln, a.logger)
}

func (a *APIServer) logMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		a.logger.Debug("Request handled",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func (a *APIServer) recoverHandler(c *gin.Context, err any) {
	a.logger.Error("Status request failed", "path", c.Request.URL.Path, "error", err)
	a.observe(OutcomeError)
	c.AbortWithStatusJSON(http.StatusInternalServerError, failureResponse{Success: false, Message: internalMessage})
}

func (a *APIServer) handleStatus(c *gin.Context) {
	ip := a.deps.Resolver.Resolve(c.Request)
	if ip == "" {
		ip = UnknownClient
	}

	// Attempts are counted whether or not they are served.
	a.deps.Counter.Increment(ip)

	if a.deps.Limiter != nil && !a.deps.Limiter.Allow(ip) {
		a.logger.Debug("Request rate limited", "ip", ip)
		a.observe(OutcomeRateLimited)
		c.JSON(http.StatusTooManyRequests, failureResponse{Success: false, Message: rateLimitedMessage})
		return
	}

	snap := a.deps.Stats.Get()
	if snap == nil {
		panic("stats cache returned no snapshot")
	}

	a.observe(OutcomeServed)
	c.JSON(http.StatusOK, statusResponse{
		Success:   true,
		System:    snap,
		TopIPs:    a.deps.Counter.TopN(topClients),
		Timestamp: a.now().UTC().Format(timestampLayout),
	})
}

func (a *APIServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (a *APIServer) observe(outcome string) {
	if a.deps.Observer != nil {
		a.deps.Observer.ObserveRequest(outcome)
	}
}
