package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gaurav-seth/carenest-helper/engine"
)

// DefaultHeartbeat is how often SSE streams send a keepalive comment.
const DefaultHeartbeat = 15 * time.Second

// API wires the HTTP handlers to an engine.
type API struct {
	eng       *engine.Engine
	logger    *slog.Logger
	gatherer  prometheus.Gatherer
	heartbeat time.Duration
}

// Option configures the API.
type Option func(*API)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *API) { a.logger = l }
}

// WithGatherer sets the registry served on /metrics. Defaults to
// prometheus.DefaultGatherer.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(a *API) { a.gatherer = g }
}

// WithHeartbeat sets the SSE keepalive interval.
func WithHeartbeat(d time.Duration) Option {
	return func(a *API) { a.heartbeat = d }
}

// New creates an API from an engine.
func New(eng *engine.Engine, opts ...Option) *API {
	a := &API{
		eng:       eng,
		logger:    eng.Logger(),
		gatherer:  prometheus.DefaultGatherer,
		heartbeat: DefaultHeartbeat,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns a gin engine with every route registered. Callers may
// mount more routes on it.
func (a *API) Handler() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), a.requestLogger())
	a.RegisterRoutes(r)
	return r
}

// RegisterRoutes registers all routes on router.
func (a *API) RegisterRoutes(router gin.IRouter) {
	patients := router.Group("/api/patients")
	patients.POST("/register", a.registerPatient)
	patients.GET("/all", a.listPatients)
	patients.POST("/create-job", a.createJob)

	helpers := router.Group("/api/helpers")
	helpers.POST("/register", a.registerHelper)
	helpers.POST("/verify", a.verifyHelper)
	helpers.GET("/all", a.listHelpers)
	helpers.GET("/jobs/available", a.listAvailableJobs)
	helpers.POST("/accept-job/:jobId", a.acceptJob)
	helpers.GET("/stream", a.helperStream)

	router.GET("/api/jobs/:jobId", a.getJob)
	router.GET("/api/activity/stream", a.activityStream)
	router.GET("/api/stats", a.stats)

	router.GET("/healthz", a.healthz)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{})))
}

func (a *API) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		a.logger.LogAttrs(c.Request.Context(), levelFor(c.Writer.Status()), "http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("elapsed", time.Since(start)),
		)
	}
}

func levelFor(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelDebug
	}
}

func (a *API) healthz(c *gin.Context) {
	if err := a.eng.Store().Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (a *API) stats(c *gin.Context) {
	st, err := a.eng.Stats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}
