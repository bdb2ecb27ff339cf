package router

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/booking-engine/internal/handler"
	"github.com/jwalitptl/booking-engine/internal/middleware"
	"github.com/jwalitptl/booking-engine/internal/model"
)

// Handler mounts a resource's routes on an authenticated group.
type Handler interface {
	RegisterRoutes(rg *gin.RouterGroup, requireAdmin gin.HandlerFunc)
}

type Router struct {
	engine       *gin.Engine
	auth         *middleware.AuthMiddleware
	appointmentH Handler
	h            *handler.Handler
	metrics      *routerMetrics
}

type routerMetrics struct {
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	errorTotal      *prometheus.CounterVec
}

type RouterConfig struct {
	Mode           string
	RateLimit      rate.Limit
	RateBurst      int
	RequestTimeout time.Duration
	CORSConfig     middleware.CORSConfig
	MetricsPrefix  string
	Registerer     prometheus.Registerer
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	appointmentH Handler,
	h *handler.Handler,
	config RouterConfig,
) (*Router, error) {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}
	if err := middleware.RegisterValidators(); err != nil {
		return nil, fmt.Errorf("failed to register validators: %w", err)
	}

	engine := gin.New()

	metrics, err := initRouterMetrics(config.MetricsPrefix, config.Registerer)
	if err != nil {
		return nil, err
	}

	r := &Router{
		engine:       engine,
		auth:         auth,
		appointmentH: appointmentH,
		h:            h,
		metrics:      metrics,
	}

	// RequestID must run first; the others log it.
	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(),
		middleware.Logger(),
		r.metricsMiddleware(),
		middleware.ErrorHandler(),
		middleware.Timeout(middleware.TimeoutConfig{Duration: config.RequestTimeout}),
		middleware.CORS(config.CORSConfig),
	)

	if config.RateLimit > 0 {
		rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  config.RateLimit,
			Burst: config.RateBurst,
		})
		engine.Use(rateLimiter.RateLimit())
	}

	return r, nil
}

func (r *Router) Setup() {
	api := r.engine.Group("/api/v1")

	r.setupHealthCheck(api)

	protected := api.Group("")
	protected.Use(r.auth.Authenticate())
	r.appointmentH.RegisterRoutes(protected, r.auth.RequireRole(model.RoleAdmin))
}

func (r *Router) setupHealthCheck(rg *gin.RouterGroup) {
	health := rg.Group("/health")
	{
		health.GET("/live", r.h.LivenessCheck)
		health.GET("/ready", r.h.ReadinessCheck)
		health.GET("/metrics", r.h.MetricsHandler)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func initRouterMetrics(prefix string, reg prometheus.Registerer) (*routerMetrics, error) {
	if prefix == "" {
		prefix = "booking_http"
	}
	m := &routerMetrics{
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: prefix + "_request_duration_seconds",
				Help: "Duration of HTTP requests in seconds",
			},
			[]string{"method", "path", "status"},
		),
		requestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		errorTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_errors_total",
				Help: "Total number of HTTP errors",
			},
			[]string{"method", "path", "type"},
		),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.requestDuration, m.requestTotal, m.errorTotal} {
			if err := reg.Register(c); err != nil {
				return nil, fmt.Errorf("failed to register router metrics: %w", err)
			}
		}
	}
	return m, nil
}

func (r *Router) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		// unmatched paths share one label
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := fmt.Sprintf("%d", c.Writer.Status())
		duration := time.Since(start).Seconds()

		r.metrics.requestDuration.WithLabelValues(c.Request.Method, path, status).Observe(duration)
		r.metrics.requestTotal.WithLabelValues(c.Request.Method, path, status).Inc()

		switch {
		case c.Writer.Status() >= 500:
			r.metrics.errorTotal.WithLabelValues(c.Request.Method, path, "server").Inc()
		case c.Writer.Status() >= 400:
			r.metrics.errorTotal.WithLabelValues(c.Request.Method, path, "client").Inc()
		}
	}
}
