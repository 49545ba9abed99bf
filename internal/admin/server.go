// Package admin exposes the operational API: limiter statistics, key
// inspection and reset, circuit breaker state, health, and Prometheus
// metrics.
package admin

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arkadyev/reqguard/internal/circuitbreaker"
	"github.com/arkadyev/reqguard/internal/config"
	"github.com/arkadyev/reqguard/internal/dispatch"
	"github.com/arkadyev/reqguard/internal/observability"
	"github.com/arkadyev/reqguard/internal/ratelimit"
)

// ginModeOnce ensures gin.SetMode is only called once.
var ginModeOnce sync.Once

// Server is the admin HTTP server.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	dispatcher *dispatch.Dispatcher
	breakers   *circuitbreaker.Registry
	logger     observability.Logger
	listen     string
}

// NewServer creates the admin server and registers its routes.
func NewServer(cfg config.AdminConfig, dispatcher *dispatch.Dispatcher, breakers *circuitbreaker.Registry, logger observability.Logger) *Server {
	ginModeOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	s := &Server{
		engine:     gin.New(),
		dispatcher: dispatcher,
		breakers:   breakers,
		logger:     logger,
		listen:     cfg.Listen,
	}
	s.engine.Use(gin.Recovery())
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.engine.Group("/v1")
	v1.GET("/ratelimit/stats", s.handleRateLimitStats)
	v1.GET("/ratelimit/status/:key", s.handleKeyStatus)
	v1.DELETE("/ratelimit/keys/:key", s.handleKeyReset)
	v1.GET("/circuitbreakers", s.handleBreakerList)
	v1.POST("/circuitbreakers/:name/reset", s.handleBreakerReset)
}

// Engine returns the underlying gin engine, used by tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ruleStats is the per-rule statistics payload.
type ruleStats struct {
	Rule              string  `json:"rule"`
	Keys              int     `json:"keys"`
	TotalRequests     int64   `json:"totalRequests"`
	AvgRequestsPerKey float64 `json:"avgRequestsPerKey"`
	BlockedKeys       int     `json:"blockedKeys"`
}

func (s *Server) handleRateLimitStats(c *gin.Context) {
	var out []ruleStats
	for _, rule := range s.dispatcher.Rules() {
		insp, ok := rule.Limiter.(ratelimit.Inspector)
		if !ok {
			continue
		}
		stats := insp.Statistics()
		out = append(out, ruleStats{
			Rule:              rule.Name,
			Keys:              stats.Keys,
			TotalRequests:     stats.TotalRequests,
			AvgRequestsPerKey: stats.AvgRequestsPerKey,
			BlockedKeys:       stats.BlockedKeys,
		})
	}
	c.JSON(http.StatusOK, gin.H{"rules": out})
}

// keyStatus is the per-key status payload.
type keyStatus struct {
	Rule        string    `json:"rule"`
	Key         string    `json:"key"`
	Count       int       `json:"count"`
	Limit       int       `json:"limit"`
	Remaining   int       `json:"remaining"`
	WindowStart time.Time `json:"windowStart"`
	ResetAfter  string    `json:"resetAfter"`
	Blocked     bool      `json:"blocked"`
}

// handleKeyStatus reports the key's window state across every rule that
// tracks it. Keys are namespaced per rule, so the raw client key is
// prefixed with each rule name before lookup.
func (s *Server) handleKeyStatus(c *gin.Context) {
	rawKey := c.Param("key")

	var out []keyStatus
	for _, rule := range s.dispatcher.Rules() {
		insp, ok := rule.Limiter.(ratelimit.Inspector)
		if !ok {
			continue
		}
		st, ok := insp.Status(rule.Name + ":" + rawKey)
		if !ok {
			continue
		}
		out = append(out, keyStatus{
			Rule:        rule.Name,
			Key:         rawKey,
			Count:       st.Count,
			Limit:       st.Limit,
			Remaining:   st.Remaining,
			WindowStart: st.WindowStart,
			ResetAfter:  st.ResetAfter.String(),
			Blocked:     st.Blocked,
		})
	}
	if len(out) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "key not tracked"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"statuses": out})
}

// handleKeyReset clears the key's windows in every rule. Resetting a key
// no rule tracks is a no-op and still succeeds.
func (s *Server) handleKeyReset(c *gin.Context) {
	rawKey := c.Param("key")

	for _, rule := range s.dispatcher.Rules() {
		if err := rule.Limiter.Reset(c.Request.Context(), rule.Name+":"+rawKey); err != nil {
			s.logger.Warn("key reset failed",
				observability.String("rule", rule.Name),
				observability.String("key", rawKey),
				observability.Error(err),
			)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "reset failed"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"key": rawKey, "reset": true})
}

// breakerStatus is the per-breaker payload.
type breakerStatus struct {
	Name                string `json:"name"`
	State               string `json:"state"`
	ConsecutiveFailures uint32 `json:"consecutiveFailures"`
	Requests            uint32 `json:"requests"`
}

func (s *Server) handleBreakerList(c *gin.Context) {
	var out []breakerStatus
	for _, name := range s.breakers.Targets() {
		b, ok := s.breakers.Lookup(name)
		if !ok {
			continue
		}
		counts := b.Counts()
		out = append(out, breakerStatus{
			Name:                name,
			State:               b.State().String(),
			ConsecutiveFailures: counts.ConsecutiveFailures,
			Requests:            counts.Requests,
		})
	}
	c.JSON(http.StatusOK, gin.H{"circuitBreakers": out})
}

func (s *Server) handleBreakerReset(c *gin.Context) {
	name := c.Param("name")
	if !s.breakers.Reset(name) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown circuit breaker"})
		return
	}
	s.logger.Info("circuit breaker reset", observability.String("name", name))
	c.JSON(http.StatusOK, gin.H{"name": name, "reset": true})
}

// Start begins serving the admin API. It blocks until the listener fails
// or Stop is called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.listen,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("starting admin server", observability.String("listen", s.listen))
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts the admin server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
