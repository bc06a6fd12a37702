package service

import (
	"net/http"
	"time"

	"github.com/danmuck/lanesight/internal/auth"
	"github.com/danmuck/lanesight/internal/observability"
	"github.com/danmuck/lanesight/internal/pipeline"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Version is reported by /health, /ready and lanesight --version.
const Version = "0.1.0"

func (s *Service) AdminRouter() *gin.Engine {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(observability.Component("admin")))
	r.Use(observability.RequestMetricsMiddleware("lanesight"))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.started).String(),
			"run_id":  s.runID,
			"version": Version,
		})
	})

	guarded := r.Group("/")
	if s.adminAuth != nil {
		guarded.Use(requireToken(s.adminAuth))
	}
	guarded.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/ready", func(c *gin.Context) {
		ready := s.ready()
		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":   ready,
			"uptime":  time.Since(s.started).String(),
			"run_id":  s.runID,
			"version": Version,
		})
	})

	guarded.GET("/state", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.status())
	})
	return r
}

func requireToken(v auth.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.BearerToken(c.GetHeader("Authorization"))
		if err == nil {
			err = v.Validate(token)
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Next()
	}
}

type statusView struct {
	Pipeline  string         `json:"pipeline"`
	Frames    uint64         `json:"frames"`
	Sent      uint64         `json:"sent"`
	CID       uint16         `json:"cid"`
	Transport string         `json:"transport"`
	Distances any            `json:"distances"`
	Bus       map[string]any `json:"bus"`
}

func (s *Service) ready() bool {
	s.mu.RLock()
	loop, sess := s.loop, s.session
	s.mu.RUnlock()
	if loop == nil || sess == nil {
		return false
	}
	select {
	case <-sess.Done():
		return false
	default:
	}
	return loop.State() == pipeline.Running
}

func (s *Service) status() statusView {
	s.mu.RLock()
	loop, sess := s.loop, s.session
	s.mu.RUnlock()

	view := statusView{
		Pipeline:  pipeline.Stopped.String(),
		CID:       s.cfg.Session.CID,
		Transport: string(s.transport()),
		Distances: s.state.Snapshot(),
		Bus:       map[string]any{},
	}
	if loop != nil {
		view.Pipeline = loop.State().String()
		view.Frames = loop.Frames()
		view.Sent = loop.Sent()
	}
	if sess != nil {
		st := sess.Stats()
		view.Bus = map[string]any{
			"session_id":      sess.ID(),
			"received":        st.Received,
			"dispatched":      st.Dispatched,
			"dropped_unknown": st.DroppedUnknown,
			"dropped_decode":  st.DroppedDecode,
			"dropped_frame":   st.DroppedFrame,
			"sent":            st.Sent,
		}
	}
	return view
}
