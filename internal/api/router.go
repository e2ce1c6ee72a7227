package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/amalrajan30/spacedcode/internal/logger"
)

type RouterConfig struct {
	Logger        *logger.Logger
	ReviewHandler *ReviewHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.Logger != nil {
		r.Use(RequestLogger(cfg.Logger))
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	api := r.Group("/api")
	if cfg.ReviewHandler != nil {
		problems := api.Group("/problems/:id")
		{
			problems.PUT("/progress", cfg.ReviewHandler.UpdateProgress)
			problems.PUT("/review", cfg.ReviewHandler.SubmitReview)
			problems.POST("/intensive", cfg.ReviewHandler.ProcessIntensive)
			problems.POST("/forgetting", cfg.ReviewHandler.RecordForgetting)
			problems.GET("/history", cfg.ReviewHandler.GetHistory)
			problems.GET("/analysis", cfg.ReviewHandler.GetAnalysis)
			problems.GET("/next-review", cfg.ReviewHandler.GetNextReview)
		}

		api.GET("/calendar/due-today", cfg.ReviewHandler.DueToday)
		api.GET("/reviews/stats", cfg.ReviewHandler.Stats)
	}

	return r
}

type Server struct {
	server *http.Server
	log    *logger.Logger
}

func NewServer(addr string, log *logger.Logger, cfg RouterConfig) *Server {
	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(cfg),
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log,
	}
}

func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Run blocks until the server stops. A clean Shutdown returns nil.
func (s *Server) Run() error {
	s.log.Info("Starting HTTP server", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
