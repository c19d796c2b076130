// Package api exposes the prediction and feedback service over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/sells-group/newscat/internal/classifier"
	"github.com/sells-group/newscat/internal/config"
	"github.com/sells-group/newscat/internal/feedback"
	"github.com/sells-group/newscat/internal/predict"
	"github.com/sells-group/newscat/internal/training"
)

// Service identity reported by /health and /api/v1/info.
const (
	serviceName    = "newscat"
	serviceVersion = "1.0.0"
)

// Server holds the handler dependencies.
type Server struct {
	predictor *predict.Service
	store     feedback.Store
	orch      *training.Orchestrator
	models    *classifier.Handle
	cfg       config.ServerConfig
}

func NewServer(predictor *predict.Service, store feedback.Store, orch *training.Orchestrator, models *classifier.Handle, cfg config.ServerConfig) *Server {
	return &Server{
		predictor: predictor,
		store:     store,
		orch:      orch,
		models:    models,
		cfg:       cfg,
	}
}

// Router builds the chi route tree with all middleware attached.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(correlationMiddleware)
	r.Use(logMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", CorrelationHeader},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		if s.cfg.RatePerSecond > 0 {
			r.Use(rateLimitMiddleware(newIPLimiter(s.cfg.RatePerSecond, s.cfg.RateBurst)))
		}

		r.Post("/predict", s.handlePredict)
		r.Post("/predict/batch", s.handlePredictBatch)
		r.Get("/info", s.handleInfo)

		r.Post("/feedback", s.handleFeedbackSubmit)
		r.Get("/feedback", s.handleFeedbackList)
		r.Get("/feedback/stats", s.handleFeedbackStats)
		r.Get("/feedback/export", s.handleFeedbackExport)

		r.Post("/model/train", s.handleTrainStart)
		r.Get("/model/train", s.handleTrainList)
		r.Get("/model/train/{jobID}", s.handleTrainStatus)
		r.Get("/model/versions", s.handleVersions)
		r.Post("/model/deploy/{version}", s.handleDeploy)

		r.Post("/reload-model", s.handleReload)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	type health struct {
		Status       string    `json:"status"`
		Service      string    `json:"service"`
		Version      string    `json:"version"`
		Timestamp    time.Time `json:"timestamp"`
		ModelLoaded  bool      `json:"model_loaded"`
		ModelVersion string    `json:"model_version,omitempty"`
	}

	h := health{
		Status:       "healthy",
		Service:      serviceName,
		Version:      serviceVersion,
		Timestamp:    time.Now().UTC(),
		ModelLoaded:  s.models.Loaded(),
		ModelVersion: s.models.Version(),
	}
	status := http.StatusOK
	if !h.ModelLoaded {
		h.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}
