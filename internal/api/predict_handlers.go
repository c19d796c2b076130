package api

import (
	"encoding/json"
	"net/http"

	"github.com/sells-group/newscat/internal/model"
)

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req model.PredictionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, CodeValidation, "invalid request body")
		return
	}

	result, err := s.predictor.Predict(r.Context(), &req, CorrelationID(r.Context()))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handlePredictBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Articles []model.BatchArticle `json:"articles"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, CodeValidation, "invalid request body")
		return
	}

	batch, err := s.predictor.PredictBatch(r.Context(), req.Articles, CorrelationID(r.Context()))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

// handleInfo reports the API and model identity. Unlike predict it never
// fails when no model is loaded; it reports model_loaded false instead.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"service":          serviceName,
		"version":          serviceVersion,
		"model_version":    "",
		"model_loaded":     false,
		"categories":       []string{},
		"total_categories": 0,
	}
	if snap, err := s.models.Snapshot(); err == nil {
		m := snap.Manifest()
		cats := snap.Categories()
		info["model_version"] = m.Version
		info["model_loaded"] = true
		info["categories"] = cats
		info["total_categories"] = len(cats)
		info["created_at"] = m.CreatedAt
		info["metrics"] = m.Metrics
		info["description"] = m.Description
	}
	writeJSON(w, http.StatusOK, info)
}
