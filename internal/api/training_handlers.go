package api

import (
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/newscat/internal/model"
	"github.com/sells-group/newscat/internal/training"
)

func (s *Server) handleTrainStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Config          *model.TrainingConfig `json:"config"`
		IncludeFeedback bool                  `json:"include_feedback"`
		Description     string                `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, http.StatusBadRequest, CodeValidation, "invalid request body")
		return
	}

	opts := training.StartOptions{
		Config:          model.DefaultTrainingConfig(),
		IncludeFeedback: req.IncludeFeedback,
		Description:     req.Description,
	}
	if req.Config != nil {
		opts.Config = *req.Config
	}

	job, err := s.orch.StartTraining(r.Context(), opts)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleTrainStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.orch.GetJob(chi.URLParam(r, "jobID"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleTrainList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"jobs": s.orch.ListJobs()})
}

func (s *Server) handleVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := s.orch.ListVersions()
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if versions == nil {
		versions = []model.ModelVersion{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"versions":       versions,
		"active_version": s.models.Version(),
	})
}

func (s *Server) handleDeploy(w http.ResponseWriter, r *http.Request) {
	version := chi.URLParam(r, "version")
	if err := s.orch.Deploy(version); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeError(w, r, http.StatusNotFound, CodeNotFound, "model version not found")
			return
		}
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "deployed",
		"model_version": version,
	})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Version string `json:"version"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, http.StatusBadRequest, CodeValidation, "invalid request body")
		return
	}

	if err := s.models.Load(req.Version); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeError(w, r, http.StatusNotFound, CodeNotFound, "model version not found")
			return
		}
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "reloaded",
		"model_version": s.models.Version(),
	})
}
