package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/newscat/internal/cache"
	"github.com/sells-group/newscat/internal/classifier"
	"github.com/sells-group/newscat/internal/config"
	"github.com/sells-group/newscat/internal/feedback"
	"github.com/sells-group/newscat/internal/model"
	"github.com/sells-group/newscat/internal/predict"
	"github.com/sells-group/newscat/internal/training"
	"github.com/sells-group/newscat/pkg/trainer"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// stubTrainer accepts every job and reports it queued forever.
type stubTrainer struct{}

func (stubTrainer) StartJob(_ context.Context, req *trainer.StartRequest) (*trainer.JobState, error) {
	return &trainer.JobState{JobID: req.JobID, Status: model.JobQueued}, nil
}

func (stubTrainer) JobStatus(_ context.Context, jobID string) (*trainer.JobState, error) {
	return &trainer.JobState{JobID: jobID, Status: model.JobQueued}, nil
}

type testEnv struct {
	router http.Handler
	models *classifier.Handle
	store  feedback.Store
	root   string
}

func writeTestModel(t *testing.T, root, version string) {
	t.Helper()
	dir := filepath.Join(root, version)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	manifest, err := yaml.Marshal(classifier.Manifest{
		Version:   version,
		CreatedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Metrics:   map[string]float64{"accuracy": 0.8},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.yaml"), manifest, 0o644))

	weights, err := json.Marshal(classifier.Weights{
		Categories: []string{"POLITICS", "SPORTS", "TECH"},
		Vocabulary: map[string]int{"election": 0, "match": 1, "software": 2},
		Coef: [][]float64{
			{3, -1, -1},
			{-1, 3, -1},
			{-1, -1, 3},
		},
		Intercept: []float64{0, 0, 0},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.json"), weights, 0o644))
}

func newTestEnv(t *testing.T, loadModel bool) *testEnv {
	t.Helper()

	root := t.TempDir()
	artifacts := classifier.NewArtifactStore(root)
	models := classifier.NewHandle(artifacts)
	if loadModel {
		writeTestModel(t, root, "v20260801120000")
		require.NoError(t, models.Load("v20260801120000"))
	}

	st, err := feedback.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	svc := predict.NewService(models, cache.NewMemory(), predict.NewCounter(st), predict.Options{
		CacheTTL: time.Minute,
	})
	orch := training.NewOrchestrator(stubTrainer{}, st, models, artifacts, training.Options{})

	srv := NewServer(svc, st, orch, models, config.ServerConfig{
		RatePerSecond:  1000,
		RateBurst:      1000,
		AllowedOrigins: []string{"*"},
	})
	return &testEnv{router: srv.Router(), models: models, store: st, root: root}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "192.0.2.1:41000"
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	env := decodeBody[errorEnvelope](t, rec)
	return env.Detail.Error.Code
}

func TestPredict_OK(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(t, http.MethodPost, "/api/v1/predict", map[string]string{
		"headline": "Candidates spar ahead of election day",
	}, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	res := decodeBody[model.PredictionResult](t, rec)
	assert.Equal(t, "POLITICS", res.Category)
	assert.Regexp(t, `^pred_[0-9a-f]{12}$`, res.PredictionID)
	assert.Equal(t, "v20260801120000", res.ModelVersion)
	assert.Len(t, res.TopCategories, 3)
	assert.NotEmpty(t, res.CorrelationID)
}

func TestPredict_EchoesCorrelationID(t *testing.T) {
	env := newTestEnv(t, true)

	h := http.Header{}
	h.Set(CorrelationHeader, "corr-123")
	rec := env.do(t, http.MethodPost, "/api/v1/predict", map[string]string{
		"headline": "Stadium roars as the match ends",
	}, h)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "corr-123", rec.Header().Get(CorrelationHeader))
	res := decodeBody[model.PredictionResult](t, rec)
	assert.Equal(t, "corr-123", res.CorrelationID)
}

func TestPredict_Validation(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(t, http.MethodPost, "/api/v1/predict", map[string]string{"headline": "   "}, nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeValidation, errorCode(t, rec))
}

func TestPredict_ModelNotLoaded(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(t, http.MethodPost, "/api/v1/predict", map[string]string{
		"headline": "Any headline at all",
	}, nil)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, CodeModelNotLoaded, errorCode(t, rec))
}

func TestPredict_ModelFailureCode(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/predict", nil)
	rec := httptest.NewRecorder()

	respondErr(rec, req, &predict.PredictionError{Err: errors.New("inference backend unreachable")})

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, CodePrediction, errorCode(t, rec))
}

func TestPredictBatch_OK(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(t, http.MethodPost, "/api/v1/predict/batch", map[string]any{
		"articles": []map[string]string{
			{"id": "a1", "headline": "Candidates spar ahead of election day"},
			{"id": "a2", "headline": ""},
			{"id": "a3", "headline": "New software release ships today"},
		},
	}, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	batch := decodeBody[model.BatchPrediction](t, rec)
	assert.Regexp(t, `^batch_[0-9a-f]{12}$`, batch.BatchID)
	require.Len(t, batch.Results, 3)
	assert.Equal(t, model.BatchItemOK, batch.Results[0].Status)
	assert.Equal(t, "POLITICS", batch.Results[0].Category)
	assert.Equal(t, model.BatchItemError, batch.Results[1].Status)
	assert.NotEmpty(t, batch.Results[1].Error)
	assert.Equal(t, "TECH", batch.Results[2].Category)
}

func TestPredictBatch_Empty(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(t, http.MethodPost, "/api/v1/predict/batch", map[string]any{"articles": []any{}}, nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeValidation, errorCode(t, rec))
}

func TestInfo(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(t, http.MethodGet, "/api/v1/info", nil, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	info := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "newscat", info["service"])
	assert.Equal(t, "1.0.0", info["version"])
	assert.Equal(t, "v20260801120000", info["model_version"])
	assert.Equal(t, true, info["model_loaded"])
	assert.Len(t, info["categories"], 3)
	assert.Equal(t, float64(3), info["total_categories"])
}

func TestInfo_ModelNotLoaded(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(t, http.MethodGet, "/api/v1/info", nil, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	info := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "newscat", info["service"])
	assert.Equal(t, false, info["model_loaded"])
	assert.Equal(t, "", info["model_version"])
	assert.Len(t, info["categories"], 0)
	assert.Equal(t, float64(0), info["total_categories"])
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	h := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "healthy", h["status"])
	assert.Equal(t, "newscat", h["service"])
	assert.Equal(t, "1.0.0", h["version"])
	assert.NotEmpty(t, h["timestamp"])
	assert.Equal(t, true, h["model_loaded"])
	assert.Equal(t, "v20260801120000", h["model_version"])
}

func TestHealth_Degraded(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	h := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "degraded", h["status"])
	assert.Equal(t, false, h["model_loaded"])
}

func TestFeedback_SubmitAndList(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(t, http.MethodPost, "/api/v1/feedback", map[string]string{
		"prediction_id":      "pred_0011aabbccdd",
		"predicted_category": "POLITICS",
		"correct_category":   "WORLD NEWS",
		"feedback_type":      "correction",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody[struct {
		FeedbackID    string    `json:"feedback_id"`
		PredictionID  string    `json:"prediction_id"`
		Status        string    `json:"status"`
		Timestamp     time.Time `json:"timestamp"`
		CorrelationID string    `json:"correlation_id"`
	}](t, rec)
	assert.Regexp(t, `^fb_[0-9a-f]{12}$`, created.FeedbackID)
	assert.Equal(t, "pred_0011aabbccdd", created.PredictionID)
	assert.Equal(t, "recorded", created.Status)
	assert.False(t, created.Timestamp.IsZero())
	assert.NotEmpty(t, created.CorrelationID)

	rec = env.do(t, http.MethodGet, "/api/v1/feedback?feedback_type=correction", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[struct {
		Items []model.FeedbackRecord `json:"items"`
		Total int64                  `json:"total"`
	}](t, rec)
	assert.Equal(t, int64(1), list.Total)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "pred_0011aabbccdd", list.Items[0].PredictionID)
}

func TestFeedback_SubmitInvalid(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(t, http.MethodPost, "/api/v1/feedback", map[string]string{
		"prediction_id": "pred_0011aabbccdd",
		"feedback_type": "correction",
	}, nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeValidation, errorCode(t, rec))
}

func TestFeedback_ListRejectsUnknownType(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(t, http.MethodGet, "/api/v1/feedback?feedback_type=praise", nil, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeValidation, errorCode(t, rec))
}

func TestFeedback_Stats(t *testing.T) {
	env := newTestEnv(t, true)

	for _, sub := range []map[string]string{
		{"prediction_id": "pred_aaaaaaaaaaaa", "predicted_category": "POLITICS", "feedback_type": "confirmation"},
		{"prediction_id": "pred_bbbbbbbbbbbb", "predicted_category": "POLITICS", "correct_category": "WORLD NEWS", "feedback_type": "correction"},
	} {
		rec := env.do(t, http.MethodPost, "/api/v1/feedback", sub, nil)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := env.do(t, http.MethodGet, "/api/v1/feedback/stats", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decodeBody[struct {
		Period struct {
			Start time.Time `json:"start"`
			End   time.Time `json:"end"`
		} `json:"period"`
		TotalFeedback         int64            `json:"total_feedback"`
		AccuracyFromFeedback  float64          `json:"accuracy_from_feedback"`
		CorrectionsByCategory map[string]int64 `json:"corrections_by_category"`
		CorrelationID         string           `json:"correlation_id"`
	}](t, rec)
	assert.False(t, stats.Period.Start.IsZero())
	assert.True(t, stats.Period.End.After(stats.Period.Start))
	assert.Equal(t, int64(2), stats.TotalFeedback)
	assert.InDelta(t, 0.5, stats.AccuracyFromFeedback, 1e-9)
	assert.Equal(t, int64(1), stats.CorrectionsByCategory["POLITICS"])
	assert.NotEmpty(t, stats.CorrelationID)
}

func TestFeedback_Export(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(t, http.MethodPost, "/api/v1/feedback", map[string]string{
		"prediction_id":      "pred_aaaaaaaaaaaa",
		"predicted_category": "POLITICS",
		"correct_category":   "WORLD NEWS",
		"feedback_type":      "correction",
		"headline":           "Summit talks resume",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/feedback/export", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	export := decodeBody[struct {
		Samples []model.TrainingSample `json:"samples"`
		Count   int                    `json:"count"`
	}](t, rec)
	assert.Equal(t, 1, export.Count)
	require.Len(t, export.Samples, 1)
	assert.Equal(t, "WORLD NEWS", export.Samples[0].Category)
}

func TestTrain_StartAndStatus(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(t, http.MethodPost, "/api/v1/model/train", map[string]any{
		"description": "weekly retrain",
	}, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	job := decodeBody[model.TrainingJob](t, rec)
	assert.Regexp(t, `^train-[0-9a-f]{12}$`, job.JobID)
	assert.Equal(t, model.JobQueued, job.Status)

	rec = env.do(t, http.MethodGet, "/api/v1/model/train/"+job.JobID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[model.TrainingJob](t, rec)
	assert.Equal(t, job.JobID, got.JobID)
}

func TestTrain_StatusNotFound(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(t, http.MethodGet, "/api/v1/model/train/train-missing00000", nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeNotFound, errorCode(t, rec))
}

func TestVersions_And_Deploy(t *testing.T) {
	env := newTestEnv(t, true)
	writeTestModel(t, env.root, "v20260829100000")

	rec := env.do(t, http.MethodGet, "/api/v1/model/versions", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[struct {
		Versions      []model.ModelVersion `json:"versions"`
		ActiveVersion string               `json:"active_version"`
	}](t, rec)
	require.Len(t, body.Versions, 2)
	assert.Equal(t, "v20260801120000", body.ActiveVersion)

	rec = env.do(t, http.MethodPost, "/api/v1/model/deploy/v20260829100000", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "v20260829100000", env.models.Version())

	rec = env.do(t, http.MethodPost, "/api/v1/model/deploy/v-nope", nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeNotFound, errorCode(t, rec))
}

func TestReload(t *testing.T) {
	env := newTestEnv(t, true)
	writeTestModel(t, env.root, "v20260829100000")

	rec := env.do(t, http.MethodPost, "/api/v1/reload-model", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "reloaded", body["status"])
	// Reload without a version picks the newest artifact.
	assert.Equal(t, "v20260829100000", env.models.Version())
}

func TestRateLimit(t *testing.T) {
	root := t.TempDir()
	artifacts := classifier.NewArtifactStore(root)
	models := classifier.NewHandle(artifacts)
	writeTestModel(t, root, "v20260801120000")
	require.NoError(t, models.Load("v20260801120000"))

	st, err := feedback.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	svc := predict.NewService(models, cache.NewMemory(), nil, predict.Options{})
	orch := training.NewOrchestrator(stubTrainer{}, st, models, artifacts, training.Options{})
	srv := NewServer(svc, st, orch, models, config.ServerConfig{
		RatePerSecond: 1,
		RateBurst:     2,
	})
	router := srv.Router()

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/predict", bytes.NewBufferString(
			fmt.Sprintf(`{"headline":"headline number %d"}`, i)))
		req.RemoteAddr = "192.0.2.7:41000"
		last = httptest.NewRecorder()
		router.ServeHTTP(last, req)
	}

	require.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.Equal(t, CodeRateLimit, errorCode(t, last))
	assert.Equal(t, "1", last.Header().Get("Retry-After"))

	// Health is never rate limited.
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "192.0.2.7:41000"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
