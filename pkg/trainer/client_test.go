package trainer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/newscat/internal/model"
)

func TestStartJob_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/train", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req StartRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "train-001122334455", req.JobID)
		assert.Equal(t, 10, req.Config.Epochs)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(JobState{
			JobID:  req.JobID,
			Status: model.JobQueued,
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	state, err := client.StartJob(context.Background(), &StartRequest{
		JobID:  "train-001122334455",
		Config: model.DefaultTrainingConfig(),
	})

	require.NoError(t, err)
	assert.Equal(t, "train-001122334455", state.JobID)
	assert.Equal(t, model.JobQueued, state.Status)
}

func TestJobStatus_Completed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/jobs/train-001122334455", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(JobState{
			JobID:        "train-001122334455",
			Status:       model.JobCompleted,
			Progress:     1,
			ModelVersion: "v20260829100000",
			Metrics:      map[string]float64{"accuracy": 0.82},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	state, err := client.JobStatus(context.Background(), "train-001122334455")

	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, state.Status)
	assert.Equal(t, "v20260829100000", state.ModelVersion)
	assert.InDelta(t, 0.82, state.Metrics["accuracy"], 1e-9)
}

func TestJobStatus_NotFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.JobStatus(context.Background(), "train-missing")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestStartJob_RetriesTransientFailure(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(JobState{JobID: "train-001122334455", Status: model.JobQueued})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	state, err := client.StartJob(context.Background(), &StartRequest{
		JobID:  "train-001122334455",
		Config: model.DefaultTrainingConfig(),
	})

	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, model.JobQueued, state.Status)
}

func TestStartJob_BadRequestNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"unknown model type"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.StartJob(context.Background(), &StartRequest{JobID: "train-001122334455"})

	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Contains(t, err.Error(), "400")
}
