package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/newscat/internal/classifier"
	"github.com/sells-group/newscat/internal/model"
	"github.com/sells-group/newscat/internal/predict"
	"github.com/sells-group/newscat/internal/training"
)

// Machine-readable error codes carried in every error envelope.
const (
	CodeValidation     = "VALIDATION_ERROR"
	CodeModelNotLoaded = "MODEL_NOT_LOADED"
	CodePrediction     = "PREDICTION_ERROR"
	CodeDatabase       = "DATABASE_ERROR"
	CodeNotFound       = "NOT_FOUND"
	CodeRateLimit      = "RATE_LIMIT_EXCEEDED"
	CodeInternal       = "INTERNAL_ERROR"
)

type errorBody struct {
	Code          string `json:"code"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlation_id"`
	RetryAfter    int    `json:"retry_after,omitempty"`
}

type errorDetail struct {
	Error errorBody `json:"error"`
}

// errorEnvelope is the wire shape of every error response.
type errorEnvelope struct {
	Detail errorDetail `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("write response failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{Detail: errorDetail{Error: errorBody{
		Code:          code,
		Message:       message,
		CorrelationID: CorrelationID(r.Context()),
	}}})
}

// respondErr maps domain errors onto the envelope. Unrecognized errors are
// logged and reported as INTERNAL_ERROR without leaking internals.
func respondErr(w http.ResponseWriter, r *http.Request, err error) {
	var verr *model.ValidationError
	var perr *predict.PredictionError
	switch {
	case errors.As(err, &verr):
		writeError(w, r, http.StatusBadRequest, CodeValidation, verr.Error())
	case errors.Is(err, classifier.ErrNotLoaded):
		writeError(w, r, http.StatusServiceUnavailable, CodeModelNotLoaded, "no model is loaded")
	case errors.Is(err, predict.ErrTimeout):
		writeError(w, r, http.StatusInternalServerError, CodePrediction, "prediction timed out")
	case errors.As(err, &perr):
		zap.L().Error("prediction failed",
			zap.String("path", r.URL.Path),
			zap.String("correlation_id", CorrelationID(r.Context())),
			zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, CodePrediction, "prediction failed")
	case errors.Is(err, training.ErrJobNotFound):
		writeError(w, r, http.StatusNotFound, CodeNotFound, "training job not found")
	default:
		zap.L().Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("correlation_id", CorrelationID(r.Context())),
			zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, CodeInternal, "internal error")
	}
}

// respondStoreErr is respondErr for persistence paths, where unrecognized
// failures are database errors rather than generic internal ones.
func respondStoreErr(w http.ResponseWriter, r *http.Request, err error) {
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		writeError(w, r, http.StatusBadRequest, CodeValidation, verr.Error())
		return
	}
	zap.L().Error("store request failed",
		zap.String("path", r.URL.Path),
		zap.String("correlation_id", CorrelationID(r.Context())),
		zap.Error(err))
	writeError(w, r, http.StatusInternalServerError, CodeDatabase, "database error")
}
