package model

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/rotisserie/eris"
)

// Input size limits enforced at the API boundary.
const (
	MaxHeadlineLen    = 500
	MaxDescriptionLen = 2000
	MaxBatchSize      = 100
	MaxTopCategories  = 5
)

// PredictionRequest is a single classification request.
type PredictionRequest struct {
	Headline         string `json:"headline"`
	ShortDescription string `json:"short_description,omitempty"`
	RequestID        string `json:"request_id,omitempty"` // client-supplied correlation token, echoed in logs only
}

// Validate trims the headline and checks the input size limits.
func (r *PredictionRequest) Validate() error {
	r.Headline = strings.TrimSpace(r.Headline)
	if r.Headline == "" {
		return Invalid(eris.New("headline must not be empty"))
	}
	if len([]rune(r.Headline)) > MaxHeadlineLen {
		return Invalid(eris.Errorf("headline exceeds %d characters", MaxHeadlineLen))
	}
	if len([]rune(r.ShortDescription)) > MaxDescriptionLen {
		return Invalid(eris.Errorf("short_description exceeds %d characters", MaxDescriptionLen))
	}
	return nil
}

// CategoryScore is one entry of a ranked category distribution.
type CategoryScore struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// PredictionResult is the outcome of a single classification.
//
// Category always equals TopCategories[0].Category when TopCategories is
// non-empty, and confidences are non-increasing across TopCategories.
type PredictionResult struct {
	PredictionID     string          `json:"prediction_id"`
	Category         string          `json:"category"`
	Confidence       float64         `json:"confidence"`
	TopCategories    []CategoryScore `json:"top_categories"`
	ModelVersion     string          `json:"model_version"`
	ProcessingTimeMS int64           `json:"processing_time_ms"`
	CorrelationID    string          `json:"correlation_id"`
}

// BatchArticle is one item of a batch prediction request.
type BatchArticle struct {
	ID               string `json:"id"`
	Headline         string `json:"headline"`
	ShortDescription string `json:"short_description,omitempty"`
}

// BatchItemStatus marks per-item success or failure within a batch.
const (
	BatchItemOK    = "success"
	BatchItemError = "error"
)

// BatchResult is the per-item outcome of a batch prediction. Items that
// failed carry status "error" and an empty category; the batch as a whole
// still succeeds.
type BatchResult struct {
	ID           string  `json:"id"`
	PredictionID string  `json:"prediction_id"`
	Category     string  `json:"category"`
	Confidence   float64 `json:"confidence"`
	Status       string  `json:"status"`
	Error        string  `json:"error,omitempty"`
}

// BatchPrediction is the aggregate outcome of a batch request. Results
// preserve the input article order.
type BatchPrediction struct {
	BatchID           string        `json:"batch_id"`
	Results           []BatchResult `json:"results"`
	ModelVersion      string        `json:"model_version"`
	TotalProcessingMS int64         `json:"total_processing_time_ms"`
	CorrelationID     string        `json:"correlation_id"`
}

// NewPredictionID returns a fresh prediction identifier ("pred_" + 12 hex).
func NewPredictionID() string { return "pred_" + randomHex(6) }

// NewBatchID returns a fresh batch identifier ("batch_" + 12 hex).
func NewBatchID() string { return "batch_" + randomHex(6) }

// NewFeedbackID returns a fresh feedback identifier ("fb_" + 12 hex).
func NewFeedbackID() string { return "fb_" + randomHex(6) }

// NewTrainingJobID returns a fresh training job identifier ("train-" + 12
// hex). Hyphenated for compatibility with external trainer job naming.
func NewTrainingJobID() string { return "train-" + randomHex(6) }

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
