package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// FeedbackType classifies a feedback submission. The set is closed: a
// confirmation agrees with the prediction, a correction supplies the right
// category, a rejection disagrees without supplying one.
type FeedbackType string

const (
	FeedbackConfirmation FeedbackType = "confirmation"
	FeedbackCorrection   FeedbackType = "correction"
	FeedbackRejection    FeedbackType = "rejection"
)

// Valid reports whether t is one of the three known feedback types.
func (t FeedbackType) Valid() bool {
	switch t {
	case FeedbackConfirmation, FeedbackCorrection, FeedbackRejection:
		return true
	}
	return false
}

// FeedbackSubmission is a client-supplied feedback payload. FeedbackID and
// CreatedAt are always assigned server-side; client values are ignored.
type FeedbackSubmission struct {
	PredictionID      string       `json:"prediction_id"`
	PredictedCategory string       `json:"predicted_category,omitempty"`
	CorrectCategory   string       `json:"correct_category,omitempty"`
	FeedbackType      FeedbackType `json:"feedback_type"`
	UserID            string       `json:"user_id,omitempty"`
	Comment           string       `json:"comment,omitempty"`
	Headline          string       `json:"headline,omitempty"`
	ModelVersion      string       `json:"model_version,omitempty"`
}

// Validate enforces the feedback invariants before any side effect.
func (s *FeedbackSubmission) Validate() error {
	if strings.TrimSpace(s.PredictionID) == "" {
		return Invalid(eris.New("prediction_id must not be empty"))
	}
	if !s.FeedbackType.Valid() {
		return Invalid(eris.Errorf("unknown feedback_type %q", s.FeedbackType))
	}
	if s.FeedbackType == FeedbackCorrection && strings.TrimSpace(s.CorrectCategory) == "" {
		return Invalid(eris.New("correct_category is required for correction feedback"))
	}
	if len([]rune(s.Comment)) > MaxDescriptionLen {
		return Invalid(eris.Errorf("comment exceeds %d characters", MaxDescriptionLen))
	}
	return nil
}

// FeedbackRecord is a stored feedback row. Records are append-only and
// immutable once written.
type FeedbackRecord struct {
	FeedbackID        string       `json:"feedback_id"`
	PredictionID      string       `json:"prediction_id"`
	PredictedCategory string       `json:"predicted_category,omitempty"`
	CorrectCategory   string       `json:"correct_category,omitempty"`
	FeedbackType      FeedbackType `json:"feedback_type"`
	UserID            string       `json:"user_id,omitempty"`
	Comment           string       `json:"comment,omitempty"`
	Headline          string       `json:"headline,omitempty"`
	ModelVersion      string       `json:"model_version,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
}

// FeedbackStats is a derived, windowed view over feedback records. Rates are
// always in [0,1]; a zero denominator yields 0, never an error.
type FeedbackStats struct {
	PeriodStart           time.Time        `json:"period_start"`
	PeriodEnd             time.Time        `json:"period_end"`
	TotalPredictions      int64            `json:"total_predictions"`
	TotalFeedback         int64            `json:"total_feedback"`
	FeedbackRate          float64          `json:"feedback_rate"`
	AccuracyFromFeedback  float64          `json:"accuracy_from_feedback"`
	CorrectionsByCategory map[string]int64 `json:"corrections_by_category"`
}

// ComputeRates fills FeedbackRate and AccuracyFromFeedback from raw counts.
// verdicts is confirmations + corrections + rejections within the window.
func (s *FeedbackStats) ComputeRates(confirmations, verdicts int64) {
	if s.TotalPredictions > 0 {
		s.FeedbackRate = float64(s.TotalFeedback) / float64(s.TotalPredictions)
	}
	if verdicts > 0 {
		s.AccuracyFromFeedback = float64(confirmations) / float64(verdicts)
	}
}

// TrainingSample is an exported correction usable as a retraining example.
type TrainingSample struct {
	Headline           string `json:"headline"`
	Category           string `json:"category"`
	Source             string `json:"source"`
	OriginalPrediction string `json:"original_prediction,omitempty"`
	FeedbackID         string `json:"feedback_id"`
}
