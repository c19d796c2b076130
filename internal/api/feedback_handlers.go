package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/sells-group/newscat/internal/feedback"
	"github.com/sells-group/newscat/internal/model"
)

func (s *Server) handleFeedbackSubmit(w http.ResponseWriter, r *http.Request) {
	var sub model.FeedbackSubmission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeError(w, r, http.StatusBadRequest, CodeValidation, "invalid request body")
		return
	}

	rec, err := s.store.Submit(r.Context(), &sub)
	if err != nil {
		respondStoreErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"feedback_id":    rec.FeedbackID,
		"prediction_id":  rec.PredictionID,
		"status":         "recorded",
		"timestamp":      rec.CreatedAt,
		"correlation_id": CorrelationID(r.Context()),
	})
}

func (s *Server) handleFeedbackList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f := feedback.ListFilter{
		FeedbackType: model.FeedbackType(q.Get("feedback_type")),
		PredictionID: q.Get("prediction_id"),
		Category:     q.Get("category"),
	}
	if f.FeedbackType != "" && !f.FeedbackType.Valid() {
		writeError(w, r, http.StatusBadRequest, CodeValidation, "unknown feedback_type")
		return
	}

	var err error
	if f.Start, err = parseTimeParam(q.Get("start_date"), false); err != nil {
		writeError(w, r, http.StatusBadRequest, CodeValidation, "invalid start_date")
		return
	}
	if f.End, err = parseTimeParam(q.Get("end_date"), true); err != nil {
		writeError(w, r, http.StatusBadRequest, CodeValidation, "invalid end_date")
		return
	}
	if f.Limit, err = parseIntParam(q.Get("limit")); err != nil {
		writeError(w, r, http.StatusBadRequest, CodeValidation, "invalid limit")
		return
	}
	if f.Offset, err = parseIntParam(q.Get("offset")); err != nil {
		writeError(w, r, http.StatusBadRequest, CodeValidation, "invalid offset")
		return
	}

	records, total, err := s.store.List(r.Context(), f)
	if err != nil {
		respondStoreErr(w, r, err)
		return
	}
	if records == nil {
		records = []model.FeedbackRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":  records,
		"total":  total,
		"limit":  f.Limit,
		"offset": f.Offset,
	})
}

func (s *Server) handleFeedbackStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f := feedback.StatsFilter{Category: q.Get("category")}
	var err error
	if f.Start, err = parseTimeParam(q.Get("start_date"), false); err != nil {
		writeError(w, r, http.StatusBadRequest, CodeValidation, "invalid start_date")
		return
	}
	if f.End, err = parseTimeParam(q.Get("end_date"), true); err != nil {
		writeError(w, r, http.StatusBadRequest, CodeValidation, "invalid end_date")
		return
	}

	stats, err := s.store.Stats(r.Context(), f)
	if err != nil {
		respondStoreErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"period": map[string]any{
			"start": stats.PeriodStart,
			"end":   stats.PeriodEnd,
		},
		"total_predictions":       stats.TotalPredictions,
		"total_feedback":          stats.TotalFeedback,
		"feedback_rate":           stats.FeedbackRate,
		"accuracy_from_feedback":  stats.AccuracyFromFeedback,
		"corrections_by_category": stats.CorrectionsByCategory,
		"correlation_id":          CorrelationID(r.Context()),
	})
}

func (s *Server) handleFeedbackExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	start, err := parseTimeParam(q.Get("start_date"), false)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, CodeValidation, "invalid start_date")
		return
	}
	end, err := parseTimeParam(q.Get("end_date"), true)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, CodeValidation, "invalid end_date")
		return
	}
	if end.IsZero() {
		end = time.Now().UTC()
	}
	if start.IsZero() {
		start = end.Add(-90 * 24 * time.Hour)
	}

	samples, err := s.store.Export(r.Context(), start, end)
	if err != nil {
		respondStoreErr(w, r, err)
		return
	}
	if samples == nil {
		samples = []model.TrainingSample{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"samples": samples,
		"count":   len(samples),
	})
}

// parseTimeParam accepts RFC 3339 timestamps or bare dates. A bare end date
// is pushed to the end of that day so ranges are inclusive.
func parseTimeParam(s string, endOfDay bool) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func parseIntParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
