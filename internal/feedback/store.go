// Package feedback persists user feedback on predictions and computes
// windowed statistics over it.
package feedback

import (
	"context"
	"time"

	"github.com/sells-group/newscat/internal/model"
)

// DefaultStatsWindow is applied when a stats query gives no bounds.
const DefaultStatsWindow = 30 * 24 * time.Hour

// List pagination bounds, shared with the model version listing.
const (
	DefaultListLimit = 10
	MaxListLimit     = 100
)

// ListFilter specifies criteria for listing feedback records.
type ListFilter struct {
	FeedbackType model.FeedbackType
	PredictionID string
	Category     string
	Start        time.Time
	End          time.Time
	Limit        int
	Offset       int
}

// Normalize clamps pagination to the allowed bounds.
func (f *ListFilter) Normalize() {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

// StatsFilter bounds a statistics query.
type StatsFilter struct {
	Start    time.Time
	End      time.Time
	Category string
}

// Normalize applies the default 30-day window for missing bounds.
func (f *StatsFilter) Normalize(now time.Time) {
	if f.End.IsZero() {
		f.End = now
	}
	if f.Start.IsZero() {
		f.Start = f.End.Add(-DefaultStatsWindow)
	}
}

// Store is the persistence contract for feedback. Records are append-only;
// there is no update or delete operation.
type Store interface {
	// Submit validates and persists one feedback record, assigning
	// feedback_id and created_at server-side.
	Submit(ctx context.Context, sub *model.FeedbackSubmission) (*model.FeedbackRecord, error)

	// List returns records matching the filter, newest first, plus the
	// total match count for pagination.
	List(ctx context.Context, f ListFilter) ([]model.FeedbackRecord, int64, error)

	// Stats computes windowed aggregate statistics. Safe to call
	// concurrently with Submit; just-submitted records become visible
	// eventually.
	Stats(ctx context.Context, f StatsFilter) (*model.FeedbackStats, error)

	// Export returns correction records in the window as retraining
	// samples.
	Export(ctx context.Context, start, end time.Time) ([]model.TrainingSample, error)

	// AddPredictions adds to the per-day prediction counter read back by
	// Stats as total_predictions.
	AddPredictions(ctx context.Context, day time.Time, n int64) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
