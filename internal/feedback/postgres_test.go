package feedback

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/newscat/internal/model"
)

func init() {
	// Replace global logger with a no-op to avoid nil pointer panics in tests.
	zap.ReplaceGlobals(zap.NewNop())
}

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresStore(mock), mock
}

func TestPostgres_Migrate(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS feedback").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, st.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Submit(t *testing.T) {
	st, mock := newMockStore(t)
	now := time.Now().UTC()

	// feedback_id is generated server-side; the remaining empty optional
	// columns are stored as NULL.
	mock.ExpectQuery("INSERT INTO feedback").
		WithArgs(pgxmock.AnyArg(), "pred_0011aabbccdd", "SPORTS", nil,
			"confirmation", nil, nil, nil, nil).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(now))

	rec, err := st.Submit(context.Background(), &model.FeedbackSubmission{
		PredictionID:      "pred_0011aabbccdd",
		PredictedCategory: "SPORTS",
		FeedbackType:      model.FeedbackConfirmation,
	})
	require.NoError(t, err)
	assert.Regexp(t, `^fb_[0-9a-f]{12}$`, rec.FeedbackID)
	assert.Equal(t, now, rec.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Submit_ValidatesBeforeQuerying(t *testing.T) {
	st, mock := newMockStore(t)

	_, err := st.Submit(context.Background(), &model.FeedbackSubmission{
		FeedbackType: model.FeedbackConfirmation, // missing prediction_id
	})
	require.Error(t, err)

	var verr *model.ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_List(t *testing.T) {
	st, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM feedback").
		WithArgs("correction").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))

	mock.ExpectQuery("SELECT feedback_id, prediction_id").
		WithArgs("correction", 10, 0).
		WillReturnRows(pgxmock.NewRows([]string{
			"feedback_id", "prediction_id", "predicted_category", "correct_category",
			"feedback_type", "user_id", "comment", "headline", "model_version", "created_at",
		}).AddRow(
			"fb_001122334455", "pred_0011aabbccdd", "POLITICS", "WORLD NEWS",
			"correction", "", "", "Summit talks resume", "v20260801120000", now,
		))

	records, total, err := st.List(context.Background(), ListFilter{FeedbackType: model.FeedbackCorrection})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, records, 1)
	assert.Equal(t, model.FeedbackCorrection, records[0].FeedbackType)
	assert.Equal(t, "WORLD NEWS", records[0].CorrectCategory)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Stats(t *testing.T) {
	st, mock := newMockStore(t)

	// Every stats query is bounded by the normalized window.
	mock.ExpectQuery("SELECT COUNT\\(\\*\\),").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"total", "conf", "corr", "rej"}).
			AddRow(int64(10), int64(6), int64(3), int64(1)))

	mock.ExpectQuery("FROM feedback").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"category", "count"}).
			AddRow("POLITICS", int64(2)).
			AddRow("SPORTS", int64(1)))

	mock.ExpectQuery("FROM prediction_counters").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"sum"}).AddRow(int64(100)))

	stats, err := st.Stats(context.Background(), StatsFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(10), stats.TotalFeedback)
	assert.Equal(t, int64(100), stats.TotalPredictions)
	assert.InDelta(t, 0.1, stats.FeedbackRate, 1e-9)
	assert.InDelta(t, 0.6, stats.AccuracyFromFeedback, 1e-9)
	assert.Equal(t, map[string]int64{"POLITICS": 2, "SPORTS": 1}, stats.CorrectionsByCategory)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Export(t *testing.T) {
	st, mock := newMockStore(t)
	start := time.Now().Add(-24 * time.Hour)
	end := time.Now()

	mock.ExpectQuery("SELECT headline, correct_category").
		WithArgs(start, end).
		WillReturnRows(pgxmock.NewRows([]string{"headline", "correct_category", "predicted_category", "feedback_id"}).
			AddRow("Summit talks resume", "WORLD NEWS", "POLITICS", "fb_001122334455"))

	samples, err := st.Export(context.Background(), start, end)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, "WORLD NEWS", samples[0].Category)
	assert.Equal(t, "feedback", samples[0].Source)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_AddPredictions(t *testing.T) {
	st, mock := newMockStore(t)
	day := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO prediction_counters").
		WithArgs(day, int64(25)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, st.AddPredictions(context.Background(), day, 25))
	assert.NoError(t, mock.ExpectationsWereMet())
}
