package feedback

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/newscat/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Intended for
// local development and single-node deployments.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	d, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "feedback: sqlite open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := d.Exec(pragma); err != nil {
			d.Close()
			return nil, eris.Wrapf(err, "feedback: sqlite exec %s", pragma)
		}
	}
	return &SQLiteStore{db: d}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS feedback (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	feedback_id        TEXT NOT NULL UNIQUE,
	prediction_id      TEXT NOT NULL,
	predicted_category TEXT NOT NULL DEFAULT '',
	correct_category   TEXT NOT NULL DEFAULT '',
	feedback_type      TEXT NOT NULL,
	user_id            TEXT NOT NULL DEFAULT '',
	comment            TEXT NOT NULL DEFAULT '',
	headline           TEXT NOT NULL DEFAULT '',
	model_version      TEXT NOT NULL DEFAULT '',
	created_at         DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS prediction_counters (
	day   TEXT PRIMARY KEY,
	count INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_feedback_prediction_id ON feedback(prediction_id);
CREATE INDEX IF NOT EXISTS idx_feedback_correct_category ON feedback(correct_category);
CREATE INDEX IF NOT EXISTS idx_feedback_created_at ON feedback(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "feedback: sqlite migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Submit(ctx context.Context, sub *model.FeedbackSubmission) (*model.FeedbackRecord, error) {
	if err := sub.Validate(); err != nil {
		return nil, err
	}

	rec := &model.FeedbackRecord{
		FeedbackID:        model.NewFeedbackID(),
		PredictionID:      sub.PredictionID,
		PredictedCategory: sub.PredictedCategory,
		CorrectCategory:   sub.CorrectCategory,
		FeedbackType:      sub.FeedbackType,
		UserID:            sub.UserID,
		Comment:           sub.Comment,
		Headline:          sub.Headline,
		ModelVersion:      sub.ModelVersion,
		CreatedAt:         time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback (
			feedback_id, prediction_id, predicted_category, correct_category,
			feedback_type, user_id, comment, headline, model_version, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.FeedbackID, rec.PredictionID, rec.PredictedCategory, rec.CorrectCategory,
		string(rec.FeedbackType), rec.UserID, rec.Comment, rec.Headline, rec.ModelVersion,
		rec.CreatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "feedback: sqlite submit")
	}
	return rec, nil
}

// sqliteCategoryExpr mirrors the postgres expression for the effective
// category of a record.
const sqliteCategoryExpr = `CASE WHEN correct_category <> '' THEN correct_category ELSE predicted_category END`

func (s *SQLiteStore) List(ctx context.Context, f ListFilter) ([]model.FeedbackRecord, int64, error) {
	f.Normalize()

	where := "1=1"
	var args []any
	if f.FeedbackType != "" {
		where += " AND feedback_type = ?"
		args = append(args, string(f.FeedbackType))
	}
	if f.PredictionID != "" {
		where += " AND prediction_id = ?"
		args = append(args, f.PredictionID)
	}
	if f.Category != "" {
		where += " AND " + sqliteCategoryExpr + " = ?"
		args = append(args, f.Category)
	}
	if !f.Start.IsZero() {
		where += " AND created_at >= ?"
		args = append(args, f.Start)
	}
	if !f.End.IsZero() {
		where += " AND created_at <= ?"
		args = append(args, f.End)
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM feedback WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, eris.Wrap(err, "feedback: sqlite count")
	}

	pageArgs := append(args, f.Limit, f.Offset)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT feedback_id, prediction_id, predicted_category, correct_category,
			feedback_type, user_id, comment, headline, model_version, created_at
		FROM feedback WHERE %s
		ORDER BY created_at DESC LIMIT ? OFFSET ?`, where), pageArgs...)
	if err != nil {
		return nil, 0, eris.Wrap(err, "feedback: sqlite list")
	}
	defer rows.Close()

	var records []model.FeedbackRecord
	for rows.Next() {
		var r model.FeedbackRecord
		var ft string
		if err := rows.Scan(&r.FeedbackID, &r.PredictionID, &r.PredictedCategory, &r.CorrectCategory,
			&ft, &r.UserID, &r.Comment, &r.Headline, &r.ModelVersion, &r.CreatedAt); err != nil {
			return nil, 0, eris.Wrap(err, "feedback: sqlite scan")
		}
		r.FeedbackType = model.FeedbackType(ft)
		records = append(records, r)
	}
	return records, total, rows.Err()
}

func (s *SQLiteStore) Stats(ctx context.Context, f StatsFilter) (*model.FeedbackStats, error) {
	f.Normalize(time.Now().UTC())

	stats := &model.FeedbackStats{
		PeriodStart:           f.Start,
		PeriodEnd:             f.End,
		CorrectionsByCategory: map[string]int64{},
	}

	where := "created_at >= ? AND created_at <= ?"
	args := []any{f.Start, f.End}
	if f.Category != "" {
		where += " AND " + sqliteCategoryExpr + " = ?"
		args = append(args, f.Category)
	}

	var confirmations, corrections, rejections int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(feedback_type = 'confirmation'), 0),
			COALESCE(SUM(feedback_type = 'correction'), 0),
			COALESCE(SUM(feedback_type = 'rejection'), 0)
		FROM feedback WHERE `+where, args...).
		Scan(&stats.TotalFeedback, &confirmations, &corrections, &rejections)
	if err != nil {
		return nil, eris.Wrap(err, "feedback: sqlite stats totals")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT CASE WHEN predicted_category <> '' THEN predicted_category ELSE 'UNKNOWN' END, COUNT(*)
		FROM feedback
		WHERE feedback_type = 'correction' AND `+where+`
		GROUP BY 1`, args...)
	if err != nil {
		return nil, eris.Wrap(err, "feedback: sqlite stats corrections")
	}
	defer rows.Close()
	for rows.Next() {
		var cat string
		var n int64
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, eris.Wrap(err, "feedback: sqlite scan correction tally")
		}
		stats.CorrectionsByCategory[cat] = n
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "feedback: sqlite stats corrections rows")
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(count), 0) FROM prediction_counters
		WHERE day >= ? AND day <= ?`,
		f.Start.Format("2006-01-02"), f.End.Format("2006-01-02")).
		Scan(&stats.TotalPredictions)
	if err != nil {
		return nil, eris.Wrap(err, "feedback: sqlite stats prediction volume")
	}

	stats.ComputeRates(confirmations, confirmations+corrections+rejections)
	return stats, nil
}

func (s *SQLiteStore) Export(ctx context.Context, start, end time.Time) ([]model.TrainingSample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT headline, correct_category, predicted_category, feedback_id
		FROM feedback
		WHERE feedback_type = 'correction'
			AND created_at >= ? AND created_at <= ?
			AND headline <> '' AND correct_category <> ''
		ORDER BY created_at`, start, end)
	if err != nil {
		return nil, eris.Wrap(err, "feedback: sqlite export")
	}
	defer rows.Close()

	var samples []model.TrainingSample
	for rows.Next() {
		sm := model.TrainingSample{Source: "feedback"}
		if err := rows.Scan(&sm.Headline, &sm.Category, &sm.OriginalPrediction, &sm.FeedbackID); err != nil {
			return nil, eris.Wrap(err, "feedback: sqlite scan sample")
		}
		samples = append(samples, sm)
	}
	return samples, rows.Err()
}

func (s *SQLiteStore) AddPredictions(ctx context.Context, day time.Time, n int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO prediction_counters (day, count) VALUES (?, ?)
		ON CONFLICT (day) DO UPDATE SET count = count + excluded.count`,
		day.Format("2006-01-02"), n)
	return eris.Wrap(err, "feedback: sqlite add predictions")
}
