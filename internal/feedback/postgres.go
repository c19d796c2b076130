package feedback

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/newscat/internal/db"
	"github.com/sells-group/newscat/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore wraps an existing pool (used by tests).
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, maxConns, minConns int32) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "feedback: parse postgres config")
	}

	if maxConns <= 0 {
		maxConns = 10
	}
	if minConns <= 0 {
		minConns = 2
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "feedback: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "feedback: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS feedback (
	id                 BIGSERIAL PRIMARY KEY,
	feedback_id        TEXT NOT NULL UNIQUE,
	prediction_id      TEXT NOT NULL,
	predicted_category TEXT,
	correct_category   TEXT,
	feedback_type      TEXT NOT NULL,
	user_id            TEXT,
	comment            TEXT,
	headline           TEXT,
	model_version      TEXT,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS prediction_counters (
	day   DATE PRIMARY KEY,
	count BIGINT NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_feedback_prediction_id ON feedback(prediction_id);
CREATE INDEX IF NOT EXISTS idx_feedback_correct_category ON feedback(correct_category);
CREATE INDEX IF NOT EXISTS idx_feedback_created_at ON feedback(created_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "feedback: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Submit(ctx context.Context, sub *model.FeedbackSubmission) (*model.FeedbackRecord, error) {
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
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO feedback (
			feedback_id, prediction_id, predicted_category, correct_category,
			feedback_type, user_id, comment, headline, model_version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`,
		rec.FeedbackID, rec.PredictionID, nilIfEmpty(rec.PredictedCategory), nilIfEmpty(rec.CorrectCategory),
		string(rec.FeedbackType), nilIfEmpty(rec.UserID), nilIfEmpty(rec.Comment),
		nilIfEmpty(rec.Headline), nilIfEmpty(rec.ModelVersion),
	).Scan(&rec.CreatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "feedback: submit")
	}
	return rec, nil
}

// feedbackColumns is the standard column list; nullable text columns are
// coalesced so rows scan straight into the model.
const feedbackColumns = `feedback_id, prediction_id,
	COALESCE(predicted_category, ''), COALESCE(correct_category, ''),
	feedback_type, COALESCE(user_id, ''), COALESCE(comment, ''),
	COALESCE(headline, ''), COALESCE(model_version, ''), created_at`

// categoryExpr resolves the effective category of a record: the corrected
// category when one was supplied, the predicted category otherwise.
const categoryExpr = `COALESCE(NULLIF(correct_category, ''), predicted_category)`

func (s *PostgresStore) List(ctx context.Context, f ListFilter) ([]model.FeedbackRecord, int64, error) {
	f.Normalize()

	where := "TRUE"
	var args []any
	add := func(clause string, v any) {
		args = append(args, v)
		where += fmt.Sprintf(" AND "+clause, len(args))
	}

	if f.FeedbackType != "" {
		add("feedback_type = $%d", string(f.FeedbackType))
	}
	if f.PredictionID != "" {
		add("prediction_id = $%d", f.PredictionID)
	}
	if f.Category != "" {
		add(categoryExpr+" = $%d", f.Category)
	}
	if !f.Start.IsZero() {
		add("created_at >= $%d", f.Start)
	}
	if !f.End.IsZero() {
		add("created_at <= $%d", f.End)
	}

	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM feedback WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, eris.Wrap(err, "feedback: count")
	}

	pageArgs := append(args, f.Limit, f.Offset)
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT `+feedbackColumns+` FROM feedback WHERE `+where+
			` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		len(args)+1, len(args)+2), pageArgs...)
	if err != nil {
		return nil, 0, eris.Wrap(err, "feedback: list")
	}
	defer rows.Close()

	var records []model.FeedbackRecord
	for rows.Next() {
		var r model.FeedbackRecord
		var ft string
		if err := rows.Scan(&r.FeedbackID, &r.PredictionID, &r.PredictedCategory, &r.CorrectCategory,
			&ft, &r.UserID, &r.Comment, &r.Headline, &r.ModelVersion, &r.CreatedAt); err != nil {
			return nil, 0, eris.Wrap(err, "feedback: scan")
		}
		r.FeedbackType = model.FeedbackType(ft)
		records = append(records, r)
	}
	return records, total, rows.Err()
}

func (s *PostgresStore) Stats(ctx context.Context, f StatsFilter) (*model.FeedbackStats, error) {
	f.Normalize(time.Now().UTC())

	stats := &model.FeedbackStats{
		PeriodStart:           f.Start,
		PeriodEnd:             f.End,
		CorrectionsByCategory: map[string]int64{},
	}

	where := "created_at >= $1 AND created_at <= $2"
	args := []any{f.Start, f.End}
	if f.Category != "" {
		where += " AND " + categoryExpr + " = $3"
		args = append(args, f.Category)
	}

	var confirmations, corrections, rejections int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE feedback_type = 'confirmation'),
			COUNT(*) FILTER (WHERE feedback_type = 'correction'),
			COUNT(*) FILTER (WHERE feedback_type = 'rejection')
		FROM feedback WHERE `+where, args...).
		Scan(&stats.TotalFeedback, &confirmations, &corrections, &rejections)
	if err != nil {
		return nil, eris.Wrap(err, "feedback: stats totals")
	}

	// Corrections tallied by the original (incorrect) prediction.
	rows, err := s.pool.Query(ctx, `
		SELECT COALESCE(NULLIF(predicted_category, ''), 'UNKNOWN'), COUNT(*)
		FROM feedback
		WHERE feedback_type = 'correction' AND `+where+`
		GROUP BY 1`, args...)
	if err != nil {
		return nil, eris.Wrap(err, "feedback: stats corrections")
	}
	defer rows.Close()
	for rows.Next() {
		var cat string
		var n int64
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, eris.Wrap(err, "feedback: scan correction tally")
		}
		stats.CorrectionsByCategory[cat] = n
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "feedback: stats corrections rows")
	}

	err = s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(count), 0) FROM prediction_counters
		WHERE day >= $1::date AND day <= $2::date`, f.Start, f.End).
		Scan(&stats.TotalPredictions)
	if err != nil {
		return nil, eris.Wrap(err, "feedback: stats prediction volume")
	}

	stats.ComputeRates(confirmations, confirmations+corrections+rejections)
	return stats, nil
}

func (s *PostgresStore) Export(ctx context.Context, start, end time.Time) ([]model.TrainingSample, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT headline, correct_category, COALESCE(predicted_category, ''), feedback_id
		FROM feedback
		WHERE feedback_type = 'correction'
			AND created_at >= $1 AND created_at <= $2
			AND headline IS NOT NULL AND headline <> ''
			AND correct_category IS NOT NULL AND correct_category <> ''
		ORDER BY created_at`, start, end)
	if err != nil {
		return nil, eris.Wrap(err, "feedback: export")
	}
	defer rows.Close()

	var samples []model.TrainingSample
	for rows.Next() {
		s := model.TrainingSample{Source: "feedback"}
		if err := rows.Scan(&s.Headline, &s.Category, &s.OriginalPrediction, &s.FeedbackID); err != nil {
			return nil, eris.Wrap(err, "feedback: scan sample")
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

func (s *PostgresStore) AddPredictions(ctx context.Context, day time.Time, n int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO prediction_counters (day, count) VALUES ($1, $2)
		ON CONFLICT (day) DO UPDATE SET count = prediction_counters.count + EXCLUDED.count`,
		day, n)
	return eris.Wrap(err, "feedback: add predictions")
}

func nilIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}
