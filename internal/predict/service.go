// Package predict implements the prediction service: request validation,
// cache consultation, model invocation and result ranking.
package predict

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/newscat/internal/cache"
	"github.com/sells-group/newscat/internal/classifier"
	"github.com/sells-group/newscat/internal/model"
)

// ErrTimeout marks a prediction that exceeded the configured deadline. The
// API layer surfaces it as PREDICTION_ERROR rather than hanging the caller.
var ErrTimeout = eris.New("predict: deadline exceeded")

// PredictionError marks a model invocation failure that is neither a
// validation problem nor a missing model. The API layer maps it to
// PREDICTION_ERROR.
type PredictionError struct {
	Err error
}

func (e *PredictionError) Error() string { return e.Err.Error() }

func (e *PredictionError) Unwrap() error { return e.Err }

// Options tunes the service.
type Options struct {
	CacheTTL         time.Duration
	Timeout          time.Duration // per-prediction model deadline; 0 disables
	BatchConcurrency int
}

// Service performs single and batch predictions. It is stateless apart from
// the shared model handle, cache and counter, and safe for any number of
// concurrent callers.
type Service struct {
	models  *classifier.Handle
	cache   cache.Cache
	counter *Counter
	opts    Options
}

// NewService creates a prediction service. counter may be nil when
// prediction volume tracking is disabled.
func NewService(models *classifier.Handle, c cache.Cache, counter *Counter, opts Options) *Service {
	if opts.BatchConcurrency <= 0 {
		opts.BatchConcurrency = 8
	}
	return &Service{models: models, cache: c, counter: counter, opts: opts}
}

// Predict validates and classifies a single article.
//
// Error mapping for callers: *model.ValidationError for bad input,
// classifier.ErrNotLoaded when no model is available, anything else is a
// processing failure.
func (s *Service) Predict(ctx context.Context, req *model.PredictionRequest, correlationID string) (*model.PredictionResult, error) {
	start := time.Now()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	snap, err := s.models.Snapshot()
	if err != nil {
		return nil, err
	}

	log := zap.L().With(
		zap.String("correlation_id", correlationID),
		zap.String("model_version", snap.Version()),
	)

	fp := cache.Fingerprint(req.Headline, req.ShortDescription)
	if entry, _ := s.cache.Get(ctx, fp); entry != nil {
		log.Debug("cache hit", zap.String("fingerprint", fp))
		s.count(1)
		return resultFromEntry(entry, start, correlationID), nil
	}

	entry, err := s.classify(ctx, snap, req)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, fp, entry, s.opts.CacheTTL); err != nil {
		log.Warn("cache store failed", zap.Error(err))
	}
	s.count(1)

	res := resultFromEntry(entry, start, correlationID)
	log.Info("prediction completed",
		zap.String("prediction_id", res.PredictionID),
		zap.String("category", res.Category),
		zap.Float64("confidence", res.Confidence),
		zap.Int64("processing_time_ms", res.ProcessingTimeMS),
	)
	return res, nil
}

// PredictBatch classifies up to model.MaxBatchSize articles. Items are
// processed concurrently; per-item failures are isolated and reported in
// the result, and the output preserves the input order.
func (s *Service) PredictBatch(ctx context.Context, articles []model.BatchArticle, correlationID string) (*model.BatchPrediction, error) {
	start := time.Now()

	if len(articles) == 0 {
		return nil, model.Invalid(eris.New("articles must not be empty"))
	}
	if len(articles) > model.MaxBatchSize {
		return nil, model.Invalid(eris.Errorf("batch exceeds %d articles", model.MaxBatchSize))
	}

	snap, err := s.models.Snapshot()
	if err != nil {
		return nil, err
	}

	results := make([]model.BatchResult, len(articles))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.BatchConcurrency)
	for i, art := range articles {
		g.Go(func() error {
			results[i] = s.predictItem(gctx, snap, art)
			return nil // item failures never abort the batch
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "predict: batch")
	}

	batch := &model.BatchPrediction{
		BatchID:           model.NewBatchID(),
		Results:           results,
		ModelVersion:      snap.Version(),
		TotalProcessingMS: time.Since(start).Milliseconds(),
		CorrelationID:     correlationID,
	}

	zap.L().Info("batch prediction completed",
		zap.String("correlation_id", correlationID),
		zap.String("batch_id", batch.BatchID),
		zap.Int("articles", len(articles)),
		zap.Int64("total_processing_time_ms", batch.TotalProcessingMS),
	)
	return batch, nil
}

func (s *Service) predictItem(ctx context.Context, snap *classifier.Snapshot, art model.BatchArticle) model.BatchResult {
	res := model.BatchResult{ID: art.ID, PredictionID: model.NewPredictionID()}

	req := &model.PredictionRequest{
		Headline:         art.Headline,
		ShortDescription: art.ShortDescription,
	}
	if err := req.Validate(); err != nil {
		res.Status = model.BatchItemError
		res.Error = err.Error()
		return res
	}

	fp := cache.Fingerprint(req.Headline, req.ShortDescription)
	entry, _ := s.cache.Get(ctx, fp)
	if entry == nil {
		var err error
		entry, err = s.classify(ctx, snap, req)
		if err != nil {
			res.Status = model.BatchItemError
			res.Error = err.Error()
			return res
		}
		_ = s.cache.Set(ctx, fp, entry, s.opts.CacheTTL)
	}
	s.count(1)

	res.Category = entry.Category
	res.Confidence = entry.Confidence
	res.Status = model.BatchItemOK
	return res
}

// classify runs the model under the configured deadline.
func (s *Service) classify(ctx context.Context, snap *classifier.Snapshot, req *model.PredictionRequest) (*cache.Entry, error) {
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	type outcome struct {
		scores []model.CategoryScore
	}
	done := make(chan outcome, 1)
	go func() {
		text := classifier.Preprocess(req.Headline, req.ShortDescription)
		done <- outcome{scores: snap.Predict(text)}
	}()

	select {
	case <-ctx.Done():
		if eris.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, &PredictionError{Err: eris.Wrap(ctx.Err(), "predict: cancelled")}
	case out := <-done:
		if len(out.scores) == 0 {
			return nil, &PredictionError{Err: eris.New("predict: model returned empty distribution")}
		}
		top := out.scores
		if len(top) > model.MaxTopCategories {
			top = top[:model.MaxTopCategories]
		}
		return &cache.Entry{
			Category:      top[0].Category,
			Confidence:    top[0].Confidence,
			TopCategories: top,
			ModelVersion:  snap.Version(),
		}, nil
	}
}

func (s *Service) count(n int64) {
	if s.counter != nil {
		s.counter.Incr(n)
	}
}

func resultFromEntry(e *cache.Entry, start time.Time, correlationID string) *model.PredictionResult {
	top := make([]model.CategoryScore, len(e.TopCategories))
	copy(top, e.TopCategories)
	return &model.PredictionResult{
		PredictionID:     model.NewPredictionID(),
		Category:         e.Category,
		Confidence:       e.Confidence,
		TopCategories:    top,
		ModelVersion:     e.ModelVersion,
		ProcessingTimeMS: time.Since(start).Milliseconds(),
		CorrelationID:    correlationID,
	}
}
