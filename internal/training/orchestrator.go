// Package training drives retraining runs against the external training
// service and publishes the resulting model versions.
package training

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/newscat/internal/classifier"
	"github.com/sells-group/newscat/internal/feedback"
	"github.com/sells-group/newscat/internal/model"
	"github.com/sells-group/newscat/pkg/trainer"
)

// ErrJobNotFound is returned when a job id is not in the registry.
var ErrJobNotFound = eris.New("training: job not found")

// FeedbackExportWindow bounds how far back corrections are collected when a
// job requests feedback samples.
const FeedbackExportWindow = 90 * 24 * time.Hour

// StartOptions configures one training run.
type StartOptions struct {
	Config          model.TrainingConfig
	IncludeFeedback bool
	Description     string
}

// Options configures the orchestrator.
type Options struct {
	PollInterval time.Duration
	// AutoDeploy loads a completed job's model version immediately.
	AutoDeploy bool
}

// Orchestrator submits jobs to the training service, tracks them in an
// in-memory registry, and promotes finished artifacts. Job history does not
// survive a restart; the artifact store is the durable record.
type Orchestrator struct {
	client    trainer.Client
	store     feedback.Store
	models    *classifier.Handle
	artifacts *classifier.ArtifactStore
	opts      Options

	mu   sync.RWMutex
	jobs map[string]*model.TrainingJob
	seq  []string // job ids in submission order
}

func NewOrchestrator(client trainer.Client, store feedback.Store, models *classifier.Handle, artifacts *classifier.ArtifactStore, opts Options) *Orchestrator {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 30 * time.Second
	}
	return &Orchestrator{
		client:    client,
		store:     store,
		models:    models,
		artifacts: artifacts,
		opts:      opts,
		jobs:      map[string]*model.TrainingJob{},
	}
}

// StartTraining submits a job and returns without waiting for it to run.
// Progress is observed by the Run poll loop.
func (o *Orchestrator) StartTraining(ctx context.Context, opts StartOptions) (*model.TrainingJob, error) {
	job := &model.TrainingJob{
		JobID:           model.NewTrainingJobID(),
		Status:          model.JobQueued,
		Config:          opts.Config,
		IncludeFeedback: opts.IncludeFeedback,
		Description:     opts.Description,
		CreatedAt:       time.Now().UTC(),
	}

	req := &trainer.StartRequest{JobID: job.JobID, Config: job.Config}
	if opts.IncludeFeedback {
		end := time.Now().UTC()
		samples, err := o.store.Export(ctx, end.Add(-FeedbackExportWindow), end)
		if err != nil {
			return nil, eris.Wrap(err, "training: export feedback samples")
		}
		req.Samples = samples
	}

	state, err := o.client.StartJob(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "training: submit job")
	}
	if state.Status != "" {
		job.Status = state.Status
	}

	o.mu.Lock()
	o.jobs[job.JobID] = job
	o.seq = append(o.seq, job.JobID)
	o.mu.Unlock()

	zap.L().Info("training job submitted",
		zap.String("job_id", job.JobID),
		zap.Bool("include_feedback", opts.IncludeFeedback),
		zap.Int("samples", len(req.Samples)))
	return cloneJob(job), nil
}

// GetJob returns a snapshot of one job.
func (o *Orchestrator) GetJob(jobID string) (*model.TrainingJob, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	job, ok := o.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return cloneJob(job), nil
}

// ListJobs returns all tracked jobs, newest first.
func (o *Orchestrator) ListJobs() []model.TrainingJob {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]model.TrainingJob, 0, len(o.seq))
	for i := len(o.seq) - 1; i >= 0; i-- {
		out = append(out, *cloneJob(o.jobs[o.seq[i]]))
	}
	return out
}

// Run polls the training service for non-terminal jobs until ctx is done.
func (o *Orchestrator) Run(ctx context.Context) {
	ticker := time.NewTicker(o.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.pollOnce(ctx)
		}
	}
}

func (o *Orchestrator) pollOnce(ctx context.Context) {
	o.mu.RLock()
	var pending []string
	for id, job := range o.jobs {
		if !job.Status.Terminal() {
			pending = append(pending, id)
		}
	}
	o.mu.RUnlock()

	for _, id := range pending {
		state, err := o.client.JobStatus(ctx, id)
		if err != nil {
			zap.L().Warn("training job poll failed", zap.String("job_id", id), zap.Error(err))
			continue
		}
		o.apply(id, state)
	}
}

// apply folds a service-side state into the registry and promotes completed
// jobs.
func (o *Orchestrator) apply(jobID string, state *trainer.JobState) {
	o.mu.Lock()
	job, ok := o.jobs[jobID]
	if !ok || job.Status.Terminal() {
		o.mu.Unlock()
		return
	}

	prev := job.Status
	job.Status = state.Status
	job.Progress = state.Progress
	now := time.Now().UTC()
	if prev == model.JobQueued && state.Status != model.JobQueued && job.StartedAt == nil {
		job.StartedAt = &now
	}
	switch state.Status {
	case model.JobCompleted:
		job.ModelVersion = state.ModelVersion
		job.Metrics = state.Metrics
		job.Progress = 1
		job.FinishedAt = &now
	case model.JobFailed:
		job.Error = state.Error
		job.FinishedAt = &now
	}
	completed := state.Status == model.JobCompleted
	o.mu.Unlock()

	if prev != state.Status {
		zap.L().Info("training job status changed",
			zap.String("job_id", jobID),
			zap.String("from", string(prev)),
			zap.String("to", string(state.Status)))
	}

	if completed && o.opts.AutoDeploy && state.ModelVersion != "" {
		if err := o.models.Load(state.ModelVersion); err != nil {
			zap.L().Error("deploy of trained model failed",
				zap.String("job_id", jobID),
				zap.String("version", state.ModelVersion),
				zap.Error(err))
		}
	}
}

// ListVersions enumerates published artifacts, newest first, flagging the one
// currently serving predictions.
func (o *Orchestrator) ListVersions() ([]model.ModelVersion, error) {
	manifests, err := o.artifacts.Versions()
	if err != nil {
		return nil, eris.Wrap(err, "training: list versions")
	}

	active := o.models.Version()
	out := make([]model.ModelVersion, 0, len(manifests))
	for _, m := range manifests {
		v := model.ModelVersion{
			Version:       m.Version,
			Status:        "available",
			CreatedAt:     m.CreatedAt,
			Metrics:       m.Metrics,
			TrainingJobID: m.TrainingJobID,
		}
		if m.Version == active {
			v.Status = "deployed"
			v.IsProduction = true
		}
		out = append(out, v)
	}
	return out, nil
}

// Deploy switches the serving model to the named version.
func (o *Orchestrator) Deploy(version string) error {
	if err := o.models.Load(version); err != nil {
		return eris.Wrapf(err, "training: deploy %s", version)
	}
	return nil
}

func cloneJob(j *model.TrainingJob) *model.TrainingJob {
	out := *j
	if j.Metrics != nil {
		out.Metrics = make(map[string]float64, len(j.Metrics))
		for k, v := range j.Metrics {
			out.Metrics[k] = v
		}
	}
	return &out
}
