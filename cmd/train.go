package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/newscat/internal/classifier"
	"github.com/sells-group/newscat/internal/model"
	"github.com/sells-group/newscat/internal/training"
	"github.com/sells-group/newscat/pkg/trainer"
)

var (
	trainIncludeFeedback bool
	trainDescription     string
	trainWait            bool
	trainEpochs          int
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Submit a training job to the training backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if cfg.Trainer.BaseURL == "" {
			return eris.New("trainer.base_url is not configured")
		}

		store, err := openStore(ctx, cfg.Store)
		if err != nil {
			return eris.Wrap(err, "open store")
		}
		defer store.Close()

		artifacts := classifier.NewArtifactStore(cfg.Classifier.ArtifactRoot)
		models := classifier.NewHandle(artifacts)
		orch := training.NewOrchestrator(
			trainer.NewClient(cfg.Trainer.BaseURL),
			store, models, artifacts,
			training.Options{PollInterval: cfg.Trainer.PollInterval()},
		)

		tc := model.DefaultTrainingConfig()
		if trainEpochs > 0 {
			tc.Epochs = trainEpochs
		}

		job, err := orch.StartTraining(ctx, training.StartOptions{
			Config:          tc,
			IncludeFeedback: trainIncludeFeedback,
			Description:     trainDescription,
		})
		if err != nil {
			return eris.Wrap(err, "start training")
		}

		zap.L().Info("training job submitted", zap.String("job_id", job.JobID))
		if !trainWait {
			return nil
		}

		client := trainer.NewClient(cfg.Trainer.BaseURL)
		ticker := time.NewTicker(cfg.Trainer.PollInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}

			state, err := client.JobStatus(ctx, job.JobID)
			if err != nil {
				zap.L().Warn("poll failed", zap.Error(err))
				continue
			}
			zap.L().Info("training job",
				zap.String("job_id", job.JobID),
				zap.String("status", string(state.Status)),
				zap.Float64("progress", state.Progress),
			)
			if state.Status == model.JobCompleted {
				zap.L().Info("training completed", zap.String("model_version", state.ModelVersion))
				return nil
			}
			if state.Status == model.JobFailed {
				return eris.Errorf("training failed: %s", state.Error)
			}
		}
	},
}

func init() {
	trainCmd.Flags().BoolVar(&trainIncludeFeedback, "include-feedback", true, "include correction feedback as training samples")
	trainCmd.Flags().StringVar(&trainDescription, "description", "", "job description")
	trainCmd.Flags().BoolVar(&trainWait, "wait", false, "poll until the job finishes")
	trainCmd.Flags().IntVar(&trainEpochs, "epochs", 0, "override training epochs")
	rootCmd.AddCommand(trainCmd)
}
