package model

import "time"

// JobStatus is the training job state machine. Completed and failed are
// terminal; every other status may still transition.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobStarting  JobStatus = "starting"
	JobTraining  JobStatus = "training"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// TrainingConfig holds hyperparameters forwarded to the external trainer.
type TrainingConfig struct {
	Epochs       int     `json:"epochs"`
	BatchSize    int     `json:"batch_size"`
	LearningRate float64 `json:"learning_rate"`
	ModelType    string  `json:"model_type"`
	MaxFeatures  int     `json:"max_features"`
}

// DefaultTrainingConfig returns the trainer defaults.
func DefaultTrainingConfig() TrainingConfig {
	return TrainingConfig{
		Epochs:       10,
		BatchSize:    32,
		LearningRate: 0.001,
		ModelType:    "logistic_regression",
		MaxFeatures:  10000,
	}
}

// TrainingJob tracks one submitted training run.
type TrainingJob struct {
	JobID           string             `json:"training_job_id"`
	Status          JobStatus          `json:"status"`
	Progress        float64            `json:"progress"`
	Config          TrainingConfig     `json:"config"`
	IncludeFeedback bool               `json:"include_feedback"`
	Description     string             `json:"description,omitempty"`
	ModelVersion    string             `json:"model_version,omitempty"`
	Metrics         map[string]float64 `json:"metrics,omitempty"`
	Error           string             `json:"error_message,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	StartedAt       *time.Time         `json:"started_at,omitempty"`
	FinishedAt      *time.Time         `json:"finished_at,omitempty"`
}

// ModelVersion describes one immutable published model artifact.
type ModelVersion struct {
	Version       string             `json:"version"`
	Status        string             `json:"status"`
	CreatedAt     time.Time          `json:"created_at"`
	Metrics       map[string]float64 `json:"metrics"`
	TrainingJobID string             `json:"training_job_id,omitempty"`
	IsProduction  bool               `json:"is_production"`
}
