package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 50.0, cfg.Server.RatePerSecond)
	assert.Equal(t, 100, cfg.Server.RateBurst)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "redis", cfg.Cache.Driver)
	assert.Equal(t, 30, cfg.Cache.TTLMinutes)
	assert.True(t, cfg.Cache.InvalidateOnReload)
	assert.Equal(t, "models", cfg.Classifier.ArtifactRoot)
	assert.True(t, cfg.Classifier.Watch)
	assert.Equal(t, 500, cfg.Predict.TimeoutMS)
	assert.Equal(t, 8, cfg.Predict.BatchConcurrency)
	assert.Equal(t, 30, cfg.Trainer.PollSecs)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("NEWSCAT_SERVER_PORT", "9191")
	t.Setenv("NEWSCAT_STORE_DRIVER", "sqlite")
	t.Setenv("NEWSCAT_CACHE_TTL_MINUTES", "5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 5, cfg.Cache.TTLMinutes)
}

func TestDurationHelpers(t *testing.T) {
	assert.Equal(t, 30*time.Minute, CacheConfig{TTLMinutes: 30}.TTL())
	assert.Equal(t, 500*time.Millisecond, PredictConfig{TimeoutMS: 500}.Timeout())
	assert.Equal(t, 45*time.Second, TrainerConfig{PollSecs: 45}.PollInterval())
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.Error(t, InitLogger(LogConfig{Level: "nope", Format: "json"}))
}
