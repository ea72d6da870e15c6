package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	env := map[string]string{
		"OPR_EXECUTOR_SECRET":  "sekret",
		"S3_ENDPOINT":          "http://minio:9000",
		"S3_BUCKET":            "runtimes",
		"S3_ACCESS_KEY_ID":     "key",
		"S3_SECRET_ACCESS_KEY": "secret",
	}
	for k, v := range env {
		require.NoError(t, os.Setenv(k, v))
		key := k
		t.Cleanup(func() { _ = os.Unsetenv(key) })
	}
	t.Cleanup(viper.Reset)
}

func TestInitFailsWhenRequiredVarsMissing(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	_, err := Init()
	assert.Error(t, err)
}

func TestInitAppliesDefaultsWhenRequiredVarsPresent(t *testing.T) {
	viper.Reset()
	setRequiredEnv(t)

	cfg, err := Init()
	require.NoError(t, err)
	assert.Equal(t, "sekret", cfg.ExecutorSecret)
	assert.Equal(t, "runtimes", cfg.S3Bucket)
	assert.NotZero(t, cfg.Port)
	assert.NotZero(t, cfg.MaintenanceInterval)
}
