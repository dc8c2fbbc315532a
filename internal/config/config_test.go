package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LOADER_BASE_DIR", "/srv/loader")
	t.Setenv("PROJECT_ID", "proj")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendVertex, cfg.Backend)
	assert.Equal(t, 60*time.Second, cfg.LLMTimeout)
	assert.Equal(t, 2, cfg.Retries)
	assert.Equal(t, 1, cfg.RepairRetries)
	assert.Equal(t, 60000, cfg.MaxCharsPerFile)
	assert.Equal(t, 220000, cfg.MaxTotalChars)
	assert.Equal(t, 5000, cfg.MinCharsPerStandard)
	assert.EqualValues(t, 15*1024*1024, cfg.MaxUploadBytes)
	assert.Equal(t, filepath.Join("/srv/loader", "uploads"), cfg.UploadsDir)
	assert.Equal(t, filepath.Join("/srv/loader", "output"), cfg.OutputDir)
	require.NoError(t, cfg.Validate())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LLM_BACKEND", "Gemini")
	t.Setenv("GOOGLE_API_KEY", "key")
	t.Setenv("LLM_TIMEOUT_SECONDS", "5")
	t.Setenv("LLM_RETRIES", "0")
	t.Setenv("ARTIFACT_S3_USE_SSL", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendGemini, cfg.Backend)
	assert.Equal(t, "key", cfg.GeminiAPIKey)
	assert.Equal(t, 5*time.Second, cfg.LLMTimeout)
	assert.Equal(t, 0, cfg.Retries)
	assert.True(t, cfg.S3.UseSSL)
	require.NoError(t, cfg.Validate())
}

func TestLoadRejectsBadNumbers(t *testing.T) {
	t.Setenv("LLM_RETRIES", "two")
	_, err := Load()
	require.ErrorContains(t, err, "LLM_RETRIES")
}

func TestValidate(t *testing.T) {
	base := Config{
		Backend: BackendVertex, ProjectID: "p", Model: "m",
		MaxCharsPerFile: 1, MaxTotalChars: 1, MaxUploadBytes: 1,
	}

	cfg := base
	cfg.ProjectID = ""
	assert.ErrorContains(t, cfg.Validate(), "PROJECT_ID")

	cfg = base
	cfg.Backend = BackendGemini
	assert.ErrorContains(t, cfg.Validate(), "GEMINI_API_KEY")

	cfg = base
	cfg.Backend = "openai"
	assert.ErrorContains(t, cfg.Validate(), "unknown LLM_BACKEND")

	cfg = base
	cfg.Retries = -1
	assert.Error(t, cfg.Validate())
}
