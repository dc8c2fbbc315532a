package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendVertex = "vertex"
	BackendGemini = "gemini"
)

// S3 holds the optional S3/MinIO mirror settings. Mirroring is off when
// Endpoint is empty.
type S3 struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Config is everything the loader pipeline reads from the environment.
type Config struct {
	Backend      string
	ProjectID    string
	VertexRegion string
	GeminiAPIKey string
	Model        string

	LLMTimeout    time.Duration
	Retries       int
	RepairRetries int

	BaseDir    string
	UploadsDir string
	OutputDir  string

	MaxCharsPerFile     int
	MaxTotalChars       int
	MinCharsPerStandard int
	MaxUploadBytes      int64

	ArtifactBucket   string
	S3               S3
	LedgerCollection string
}

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(GetEnv(key, ""))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

// Load reads a .env file when present and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Could not load .env file.", "error", err)
	}

	baseDir := GetEnv("LOADER_BASE_DIR", ".")
	cfg := &Config{
		Backend:          strings.ToLower(GetEnv("LLM_BACKEND", BackendVertex)),
		ProjectID:        GetEnv("PROJECT_ID", ""),
		VertexRegion:     GetEnv("VERTEX_AI_REGION", "us-central1"),
		GeminiAPIKey:     firstNonEmpty(os.Getenv("GEMINI_API_KEY"), os.Getenv("GOOGLE_API_KEY")),
		Model:            GetEnv("LOADER_MODEL", "gemini-1.5-pro"),
		BaseDir:          baseDir,
		UploadsDir:       GetEnv("LOADER_UPLOADS_DIR", filepath.Join(baseDir, "uploads")),
		OutputDir:        GetEnv("LOADER_OUTPUT_DIR", filepath.Join(baseDir, "output")),
		ArtifactBucket:   GetEnv("ARTIFACT_GCS_BUCKET", ""),
		LedgerCollection: GetEnv("RUN_LEDGER_COLLECTION", ""),
		S3: S3{
			Endpoint:  GetEnv("ARTIFACT_S3_ENDPOINT", ""),
			Region:    GetEnv("ARTIFACT_S3_REGION", "us-east-1"),
			AccessKey: GetEnv("ARTIFACT_S3_ACCESS_KEY", ""),
			SecretKey: GetEnv("ARTIFACT_S3_SECRET_KEY", ""),
			Bucket:    GetEnv("ARTIFACT_S3_BUCKET", ""),
		},
	}

	timeoutSeconds, err := getInt("LLM_TIMEOUT_SECONDS", 60)
	if err != nil {
		return nil, err
	}
	cfg.LLMTimeout = time.Duration(timeoutSeconds) * time.Second
	if cfg.Retries, err = getInt("LLM_RETRIES", 2); err != nil {
		return nil, err
	}
	if cfg.RepairRetries, err = getInt("LLM_REPAIR_RETRIES", 1); err != nil {
		return nil, err
	}
	if cfg.MaxCharsPerFile, err = getInt("LOADER_MAX_CHARS_PER_FILE", 60000); err != nil {
		return nil, err
	}
	if cfg.MaxTotalChars, err = getInt("LOADER_MAX_TOTAL_CHARS", 220000); err != nil {
		return nil, err
	}
	if cfg.MinCharsPerStandard, err = getInt("LOADER_MIN_CHARS_PER_STANDARD", 5000); err != nil {
		return nil, err
	}
	maxUpload, err := getInt("LOADER_MAX_UPLOAD_BYTES", 15*1024*1024)
	if err != nil {
		return nil, err
	}
	cfg.MaxUploadBytes = int64(maxUpload)

	if raw := strings.TrimSpace(GetEnv("ARTIFACT_S3_USE_SSL", "")); raw != "" {
		useSSL, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("ARTIFACT_S3_USE_SSL: %w", err)
		}
		cfg.S3.UseSSL = useSSL
	}
	return cfg, nil
}

// Validate checks backend credentials and numeric limits.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendVertex:
		if c.ProjectID == "" {
			return fmt.Errorf("PROJECT_ID environment variable must be set for the vertex backend")
		}
	case BackendGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY or GOOGLE_API_KEY must be set for the gemini backend")
		}
	default:
		return fmt.Errorf("unknown LLM_BACKEND %q", c.Backend)
	}
	if c.Model == "" {
		return fmt.Errorf("LOADER_MODEL must not be empty")
	}
	if c.Retries < 0 || c.RepairRetries < 0 {
		return fmt.Errorf("retry counts must not be negative")
	}
	if c.MaxCharsPerFile <= 0 || c.MaxTotalChars <= 0 || c.MinCharsPerStandard < 0 {
		return fmt.Errorf("character limits must be positive")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("LOADER_MAX_UPLOAD_BYTES must be positive")
	}
	if c.LedgerCollection != "" && c.ProjectID == "" {
		return fmt.Errorf("PROJECT_ID must be set when RUN_LEDGER_COLLECTION is set")
	}
	return nil
}
