package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/iotloader/internal/config"
	"github.com/Lllllllleong/iotloader/internal/services"
)

func TestGenerateEventPayload(t *testing.T) {
	var e GenerateEvent
	require.NoError(t, json.Unmarshal([]byte(`{"agreementId":"a1","batchId":"b1","model":"gemini-1.5-pro"}`), &e))
	assert.Equal(t, GenerateEvent{AgreementID: "a1", BatchID: "b1", Model: "gemini-1.5-pro"}, e)
}

func TestOpenUploadStoreRequiresSharedLayout(t *testing.T) {
	root := filepath.Join(t.TempDir(), "uploads")
	cfg := &config.Config{UploadsDir: root}

	_, err := openUploadStore(cfg)
	require.ErrorContains(t, err, "LOADER_UPLOADS_DIR")
	assert.NoDirExists(t, root)

	require.NoError(t, services.NewUploadStore(root, 0).EnsureDirs())
	store, err := openUploadStore(cfg)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "agreements"), store.AgreementsDir())
}

func TestOpenUploadStoreRejectsFileInPlaceOfDir(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "agreements"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "standards"), []byte("x"), 0o644))

	_, err := openUploadStore(&config.Config{UploadsDir: root})
	require.ErrorContains(t, err, "not a directory")
}
