package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/iotloader/internal/models"
	"github.com/Lllllllleong/iotloader/internal/services"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 2, exitCode(fmt.Errorf("x: %w", services.ErrNoTemplate)))
	assert.Equal(t, 3, exitCode(services.ErrNoExcelOutputs))
	assert.Equal(t, 1, exitCode(errors.New("boom")))
}

func TestUploadCommand(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("LOADER_BASE_DIR", dir)
	agreement := filepath.Join(dir, "deal.txt")
	standard := filepath.Join(dir, "std.txt")
	require.NoError(t, os.WriteFile(agreement, []byte("terms"), 0o644))
	require.NoError(t, os.WriteFile(standard, []byte("std"), 0o644))

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"upload", "--agreement", agreement, "--standard", standard})
	require.NoError(t, cmd.Execute())

	var stored models.StoredUpload
	require.NoError(t, json.Unmarshal(out.Bytes(), &stored))
	assert.NotEmpty(t, stored.AgreementID)
	assert.Equal(t, stored.AgreementID+"__deal.txt", stored.AgreementStoredFilename)
	assert.NotEmpty(t, stored.BatchID)
	assert.Len(t, stored.StandardStoredFilenames, 1)
	assert.FileExists(t, filepath.Join(dir, "uploads", "agreements", stored.AgreementStoredFilename))
}

func TestGenerateCommandRequiresInputs(t *testing.T) {
	t.Setenv("LOADER_BASE_DIR", t.TempDir())
	cmd := newRootCmd()
	cmd.SetArgs([]string{"generate"})
	require.ErrorContains(t, cmd.Execute(), "--agreement-id")
}
