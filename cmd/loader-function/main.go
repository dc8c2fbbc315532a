package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/Lllllllleong/iotloader/internal/config"
	"github.com/Lllllllleong/iotloader/internal/services"
)

var (
	loaderInstance *services.LoaderFunction
	uploadStore    *services.UploadStore
	once           sync.Once
	initErr        error
)

// GenerateEvent is the CloudEvent payload that starts a run for uploads
// already present in the store.
type GenerateEvent struct {
	AgreementID string `json:"agreementId"`
	BatchID     string `json:"batchId"`
	Model       string `json:"model"`
}

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.CloudEvent("GenerateLoader", generateLoader)
}

// main is required by the Go Functions Framework.
func main() {}

// openUploadStore opens the store the uploader writes to. Function instances
// have no shared local disk, so LOADER_UPLOADS_DIR must be a mounted volume
// (a Cloud Storage FUSE or Filestore mount) holding the uploader's layout;
// an empty local directory is refused rather than created.
func openUploadStore(cfg *config.Config) (*services.UploadStore, error) {
	store := services.NewUploadStore(cfg.UploadsDir, cfg.MaxUploadBytes)
	if err := store.CheckLayout(); err != nil {
		return nil, fmt.Errorf("LOADER_UPLOADS_DIR must point at the shared uploads volume: %w", err)
	}
	return store, nil
}

func generateLoader(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		var cfg *config.Config
		cfg, initErr = config.Load()
		if initErr != nil {
			return
		}
		uploadStore, initErr = openUploadStore(cfg)
		if initErr != nil {
			return
		}
		loaderInstance, initErr = services.NewLoader(context.Background(), cfg)
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var event GenerateEvent
	if err := json.Unmarshal(e.Data(), &event); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	req, err := uploadStore.Request(event.AgreementID, event.BatchID, event.Model)
	if err != nil {
		slog.Error("Failed to resolve uploads", "error", err, "agreementId", event.AgreementID, "batchId", event.BatchID)
		return err
	}

	resp, err := loaderInstance.Process(ctx, req)
	if err != nil {
		// Process logs with run context; returning marks the invocation failed.
		return err
	}
	slog.Info("Loader run finished.", "runId", resp.RunID, "outputDir", resp.OutputDir, "excelFiles", len(resp.LoaderExcelPaths))
	return nil
}
