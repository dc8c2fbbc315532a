package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Lllllllleong/iotloader/internal/config"
	"github.com/Lllllllleong/iotloader/internal/models"
	"github.com/Lllllllleong/iotloader/internal/services"
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("loadergen failed", "error", err, "fault", services.Classify(err).String())
		stop()
		os.Exit(exitCode(err))
	}
}

// exitCode maps run faults onto process exit codes.
func exitCode(err error) int {
	switch services.Classify(err) {
	case services.FaultNone:
		return 0
	case services.FaultClientInput:
		return 2
	case services.FaultUpstream:
		return 3
	case services.FaultUpstreamTimeout:
		return 4
	}
	return 1
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "loadergen",
		Short:         "Generate IOT loader data and spreadsheets from roaming agreements",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newUploadCmd(), newGenerateCmd())
	return root
}

func newUploadCmd() *cobra.Command {
	var (
		agreement string
		standards []string
	)
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Store an agreement and a batch of standard documents",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			store := services.NewUploadStore(cfg.UploadsDir, cfg.MaxUploadBytes)
			if err := store.EnsureDirs(); err != nil {
				return err
			}

			var out models.StoredUpload
			if agreement != "" {
				out.AgreementID, out.AgreementStoredFilename, err = store.StoreAgreement(agreement)
				if err != nil {
					return err
				}
			}
			if len(standards) > 0 {
				out.BatchID, out.StandardStoredFilenames, err = store.StoreStandards(standards)
				if err != nil {
					return err
				}
			}
			if agreement == "" && len(standards) == 0 {
				return errors.New("nothing to upload: pass --agreement and/or --standard")
			}
			return printJSON(cmd, out)
		},
	}
	cmd.Flags().StringVar(&agreement, "agreement", "", "path of the agreement document")
	cmd.Flags().StringArrayVar(&standards, "standard", nil, "path of a standard document (repeatable)")
	return cmd
}

func newGenerateCmd() *cobra.Command {
	var (
		agreementID string
		batchID     string
		agreement   string
		standards   []string
		model       string
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Run loader generation for stored ids or local files",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			var req *models.GenerateLoaderRequest
			switch {
			case agreementID != "" && batchID != "":
				store := services.NewUploadStore(cfg.UploadsDir, cfg.MaxUploadBytes)
				if req, err = store.Request(agreementID, batchID, model); err != nil {
					return err
				}
			case agreement != "":
				req = &models.GenerateLoaderRequest{AgreementPath: agreement, StandardPaths: standards, Model: model}
			default:
				return errors.New("pass --agreement-id and --batch-id, or --agreement with --standard")
			}

			loader, err := services.NewLoader(ctx, cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize loader: %w", err)
			}
			defer loader.Close()

			resp, err := loader.Process(ctx, req)
			if err != nil {
				return err
			}
			return printJSON(cmd, resp)
		},
	}
	cmd.Flags().StringVar(&agreementID, "agreement-id", "", "stored agreement id")
	cmd.Flags().StringVar(&batchID, "batch-id", "", "stored standards batch id")
	cmd.Flags().StringVar(&agreement, "agreement", "", "agreement file to process directly")
	cmd.Flags().StringArrayVar(&standards, "standard", nil, "standard file to process directly (repeatable, first one is the template)")
	cmd.Flags().StringVar(&model, "model", "", "model name (defaults to LOADER_MODEL)")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
