package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Lllllllleong/iotloader/internal/config"
	"github.com/Lllllllleong/iotloader/internal/gcp"
	"github.com/Lllllllleong/iotloader/internal/llm"
	"github.com/Lllllllleong/iotloader/internal/models"
	"github.com/Lllllllleong/iotloader/internal/objectstore"
)

// Publisher mirrors a finished output bundle somewhere outside the local
// output directory and returns the resulting URIs.
type Publisher interface {
	Publish(ctx context.Context, prefix string, files []string) ([]string, error)
}

// RunLedger records run status in an external store.
type RunLedger interface {
	Start(ctx context.Context, rec models.RunRecord) (string, error)
	Complete(ctx context.Context, docID, outputDir string, excelFileCount int) error
	Fail(ctx context.Context, docID, errDetails string) error
}

// LoaderDeps are the collaborators of a LoaderFunction. Generator is
// required; a zero Retries means no retries at all. Other zero fields fall
// back to defaults.
type LoaderDeps struct {
	Generator    Generator
	Extractor    *TextExtractor
	Budget       Budget
	Versioner    *OutputVersioner
	Retries      RetryPolicy
	DefaultModel string
	OutputDir    string
	BaseDir      string
	Publishers   []Publisher
	Ledger       RunLedger
	Now          func() time.Time
}

// LoaderFunction runs the agreement-to-loader pipeline.
type LoaderFunction struct {
	deps    LoaderDeps
	closers []io.Closer
}

// NewLoader builds the pipeline from configuration: the model backend, the
// extractor and any configured publishers and ledger.
func NewLoader(ctx context.Context, cfg *config.Config) (*LoaderFunction, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var backend llm.Backend
	switch cfg.Backend {
	case config.BackendGemini:
		b, err := gcp.NewGeminiBackend(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini backend: %w", err)
		}
		backend = b
	default:
		b, err := gcp.NewVertexBackend(ctx, cfg.ProjectID, cfg.VertexRegion)
		if err != nil {
			return nil, fmt.Errorf("failed to create vertex backend: %w", err)
		}
		backend = b
	}
	client := llm.NewClient(backend, cfg.LLMTimeout)
	closers := []io.Closer{client}

	extractor, err := NewTextExtractor(0, 0)
	if err != nil {
		return nil, err
	}

	var publishers []Publisher
	if cfg.ArtifactBucket != "" {
		p, err := gcp.NewGCSPublisher(ctx, cfg.ArtifactBucket)
		if err != nil {
			return nil, err
		}
		publishers = append(publishers, p)
		closers = append(closers, p)
	}
	if cfg.S3.Endpoint != "" {
		p, err := objectstore.NewS3Publisher(objectstore.S3Config(cfg.S3))
		if err != nil {
			return nil, err
		}
		publishers = append(publishers, p)
		closers = append(closers, p)
	}

	var ledger RunLedger
	if cfg.LedgerCollection != "" {
		l, err := gcp.NewRunLedger(ctx, cfg.ProjectID, cfg.LedgerCollection)
		if err != nil {
			return nil, err
		}
		ledger = l
		closers = append(closers, l)
	}

	f := NewLoaderWith(LoaderDeps{
		Generator:    client,
		Extractor:    extractor,
		Budget:       Budget{MaxCharsPerFile: cfg.MaxCharsPerFile, MaxTotalChars: cfg.MaxTotalChars, MinCharsPerStandard: cfg.MinCharsPerStandard},
		Versioner:    NewOutputVersioner(),
		Retries:      RetryPolicy{Generation: cfg.Retries, Repair: cfg.RepairRetries},
		DefaultModel: cfg.Model,
		OutputDir:    cfg.OutputDir,
		BaseDir:      cfg.BaseDir,
		Publishers:   publishers,
		Ledger:       ledger,
	})
	f.closers = closers
	slog.Info("Loader pipeline initialized.", "backend", client.Name(), "model", cfg.Model, "publishers", len(publishers))
	return f, nil
}

// NewLoaderWith builds a LoaderFunction from explicit dependencies.
func NewLoaderWith(deps LoaderDeps) *LoaderFunction {
	if deps.Extractor == nil {
		// Only fails for a non-positive size, which the defaults rule out.
		deps.Extractor, _ = NewTextExtractor(0, 0)
	}
	if deps.Budget == (Budget{}) {
		deps.Budget = DefaultBudget()
	}
	if deps.Versioner == nil {
		deps.Versioner = NewOutputVersioner()
	}
	if deps.OutputDir == "" {
		deps.OutputDir = "output"
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &LoaderFunction{deps: deps}
}

func (f *LoaderFunction) Close() error {
	var errs []error
	for _, c := range f.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// Process runs one generation. Any failure ends the run without a manifest;
// spreadsheets already written for earlier plans stay on disk.
func (f *LoaderFunction) Process(ctx context.Context, req *models.GenerateLoaderRequest) (*models.GenerateLoaderResponse, error) {
	runID := uuid.NewString()
	startedAt := f.deps.Now().UTC()
	model := req.Model
	if model == "" {
		model = f.deps.DefaultModel
	}
	agreementFile := filepath.Base(req.AgreementPath)

	logCtx := slog.With("runId", runID, "agreementId", req.AgreementID, "batchId", req.BatchID, "model", model)
	logCtx.Info("Starting loader generation.", "agreementFile", agreementFile, "standards", len(req.StandardPaths))

	docID := f.startRun(ctx, logCtx, models.RunRecord{
		RunID:         runID,
		AgreementID:   req.AgreementID,
		BatchID:       req.BatchID,
		AgreementFile: agreementFile,
		Model:         model,
		CreatedAt:     startedAt,
	})

	if len(req.StandardPaths) == 0 {
		return nil, f.handleError(ctx, logCtx, docID, "no standard documents provided", ErrNoTemplate)
	}

	templatePath := req.StandardPaths[0]
	if format, ok := models.DetectFormat(templatePath); !ok || format != models.FormatSpreadsheet {
		return nil, f.handleError(ctx, logCtx, docID, "first standard document cannot serve as the template",
			fmt.Errorf("%w: %s is not an .xlsx workbook", ErrNoTemplate, filepath.Base(templatePath)))
	}

	agreement, standards, err := f.extractInputs(ctx, req)
	if err != nil {
		return nil, f.handleError(ctx, logCtx, docID, "failed to extract input documents", err)
	}

	named := make([]NamedText, len(standards))
	for i, doc := range standards {
		named[i] = NamedText{Name: doc.Name(), Text: doc.RawText}
	}
	corpus := f.deps.Budget.Apply(agreement.RawText, named)
	agreement, standards = MarkTruncated(agreement, standards, corpus.Report)
	logCtx.Info("Inputs extracted and budgeted.",
		"agreementChars", charCount(corpus.AgreementText),
		"agreementTruncated", agreement.WasTruncated,
	)

	outcome := GenerateValidated(ctx, f.deps.Generator, model, BuildUserPrompt(agreementFile, corpus), f.deps.Retries)
	if outcome.Kind != OutcomeOK {
		return nil, f.handleError(ctx, logCtx, docID, "model generation failed", outcome.Err)
	}
	loader := outcome.Loader
	logCtx.Info("Model output validated.", "mappings", len(loader.Mappings), "plans", len(loader.ExcelOutputs), "repaired", outcome.Repaired)

	if len(loader.ExcelOutputs) == 0 {
		return nil, f.handleError(ctx, logCtx, docID, "cannot generate loader spreadsheets", ErrNoExcelOutputs)
	}
	if err := ValidatePlans(loader.ExcelOutputs); err != nil {
		return nil, f.handleError(ctx, logCtx, docID, "invalid excel output plan", err)
	}

	paths, err := f.deps.Versioner.Allocate(f.deps.OutputDir, SafeAgreementBaseName(agreementFile, req.AgreementID))
	if err != nil {
		return nil, f.handleError(ctx, logCtx, docID, "failed to allocate output directory", err)
	}
	logCtx = logCtx.With("outputDir", paths.Dir)

	if err := writeJSONFile(paths.LoaderJSON, loader); err != nil {
		return nil, f.handleError(ctx, logCtx, docID, "failed to write loader.json", err)
	}

	excelPaths := make([]string, 0, len(loader.ExcelOutputs))
	for _, plan := range loader.ExcelOutputs {
		if err := ctx.Err(); err != nil {
			return nil, f.handleError(ctx, logCtx, docID, "run cancelled while writing spreadsheets", err)
		}
		dest, err := paths.ExcelPath(plan.Filename)
		if err != nil {
			return nil, f.handleError(ctx, logCtx, docID, "invalid excel output path", err)
		}
		if err := ApplyTemplate(templatePath, dest, plan); err != nil {
			return nil, f.handleError(ctx, logCtx, docID, fmt.Sprintf("failed to generate %s", plan.Filename), err)
		}
		excelPaths = append(excelPaths, dest)
	}
	logCtx.Info("Spreadsheets generated.", "count", len(excelPaths))

	journal := models.RunJournal{
		RunID:       runID,
		CreatedAt:   f.deps.Now().UTC().Format(time.RFC3339Nano),
		StartedAt:   startedAt.Format(time.RFC3339Nano),
		AgreementID: req.AgreementID,
		BatchID:     req.BatchID,
		Model:       model,
		Repaired:    outcome.Repaired,
		Inputs:      journalInputs(agreement, standards, corpus),
		Usage:       outcome.Usage,
		Outputs: models.JournalOutputs{
			OutputDir:   f.relPath(paths.Dir),
			LoaderJSON:  f.relPath(paths.LoaderJSON),
			LoaderExcel: f.relPaths(excelPaths),
			MetaJSON:    f.relPath(paths.MetaJSON),
		},
		ExcelPlans: loader.ExcelOutputs,
	}
	if err := writeJSONFile(paths.MetaJSON, journal); err != nil {
		return nil, f.handleError(ctx, logCtx, docID, "failed to write meta.json", err)
	}

	bundle := append([]string{paths.LoaderJSON}, excelPaths...)
	bundle = append(bundle, paths.MetaJSON)
	var published []string
	prefix := publishPrefix(paths.Dir, runID)
	for _, p := range f.deps.Publishers {
		uris, err := p.Publish(ctx, prefix, bundle)
		if err != nil {
			return nil, f.handleError(ctx, logCtx, docID, "failed to publish output bundle", err)
		}
		published = append(published, uris...)
	}

	if f.deps.Ledger != nil && docID != "" {
		if err := f.deps.Ledger.Complete(ctx, docID, journal.Outputs.OutputDir, len(excelPaths)); err != nil {
			logCtx.Error("Failed to mark run COMPLETED in ledger.", "error", err)
		}
	}
	logCtx.Info("Loader generation complete.")

	return &models.GenerateLoaderResponse{
		RunID:            runID,
		OutputDir:        journal.Outputs.OutputDir,
		LoaderJSONPath:   journal.Outputs.LoaderJSON,
		LoaderExcelPaths: journal.Outputs.LoaderExcel,
		MetaJSONPath:     journal.Outputs.MetaJSON,
		PublishedURIs:    published,
		Summary: models.RunSummary{
			AgreementName:      loader.AgreementName,
			StandardsUsed:      loader.StandardsUsed,
			MappingsCount:      len(loader.Mappings),
			MissingFieldsCount: len(loader.MissingFields),
			ExcelFilesCount:    len(excelPaths),
		},
	}, nil
}

// extractInputs extracts the agreement and all standards in parallel and
// returns the first failure in input order.
func (f *LoaderFunction) extractInputs(ctx context.Context, req *models.GenerateLoaderRequest) (models.Document, []models.Document, error) {
	paths := append([]string{req.AgreementPath}, req.StandardPaths...)
	results := f.deps.Extractor.ExtractBatch(ctx, paths)
	for _, r := range results {
		if r.Err != nil {
			return models.Document{}, nil, r.Err
		}
	}
	standards := make([]models.Document, 0, len(req.StandardPaths))
	for _, r := range results[1:] {
		standards = append(standards, r.Document)
	}
	return results[0].Document, standards, nil
}

// publishPrefix names the remote location of a bundle. The local directory
// name is only unique on one filesystem, so the run id is part of the key.
func publishPrefix(dir, runID string) string {
	return "loader-runs/" + filepath.Base(dir) + "-" + runID
}

func journalInputs(agreement models.Document, standards []models.Document, corpus BudgetedCorpus) models.JournalInputs {
	names := make([]string, len(standards))
	truncated := []string{}
	if agreement.WasTruncated {
		truncated = append(truncated, agreement.Name())
	}
	for i, doc := range standards {
		names[i] = doc.Name()
		if doc.WasTruncated {
			truncated = append(truncated, doc.Name())
		}
	}
	chars := make(map[string]int, len(corpus.Standards))
	for _, s := range corpus.Standards {
		chars[s.Name] = charCount(s.Text)
	}
	return models.JournalInputs{
		AgreementFile:  agreement.Name(),
		StandardFiles:  names,
		Truncation:     corpus.Report,
		AgreementChars: charCount(corpus.AgreementText),
		StandardsChars: chars,
		TruncatedFiles: truncated,
	}
}

func (f *LoaderFunction) startRun(ctx context.Context, logCtx *slog.Logger, rec models.RunRecord) string {
	if f.deps.Ledger == nil {
		return ""
	}
	docID, err := f.deps.Ledger.Start(ctx, rec)
	if err != nil {
		logCtx.Error("Failed to create run ledger entry.", "error", err)
		return ""
	}
	return docID
}

func (f *LoaderFunction) handleError(ctx context.Context, logCtx *slog.Logger, docID, message string, originalErr error) error {
	logCtx.Error(message, "error", originalErr, "fault", Classify(originalErr).String())
	if f.deps.Ledger != nil && docID != "" {
		if err := f.deps.Ledger.Fail(context.WithoutCancel(ctx), docID, fmt.Sprintf("%s: %v", message, originalErr)); err != nil {
			logCtx.Error("CRITICAL: Failed to update run status to FAILED after a processing error.", "updateError", err)
		}
	}
	return fmt.Errorf("%s: %w", message, originalErr)
}

// relPath reports p relative to BaseDir when p lies inside it.
func (f *LoaderFunction) relPath(p string) string {
	if f.deps.BaseDir == "" {
		return p
	}
	base, err := filepath.Abs(f.deps.BaseDir)
	if err != nil {
		return p
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	rel, err := filepath.Rel(base, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return p
	}
	return rel
}

func (f *LoaderFunction) relPaths(ps []string) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = f.relPath(p)
	}
	return out
}

func writeJSONFile(path string, v any) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(file)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}
