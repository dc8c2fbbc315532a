package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/iotloader/internal/models"
)

const (
	defaultExtractCacheSize   = 64
	defaultExtractConcurrency = 4
)

// TextExtractor turns input documents into plain text. Results are cached by
// content hash, so the same file uploaded under another name is read once.
type TextExtractor struct {
	cache       *lru.Cache[string, string]
	concurrency int
}

// ExtractResult is one entry of ExtractBatch, aligned with its input path.
type ExtractResult struct {
	Document models.Document
	Err      error
}

func NewTextExtractor(cacheSize, concurrency int) (*TextExtractor, error) {
	if cacheSize <= 0 {
		cacheSize = defaultExtractCacheSize
	}
	if concurrency <= 0 {
		concurrency = defaultExtractConcurrency
	}
	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create extraction cache: %w", err)
	}
	return &TextExtractor{cache: cache, concurrency: concurrency}, nil
}

// Extract reads one document. Unsupported suffixes are rejected before the
// file is touched.
func (x *TextExtractor) Extract(ctx context.Context, path string) (models.Document, error) {
	format, ok := models.DetectFormat(path)
	if !ok {
		return models.Document{}, &ExtractionError{
			Path:   path,
			Reason: fmt.Sprintf("unsupported file type %q", filepath.Ext(path)),
			Err:    ErrUnsupportedFormat,
		}
	}
	if err := ctx.Err(); err != nil {
		return models.Document{}, err
	}

	fileHash, err := calculateFileHash(path)
	if err != nil {
		return models.Document{}, &ExtractionError{Path: path, Format: format, Err: err}
	}
	key := string(format) + ":" + fileHash
	if text, ok := x.cache.Get(key); ok {
		slog.Debug("Extraction cache hit.", "path", path, "fileHash", fileHash)
		return models.Document{Path: path, Format: format, RawText: text}, nil
	}

	text, err := extractByFormat(format, path)
	if err != nil {
		return models.Document{}, &ExtractionError{Path: path, Format: format, Err: err}
	}
	x.cache.Add(key, text)
	return models.Document{Path: path, Format: format, RawText: text}, nil
}

// ExtractBatch extracts every path in parallel. The result slice is in input
// order and a failed entry does not stop its siblings.
func (x *TextExtractor) ExtractBatch(ctx context.Context, paths []string) []ExtractResult {
	results := make([]ExtractResult, len(paths))
	var eg errgroup.Group
	eg.SetLimit(x.concurrency)
	for i, path := range paths {
		eg.Go(func() error {
			doc, err := x.Extract(ctx, path)
			results[i] = ExtractResult{Document: doc, Err: err}
			return nil
		})
	}
	_ = eg.Wait()
	return results
}

func extractByFormat(format models.Format, path string) (string, error) {
	switch format {
	case models.FormatText:
		return extractPlainText(path)
	case models.FormatPDF:
		return extractPDFText(path)
	case models.FormatWord:
		return extractWordText(path)
	case models.FormatSpreadsheet:
		return extractSpreadsheetText(path)
	}
	return "", ErrUnsupportedFormat
}

func calculateFileHash(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()
	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
