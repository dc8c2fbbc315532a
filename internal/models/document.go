package models

import (
	"path/filepath"
	"strings"
	"time"
)

// Format is the detected container format of an input document.
type Format string

const (
	FormatText        Format = "text"
	FormatPDF         Format = "pdf"
	FormatWord        Format = "word-processing"
	FormatSpreadsheet Format = "spreadsheet"
)

// DetectFormat maps a file suffix to a Format. The second return value is
// false for suffixes the pipeline cannot extract.
func DetectFormat(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt":
		return FormatText, true
	case ".pdf":
		return FormatPDF, true
	case ".docx":
		return FormatWord, true
	case ".xlsx":
		return FormatSpreadsheet, true
	}
	return "", false
}

// Document is the normalized text of one input file. It is created once at
// extraction time and not modified afterwards; budgeting hands out copies
// with WasTruncated set.
type Document struct {
	Path         string
	Format       Format
	RawText      string
	WasTruncated bool
}

// Name returns the base file name used to label the document in prompts.
func (d Document) Name() string {
	return filepath.Base(d.Path)
}

// Run statuses stored on a RunRecord.
const (
	RunStatusStarted   = "STARTED"
	RunStatusCompleted = "COMPLETED"
	RunStatusFailed    = "FAILED"
)

// RunRecord is the ledger entry for one generation run in Firestore.
// It tracks the overall status and where the artifacts ended up.
type RunRecord struct {
	RunID          string    `firestore:"runId,omitempty"`
	AgreementID    string    `firestore:"agreementId,omitempty"`
	BatchID        string    `firestore:"batchId,omitempty"`
	AgreementFile  string    `firestore:"agreementFile,omitempty"`
	Model          string    `firestore:"model,omitempty"`
	Status         string    `firestore:"status,omitempty"`
	ErrorDetails   string    `firestore:"errorDetails,omitempty"`
	OutputDir      string    `firestore:"outputDir,omitempty"`
	ExcelFileCount int       `firestore:"excelFileCount,omitempty"`
	CreatedAt      time.Time `firestore:"createdAt,omitempty"`
}
