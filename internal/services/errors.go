package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Lllllllleong/iotloader/internal/llm"
	"github.com/Lllllllleong/iotloader/internal/models"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrNoExcelOutputs    = errors.New("model output contains no excel_outputs")
	ErrNoTemplate        = errors.New("no standard document available to use as spreadsheet template")
)

// ExtractionError reports an input document that could not be turned into text.
type ExtractionError struct {
	Path   string
	Format models.Format
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	msg := fmt.Sprintf("failed to extract %s", e.Path)
	if e.Format != "" {
		msg += fmt.Sprintf(" (%s)", e.Format)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// SchemaIssue is one structural problem found in model output.
type SchemaIssue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (i SchemaIssue) String() string {
	if i.Path == "" {
		return i.Message
	}
	return i.Path + ": " + i.Message
}

// SchemaValidationError lists every issue found in one model response.
type SchemaValidationError struct {
	Issues []SchemaIssue
}

func (e *SchemaValidationError) Error() string {
	parts := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		parts[i] = issue.String()
	}
	return fmt.Sprintf("model output failed schema validation (%d issue(s)): %s", len(e.Issues), strings.Join(parts, "; "))
}

// RepairFailedError is returned when both the first response and the repair
// response failed validation.
type RepairFailedError struct {
	Original error
	Repair   error
}

func (e *RepairFailedError) Error() string {
	return fmt.Sprintf("model output invalid after repair: original: %v; repair: %v", e.Original, e.Repair)
}

func (e *RepairFailedError) Unwrap() []error { return []error{e.Original, e.Repair} }

// FilenameConsistencyError reports a plan whose filename does not agree with
// its own fields, or a filename shared by two plans.
type FilenameConsistencyError struct {
	Filename string
	Field    string
	Expected string
	Actual   string
}

func (e *FilenameConsistencyError) Error() string {
	switch e.Field {
	case "":
		return fmt.Sprintf("invalid excel filename %q", e.Filename)
	case "filename":
		return fmt.Sprintf("excel filename %q is used by more than one plan", e.Filename)
	}
	return fmt.Sprintf("excel filename %q: %s is %q, plan says %q", e.Filename, e.Field, e.Actual, e.Expected)
}

// OutputAllocationError is returned when no versioned output directory is free.
type OutputAllocationError struct {
	Parent   string
	Base     string
	Attempts int
}

func (e *OutputAllocationError) Error() string {
	return fmt.Sprintf("could not allocate output directory for %q under %s after %d attempts", e.Base, e.Parent, e.Attempts)
}

// Fault is the caller-facing category of a failed run.
type Fault int

const (
	FaultNone Fault = iota
	FaultClientInput
	FaultUpstreamTimeout
	FaultUpstream
	FaultInternal
)

func (f Fault) String() string {
	switch f {
	case FaultNone:
		return "none"
	case FaultClientInput:
		return "client_input"
	case FaultUpstreamTimeout:
		return "upstream_timeout"
	case FaultUpstream:
		return "upstream"
	}
	return "internal"
}

// Classify maps a run error onto a Fault.
func Classify(err error) Fault {
	if err == nil {
		return FaultNone
	}
	var (
		extractErr  *ExtractionError
		genErr      *llm.GenerationError
		schemaErr   *SchemaValidationError
		repairErr   *RepairFailedError
		filenameErr *FilenameConsistencyError
		uploadErr   *UploadError
	)
	switch {
	case errors.As(err, &extractErr), errors.As(err, &uploadErr),
		errors.Is(err, ErrNoTemplate), errors.Is(err, ErrNotFound):
		return FaultClientInput
	case errors.As(err, &genErr):
		if genErr.Kind == llm.KindTimeout {
			return FaultUpstreamTimeout
		}
		return FaultUpstream
	case errors.As(err, &repairErr), errors.As(err, &schemaErr),
		errors.As(err, &filenameErr), errors.Is(err, ErrNoExcelOutputs):
		return FaultUpstream
	case errors.Is(err, context.DeadlineExceeded):
		return FaultUpstreamTimeout
	}
	return FaultInternal
}
