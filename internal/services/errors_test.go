package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Lllllllleong/iotloader/internal/llm"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Fault
	}{
		{"nil", nil, FaultNone},
		{"extraction", &ExtractionError{Path: "a.pdf", Err: errors.New("bad")}, FaultClientInput},
		{"upload", &UploadError{Name: "x", Reason: "empty"}, FaultClientInput},
		{"no template", fmt.Errorf("run: %w", ErrNoTemplate), FaultClientInput},
		{"timeout", llm.Timeout(errors.New("slow")), FaultUpstreamTimeout},
		{"api", llm.APIError(errors.New("denied"), false), FaultUpstream},
		{"transport", llm.TransportError(errors.New("reset")), FaultUpstream},
		{"schema", &SchemaValidationError{Issues: []SchemaIssue{{Message: "x"}}}, FaultUpstream},
		{"filename", &FilenameConsistencyError{Filename: "f"}, FaultUpstream},
		{"no outputs", ErrNoExcelOutputs, FaultUpstream},
		{"allocation", &OutputAllocationError{Parent: "p", Base: "b", Attempts: 1}, FaultInternal},
		{"deadline", context.DeadlineExceeded, FaultUpstreamTimeout},
		{"other", errors.New("disk full"), FaultInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestErrorMessages(t *testing.T) {
	err := &ExtractionError{Path: "a.docx", Format: "word-processing", Err: errors.New("zip: not a valid zip file")}
	assert.Equal(t, "failed to extract a.docx (word-processing): zip: not a valid zip file", err.Error())

	fc := &FilenameConsistencyError{Filename: "A_B_TO_20240101_20241231_D.xlsx", Field: "direction", Expected: "TI", Actual: "TO"}
	assert.Contains(t, fc.Error(), `direction is "TO", plan says "TI"`)

	schema := &SchemaValidationError{Issues: []SchemaIssue{{Path: "a", Message: "field required"}, {Message: "x"}}}
	assert.Contains(t, schema.Error(), "2 issue(s): a: field required; x")
}
