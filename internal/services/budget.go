package services

import (
	"strings"
	"unicode/utf8"

	"github.com/Lllllllleong/iotloader/internal/models"
)

const (
	DefaultMaxCharsPerFile     = 60_000
	DefaultMaxTotalChars       = 220_000
	DefaultMinCharsPerStandard = 5_000
)

// NamedText is a standard document's label and its budgeted text.
type NamedText struct {
	Name string
	Text string
}

// BudgetedCorpus is the extracted text after truncation, ready for the prompt.
type BudgetedCorpus struct {
	AgreementText string
	Standards     []NamedText
	Report        models.TruncationReport
}

// Budget bounds the prompt context. Limits count characters, not bytes.
type Budget struct {
	MaxCharsPerFile     int
	MaxTotalChars       int
	MinCharsPerStandard int
}

func DefaultBudget() Budget {
	return Budget{
		MaxCharsPerFile:     DefaultMaxCharsPerFile,
		MaxTotalChars:       DefaultMaxTotalChars,
		MinCharsPerStandard: DefaultMinCharsPerStandard,
	}
}

// Apply normalizes and truncates the agreement and standards. Each text is
// first capped at MaxCharsPerFile; if the total still exceeds MaxTotalChars,
// standards share what the agreement leaves over, but never get less than
// MinCharsPerStandard each.
func (b Budget) Apply(agreement string, standards []NamedText) BudgetedCorpus {
	report := models.TruncationReport{
		MaxCharsPerFile:     b.MaxCharsPerFile,
		MaxTotalChars:       b.MaxTotalChars,
		MinCharsPerStandard: b.MinCharsPerStandard,
		Truncated:           models.TruncationFlags{Standards: make(map[string]bool, len(standards))},
	}

	agreementText, cut := truncateChars(normalizeText(agreement), b.MaxCharsPerFile)
	report.Truncated.Agreement = cut

	out := make([]NamedText, len(standards))
	total := charCount(agreementText)
	for i, s := range standards {
		text, cut := truncateChars(normalizeText(s.Text), b.MaxCharsPerFile)
		report.Truncated.Standards[s.Name] = report.Truncated.Standards[s.Name] || cut
		out[i] = NamedText{Name: s.Name, Text: text}
		total += charCount(text)
	}

	if total <= b.MaxTotalChars || len(out) == 0 {
		return BudgetedCorpus{AgreementText: agreementText, Standards: out, Report: report}
	}

	remaining := max(0, b.MaxTotalChars-charCount(agreementText))
	perStandard := max(b.MinCharsPerStandard, remaining/len(out))
	for i := range out {
		text, cut := truncateChars(out[i].Text, perStandard)
		out[i].Text = text
		report.Truncated.Standards[out[i].Name] = report.Truncated.Standards[out[i].Name] || cut
	}
	return BudgetedCorpus{AgreementText: agreementText, Standards: out, Report: report}
}

func normalizeText(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\x00", ""))
}

func charCount(s string) int { return utf8.RuneCountInString(s) }

// truncateChars keeps the first limit characters of s.
func truncateChars(s string, limit int) (string, bool) {
	if limit < 0 {
		limit = 0
	}
	if len(s) <= limit {
		return s, false
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i], true
		}
		n++
	}
	return s, false
}

// MarkTruncated returns copies of the extracted documents with WasTruncated
// taken from the budget report.
func MarkTruncated(agreement models.Document, standards []models.Document, report models.TruncationReport) (models.Document, []models.Document) {
	agreement.WasTruncated = report.Truncated.Agreement
	marked := make([]models.Document, len(standards))
	for i, doc := range standards {
		doc.WasTruncated = report.Truncated.Standards[doc.Name()]
		marked[i] = doc
	}
	return agreement, marked
}
