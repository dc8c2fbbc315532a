package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildUserPrompt(t *testing.T) {
	corpus := BudgetedCorpus{
		AgreementText: "Agreement body",
		Standards: []NamedText{
			{Name: "b.txt", Text: "B text"},
			{Name: "a.txt", Text: "A text"},
		},
	}
	got := BuildUserPrompt("deal.pdf", corpus)

	want := "Agreement filename: deal.pdf\n\n" +
		"Agreement text:\nAgreement body\n\n" +
		"Standard IOT texts (each labeled by filename):\n" +
		"--- STANDARD FILE: b.txt ---\nB text\n\n--- STANDARD FILE: a.txt ---\nA text\n\n" +
		"Instruction:\n" +
		"Generate loader mapping between agreement clauses and standard templates.\n" +
		"Return JSON matching the required schema exactly.\n"
	assert.Equal(t, want, got)
}

func TestBuildRepairPromptCarriesPreviousOutput(t *testing.T) {
	got := BuildRepairPrompt(`{"broken":`)
	assert.True(t, strings.HasSuffix(got, "Previous output:\n{\"broken\":\n"))
	assert.Contains(t, got, "Return ONLY the corrected JSON object")
}

func TestSystemPromptCarriesSchemaAndFilenameFormat(t *testing.T) {
	for _, s := range []string{`"excel_outputs"`, `"loader_fields": object`, "_D.xlsx", "sms_mt_rate=0", "confidence <= 0.4"} {
		assert.Contains(t, LoaderSystemPrompt, s)
	}
}
