package services

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/Lllllllleong/iotloader/internal/models"
)

func newExtractor(t *testing.T) *TextExtractor {
	t.Helper()
	x, err := NewTextExtractor(8, 2)
	require.NoError(t, err)
	return x
}

func TestExtractText(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "agreement.TXT", "  rates\xffapply \n")

	doc, err := newExtractor(t).Extract(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, models.FormatText, doc.Format)
	assert.Equal(t, "rates\uFFFDapply", doc.RawText)
	assert.Equal(t, "agreement.TXT", doc.Name())
	assert.False(t, doc.WasTruncated)
}

func TestExtractWordDocument(t *testing.T) {
	dir := t.TempDir()
	p := writeDocx(t, dir, "agreement.docx", []string{" First clause ", "", "Second clause"}, "Table cell")

	doc, err := newExtractor(t).Extract(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, models.FormatWord, doc.Format)
	assert.Equal(t, "First clause\nSecond clause\nTable cell", doc.RawText)
}

func TestExtractSpreadsheet(t *testing.T) {
	dir := t.TempDir()
	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", " Service "))
	require.NoError(t, f.SetCellValue("Sheet1", "C1", "Rate"))
	require.NoError(t, f.SetCellValue("Sheet1", "A3", "SMS-MO"))
	require.NoError(t, f.SetCellValue("Sheet1", "B3", 0.02))
	_, err := f.NewSheet("Second")
	require.NoError(t, err)
	require.NoError(t, f.SetCellValue("Second", "B2", "more"))
	p := filepath.Join(dir, "standard.xlsx")
	require.NoError(t, f.SaveAs(p))
	require.NoError(t, f.Close())

	doc, err := newExtractor(t).Extract(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "Service Rate\nSMS-MO 0.02\nmore", doc.RawText)
}

func TestExtractRejectsUnsupportedSuffixBeforeIO(t *testing.T) {
	_, err := newExtractor(t).Extract(context.Background(), "/does/not/exist/file.doc")
	var extractErr *ExtractionError
	require.ErrorAs(t, err, &extractErr)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Equal(t, FaultClientInput, Classify(err))
}

func TestExtractPDFSkipsBlankPages(t *testing.T) {
	p := writePDF(t, t.TempDir(), "rates.pdf", []string{"SMS MO rate 0.02 EUR", "", "Validity 2024"})

	doc, err := newExtractor(t).Extract(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, models.FormatPDF, doc.Format)
	assert.Equal(t, "SMS MO rate 0.02 EUR\n\nValidity 2024", doc.RawText)
}

func TestExtractCorruptPDF(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "broken.pdf", "this is not a pdf")

	_, err := newExtractor(t).Extract(context.Background(), p)
	var extractErr *ExtractionError
	require.ErrorAs(t, err, &extractErr)
	assert.Equal(t, models.FormatPDF, extractErr.Format)
	assert.Equal(t, p, extractErr.Path)
}

func TestExtractCorruptDocx(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "broken.docx", "not a zip")

	_, err := newExtractor(t).Extract(context.Background(), p)
	var extractErr *ExtractionError
	require.ErrorAs(t, err, &extractErr)
	assert.Equal(t, models.FormatWord, extractErr.Format)
}

func TestExtractUsesContentCache(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "same content")
	b := writeFile(t, dir, "b.txt", "same content")
	x := newExtractor(t)

	_, err := x.Extract(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, 1, x.cache.Len())

	doc, err := x.Extract(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, 1, x.cache.Len())
	assert.Equal(t, b, doc.Path)
	assert.Equal(t, "same content", doc.RawText)
}

func TestExtractBatchKeepsOrderAndIsolatesFailures(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		writeFile(t, dir, "one.txt", "one"),
		writeFile(t, dir, "bad.pdf", "garbage"),
		writeFile(t, dir, "three.txt", "three"),
		filepath.Join(dir, "missing.txt"),
	}

	results := newExtractor(t).ExtractBatch(context.Background(), paths)
	require.Len(t, results, 4)
	require.NoError(t, results[0].Err)
	assert.Equal(t, "one", results[0].Document.RawText)
	assert.Error(t, results[1].Err)
	require.NoError(t, results[2].Err)
	assert.Equal(t, "three", results[2].Document.RawText)
	assert.Error(t, results[3].Err)
}
