package services

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/Lllllllleong/iotloader/internal/llm"
	"github.com/Lllllllleong/iotloader/internal/models"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

// writeDocx builds a minimal word-processing archive with one body paragraph
// per entry and an optional one-cell table.
func writeDocx(t *testing.T, dir, name string, paragraphs []string, tableCell string) string {
	t.Helper()
	var body strings.Builder
	for _, p := range paragraphs {
		fmt.Fprintf(&body, `<w:p><w:r><w:t xml:space="preserve">%s</w:t></w:r></w:p>`, p)
	}
	if tableCell != "" {
		fmt.Fprintf(&body, `<w:tbl><w:tr><w:tc><w:p><w:r><w:t>%s</w:t></w:r></w:p></w:tc></w:tr></w:tbl>`, tableCell)
	}
	doc := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body.String() + `</w:body></w:document>`

	p := filepath.Join(dir, name)
	f, err := os.Create(p)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(doc))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return p
}

// writeTemplate builds a loader template with stale values in both SMS rows.
// writePDF builds a minimal PDF with one page per entry. An empty entry
// produces a page that draws nothing.
func writePDF(t *testing.T, dir, name string, pages []string) string {
	t.Helper()
	var objects []string
	objects = append(objects, "<< /Type /Catalog /Pages 2 0 R >>")
	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	objects = append(objects,
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d /MediaBox [0 0 612 792] >>", strings.Join(kids, " "), len(pages)),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	)
	for i, text := range pages {
		content := "q Q"
		if text != "" {
			content = fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		}
		objects = append(objects,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)

	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, buf.Bytes(), 0o644))
	return p
}

func writeTemplate(t *testing.T, dir, name string) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	require.NoError(t, f.SetCellValue(sheet, "A1", "IOT loader"))
	require.NoError(t, f.SetCellValue(sheet, "C2", "OLDPARTNER"))
	for _, row := range []int{35, 53} {
		r := fmt.Sprint(row)
		require.NoError(t, f.SetCellValue(sheet, "H"+r, "USD"))
		require.NoError(t, f.SetCellValue(sheet, "I"+r, 0))
		require.NoError(t, f.SetCellValue(sheet, "J"+r, 0.5))
		require.NoError(t, f.SetCellValue(sheet, "K"+r, 60))
		require.NoError(t, f.SetCellValue(sheet, "L"+r, 1.25))
		require.NoError(t, f.SetCellValue(sheet, "P"+r, "offpeak"))
		require.NoError(t, f.SetCellValue(sheet, "Q"+r, 0.1))
		require.NoError(t, f.SetCellValue(sheet, "R"+r, "stale"))
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	require.NoError(t, err)
	require.NoError(t, f.SetCellStyle(sheet, "K35", "K35", bold))

	p := filepath.Join(dir, name)
	require.NoError(t, f.SaveAs(p))
	return p
}

func cellValue(t *testing.T, path, cell string) string {
	t.Helper()
	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	v, err := f.GetCellValue(f.GetSheetList()[0], cell)
	require.NoError(t, err)
	return v
}

func scenarioCPlan() models.ExcelOutputPlan {
	return models.ExcelOutputPlan{
		Direction:    "TI",
		ClientTADIG:  "ABCD",
		PartnerTADIG: "WXYZ",
		StartDate:    "2024-01-01",
		EndDate:      "2024-12-31",
		Currency:     "EUR",
		SMSMORate:    0.02,
		SMSMTRate:    0,
		IsDiscount:   true,
		Filename:     "ABCD_WXYZ_TI_20240101_20241231_D.xlsx",
	}
}

const validPlanJSON = `{
  "direction": "TI",
  "client_tadig": "ABCD",
  "partner_tadig": "WXYZ",
  "start_date": "2024-01-01",
  "end_date": "2024-12-31",
  "currency": "EUR",
  "sms_mo_rate": 0.02,
  "sms_mt_rate": 0.01,
  "filename": "ABCD_WXYZ_TI_20240101_20241231_D.xlsx"
}`

func loaderJSON(plans ...string) string {
	return `{
  "agreement_name": "ABCD-WXYZ IOT 2024",
  "standards_used": ["standard.xlsx"],
  "mappings": [
    {"clause_id": "1.1", "clause_text": "SMS MO rate", "matched_standard": "standard.xlsx", "confidence": 0.9, "loader_fields": {"sms_mo_rate": 0.02, "tags": ["sms", null]}},
    {"clause_id": "2", "clause_text": "Validity", "confidence": 0.3}
  ],
  "missing_fields": ["sms_mt_rate"],
  "excel_outputs": [` + strings.Join(plans, ",") + `]
}`
}

type genStep struct {
	text  string
	usage *models.GenerationUsage
	err   error
}

// scriptedGenerator returns one step per call and records the prompts it saw.
type scriptedGenerator struct {
	mu      sync.Mutex
	steps   []genStep
	prompts []string
	retries []int
}

func (g *scriptedGenerator) Generate(_ context.Context, _, systemPrompt, userPrompt string, retries int) (llm.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if systemPrompt != LoaderSystemPrompt {
		return llm.Result{}, fmt.Errorf("unexpected system prompt")
	}
	g.prompts = append(g.prompts, userPrompt)
	g.retries = append(g.retries, retries)
	if len(g.prompts) > len(g.steps) {
		return llm.Result{}, fmt.Errorf("unexpected call %d", len(g.prompts))
	}
	s := g.steps[len(g.prompts)-1]
	if s.err != nil {
		return llm.Result{}, s.err
	}
	return llm.Result{Text: s.text, Usage: s.usage, Attempts: 1}, nil
}

func (g *scriptedGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}
