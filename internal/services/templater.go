package services

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/Lllllllleong/iotloader/internal/models"
)

// Fixed cell layout of the loader template.
const (
	partnerCell = "C2"

	smsMORow = 35
	smsMTRow = 53

	colCurrency         = "H"
	colDiscount         = "I"
	colRate             = "J"
	colChargingInterval = "K"
	colInitialFee       = "L"

	highlightColor = "FFFF00"
)

var offPeakColumns = []string{"P", "Q", "R"}

var planFilenamePattern = regexp.MustCompile(
	`^(?P<client>[A-Za-z0-9]+)_(?P<partner>[A-Za-z0-9]+)_(?P<direction>TI|TO)_(?P<start>\d{8})_(?P<end>\d{8})_D\.xlsx$`)

// PlanFilename builds the canonical filename for a plan.
func PlanFilename(p models.ExcelOutputPlan) string {
	return fmt.Sprintf("%s_%s_%s_%s_%s_D.xlsx", p.ClientTADIG, p.PartnerTADIG, p.Direction, p.StartDigits(), p.EndDigits())
}

// ValidatePlanFilename checks that plan.Filename matches the required pattern
// and agrees with the plan's own TADIGs, direction and dates.
func ValidatePlanFilename(plan models.ExcelOutputPlan) error {
	m := planFilenamePattern.FindStringSubmatch(plan.Filename)
	if m == nil {
		return &FilenameConsistencyError{Filename: plan.Filename}
	}
	checks := []struct {
		group, field, expected string
	}{
		{"client", "client_tadig", plan.ClientTADIG},
		{"partner", "partner_tadig", plan.PartnerTADIG},
		{"direction", "direction", plan.Direction},
		{"start", "start_date", plan.StartDigits()},
		{"end", "end_date", plan.EndDigits()},
	}
	for _, c := range checks {
		actual := m[planFilenamePattern.SubexpIndex(c.group)]
		if actual != c.expected {
			return &FilenameConsistencyError{Filename: plan.Filename, Field: c.field, Expected: c.expected, Actual: actual}
		}
	}
	return nil
}

// ValidatePlans checks every plan filename and rejects duplicates.
func ValidatePlans(plans []models.ExcelOutputPlan) error {
	seen := make(map[string]bool, len(plans))
	for _, p := range plans {
		if err := ValidatePlanFilename(p); err != nil {
			return err
		}
		if seen[p.Filename] {
			return &FilenameConsistencyError{Filename: p.Filename, Field: "filename"}
		}
		seen[p.Filename] = true
	}
	return nil
}

// ApplyTemplate copies templatePath to destPath and patches the copy for plan.
// The template itself is only read.
func ApplyTemplate(templatePath, destPath string, plan models.ExcelOutputPlan) error {
	if err := ValidatePlanFilename(plan); err != nil {
		return err
	}
	if err := copyFile(templatePath, destPath); err != nil {
		return fmt.Errorf("failed to copy template: %w", err)
	}

	f, err := excelize.OpenFile(destPath)
	if err != nil {
		return fmt.Errorf("failed to open workbook %s: %w", destPath, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return fmt.Errorf("template %s has no worksheets", templatePath)
	}
	sheet := sheets[0]

	if err := f.SetCellValue(sheet, partnerCell, plan.PartnerTADIG); err != nil {
		return fmt.Errorf("failed to set partner TADIG: %w", err)
	}
	if err := writeSMSRow(f, sheet, smsMORow, plan.SMSMORate, plan); err != nil {
		return fmt.Errorf("failed to write SMS-MO row: %w", err)
	}
	if plan.SMSMTRate > 0 {
		if err := writeSMSRow(f, sheet, smsMTRow, plan.SMSMTRate, plan); err != nil {
			return fmt.Errorf("failed to write SMS-MT row: %w", err)
		}
	}

	if err := f.Save(); err != nil {
		return fmt.Errorf("failed to save workbook %s: %w", destPath, err)
	}
	return nil
}

func writeSMSRow(f *excelize.File, sheet string, row int, rate float64, plan models.ExcelOutputPlan) error {
	cell := func(col string) string { return col + strconv.Itoa(row) }

	discount := 0
	if plan.IsDiscount {
		discount = 1
	}
	values := []struct {
		col   string
		value any
	}{
		{colCurrency, plan.Currency},
		{colDiscount, discount},
		{colRate, rate},
		{colInitialFee, ""},
	}
	for _, v := range values {
		if err := f.SetCellValue(sheet, cell(v.col), v.value); err != nil {
			return err
		}
	}
	for _, col := range []string{colRate, colChargingInterval} {
		if err := highlightCell(f, sheet, cell(col)); err != nil {
			return err
		}
	}
	for _, col := range offPeakColumns {
		if err := f.SetCellValue(sheet, cell(col), nil); err != nil {
			return err
		}
	}
	return nil
}

// highlightCell sets a solid yellow fill on the cell and keeps the rest of its
// existing style.
func highlightCell(f *excelize.File, sheet, cell string) error {
	styleID, err := f.GetCellStyle(sheet, cell)
	if err != nil {
		return err
	}
	style, err := f.GetStyle(styleID)
	if err != nil {
		return err
	}
	style.Fill = excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{highlightColor}}
	newID, err := f.NewStyle(style)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, cell, cell, newID)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
