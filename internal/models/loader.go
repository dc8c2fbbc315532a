package models

import (
	"encoding/json"
	"strings"
)

// Traffic directions of an ExcelOutputPlan.
const (
	DirectionTapIn  = "TI"
	DirectionTapOut = "TO"
)

// LoaderMapping maps one agreement clause to a standard. It is only ever
// produced by the generation step.
type LoaderMapping struct {
	ClauseID        string       `json:"clause_id"`
	ClauseText      string       `json:"clause_text"`
	MatchedStandard *string      `json:"matched_standard"`
	Confidence      float64      `json:"confidence"`
	LoaderFields    LoaderFields `json:"loader_fields"`
}

// ExcelOutputPlan describes one spreadsheet artifact to derive from the
// template. Filename must encode the TADIGs, direction and both dates.
type ExcelOutputPlan struct {
	Direction    string  `json:"direction"`
	ClientTADIG  string  `json:"client_tadig"`
	PartnerTADIG string  `json:"partner_tadig"`
	StartDate    string  `json:"start_date"`
	EndDate      string  `json:"end_date"`
	Currency     string  `json:"currency"`
	SMSMORate    float64 `json:"sms_mo_rate"`
	SMSMTRate    float64 `json:"sms_mt_rate"`
	IsDiscount   bool    `json:"is_discount"`
	Filename     string  `json:"filename"`
}

// UnmarshalJSON applies the is_discount default of true when the field is
// absent.
func (p *ExcelOutputPlan) UnmarshalJSON(b []byte) error {
	type plain ExcelOutputPlan
	out := plain{IsDiscount: true}
	if err := json.Unmarshal(b, &out); err != nil {
		return err
	}
	*p = ExcelOutputPlan(out)
	return nil
}

// StartDigits returns StartDate with date separators removed.
func (p ExcelOutputPlan) StartDigits() string { return strings.ReplaceAll(p.StartDate, "-", "") }

// EndDigits returns EndDate with date separators removed.
func (p ExcelOutputPlan) EndDigits() string { return strings.ReplaceAll(p.EndDate, "-", "") }

// LoaderOutput is the validated result of the generation step.
type LoaderOutput struct {
	AgreementName string            `json:"agreement_name"`
	StandardsUsed []string          `json:"standards_used"`
	Mappings      []LoaderMapping   `json:"mappings"`
	MissingFields []string          `json:"missing_fields"`
	Notes         string            `json:"notes"`
	ExcelOutputs  []ExcelOutputPlan `json:"excel_outputs"`
}

// Normalize replaces nil collections with empty ones so that the written
// loader.json never carries nulls for list or map fields.
func (o *LoaderOutput) Normalize() {
	if o.StandardsUsed == nil {
		o.StandardsUsed = []string{}
	}
	if o.Mappings == nil {
		o.Mappings = []LoaderMapping{}
	}
	if o.MissingFields == nil {
		o.MissingFields = []string{}
	}
	if o.ExcelOutputs == nil {
		o.ExcelOutputs = []ExcelOutputPlan{}
	}
	for i := range o.Mappings {
		if o.Mappings[i].LoaderFields == nil {
			o.Mappings[i].LoaderFields = LoaderFields{}
		}
	}
}

// GenerationUsage is the best-effort token accounting of one model call.
type GenerationUsage struct {
	Model            string `json:"model,omitempty"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
}

// RunUsage collects usage for the first call and, when one happened, the
// repair call.
type RunUsage struct {
	FirstCall  *GenerationUsage `json:"first_call,omitempty"`
	RepairCall *GenerationUsage `json:"repair_call,omitempty"`
}
