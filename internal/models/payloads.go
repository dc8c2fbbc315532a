package models

// These structs define the request, manifest and journal of one generation
// run.

// GenerateLoaderRequest is the input for a generation run. The upload store
// resolves AgreementPath and StandardPaths before the run starts.
type GenerateLoaderRequest struct {
	AgreementID   string   `json:"agreementId"`
	BatchID       string   `json:"batchId"`
	AgreementPath string   `json:"agreementPath"`
	StandardPaths []string `json:"standardPaths"`
	Model         string   `json:"model"`
}

// RunSummary is the short description returned with the manifest.
type RunSummary struct {
	AgreementName      string   `json:"agreement_name"`
	StandardsUsed      []string `json:"standards_used"`
	MappingsCount      int      `json:"mappings_count"`
	MissingFieldsCount int      `json:"missing_fields_count"`
	ExcelFilesCount    int      `json:"excel_files_count"`
}

// GenerateLoaderResponse is the artifact manifest of a successful run.
type GenerateLoaderResponse struct {
	RunID            string     `json:"run_id"`
	OutputDir        string     `json:"output_dir"`
	LoaderJSONPath   string     `json:"loader_json_path"`
	LoaderExcelPaths []string   `json:"loader_excel_paths"`
	MetaJSONPath     string     `json:"meta_json_path"`
	PublishedURIs    []string   `json:"published_uris,omitempty"`
	Summary          RunSummary `json:"summary"`
}

// TruncationFlags records which inputs were cut by the budgeter.
type TruncationFlags struct {
	Agreement bool            `json:"agreement"`
	Standards map[string]bool `json:"standards"`
}

// TruncationReport is the budgeter's account of the limits it applied.
type TruncationReport struct {
	MaxCharsPerFile     int             `json:"max_chars_per_file"`
	MaxTotalChars       int             `json:"max_total_chars"`
	MinCharsPerStandard int             `json:"min_chars_per_standard"`
	Truncated           TruncationFlags `json:"truncated"`
}

// JournalInputs describes what a run consumed.
type JournalInputs struct {
	AgreementFile  string           `json:"agreement_file"`
	StandardFiles  []string         `json:"standard_files"`
	Truncation     TruncationReport `json:"truncation"`
	AgreementChars int              `json:"agreement_chars"`
	StandardsChars map[string]int   `json:"standards_chars"`
	TruncatedFiles []string         `json:"truncated_files"`
}

// JournalOutputs lists where a run wrote its artifacts.
type JournalOutputs struct {
	OutputDir   string   `json:"output_dir"`
	LoaderJSON  string   `json:"loader_json"`
	LoaderExcel []string `json:"loader_excel"`
	MetaJSON    string   `json:"meta_json"`
}

// RunJournal is written to meta.json at the end of a run.
type RunJournal struct {
	RunID       string            `json:"run_id"`
	CreatedAt   string            `json:"created_at"`
	StartedAt   string            `json:"started_at"`
	AgreementID string            `json:"agreement_id"`
	BatchID     string            `json:"batch_id"`
	Model       string            `json:"model"`
	Repaired    bool              `json:"repaired"`
	Inputs      JournalInputs     `json:"inputs"`
	Usage       RunUsage          `json:"usage"`
	Outputs     JournalOutputs    `json:"outputs"`
	ExcelPlans  []ExcelOutputPlan `json:"excel_plans"`
}

// StoredUpload is returned by the upload store for each file it accepts.
type StoredUpload struct {
	AgreementID             string   `json:"agreement_id,omitempty"`
	AgreementStoredFilename string   `json:"agreement_stored_filename,omitempty"`
	BatchID                 string   `json:"batch_id,omitempty"`
	StandardStoredFilenames []string `json:"standard_stored_filenames,omitempty"`
}
