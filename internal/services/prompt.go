package services

import (
	"fmt"
	"strings"
)

// LoaderSystemPrompt is the fixed instruction set sent with every generation
// call. It carries the output schema and the extraction rules.
const LoaderSystemPrompt = `You are the DISCOUNT IOT PROCESSING ENGINE (MASTER RULESET).
Return ONLY a single JSON object matching the schema below (no markdown, no code fences, no extra text).

Schema:
{
  "agreement_name": string,
  "standards_used": string[],
  "excel_outputs": [
    {
      "direction": "TI" | "TO",
      "client_tadig": string,
      "partner_tadig": string,
      "start_date": "YYYY-MM-DD",
      "end_date": "YYYY-MM-DD",
      "currency": string,
      "sms_mo_rate": number,
      "sms_mt_rate": number,
      "is_discount": boolean,
      "filename": string
    }
  ],
  "mappings": [
    {
      "clause_id": string,
      "clause_text": string,
      "matched_standard": string | null,
      "confidence": number (0..1),
      "loader_fields": object
    }
  ],
  "missing_fields": string[],
  "notes": string
}

FILENAME FORMAT: <ClientTADIG>_<PartnerTADIG>_<TIorTO>_<StartDateYYYYMMDD>_<EndDateYYYYMMDD>_D.xlsx

RULES:
- Detect the direction (TI vs TO), identify the client and partner TADIGs, find the mapping header, apply country TADIG logic, pick the TAX EXCLUSIVE tables and extract the SMS rates.
- For each sheet, generate ONLY the file that matches the detected direction (TI is TAP-IN / outbound, TO is TAP-OUT / inbound).
- SMS extraction: exactly one SMS-MO and one SMS-MT per sheet; if SMS-MT is missing, set sms_mt_rate=0.
- Excel outputs must include direction, client_tadig, partner_tadig, start/end dates, currency, sms_mo_rate, sms_mt_rate, the is_discount flag (default true) and a filename in the required format.
- Use only the provided text; do not invent clause text. If data is missing, set confidence <= 0.4 and add it to missing_fields.
- Keep clause_id stable and human-readable (1, 1.1, A-3, or C1/C2...).
`

// BuildUserPrompt embeds the budgeted agreement and standards into the task
// prompt. Standards keep their input order.
func BuildUserPrompt(agreementFilename string, corpus BudgetedCorpus) string {
	blocks := make([]string, len(corpus.Standards))
	for i, s := range corpus.Standards {
		blocks[i] = fmt.Sprintf("--- STANDARD FILE: %s ---\n%s", s.Name, s.Text)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Agreement filename: %s\n\n", agreementFilename)
	fmt.Fprintf(&b, "Agreement text:\n%s\n\n", corpus.AgreementText)
	fmt.Fprintf(&b, "Standard IOT texts (each labeled by filename):\n%s\n\n", strings.Join(blocks, "\n\n"))
	b.WriteString("Instruction:\n")
	b.WriteString("Generate loader mapping between agreement clauses and standard templates.\n")
	b.WriteString("Return JSON matching the required schema exactly.\n")
	return b.String()
}

// BuildRepairPrompt asks the model to fix its previous, invalid output.
func BuildRepairPrompt(previous string) string {
	return "The previous output was invalid JSON or did not match the required schema.\n" +
		"Return ONLY the corrected JSON object (no markdown, no commentary).\n\n" +
		"Previous output:\n" + previous + "\n"
}
