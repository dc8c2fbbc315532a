package services

import (
	"context"
	"log/slog"

	"github.com/Lllllllleong/iotloader/internal/llm"
	"github.com/Lllllllleong/iotloader/internal/models"
)

const (
	DefaultGenerationRetries = 2
	DefaultRepairRetries     = 1
)

// Generator is the model call used by the pipeline. *llm.Client implements it.
type Generator interface {
	Generate(ctx context.Context, model, systemPrompt, userPrompt string, retries int) (llm.Result, error)
}

type OutcomeKind int

const (
	OutcomeOK OutcomeKind = iota
	OutcomeSchemaFault
	OutcomeGenerationFault
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeSchemaFault:
		return "schema_fault"
	}
	return "generation_fault"
}

// Outcome is the result of GenerateValidated. Loader is set only for
// OutcomeOK; Err only for the fault kinds. Usage is filled in either way.
type Outcome struct {
	Kind     OutcomeKind
	Loader   *models.LoaderOutput
	Usage    models.RunUsage
	Repaired bool
	Err      error
}

// RetryPolicy holds the retry budgets for the first call and the repair call.
type RetryPolicy struct {
	Generation int
	Repair     int
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Generation: DefaultGenerationRetries, Repair: DefaultRepairRetries}
}

// GenerateValidated runs the generation call and validates its output. An
// invalid first response gets exactly one repair call that carries the
// invalid text back to the model.
func GenerateValidated(ctx context.Context, gen Generator, model, userPrompt string, policy RetryPolicy) Outcome {
	logCtx := slog.With("model", model)

	first, err := gen.Generate(ctx, model, LoaderSystemPrompt, userPrompt, policy.Generation)
	if err != nil {
		return Outcome{Kind: OutcomeGenerationFault, Err: err}
	}
	out := Outcome{Usage: models.RunUsage{FirstCall: first.Usage}}

	loader, firstErr := ParseLoaderOutput(first.Text)
	if firstErr == nil {
		out.Kind = OutcomeOK
		out.Loader = loader
		return out
	}
	logCtx.Warn("Model output failed validation, requesting repair.", "error", firstErr)

	out.Repaired = true
	second, err := gen.Generate(ctx, model, LoaderSystemPrompt, BuildRepairPrompt(first.Text), policy.Repair)
	if err != nil {
		out.Kind = OutcomeGenerationFault
		out.Err = err
		return out
	}
	out.Usage.RepairCall = second.Usage

	loader, repairErr := ParseLoaderOutput(second.Text)
	if repairErr != nil {
		out.Kind = OutcomeSchemaFault
		out.Err = &RepairFailedError{Original: firstErr, Repair: repairErr}
		return out
	}
	logCtx.Info("Repair call produced valid output.")
	out.Kind = OutcomeOK
	out.Loader = loader
	return out
}
