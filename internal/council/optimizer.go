package council

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"quadforge/internal/logging"
	"quadforge/internal/parts"
)

//go:embed prompts/optimizer.txt
var optimizerPrompt string

// Failure classes the optimizer understands.
const (
	FailureConceptual  = "conceptual"
	FailureGeometric   = "geometric"
	FailureSourcing    = "sourcing"
	FailurePerformance = "performance"
)

// FailureReport describes one failed validation attempt. Details is a
// string for conceptual failures, a list of error strings for geometric
// ones, and a part type / query pair for sourcing.
type FailureReport struct {
	Type    string      `json:"type"`
	Details interface{} `json:"details"`
}

// SourcingFailure builds the report for a part that could not be found.
func SourcingFailure(partType, failedQuery string) FailureReport {
	return FailureReport{
		Type: FailureSourcing,
		Details: map[string]string{
			"part_type":    partType,
			"failed_query": failedQuery,
		},
	}
}

// ConceptualFailure builds the report for an inspector rejection.
func ConceptualFailure(reason string) FailureReport {
	return FailureReport{Type: FailureConceptual, Details: reason}
}

// GeometricFailure builds the report for collision errors from the
// geometry check.
func GeometricFailure(faults []string) FailureReport {
	return FailureReport{Type: FailureGeometric, Details: faults}
}

// PerformanceFailure builds the report for a flight model that missed
// the thrust floor. Details is the full physics report.
func PerformanceFailure(report interface{}) FailureReport {
	return FailureReport{Type: FailurePerformance, Details: report}
}

// Replacement is one part swap the optimizer prescribes.
type Replacement struct {
	PartType       string `json:"part_type"`
	NewSearchQuery string `json:"new_search_query"`
	Reason         string `json:"reason"`
}

// Remedy is the optimizer's diagnosis and prescription.
type Remedy struct {
	Diagnosis    string        `json:"diagnosis"`
	Strategy     string        `json:"strategy"`
	Replacements []Replacement `json:"replacements"`
}

// RequiresRearchitecture reports whether the diagnosis condemns the
// whole concept rather than a single part.
func (r *Remedy) RequiresRearchitecture() bool {
	d := strings.ToLower(r.Diagnosis)
	return strings.Contains(d, "fundamentally invalid") ||
		strings.Contains(d, "critically incomplete")
}

// Optimizer diagnoses failed designs and prescribes one precise fix.
type Optimizer struct {
	llm LLMClient
}

// Diagnose asks for a remedy. The payload keys follow the prompt:
// current_bom and failure_report.
func (o *Optimizer) Diagnose(ctx context.Context, bom []*parts.Part, failure FailureReport) (*Remedy, error) {
	logging.Council("[optimizer] diagnosing %s failure", failure.Type)
	payload := map[string]interface{}{
		"current_bom":    bom,
		"failure_report": failure,
	}
	var out Remedy
	if err := callJSON(ctx, o.llm, "optimizer", optimizerPrompt, mustJSON(payload), remedySchema(), &out); err != nil {
		return nil, err
	}
	if len(out.Replacements) == 0 {
		return nil, fmt.Errorf("optimizer: remedy carried no replacements")
	}
	logging.Council("[optimizer] strategy: %s (replace %s)", out.Strategy, out.Replacements[0].PartType)
	return &out, nil
}
