package council

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"quadforge/internal/logging"
	"quadforge/internal/parts"
)

//go:embed prompts/engineer.txt
var engineerPrompt string

// FinalConstraints is the merged, operator-approved constraint set.
type FinalConstraints struct {
	BudgetUSD        float64 `json:"budget_usd"`
	FrameSize        string  `json:"frame_size"`
	VideoSystem      string  `json:"video_system"`
	BatteryCellCount string  `json:"battery_cell_count"`
	BuildStandard    string  `json:"build_standard"`
	FasteningMethod  string  `json:"fastening_method"`
	WiringStandard   string  `json:"wiring_standard"`
}

// EngineeringPlan is the approved brief the sourcing pass works from.
// ForcedAnchor pins an already-fused part during re-architecture rounds
// so the next spec sheet is designed around it.
type EngineeringPlan struct {
	FinalConstraints FinalConstraints `json:"final_constraints"`
	BuildSummary     string           `json:"build_summary"`
	ApprovalStatus   string           `json:"approval_status"`
	Topology         Topology         `json:"topology"`
	ForcedAnchor     *parts.Part      `json:"forced_anchor,omitempty"`
}

// Engineer merges the analysis with the operator's answers into an
// approved engineering brief.
type Engineer struct {
	llm LLMClient
}

// Refine produces the final plan. The refine prompt does not re-emit
// topology, so the analyzed topology is carried over verbatim.
func (e *Engineer) Refine(ctx context.Context, analysis *Analysis, answers []string) (*EngineeringPlan, error) {
	logging.Council("[engineer] merging %d operator answers into the brief", len(answers))
	if answers == nil {
		answers = []string{}
	}
	user := fmt.Sprintf("ANALYSIS:\n%s\nANSWERS:\n%s", mustJSON(analysis), mustJSON(answers))
	var out EngineeringPlan
	if err := callJSON(ctx, e.llm, "engineer", engineerPrompt, user, planSchema(), &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.BuildSummary) == "" {
		return nil, fmt.Errorf("engineer: reply missing build_summary")
	}
	out.Topology = analysis.Topology
	return &out, nil
}
