package council

import (
	"context"
	_ "embed"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"quadforge/internal/logging"
	"quadforge/internal/parts"
)

//go:embed prompts/architect.txt
var architectPrompt string

// Topology is the architect's physical outline of the craft.
type Topology struct {
	Class         string  `json:"class"`
	TargetVoltage string  `json:"target_voltage"`
	PropSizeInch  float64 `json:"prop_size_inch"`
	VideoSystem   string  `json:"video_system"`
	FrameMaterial string  `json:"frame_material"`
}

var cellCountRe = regexp.MustCompile(`(\d{1,2})\s*[sS]`)

// CellCount parses the pack cell count out of TargetVoltage ("6S" -> 6).
// Zero means the architect left the voltage unreadable.
func (t Topology) CellCount() int {
	m := cellCountRe.FindStringSubmatch(t.TargetVoltage)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

// VoltageV is the nominal pack voltage implied by the cell count.
func (t Topology) VoltageV() float64 {
	return parts.CellsToVoltage(t.CellCount())
}

// Digital reports whether the video system is an HD digital link.
func (t Topology) Digital() bool {
	v := strings.ToLower(t.VideoSystem)
	for _, marker := range []string{"digital", "dji", "hd", "o3", "vista"} {
		if strings.Contains(v, marker) {
			return true
		}
	}
	return false
}

// Constraints carries the budget and any hard limits the operator stated.
// BudgetUSD is nil when the request named no budget.
type Constraints struct {
	BudgetUSD  *float64 `json:"budget_usd"`
	HardLimits []string `json:"hard_limits"`
}

// Analysis is the architect's full reading of the request.
type Analysis struct {
	ProjectName         string      `json:"project_name"`
	Topology            Topology    `json:"topology"`
	Constraints         Constraints `json:"constraints"`
	MissingCriticalInfo []string    `json:"missing_critical_info"`
	ReasoningTrace      string      `json:"reasoning_trace"`
}

// Architect turns a vague operator request into an engineering topology.
type Architect struct {
	llm LLMClient
}

// Analyze classifies the request against the drone-class axioms and
// returns the resulting topology plus whatever is still unknown.
func (a *Architect) Analyze(ctx context.Context, request string) (*Analysis, error) {
	logging.Council("[architect] analyzing request (%d chars)", len(request))
	var out Analysis
	if err := callJSON(ctx, a.llm, "architect", architectPrompt, request, analysisSchema(), &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.ProjectName) == "" {
		return nil, fmt.Errorf("architect: reply missing project_name")
	}
	if strings.TrimSpace(out.Topology.Class) == "" {
		return nil, fmt.Errorf("architect: reply missing topology.class")
	}
	logging.Council("[architect] %q -> class=%s voltage=%s prop=%.1f\"",
		out.ProjectName, out.Topology.Class, out.Topology.TargetVoltage, out.Topology.PropSizeInch)
	return &out, nil
}
