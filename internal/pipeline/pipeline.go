// Package pipeline orchestrates one full design commission: council
// deliberation, component sourcing, the validation loop, the physics
// gate, artifact generation and persistence. It owns the master record
// every other layer reads.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"quadforge/internal/arsenal"
	"quadforge/internal/config"
	"quadforge/internal/council"
	"quadforge/internal/geometry"
	"quadforge/internal/logging"
	"quadforge/internal/manifest"
	"quadforge/internal/parts"
	"quadforge/internal/physics"
	"quadforge/internal/rules"
	"quadforge/internal/simulate"
)

var ErrEmptyRequest = errors.New("pipeline: empty design request")

// Resolver finds one concrete part for a spec-sheet line. *fusion.Fuser
// satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, partType, query string) (*parts.Part, error)
}

// Store persists finished designs. *arsenal.Store satisfies it.
type Store interface {
	SaveProject(ctx context.Context, p *arsenal.Project) error
	LogBuild(ctx context.Context, projectID int64, generation int, verdict, notes string) error
}

// Clarifier puts one question to the human operator and returns the
// reply. The terminal UI is the interactive implementation.
type Clarifier interface {
	Ask(ctx context.Context, c *council.Clarification) (string, error)
}

// Request is one design commission.
type Request struct {
	Prompt    string
	Name      string   // optional override for the architect's project name
	BudgetUSD float64  // optional override for the stated budget
	Answers   []string // canned clarification answers, consumed in order
}

// Validation round results as recorded in the master record.
const (
	ResultSuccess     = "SUCCESS"
	ResultRetry       = "RETRY"
	ResultRearchitect = "REARCHITECT"
	ResultEscalate    = "ESCALATE"
)

// Attempt is one validation round of the master record.
type Attempt struct {
	Round   int      `json:"attempt"`
	BOM     []string `json:"bom_snapshot,omitempty"`
	Failure string   `json:"failure,omitempty"`
	Detail  string   `json:"detail,omitempty"`
	Fix     string   `json:"fix,omitempty"`
	Result  string   `json:"result"`
}

// Step is one line of the run trace the final report prints.
type Step struct {
	Name   string    `json:"step"`
	Detail string    `json:"detail"`
	At     time.Time `json:"at"`
}

// Design is the master record of one pipeline run.
type Design struct {
	SessionID        string                   `json:"session_id"`
	Name             string                   `json:"project_name"`
	InitialPrompt    string                   `json:"initial_prompt"`
	ClarificationLog []string                 `json:"clarification_log"`
	Plan             *council.EngineeringPlan `json:"engineering_plan,omitempty"`
	BOM              []*parts.Part            `json:"final_bom"`
	Blueprint        *council.Blueprint       `json:"final_blueprint,omitempty"`
	Guide            *council.Guide           `json:"assembly_guide,omitempty"`
	ValidationLog    []Attempt                `json:"validation_log"`
	Compat           *rules.Verdict           `json:"compatibility,omitempty"`
	Geometry         *geometry.Report         `json:"geometry_report,omitempty"`
	Physics          physics.Report           `json:"flight_physics"`
	Simulation       simulate.Result          `json:"simulation"`
	FlightLog        simulate.Telemetry       `json:"flight_log"`
	Cost             *manifest.Manifest       `json:"final_cost,omitempty"`
	Status           string                   `json:"status"`
	DashboardPath    string                   `json:"dashboard_path,omitempty"`
	CreatedAt        time.Time                `json:"timestamp"`

	OutputDir string `json:"-"`
	Trace     []Step `json:"-"`
}

// trace appends one step to the run trace and mirrors it to the log.
func (d *Design) trace(name, format string, args ...interface{}) {
	detail := fmt.Sprintf(format, args...)
	d.Trace = append(d.Trace, Step{Name: name, Detail: detail, At: time.Now()})
	logging.Pipeline("[%s] %s", name, detail)
}

// Designer runs commissions end to end.
type Designer struct {
	cfg      *config.Config
	council  *council.Council
	resolver Resolver
	checker  *rules.Checker
	store    Store // nil skips persistence

	clarify Clarifier // nil skips interactive rounds
	outRoot string
}

// New wires a designer. The output root defaults to the configured CAD
// directory ("designs").
func New(cfg *config.Config, c *council.Council, resolver Resolver, checker *rules.Checker, store Store) *Designer {
	outRoot := cfg.CAD.OutputDir
	if outRoot == "" {
		outRoot = "designs"
	}
	return &Designer{
		cfg:      cfg,
		council:  c,
		resolver: resolver,
		checker:  checker,
		store:    store,
		outRoot:  outRoot,
	}
}

// SetClarifier enables interactive clarification and escalation rounds.
func (d *Designer) SetClarifier(c Clarifier) { d.clarify = c }

// SetOutputRoot overrides where designs/<name>/ directories are written.
func (d *Designer) SetOutputRoot(dir string) {
	if dir != "" {
		d.outRoot = dir
	}
}

// OutputRoot reports where finished designs land.
func (d *Designer) OutputRoot() string { return d.outRoot }

// Run executes the full commission. The returned design is non-nil
// whenever the architect produced an analysis, even if a later stage
// failed; its trace and validation log tell the story either way.
func (d *Designer) Run(ctx context.Context, req Request) (*Design, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, ErrEmptyRequest
	}

	design := &Design{
		SessionID:     "QF-" + time.Now().Format("20060102-150405"),
		InitialPrompt: req.Prompt,
		CreatedAt:     time.Now(),
		Status:        arsenal.StatusInProgress,
	}
	logging.Pipeline("session %s: %q", design.SessionID, clip(req.Prompt, 120))

	// Intake: architect reads the request, operator fills the gaps.
	analysis, err := d.council.Architect.Analyze(ctx, req.Prompt)
	if err != nil {
		return nil, fmt.Errorf("analyze request: %w", err)
	}
	design.Name = pickName(req.Name, analysis.ProjectName)
	design.trace("architect", "%s class on %s, project %s",
		analysis.Topology.Class, analysis.Topology.TargetVoltage, design.Name)

	design.ClarificationLog = d.clarifyIntake(ctx, analysis, req.Answers)

	if req.BudgetUSD > 0 {
		analysis.Constraints.BudgetUSD = &req.BudgetUSD
	} else if analysis.Constraints.BudgetUSD == nil && d.cfg.Pipeline.DefaultBudget > 0 {
		budget := d.cfg.Pipeline.DefaultBudget
		analysis.Constraints.BudgetUSD = &budget
	}

	// Engineer approves the brief, the sourcer writes the shopping list.
	plan, err := d.council.Engineer.Refine(ctx, analysis, design.ClarificationLog)
	if err != nil {
		return design, fmt.Errorf("refine plan: %w", err)
	}
	design.Plan = plan
	design.trace("engineer", "plan approved: %s", clip(plan.BuildSummary, 140))

	sheet, err := d.council.Sourcer.SpecSheet(ctx, plan)
	if err != nil {
		return design, fmt.Errorf("spec sheet: %w", err)
	}
	design.trace("sourcer", "spec sheet carries %d buy orders", len(sheet.BuyList))

	// The loop: source, inspect, check, repair.
	if err := d.validate(ctx, design, sheet); err != nil {
		design.Status = arsenal.StatusFailed
		d.finish(ctx, design)
		return design, err
	}

	// Physics gate: swap the weakest power link until it flies.
	report, err := d.physicsGate(ctx, design)
	if err != nil {
		design.Status = arsenal.StatusFailed
		d.finish(ctx, design)
		return design, fmt.Errorf("flight model: %w", err)
	}
	design.Physics = report
	design.trace("physics", "twr=%.2f hover=%.1f%% flight=%.1fmin %s",
		report.TWR, report.HoverThrottlePc, report.FlightTimeMin, report.Status)

	// Artifacts and the final record.
	if err := d.artifacts(ctx, design); err != nil {
		design.Status = arsenal.StatusFailed
		d.finish(ctx, design)
		return design, err
	}
	design.Status = arsenal.StatusComplete
	d.finish(ctx, design)
	design.trace("done", "design %s complete: %s", design.Name, design.Simulation.Outcome)
	return design, nil
}

// clarifyIntake runs the one clarification round. Canned answers are
// consumed first; an interactive clarifier picks up any questions left.
func (d *Designer) clarifyIntake(ctx context.Context, analysis *council.Analysis, canned []string) []string {
	questions := analysis.MissingCriticalInfo
	if len(questions) == 0 {
		return nil
	}
	logging.Pipeline("clarification needed: %d questions", len(questions))

	log := make([]string, 0, len(questions))
	for i, q := range questions {
		var answer string
		switch {
		case i < len(canned):
			answer = canned[i]
		case d.clarify != nil:
			reply, err := d.clarify.Ask(ctx, &council.Clarification{Question: q})
			if err != nil {
				logging.PipelineWarn("clarification aborted: %v", err)
				answer = "No preference, use your best engineering judgment."
			} else {
				answer = reply
			}
		default:
			answer = "No preference, use your best engineering judgment."
		}
		log = append(log, fmt.Sprintf("Question: %s | Answer: %s", q, answer))
	}
	return log
}

// finish writes the master record to disk and the project row to the
// arsenal. Both are best-effort; a failed save never masks the run's
// own error.
func (d *Designer) finish(ctx context.Context, design *Design) {
	if design.OutputDir == "" {
		design.OutputDir = filepath.Join(d.outRoot, slugify(design.Name))
	}
	if err := WriteMasterRecord(design); err != nil {
		logging.PipelineWarn("master record not written: %v", err)
	}
	if d.store == nil {
		return
	}
	raw, err := json.MarshalIndent(design, "", "  ")
	if err != nil {
		logging.PipelineError("master record marshal failed: %v", err)
		return
	}
	proj := &arsenal.Project{
		Name:   design.Name,
		Intent: design.InitialPrompt,
		Design: raw,
		Status: design.Status,
	}
	if err := d.store.SaveProject(ctx, proj); err != nil {
		logging.PipelineWarn("project save failed: %v", err)
		return
	}
	verdict := design.Simulation.Outcome
	if verdict == "" {
		verdict = strings.ToUpper(design.Status)
	}
	if err := d.store.LogBuild(ctx, proj.ID, 1, verdict, design.Simulation.Notes); err != nil {
		logging.PipelineWarn("build log failed: %v", err)
	}
}

// WriteMasterRecord persists the full design state as JSON next to the
// rendered artifacts.
func WriteMasterRecord(design *Design) error {
	if err := os.MkdirAll(design.OutputDir, 0755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(design, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(design.OutputDir, "master_record.json"), raw, 0644)
}

func pickName(override, proposed string) string {
	name := strings.TrimSpace(override)
	if name == "" {
		name = strings.TrimSpace(proposed)
	}
	if name == "" {
		name = "UNNAMED_BUILD"
	}
	return name
}

// slugify flattens a project name into a directory-safe token.
func slugify(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "design"
	}
	return b.String()
}

func clip(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func bomNames(bom []*parts.Part) []string {
	names := make([]string, 0, len(bom))
	for _, p := range bom {
		names = append(names, p.Name)
	}
	return names
}
