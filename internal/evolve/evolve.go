// Package evolve runs the evolutionary redesign loop: fabricate an
// airframe from parametric DNA, fly it through the flight model, and
// mutate the DNA until the design hovers with margin or the generation
// budget runs out. It is the self-correcting counterpart to the
// council-driven pipeline, with heuristics standing in for personas.
package evolve

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"quadforge/internal/arsenal"
	"quadforge/internal/cad"
	"quadforge/internal/config"
	"quadforge/internal/logging"
	"quadforge/internal/physics"
	"quadforge/internal/simulate"
)

// Convergence thresholds. A design is done when it passes the hover
// test and still has this much throttle headroom.
const (
	ConvergedHoverPct  = 60.0
	overweightHoverPc  = 65.0
	overpoweredHoverPc = 15.0
)

// Genome is one generation's full parameter set: the airframe DNA plus
// the power system choices the mutations can reach.
type Genome struct {
	cad.DNA
	BatteryMAh int `json:"battery_mah"`
}

// Seed returns the deliberately flawed first generation.
func Seed() Genome {
	return Genome{DNA: cad.SeedDNA(), BatteryMAh: 1300}
}

// Generation is one fabricate-fly-judge cycle of the lineage.
type Generation struct {
	Index     int             `json:"generation"`
	Genome    Genome          `json:"dna"`
	Class     string          `json:"motor_class"`
	Physics   physics.Report  `json:"flight_physics"`
	Verdict   simulate.Result `json:"verdict"`
	Mutations []string        `json:"mutations,omitempty"`
	URDFPath  string          `json:"urdf_path,omitempty"`
	At        time.Time       `json:"timestamp"`
}

// Lineage is the full evolution history of one run.
type Lineage struct {
	Converged   bool         `json:"converged"`
	Generations []Generation `json:"generations"`
}

// Final returns the last generation flown, nil before any flew.
func (l *Lineage) Final() *Generation {
	if len(l.Generations) == 0 {
		return nil
	}
	return &l.Generations[len(l.Generations)-1]
}

// Ledger persists lineages and per-generation verdicts. *arsenal.Store
// satisfies it.
type Ledger interface {
	SaveProject(ctx context.Context, p *arsenal.Project) error
	LogBuild(ctx context.Context, projectID int64, generation int, verdict, notes string) error
}

// Evolver owns one redesign loop's configuration and persistence.
type Evolver struct {
	cfg     *config.Config
	ledger  Ledger // nil skips persistence
	outRoot string
}

// New wires an evolver. Generations land under the configured CAD
// output directory, in evolution/gen_<n>/.
func New(cfg *config.Config, ledger Ledger) *Evolver {
	outRoot := cfg.CAD.OutputDir
	if outRoot == "" {
		outRoot = "designs"
	}
	return &Evolver{cfg: cfg, ledger: ledger, outRoot: outRoot}
}

// SetOutputRoot overrides where evolution/gen_<n>/ directories land.
func (e *Evolver) SetOutputRoot(dir string) {
	if dir != "" {
		e.outRoot = dir
	}
}

// Run evolves the seed until convergence or the generation budget runs
// out. The returned lineage carries every generation flown, including
// the run that a fabrication error cut short.
func (e *Evolver) Run(ctx context.Context, seed Genome) (*Lineage, error) {
	timer := logging.StartTimer(logging.CategoryEvolve, "Run")
	defer timer.Stop()

	maxGen := e.cfg.Pipeline.MaxGenerations
	if maxGen <= 0 {
		maxGen = 5
	}
	genome := seed
	if genome.Name == "" {
		genome = Seed()
	}

	lineage := &Lineage{}
	projectID := e.openLedger(ctx, genome)

	for gen := 1; gen <= maxGen; gen++ {
		if ctx.Err() != nil {
			return lineage, ctx.Err()
		}
		logging.Evolve("generation %d: %s (props %.1f\", arms %.1fmm, mount %.0fmm)",
			gen, genome.Name, genome.PropDiameterInch, genome.ArmThicknessMM, genome.MotorMountMM)

		genDir := filepath.Join(e.outRoot, "evolution", fmt.Sprintf("gen_%d", gen))
		urdf, err := e.fabricate(ctx, genDir, genome)
		if err != nil {
			e.closeLedger(ctx, projectID, lineage)
			return lineage, fmt.Errorf("fabricate generation %d: %w", gen, err)
		}

		report := Flight(genome)
		verdict := simulate.Run(report)
		logging.Evolve("generation %d flew %s: twr=%.2f hover=%.1f%%",
			gen, verdict.Outcome, report.TWR, report.HoverThrottlePc)

		record := Generation{
			Index:    gen,
			Genome:   genome,
			Class:    classFor(genome.MotorMountMM).Label,
			Physics:  report,
			Verdict:  verdict,
			URDFPath: urdf,
			At:       time.Now(),
		}

		if verdict.Outcome == simulate.OutcomePass && report.HoverThrottlePc < ConvergedHoverPct {
			lineage.Converged = true
			lineage.Generations = append(lineage.Generations, record)
			e.writeGeneration(genDir, &lineage.Generations[len(lineage.Generations)-1])
			e.logGeneration(ctx, projectID, &record)
			logging.Evolve("converged on generation %d: %s", gen, genome.Name)
			break
		}

		next, mutations := mutate(genome, report, verdict)
		record.Mutations = mutations
		lineage.Generations = append(lineage.Generations, record)
		e.writeGeneration(genDir, &lineage.Generations[len(lineage.Generations)-1])
		e.logGeneration(ctx, projectID, &record)

		if len(mutations) == 0 {
			logging.Evolve("no mutation applies to generation %d, stopping", gen)
			break
		}
		for _, m := range mutations {
			logging.EvolveDebug("  mutation: %s", m)
		}
		genome = next
	}

	e.closeLedger(ctx, projectID, lineage)
	return lineage, nil
}

// fabricate exports the generation's simulation rig into a fresh
// directory, wiping any remains of an earlier run.
func (e *Evolver) fabricate(ctx context.Context, genDir string, genome Genome) (string, error) {
	if err := os.RemoveAll(genDir); err != nil {
		return "", err
	}
	gen := cad.NewGenerator(genDir, e.cfg.CAD.OpenSCADBinary)
	return gen.ExportURDF(ctx, genome.DNA)
}

// writeGeneration drops the generation's master record and flight log
// next to its meshes. Best-effort; the lineage in memory is canonical.
func (e *Evolver) writeGeneration(genDir string, record *Generation) {
	write := func(name string, v interface{}) {
		raw, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			logging.EvolveWarn("generation record marshal failed: %v", err)
			return
		}
		if err := os.WriteFile(filepath.Join(genDir, name), raw, 0644); err != nil {
			logging.EvolveWarn("generation record not written: %v", err)
		}
	}
	write("master_dna.json", record)
	write("flight_log.json", simulate.FlightLog(record.Physics, simulate.DefaultSamples))
}

func (e *Evolver) openLedger(ctx context.Context, genome Genome) int64 {
	if e.ledger == nil {
		return 0
	}
	proj := &arsenal.Project{
		Name:   genome.Name,
		Intent: "evolutionary redesign",
		Status: arsenal.StatusInProgress,
	}
	if err := e.ledger.SaveProject(ctx, proj); err != nil {
		logging.EvolveWarn("lineage project save failed: %v", err)
		return 0
	}
	return proj.ID
}

func (e *Evolver) logGeneration(ctx context.Context, projectID int64, record *Generation) {
	if e.ledger == nil || projectID == 0 {
		return
	}
	notes := record.Verdict.Notes
	if len(record.Mutations) > 0 {
		notes = strings.Join(record.Mutations, "; ")
	}
	if err := e.ledger.LogBuild(ctx, projectID, record.Index, record.Verdict.Outcome, notes); err != nil {
		logging.EvolveWarn("build log failed for generation %d: %v", record.Index, err)
	}
}

func (e *Evolver) closeLedger(ctx context.Context, projectID int64, lineage *Lineage) {
	if e.ledger == nil || projectID == 0 {
		return
	}
	final := lineage.Final()
	if final == nil {
		return
	}
	status := arsenal.StatusFailed
	if lineage.Converged {
		status = arsenal.StatusComplete
	}
	raw, err := json.MarshalIndent(lineage, "", "  ")
	if err != nil {
		logging.EvolveWarn("lineage marshal failed: %v", err)
		return
	}
	proj := &arsenal.Project{
		ID:     projectID,
		Name:   final.Genome.Name,
		Intent: "evolutionary redesign",
		Design: raw,
		Status: status,
	}
	if err := e.ledger.SaveProject(ctx, proj); err != nil {
		logging.EvolveWarn("lineage project update failed: %v", err)
	}
}

// mutate applies the repair heuristics to one flown generation. It
// returns the seed unchanged with no notes when nothing applies.
func mutate(g Genome, report physics.Report, verdict simulate.Result) (Genome, []string) {
	next := g
	var notes []string

	hover := report.HoverThrottlePc
	if hover > overweightHoverPc {
		next.PropDiameterInch = math.Round((next.PropDiameterInch+0.1)*10) / 10
		notes = append(notes, fmt.Sprintf(
			"overweight: hover needs %.1f%% throttle, growing props to %.1f\"",
			hover, next.PropDiameterInch))
	}
	if verdict.Crashed() {
		next.MotorMountMM = turboMountMM
		next.Name = tagTurbo(next.Name)
		notes = append(notes, fmt.Sprintf(
			"crash (%s): stepping up to the %s motor class",
			verdict.Notes, classFor(turboMountMM).Label))
	}
	if hover > 0 && hover < overpoweredHoverPc {
		if smaller, ok := smallerPack(next.BatteryMAh); ok {
			next.BatteryMAh = smaller
			notes = append(notes, fmt.Sprintf(
				"overpowered: hover at %.1f%%, downsizing the pack to %dmAh",
				hover, smaller))
		}
	}

	if len(notes) == 0 {
		return g, nil
	}
	next.Name = nextName(next.Name)
	return next, notes
}

// turboMountMM is the bolt pattern of the next motor class up; forcing
// it makes the fabricator model the larger motor.
const turboMountMM = 19.0

// packSteps are the common pack sizes the downsize heuristic walks.
var packSteps = []int{3000, 2200, 1800, 1500, 1300, 1100, 850, 650, 450, 300}

// smallerPack returns the next capacity down, false at the bottom.
func smallerPack(capacityMAh int) (int, bool) {
	for _, step := range packSteps {
		if step < capacityMAh {
			return step, true
		}
	}
	return capacityMAh, false
}

// tagTurbo marks a genome as motor-upgraded exactly once, keeping the
// version suffix at the end of the name.
func tagTurbo(name string) string {
	if strings.Contains(name, "_Turbo") {
		return name
	}
	base, v, ok := splitVersion(name)
	if !ok {
		return name + "_Turbo"
	}
	return fmt.Sprintf("%s_Turbo_V%d", base, v)
}

// nextName bumps the trailing _V<n> suffix, starting one at _V2 when
// the name never carried a version.
func nextName(name string) string {
	base, v, ok := splitVersion(name)
	if !ok {
		return name + "_V2"
	}
	return fmt.Sprintf("%s_V%d", base, v+1)
}

func splitVersion(name string) (string, int, bool) {
	i := strings.LastIndex(name, "_V")
	if i < 0 {
		return name, 0, false
	}
	v, err := strconv.Atoi(name[i+2:])
	if err != nil {
		return name, 0, false
	}
	return name[:i], v, true
}
