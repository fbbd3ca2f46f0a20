package evolve

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quadforge/internal/arsenal"
	"quadforge/internal/cad"
	"quadforge/internal/config"
	"quadforge/internal/physics"
	"quadforge/internal/simulate"
)

type loggedBuild struct {
	projectID  int64
	generation int
	verdict    string
	notes      string
}

// fakeLedger records persistence calls in memory.
type fakeLedger struct {
	saves  []*arsenal.Project
	builds []loggedBuild
}

func (f *fakeLedger) SaveProject(_ context.Context, p *arsenal.Project) error {
	if p.ID == 0 {
		p.ID = int64(len(f.saves) + 1)
	}
	f.saves = append(f.saves, p)
	return nil
}

func (f *fakeLedger) LogBuild(_ context.Context, projectID int64, generation int, verdict, notes string) error {
	f.builds = append(f.builds, loggedBuild{projectID, generation, verdict, notes})
	return nil
}

func newTestEvolver(t *testing.T, ledger Ledger) (*Evolver, *config.Config) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.CAD.OutputDir = t.TempDir()
	// A binary that does not exist keeps the meshes as placeholders.
	cfg.CAD.OpenSCADBinary = filepath.Join(t.TempDir(), "openscad")
	return New(cfg, ledger), cfg
}

func TestSeedEvolvesToConvergence(t *testing.T) {
	ledger := &fakeLedger{}
	e, _ := newTestEvolver(t, ledger)

	lineage, err := e.Run(context.Background(), Seed())
	require.NoError(t, err)
	require.NotNil(t, lineage)

	// The flawed seed crashes, the turbo rebuild hovers with margin.
	assert.True(t, lineage.Converged)
	require.Len(t, lineage.Generations, 2)

	first := lineage.Generations[0]
	assert.Equal(t, "Prototype_V1", first.Genome.Name)
	assert.Equal(t, "1106", first.Class)
	assert.Equal(t, simulate.OutcomeCrash, first.Verdict.Outcome)
	assert.Less(t, first.Physics.TWR, 1.05)
	require.Len(t, first.Mutations, 2)
	assert.Contains(t, first.Mutations[0], "growing props to 4.1")
	assert.Contains(t, first.Mutations[1], "2306 motor class")

	second := lineage.Generations[1]
	assert.Equal(t, "Prototype_Turbo_V2", second.Genome.Name)
	assert.Equal(t, "2306", second.Class)
	assert.Equal(t, 19.0, second.Genome.MotorMountMM)
	assert.Equal(t, 4.1, second.Genome.PropDiameterInch)
	assert.Equal(t, simulate.OutcomePass, second.Verdict.Outcome)
	assert.Less(t, second.Physics.HoverThrottlePc, ConvergedHoverPct)
	assert.Empty(t, second.Mutations)

	// Each generation left its rig and records on disk.
	for _, gen := range []string{"gen_1", "gen_2"} {
		dir := filepath.Join(e.outRoot, "evolution", gen)
		assert.FileExists(t, filepath.Join(dir, "drone.urdf"))
		assert.FileExists(t, filepath.Join(dir, "base.stl"))
		assert.FileExists(t, filepath.Join(dir, "prop.stl"))
		assert.FileExists(t, filepath.Join(dir, "master_dna.json"))
		assert.FileExists(t, filepath.Join(dir, "flight_log.json"))
	}

	// Ledger: opening save, one build row per generation, closing save.
	require.Len(t, ledger.builds, 2)
	assert.Equal(t, 1, ledger.builds[0].generation)
	assert.Equal(t, simulate.OutcomeCrash, ledger.builds[0].verdict)
	assert.Contains(t, ledger.builds[0].notes, "growing props")
	assert.Equal(t, 2, ledger.builds[1].generation)
	assert.Equal(t, simulate.OutcomePass, ledger.builds[1].verdict)

	require.GreaterOrEqual(t, len(ledger.saves), 2)
	closing := ledger.saves[len(ledger.saves)-1]
	assert.Equal(t, arsenal.StatusComplete, closing.Status)
	assert.Equal(t, "Prototype_Turbo_V2", closing.Name)
	assert.NotEmpty(t, closing.Design)
}

func TestRunStopsAtGenerationBudget(t *testing.T) {
	ledger := &fakeLedger{}
	e, cfg := newTestEvolver(t, ledger)
	cfg.Pipeline.MaxGenerations = 3

	// A brick: massive frame the prop growth heuristic can never save.
	brick := Genome{
		DNA: cad.DNA{
			Name:             "Brick_V1",
			WheelbaseMM:      600,
			MotorMountMM:     19.0,
			StackMountMM:     30.5,
			ArmThicknessMM:   20.0,
			PropDiameterInch: 4.0,
		},
		BatteryMAh: 1300,
	}

	lineage, err := e.Run(context.Background(), brick)
	require.NoError(t, err)

	assert.False(t, lineage.Converged)
	require.Len(t, lineage.Generations, 3)
	assert.Equal(t, "Brick_V1", lineage.Generations[0].Genome.Name)
	assert.Equal(t, "Brick_V2", lineage.Generations[1].Genome.Name)
	assert.Equal(t, "Brick_V3", lineage.Generations[2].Genome.Name)
	for _, gen := range lineage.Generations {
		assert.Equal(t, simulate.OutcomeMarginal, gen.Verdict.Outcome)
		assert.NotEmpty(t, gen.Mutations)
	}

	closing := ledger.saves[len(ledger.saves)-1]
	assert.Equal(t, arsenal.StatusFailed, closing.Status)
}

func TestMutateOverweightGrowsProps(t *testing.T) {
	g := Seed()
	report := physics.Report{HoverThrottlePc: 72.0, TWR: 1.35}
	verdict := simulate.Result{Outcome: simulate.OutcomeMarginal}

	next, notes := mutate(g, report, verdict)
	require.Len(t, notes, 1)
	assert.Equal(t, 4.1, next.PropDiameterInch)
	assert.Equal(t, g.MotorMountMM, next.MotorMountMM)
	assert.Equal(t, "Prototype_V2", next.Name)
}

func TestMutateCrashTagsTurboOnce(t *testing.T) {
	g := Seed()
	report := physics.Report{HoverThrottlePc: 40.0, TWR: 0.9}
	verdict := simulate.Result{Outcome: simulate.OutcomeCrash, Notes: "insufficient thrust"}

	next, notes := mutate(g, report, verdict)
	require.Len(t, notes, 1)
	assert.Equal(t, 19.0, next.MotorMountMM)
	assert.Equal(t, "Prototype_Turbo_V2", next.Name)

	// A second crash keeps a single tag and bumps the version.
	again, _ := mutate(next, report, verdict)
	assert.Equal(t, "Prototype_Turbo_V3", again.Name)
}

func TestMutateOverpoweredDownsizesPack(t *testing.T) {
	g := Seed()
	report := physics.Report{HoverThrottlePc: 10.0, TWR: 5.0}
	verdict := simulate.Result{Outcome: simulate.OutcomePass}

	next, notes := mutate(g, report, verdict)
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0], "downsizing the pack")
	assert.Equal(t, 1100, next.BatteryMAh)

	// At the smallest pack the heuristic has nothing left to take.
	g.BatteryMAh = 300
	same, notes := mutate(g, report, verdict)
	assert.Empty(t, notes)
	assert.Equal(t, g, same)
}

func TestMutateLeavesGoodDesignAlone(t *testing.T) {
	g := Seed()
	report := physics.Report{HoverThrottlePc: 45.0, TWR: 2.2}
	verdict := simulate.Result{Outcome: simulate.OutcomePass}

	same, notes := mutate(g, report, verdict)
	assert.Empty(t, notes)
	assert.Equal(t, g, same)
}

func TestNextName(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Prototype_V1", "Prototype_V2"},
		{"Prototype_Turbo_V9", "Prototype_Turbo_V10"},
		{"NoVersion", "NoVersion_V2"},
		{"Weird_Vx", "Weird_Vx_V2"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, nextName(tc.in), "nextName(%q)", tc.in)
	}
}

func TestClassFor(t *testing.T) {
	cases := []struct {
		mount float64
		want  string
	}{
		{8, "1002"},
		{11, "1103"},
		{16, "1106"},
		{19, "2306"},
		{28, "2807"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, classFor(tc.mount).Label, "mount %.0fmm", tc.mount)
	}
}

func TestWeightModel(t *testing.T) {
	// Seed: 337g frame, 32g motors, 60g electronics, 165.1g pack,
	// 20g props.
	assert.InDelta(t, 614.1, WeightG(Seed()), 0.01)
}

func TestFlightSeedCrashes(t *testing.T) {
	report := Flight(Seed())
	assert.Equal(t, physics.StatusUnderpowered, report.Status)
	assert.Less(t, report.TWR, 1.0)
	assert.Greater(t, report.HoverThrottlePc, 100.0)
}
