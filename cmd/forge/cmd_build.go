package main

import (
	"encoding/json"
	"fmt"

	"quadforge/internal/physics"
	"quadforge/internal/pipeline"
	"quadforge/internal/simulate"
	"quadforge/internal/tui"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// fabricateCmd regenerates artifacts for a stored design
var fabricateCmd = &cobra.Command{
	Use:   "fabricate [project]",
	Short: "Regenerate a stored design's artifacts without touching the LLM",
	Long: `Re-runs the CAD, schematic, cost, hover-test and dashboard stages for a
design already in the arsenal. Useful after swapping the OpenSCAD
binary, moving the output directory, or editing a master record by
hand. Makes no LLM calls, so no API key is needed.`,
	Args: cobra.ExactArgs(1),
	RunE: runFabricate,
}

// flyCmd re-runs the physics gate and hover test for a stored design
var flyCmd = &cobra.Command{
	Use:   "fly [project]",
	Short: "Re-fly a stored design through the physics model and hover test",
	Long: `Recomputes flight physics from the stored bill of materials and runs
the hover test, printing the verdict banner and the full physics table.
The result is appended to the project's build history.`,
	Args: cobra.ExactArgs(1),
	RunE: runFly,
}

func init() {
	rootCmd.AddCommand(fabricateCmd)
	rootCmd.AddCommand(flyCmd)
}

// runFabricate rebuilds the design directory and refreshes the record
func runFabricate(cmd *cobra.Command, args []string) error {
	ctx, cancel := runContext()
	defer cancel()

	store, err := openStore()
	if err != nil {
		return fmt.Errorf("arsenal open failed: %w", err)
	}
	defer store.Close()

	design, proj, err := loadDesign(ctx, store, args[0])
	if err != nil {
		return err
	}

	d := pipeline.New(cfg, nil, nil, nil, store)
	d.SetOutputRoot(outputRoot())
	if err := d.Fabricate(ctx, design); err != nil {
		return err
	}

	if err := pipeline.WriteMasterRecord(design); err != nil {
		logger.Warn("master record not refreshed", zap.Error(err))
	}
	if raw, merr := json.MarshalIndent(design, "", "  "); merr == nil {
		proj.Design = raw
		if serr := store.SaveProject(ctx, proj); serr != nil {
			logger.Warn("project row not refreshed", zap.Error(serr))
		}
	}

	styles := tui.DefaultStyles()
	fmt.Println(tui.VerdictBanner(design.Simulation, styles))
	fmt.Println(styles.Muted.Render("dashboard: " + design.DashboardPath))
	return nil
}

// runFly recomputes physics from the stored BOM and logs the verdict
func runFly(cmd *cobra.Command, args []string) error {
	ctx, cancel := runContext()
	defer cancel()

	store, err := openStore()
	if err != nil {
		return fmt.Errorf("arsenal open failed: %w", err)
	}
	defer store.Close()

	design, proj, err := loadDesign(ctx, store, args[0])
	if err != nil {
		return err
	}

	report, err := physics.Run(design.BOM)
	if err != nil {
		return fmt.Errorf("flight model refused the package: %w", err)
	}
	verdict := simulate.Run(report)

	styles := tui.DefaultStyles()
	fmt.Println(tui.VerdictBanner(verdict, styles))
	fmt.Println()
	fmt.Println(tui.PhysicsTable(report).View(styles))

	entries, _ := store.BuildEntries(ctx, proj.ID)
	if err := store.LogBuild(ctx, proj.ID, len(entries)+1, verdict.Outcome, verdict.Notes); err != nil {
		logger.Warn("build log failed", zap.Error(err))
	}
	return nil
}
