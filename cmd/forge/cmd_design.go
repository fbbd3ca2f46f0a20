package main

import (
	"context"
	"fmt"
	"math"
	"strings"

	"quadforge/internal/cad"
	"quadforge/internal/council"
	"quadforge/internal/evolve"
	"quadforge/internal/pipeline"
	"quadforge/internal/rules"
	"quadforge/internal/tui"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	designName        string
	designBudget      float64
	designOut         string
	designInteractive bool
	designAnswers     []string

	evolveGenerations int
)

// designCmd runs the full commission
var designCmd = &cobra.Command{
	Use:   "design [request]",
	Short: "Commission a complete drone design from a natural-language request",
	Long: `Runs the full pipeline: the design council interprets the request and
drafts a spec sheet, live sourcing resolves every line to a purchasable
component, compatibility rules and the physics gate validate the
package, and the CAD stage renders the airframe, the wiring schematic,
the cost manifest and the dashboard into designs/<name>/.

Examples:
  forge design "a 5-inch freestyle quad around $400"
  forge design --interactive "long-range cruiser with GPS"
  forge design --answer 6S --answer "analog video" "tiny cinewhoop"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDesign,
}

// evolveCmd runs the self-correcting redesign loop
var evolveCmd = &cobra.Command{
	Use:   "evolve [project]",
	Short: "Evolve an airframe through fabricate-fly-mutate generations",
	Long: `Runs the evolutionary redesign loop: each generation is fabricated,
flown through the flight model, and mutated by the repair heuristics
until the design hovers with margin or the generation budget runs out.

Without a project name the loop starts from the deliberately flawed
seed genome; with one it starts from the stored design's geometry.
Each generation lands in designs/evolution/gen_<n>/ with its URDF
export, master DNA and flight log.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEvolve,
}

func init() {
	designCmd.Flags().StringVar(&designName, "name", "", "Override the architect's project name")
	designCmd.Flags().Float64Var(&designBudget, "budget", 0, "Override the stated budget in USD")
	designCmd.Flags().StringVar(&designOut, "out", "", "Output directory for designs (default: cad.output_dir)")
	designCmd.Flags().BoolVarP(&designInteractive, "interactive", "i", false, "Ask clarification questions in the terminal")
	designCmd.Flags().StringArrayVar(&designAnswers, "answer", nil, "Canned clarification answer, repeatable, consumed in order")

	evolveCmd.Flags().IntVar(&evolveGenerations, "generations", 0, "Generation budget (default: pipeline.max_generations)")

	rootCmd.AddCommand(designCmd)
	rootCmd.AddCommand(evolveCmd)
}

// runDesign commissions one design end to end
func runDesign(cmd *cobra.Command, args []string) error {
	ctx, cancel := runContext()
	defer cancel()

	llm, err := newLLM()
	if err != nil {
		return err
	}
	store, err := openStore()
	if err != nil {
		return fmt.Errorf("arsenal open failed: %w", err)
	}
	defer store.Close()

	resolver, browser, err := newResolver(ctx, llm, store)
	if err != nil {
		return err
	}
	defer func() { _ = browser.Shutdown(context.Background()) }()

	checker, err := rules.NewChecker()
	if err != nil {
		return fmt.Errorf("compatibility rules failed to load: %w", err)
	}

	designer := pipeline.New(cfg, council.New(llm), resolver, checker, store)
	designer.SetOutputRoot(outputRoot())
	if designOut != "" {
		designer.SetOutputRoot(designOut)
	}
	if designInteractive {
		designer.SetClarifier(tui.NewPrompt())
	}

	req := pipeline.Request{
		Prompt:    strings.Join(args, " "),
		Name:      designName,
		BudgetUSD: designBudget,
		Answers:   designAnswers,
	}
	logger.Info("Commissioning design", zap.String("prompt", req.Prompt))

	design, runErr := designer.Run(ctx, req)
	if design == nil {
		return runErr
	}

	// A failed run still gets its banner; the GROUNDED verdict plus the
	// validation history is the useful part.
	styles := tui.DefaultStyles()
	fmt.Println()
	fmt.Println(tui.VerdictBanner(design.Simulation, styles))
	fmt.Println()
	if report, rerr := tui.Report(design); rerr == nil {
		fmt.Println(report)
	}
	if design.DashboardPath != "" {
		fmt.Println(styles.Muted.Render("dashboard: " + design.DashboardPath))
	}
	return runErr
}

// runEvolve drives the redesign loop and prints the lineage
func runEvolve(cmd *cobra.Command, args []string) error {
	ctx, cancel := runContext()
	defer cancel()

	store, err := openStore()
	if err != nil {
		return fmt.Errorf("arsenal open failed: %w", err)
	}
	defer store.Close()

	if evolveGenerations > 0 {
		cfg.Pipeline.MaxGenerations = evolveGenerations
	}

	seed := evolve.Seed()
	if len(args) == 1 {
		design, _, err := loadDesign(ctx, store, args[0])
		if err != nil {
			return err
		}
		seed = genomeFromDesign(design)
		fmt.Printf("Evolving from stored project %q\n", design.Name)
	}

	ev := evolve.New(cfg, store)
	ev.SetOutputRoot(outputRoot())

	lineage, runErr := ev.Run(ctx, seed)
	if lineage == nil {
		return runErr
	}

	styles := tui.DefaultStyles()
	table := tui.NewTable("Evolution Lineage", "Gen", "Name", "Class", "TWR", "Hover", "Verdict")
	for _, gen := range lineage.Generations {
		table.AddRow(
			fmt.Sprintf("%d", gen.Index),
			gen.Genome.Name,
			gen.Class,
			fmt.Sprintf("%.2f", gen.Physics.TWR),
			fmt.Sprintf("%.1f%%", gen.Physics.HoverThrottlePc),
			gen.Verdict.Outcome,
		)
	}
	fmt.Println(table.View(styles))

	final := lineage.Final()
	if final == nil {
		if runErr != nil {
			return runErr
		}
		return fmt.Errorf("no generation flew")
	}
	fmt.Println(tui.VerdictBanner(final.Verdict, styles))
	if !lineage.Converged {
		fmt.Println(styles.Warning.Render("generation budget exhausted before convergence"))
	}
	return runErr
}

// genomeFromDesign projects a stored design's geometry back into DNA so
// evolution can pick up where the council left off. Anything the BOM
// never pinned down keeps the seed default.
func genomeFromDesign(design *pipeline.Design) evolve.Genome {
	seed := evolve.Seed()
	plan := cad.PlanFromBOM(design.BOM)
	if plan.WheelbaseMM > 0 {
		seed.WheelbaseMM = plan.WheelbaseMM
	}
	if plan.MotorMountMM > 0 {
		seed.MotorMountMM = plan.MotorMountMM
	}
	if plan.FCMountMM > 0 {
		seed.StackMountMM = plan.FCMountMM
	}
	if plan.PropDiameterMM > 0 {
		seed.PropDiameterInch = math.Round(plan.PropDiameterMM/25.4*10) / 10
	}
	if plan.CapacityMAh > 0 {
		seed.BatteryMAh = plan.CapacityMAh
	}
	if design.Name != "" {
		seed.Name = design.Name
	}
	return seed
}
