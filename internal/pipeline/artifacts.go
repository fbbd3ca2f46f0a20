package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"quadforge/internal/cad"
	"quadforge/internal/council"
	"quadforge/internal/dashboard"
	"quadforge/internal/logging"
	"quadforge/internal/manifest"
	"quadforge/internal/physics"
	"quadforge/internal/schematic"
	"quadforge/internal/simulate"
)

// physicsGate runs the flight model and lets the optimizer swap the
// weakest power-system link while thrust-to-weight misses the floor.
func (d *Designer) physicsGate(ctx context.Context, design *Design) (physics.Report, error) {
	report, err := physics.Run(design.BOM)
	if err != nil {
		return report, err
	}

	minTWR := d.cfg.Pipeline.MinTWR
	maxIter := d.cfg.Pipeline.MaxOptimizerIterations
	for iter := 1; report.TWR < minTWR && iter <= maxIter; iter++ {
		design.trace("optimizer", "twr %.2f under the %.1f floor, pass %d of %d",
			report.TWR, minTWR, iter, maxIter)

		remedy, derr := d.council.Optimizer.Diagnose(ctx, design.BOM, council.PerformanceFailure(report))
		if derr != nil {
			logging.PipelineWarn("optimizer pass failed, shipping as-is: %v", derr)
			break
		}
		swapped := false
		for _, rep := range remedy.Replacements {
			next, ok := d.applySwap(ctx, design.BOM, rep)
			if ok {
				design.BOM = next
				swapped = true
			}
		}
		if !swapped {
			break
		}
		if report, err = physics.Run(design.BOM); err != nil {
			return report, err
		}
	}
	return report, nil
}

// artifacts writes the assembly guide and then fabricates everything
// else designs/<name>/ holds.
func (d *Designer) artifacts(ctx context.Context, design *Design) error {
	if guide, gerr := d.council.Builder.Guide(ctx, guideInput(design)); gerr != nil {
		logging.PipelineWarn("assembly guide failed, dashboard falls back to blueprint steps: %v", gerr)
	} else {
		design.Guide = guide
	}
	return d.Fabricate(ctx, design)
}

// Fabricate (re)generates the on-disk artifacts for a design:
// component meshes and the assembly script, the wiring schematic, the
// cost manifest, the hover test and the dashboard. It makes no LLM
// calls, so a stored design can be re-fabricated offline.
func (d *Designer) Fabricate(ctx context.Context, design *Design) error {
	slug := slugify(design.Name)
	design.OutputDir = filepath.Join(d.outRoot, slug)

	plan := cad.PlanFromBOM(design.BOM)
	gen := cad.NewGenerator(design.OutputDir, d.cfg.CAD.OpenSCADBinary)
	assets, err := gen.Generate(ctx, slug, plan, blueprintActions(design.Blueprint))
	if err != nil {
		return fmt.Errorf("cad generation: %w", err)
	}
	design.trace("cad", "%d meshes and the assembly script in %s", len(assets.PartSTLs), design.OutputDir)

	if _, err := schematic.NewRenderer(design.OutputDir, d.cfg.CAD.DotBinary).Generate(ctx, slug, design.BOM); err != nil {
		logging.PipelineWarn("wiring schematic failed: %v", err)
	} else {
		design.trace("schematic", "wiring diagram rendered")
	}

	design.Cost = manifest.Procurement(design.BOM)
	design.trace("cost", "estimated total $%.2f across %d vendors",
		design.Cost.TotalEstimated, len(design.Cost.Vendors))

	design.Simulation = simulate.Run(design.Physics)
	design.FlightLog = simulate.FlightLog(design.Physics, simulate.DefaultSamples)
	design.trace("simulate", "hover test %s: %s", design.Simulation.Outcome, design.Simulation.Notes)

	path, err := dashboard.Assemble(design.OutputDir, dashboard.Artifacts{
		Name:        design.Name,
		WheelbaseMM: assets.Plan.WheelbaseMM,
		PartSTLs:    assets.PartSTLs,
		Physics:     design.Physics,
		Cost:        design.Cost,
		Steps:       reportSteps(design),
		FlightLog:   design.FlightLog,
	})
	if err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}
	design.DashboardPath = path
	design.trace("dashboard", "report at %s", path)
	return nil
}

// guideInput trims the master record to what the builder persona needs.
func guideInput(design *Design) map[string]interface{} {
	return map[string]interface{}{
		"project_name":      design.Name,
		"bill_of_materials": design.BOM,
		"blueprint":         design.Blueprint,
		"flight_physics":    design.Physics,
	}
}

// reportSteps prefers the written guide and falls back to the
// inspector's blueprint order.
func reportSteps(design *Design) []council.GuideStep {
	if design.Guide != nil && len(design.Guide.Steps) > 0 {
		return design.Guide.Steps
	}
	if design.Blueprint == nil {
		return nil
	}
	steps := make([]council.GuideStep, 0, len(design.Blueprint.Steps))
	for _, s := range design.Blueprint.Steps {
		steps = append(steps, council.GuideStep{Step: s.Title, Detail: s.Details})
	}
	return steps
}

func blueprintActions(bp *council.Blueprint) []string {
	if bp == nil {
		return nil
	}
	actions := make([]string, 0, len(bp.Steps))
	for _, s := range bp.Steps {
		actions = append(actions, s.Action)
	}
	return actions
}
