// Package cad turns a validated bill of materials into printable
// geometry. Components render from an embedded parametric OpenSCAD
// library, the assembly script follows the inspector's blueprint
// actions, and the URDF rig feeds the flight simulator.
package cad

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"quadforge/internal/logging"
	"quadforge/internal/parts"
)

//go:embed library.scad
var libraryScad string

const libraryName = "library.scad"

// Default dimensions used when the BOM leaves a measurement open.
const (
	DefaultWheelbaseMM   = 225.0
	DefaultPropMM        = 127.0
	DefaultMotorMountMM  = 16.0
	DefaultFCMountMM     = 30.5
	DefaultCameraWidthMM = 19.0
	DefaultStator        = 2207
	DefaultCells         = 6
	DefaultCapacityMAh   = 1300
)

// Plan is the measurement set the SCAD library renders from, extracted
// from BOM specs with defaults where sourcing and vision came up empty.
type Plan struct {
	WheelbaseMM    float64 `json:"wheelbase"`
	PropDiameterMM float64 `json:"prop_diameter_mm"`
	MotorMountMM   float64 `json:"motor_mounting_mm"`
	FCMountMM      float64 `json:"fc_mounting_mm"`
	CameraWidthMM  float64 `json:"camera_width_mm"`
	Stator         int     `json:"stator_size"`
	Cells          int     `json:"battery_cells"`
	CapacityMAh    int     `json:"battery_capacity_mah"`
	IsDigital      bool    `json:"is_digital"`
}

// DefaultPlan is a 5-inch freestyle baseline.
func DefaultPlan() *Plan {
	return &Plan{
		WheelbaseMM:    DefaultWheelbaseMM,
		PropDiameterMM: DefaultPropMM,
		MotorMountMM:   DefaultMotorMountMM,
		FCMountMM:      DefaultFCMountMM,
		CameraWidthMM:  DefaultCameraWidthMM,
		Stator:         DefaultStator,
		Cells:          DefaultCells,
		CapacityMAh:    DefaultCapacityMAh,
	}
}

// PlanFromBOM pulls fabrication measurements out of the sourced parts.
// A missing wheelbase is derived from the prop size so the frame always
// clears the blades.
func PlanFromBOM(bom []*parts.Part) *Plan {
	plan := DefaultPlan()

	if prop := findPart(bom, parts.CategoryProp); prop != nil {
		if inches, ok := prop.Specs.Float(parts.SpecPropInches); ok && inches > 0 {
			plan.PropDiameterMM = inches * 25.4
		}
	}

	wheelbaseKnown := false
	if frame := findPart(bom, parts.CategoryFrame); frame != nil {
		if wb, ok := frame.Specs.Float(parts.SpecWheelbaseMM); ok && wb > 0 {
			plan.WheelbaseMM = wb
			wheelbaseKnown = true
		}
	}
	if !wheelbaseKnown {
		plan.WheelbaseMM = plan.PropDiameterMM * 1.8
	}

	if motor := findPart(bom, parts.CategoryMotor); motor != nil {
		if mount, ok := motor.Specs.Float(parts.SpecMotorMountMM); ok && mount > 0 {
			plan.MotorMountMM = mount
		}
		if code, ok := motor.Specs.String(parts.SpecStator); ok {
			if stator, err := strconv.Atoi(code); err == nil {
				plan.Stator = stator
			}
		} else if code, ok := parts.ExtractStator(motor.Name); ok {
			if stator, err := strconv.Atoi(code); err == nil {
				plan.Stator = stator
			}
		}
	}

	if stack := findPart(bom, parts.CategoryStack); stack != nil {
		if mount, ok := stack.Specs.Float(parts.SpecFCMountMM); ok && mount > 0 {
			plan.FCMountMM = mount
		}
	}

	if cam := findPart(bom, parts.CategoryCamera); cam != nil {
		if width, ok := cam.Specs.Float(parts.SpecCameraWidthMM); ok && width > 0 {
			plan.CameraWidthMM = width
		}
	}
	plan.IsDigital = plan.CameraWidthMM > 19

	if bat := findPart(bom, parts.CategoryBattery); bat != nil {
		if cells, ok := bat.Specs.Int(parts.SpecCells); ok && cells > 0 {
			plan.Cells = cells
		}
		if mah, ok := bat.Specs.Int(parts.SpecCapacityMAh); ok && mah > 0 {
			plan.CapacityMAh = mah
		}
	}

	return plan
}

func findPart(bom []*parts.Part, category parts.Category) *parts.Part {
	for _, p := range bom {
		if p != nil && p.Category == category {
			return p
		}
	}
	return nil
}

// Assets is what Generate leaves on disk for one project.
type Assets struct {
	// PartSTLs maps component names (frame, motor, prop, fc, camera,
	// battery) to rendered STL paths. Failed renders hold a placeholder
	// mesh at the same path.
	PartSTLs map[string]string

	// AssemblySCAD is the blueprint-driven assembly script.
	AssemblySCAD string

	Plan *Plan
}

// Generator renders SCAD scripts into a project output directory.
type Generator struct {
	outDir   string
	openscad string
}

// NewGenerator returns a generator writing into outDir. An empty binary
// means "openscad" from PATH.
func NewGenerator(outDir, openscadBinary string) *Generator {
	if openscadBinary == "" {
		openscadBinary = "openscad"
	}
	return &Generator{outDir: outDir, openscad: openscadBinary}
}

// component pairs a stable asset name with its library call.
type component struct {
	name   string
	script string
}

func componentScripts(plan *Plan) []component {
	use := "use <" + libraryName + ">;\n"
	return []component{
		{"frame", use + fmt.Sprintf("pro_frame(%g, %g);", plan.WheelbaseMM, plan.MotorMountMM)},
		{"motor", use + fmt.Sprintf("pro_motor(%d);", plan.Stator)},
		{"prop", use + fmt.Sprintf("pro_prop(%g);", plan.PropDiameterMM/25.4)},
		{"fc", use + fmt.Sprintf("pro_stack(%g, %s);", plan.FCMountMM, scadBool(plan.IsDigital))},
		{"camera", use + fmt.Sprintf("pro_camera(%g);", plan.CameraWidthMM)},
		{"battery", use + fmt.Sprintf("pro_battery(%d, %d);", plan.Cells, plan.CapacityMAh)},
	}
}

func scadBool(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

// Generate renders every component STL and writes the assembly script
// for the blueprint's action sequence. Rendering is best-effort: a
// missing or failing OpenSCAD leaves placeholder meshes so the
// dashboard and simulator still have geometry to work with.
func (g *Generator) Generate(ctx context.Context, projectID string, plan *Plan, actions []string) (*Assets, error) {
	timer := logging.StartTimer(logging.CategoryCAD, "Generate")
	defer timer.Stop()

	if plan == nil {
		plan = DefaultPlan()
	}
	if err := os.MkdirAll(g.outDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create CAD output directory: %w", err)
	}
	if err := g.writeLibrary(); err != nil {
		return nil, err
	}

	logging.CAD("Generating digital twin for %s (wheelbase %.0fmm, %d components)",
		projectID, plan.WheelbaseMM, len(componentScripts(plan)))

	assets := &Assets{PartSTLs: make(map[string]string), Plan: plan}
	for _, c := range componentScripts(plan) {
		base := projectID + "_" + c.name
		stl, err := g.renderSCAD(ctx, c.script, base)
		if err != nil {
			logging.CADWarn("Render failed for %s, using placeholder mesh: %v", c.name, err)
			stl = filepath.Join(g.outDir, base+".stl")
			if werr := os.WriteFile(stl, []byte(PlaceholderSTL(c.name)), 0644); werr != nil {
				return nil, fmt.Errorf("failed to write placeholder for %s: %w", c.name, werr)
			}
		}
		assets.PartSTLs[c.name] = stl

		// Each rendered part gets an import wrapper so the assembly
		// script can position it with plain includes.
		wrapper := fmt.Sprintf("import(%q);", filepath.Base(stl))
		if err := os.WriteFile(filepath.Join(g.outDir, base+".scad"), []byte(wrapper), 0644); err != nil {
			return nil, fmt.Errorf("failed to write wrapper for %s: %w", c.name, err)
		}
	}

	assemblyPath := filepath.Join(g.outDir, projectID+"_assembly.scad")
	script := assemblyScript(projectID, plan, actions)
	if err := os.WriteFile(assemblyPath, []byte(script), 0644); err != nil {
		return nil, fmt.Errorf("failed to write assembly script: %w", err)
	}
	assets.AssemblySCAD = assemblyPath

	logging.CAD("CAD generation complete for %s", projectID)
	return assets, nil
}

// assemblyScript lays the rendered parts out following the blueprint
// actions. The frame is always the base; unknown actions are skipped.
// The full assembly is left unrendered, individual STLs are what the
// dashboard visualizes.
func assemblyScript(projectID string, plan *Plan, actions []string) string {
	offset := (plan.WheelbaseMM / 2) * 0.7071
	include := func(part string) string {
		return fmt.Sprintf("include <%s_%s.scad>;", projectID, part)
	}

	lines := []string{
		fmt.Sprintf("// Assembly for project %s", projectID),
		"$fn=50;",
		"",
		include("frame"),
	}

	for _, action := range actions {
		switch action {
		case "MOUNT_MOTORS":
			lines = append(lines, "", "// Mount motors")
			for _, pos := range [][2]float64{{offset, offset}, {-offset, offset}, {-offset, -offset}, {offset, -offset}} {
				lines = append(lines, fmt.Sprintf("translate([%g, %g, 5]) %s", pos[0], pos[1], include("motor")))
			}
		case "INSTALL_STACK":
			lines = append(lines, "", "// Install FC stack",
				fmt.Sprintf("translate([0, 0, 8]) %s", include("fc")))
		case "SECURE_CAMERA":
			lines = append(lines, "", "// Secure camera",
				fmt.Sprintf("translate([0, 35, 10]) %s", include("camera")))
		case "ATTACH_PROPS":
			lines = append(lines, "", "// Attach propellers",
				fmt.Sprintf("translate([%g, %g, 15]) %s", offset, offset, include("prop")),
				fmt.Sprintf("translate([%g, %g, 15]) rotate([0,0,180]) %s", -offset, offset, include("prop")),
				fmt.Sprintf("translate([%g, %g, 15]) %s", -offset, -offset, include("prop")),
				fmt.Sprintf("translate([%g, %g, 15]) rotate([0,0,180]) %s", offset, -offset, include("prop")))
		case "MOUNT_BATTERY":
			lines = append(lines, "", "// Mount battery",
				fmt.Sprintf("translate([0, 0, -20]) %s", include("battery")))
		default:
			logging.CADDebug("Skipping unknown blueprint action %q", action)
		}
	}

	out := ""
	for _, l := range lines {
		out += l + "\n"
	}
	return out
}

func (g *Generator) writeLibrary() error {
	path := filepath.Join(g.outDir, libraryName)
	if err := os.WriteFile(path, []byte(libraryScad), 0644); err != nil {
		return fmt.Errorf("failed to write SCAD library: %w", err)
	}
	return nil
}
