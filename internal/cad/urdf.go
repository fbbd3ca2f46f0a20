package cad

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"quadforge/internal/logging"
)

// DNA is the parameter set one evolved airframe generation is built
// from. The evolver mutates it between generations.
type DNA struct {
	Name             string  `json:"name"`
	WheelbaseMM      float64 `json:"wheelbase_mm"`
	MotorMountMM     float64 `json:"motor_mount_mm"`
	StackMountMM     float64 `json:"stack_mount_mm"`
	ArmThicknessMM   float64 `json:"arm_thickness_mm"`
	PropDiameterInch float64 `json:"prop_diameter_inch"`
}

// SeedDNA is the deliberately flawed first generation: heavy arms and
// props too small for the frame, leaving the optimizer work to do.
func SeedDNA() DNA {
	return DNA{
		Name:             "Prototype_V1",
		WheelbaseMM:      225,
		MotorMountMM:     16.0,
		StackMountMM:     30.5,
		ArmThicknessMM:   6.0,
		PropDiameterInch: 4.0,
	}
}

// Offset is the motor distance from center along each diagonal axis.
func (d DNA) Offset() float64 {
	return (d.WheelbaseMM / 2) * 0.7071
}

const (
	baseMassKg = 0.450
	propMassKg = 0.004
)

// ExportURDF renders the airframe into the generator's directory as a
// two-mesh rig (static base, spinnable prop) plus the URDF wiring them
// together. Meshes are millimeter-scaled; the URDF shrinks them to
// meters for the physics side.
func (g *Generator) ExportURDF(ctx context.Context, dna DNA) (string, error) {
	timer := logging.StartTimer(logging.CategoryCAD, "ExportURDF")
	defer timer.Stop()

	if err := os.MkdirAll(g.outDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create URDF output directory: %w", err)
	}
	if err := g.writeLibrary(); err != nil {
		return "", err
	}

	logging.CAD("Exporting simulation rig for %s to %s", dna.Name, g.outDir)

	if err := g.renderOrPlaceholder(ctx, baseLinkScript(dna), "base"); err != nil {
		return "", err
	}
	if err := g.renderOrPlaceholder(ctx, propScript(dna), "prop"); err != nil {
		return "", err
	}

	urdfPath := filepath.Join(g.outDir, "drone.urdf")
	if err := os.WriteFile(urdfPath, []byte(urdfXML(dna)), 0644); err != nil {
		return "", fmt.Errorf("failed to write URDF: %w", err)
	}
	return urdfPath, nil
}

func (g *Generator) renderOrPlaceholder(ctx context.Context, script, base string) error {
	_, err := g.renderSCAD(ctx, script, base)
	if err == nil {
		return nil
	}
	logging.CADWarn("Render failed for %s, using placeholder mesh: %v", base, err)
	path := filepath.Join(g.outDir, base+".stl")
	if err := os.WriteFile(path, []byte(PlaceholderSTL(base)), 0644); err != nil {
		return fmt.Errorf("failed to write placeholder for %s: %w", base, err)
	}
	return nil
}

// baseLinkScript fuses every static part into one mesh: frame, stack,
// battery on top, and the four motor bodies on the arm tips.
func baseLinkScript(dna DNA) string {
	offset := dna.Offset()
	var b strings.Builder
	b.WriteString("use <" + libraryName + ">;\n$fn=50;\n\nunion() {\n")
	fmt.Fprintf(&b, "    pro_frame(%g, %g, %g, %g);\n",
		dna.WheelbaseMM, dna.MotorMountMM, dna.StackMountMM, dna.ArmThicknessMM)
	fmt.Fprintf(&b, "    translate([0, 0, 2]) pro_stack(%g);\n", dna.StackMountMM)
	b.WriteString("    translate([0, 0, 25]) pro_battery();\n")
	for _, pos := range [][2]float64{{offset, offset}, {offset, -offset}, {-offset, offset}, {-offset, -offset}} {
		fmt.Fprintf(&b, "    translate([%g, %g, %g]) pro_motor();\n", pos[0], pos[1], dna.ArmThicknessMM)
	}
	b.WriteString("}\n")
	return b.String()
}

func propScript(dna DNA) string {
	return fmt.Sprintf("use <%s>;\n$fn=50;\npro_prop(%g);\n", libraryName, dna.PropDiameterInch)
}

// boxInertiaXML approximates a link's inertia tensor from its bounding
// box, dimensions in meters.
func boxInertiaXML(massKg, dx, dy, dz float64) string {
	ixx := massKg * (dy*dy + dz*dz) / 12
	iyy := massKg * (dx*dx + dz*dz) / 12
	izz := massKg * (dx*dx + dy*dy) / 12
	return fmt.Sprintf(`<inertia ixx="%.8f" ixy="0" ixz="0" iyy="%.8f" iyz="0" izz="%.8f"/>`, ixx, iyy, izz)
}

func urdfXML(dna DNA) string {
	// Assembly envelope: arms reach 15mm past the wheelbase radius and
	// the battery tops out around 45mm over the arm plane.
	baseSide := (dna.WheelbaseMM + 30) / 1000
	baseHeight := (dna.ArmThicknessMM + 45) / 1000
	baseInertia := boxInertiaXML(baseMassKg, baseSide, baseSide, baseHeight)

	propSide := dna.PropDiameterInch * 0.0254
	propInertia := boxInertiaXML(propMassKg, propSide, propSide, 0.006)
	propRadius := dna.PropDiameterInch * 0.0254 / 2

	// Prop hubs sit on the motor shafts, 25mm above the arm plane.
	jointZ := (dna.ArmThicknessMM + 25) / 1000
	offset := dna.Offset() / 1000

	var b strings.Builder
	fmt.Fprintf(&b, `<?xml version="1.0"?>
<robot name="%s">

  <link name="base_link">
    <inertial>
      <origin rpy="0 0 0" xyz="0 0 0"/>
      <mass value="%g"/>
      %s
    </inertial>
    <visual>
      <origin rpy="0 0 0" xyz="0 0 0"/>
      <geometry>
        <mesh filename="base.stl" scale="0.001 0.001 0.001"/>
      </geometry>
      <material name="grey">
        <color rgba="0.2 0.2 0.2 1.0"/>
      </material>
    </visual>
    <collision>
      <origin rpy="0 0 0" xyz="0 0 0"/>
      <geometry>
        <mesh filename="base.stl" scale="0.001 0.001 0.001"/>
      </geometry>
    </collision>
  </link>
`, dna.Name, baseMassKg, baseInertia)

	props := []struct {
		name string
		x, y float64
	}{
		{"prop_fl", offset, offset},
		{"prop_fr", offset, -offset},
		{"prop_rl", -offset, offset},
		{"prop_rr", -offset, -offset},
	}

	for _, p := range props {
		fmt.Fprintf(&b, `
  <link name="%[1]s">
    <inertial>
      <origin rpy="0 0 0" xyz="0 0 0"/>
      <mass value="%[2]g"/>
      %[3]s
    </inertial>
    <visual>
      <origin rpy="0 0 0" xyz="0 0 0"/>
      <geometry>
        <mesh filename="prop.stl" scale="0.001 0.001 0.001"/>
      </geometry>
      <material name="cyan">
        <color rgba="0 0.8 0.8 1.0"/>
      </material>
    </visual>
    <collision>
      <origin rpy="0 0 0" xyz="0 0 0"/>
      <geometry>
        <cylinder length="0.01" radius="%[4]g"/>
      </geometry>
    </collision>
  </link>

  <joint name="joint_%[1]s" type="continuous">
    <parent link="base_link"/>
    <child link="%[1]s"/>
    <origin rpy="0 0 0" xyz="%[5]g %[6]g %[7]g"/>
    <axis xyz="0 0 1"/>
  </joint>
`, p.name, propMassKg, propInertia, propRadius, p.x, p.y, jointZ)
	}

	b.WriteString("\n</robot>\n")
	return b.String()
}
