// Package schematic draws the wiring diagram for a sourced build as
// Graphviz DOT, with a best-effort SVG render when the dot binary is
// installed. The core power path is always present; peripherals appear
// only when the bill of materials mentions them.
package schematic

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"quadforge/internal/logging"
	"quadforge/internal/parts"
)

const renderTimeout = 15 * time.Second

// Result points at what Generate left on disk. SVGPath is empty when
// Graphviz is not installed or the render failed.
type Result struct {
	DOTPath string
	SVGPath string
}

// Renderer writes diagrams into one output directory.
type Renderer struct {
	outDir string
	dotBin string
}

// NewRenderer returns a renderer writing into outDir. An empty binary
// means "dot" from PATH.
func NewRenderer(outDir, dotBinary string) *Renderer {
	if dotBinary == "" {
		dotBinary = "dot"
	}
	return &Renderer{outDir: outDir, dotBin: dotBinary}
}

// Generate writes the DOT source and tries to render it to SVG. A
// missing Graphviz install is not an error; the DOT file alone is a
// usable artifact.
func (r *Renderer) Generate(ctx context.Context, projectID string, bom []*parts.Part) (*Result, error) {
	if err := os.MkdirAll(r.outDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create schematic output directory: %w", err)
	}

	res := &Result{DOTPath: filepath.Join(r.outDir, projectID+"_schematic.dot")}
	source := Diagram(projectID, bom)
	if err := os.WriteFile(res.DOTPath, []byte(source), 0644); err != nil {
		return nil, fmt.Errorf("failed to write schematic DOT: %w", err)
	}

	svgPath := filepath.Join(r.outDir, projectID+"_schematic.svg")
	rctx, cancel := context.WithTimeout(ctx, renderTimeout)
	defer cancel()

	cmd := exec.CommandContext(rctx, r.dotBin, "-Tsvg", "-o", svgPath, res.DOTPath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		logging.Get(logging.CategorySchematic).Warn(
			"Graphviz render skipped (%v), keeping DOT source only", err)
		return res, nil
	}
	if _, err := os.Stat(svgPath); err != nil {
		return res, nil
	}
	res.SVGPath = svgPath
	logging.Schematic("Wiring schematic rendered: %s", svgPath)
	return res, nil
}

// Diagram builds the DOT source for the build's wiring. Node and edge
// styling matches the dashboard's dark theme.
func Diagram(projectID string, bom []*parts.Part) string {
	text := bomText(bom)

	var b strings.Builder
	fmt.Fprintf(&b, "// Wiring diagram for project %s\n", projectID)
	b.WriteString("digraph wiring {\n")
	b.WriteString("    rankdir=LR;\n")
	b.WriteString("    bgcolor=\"#1a202c\";\n")
	b.WriteString("    fontcolor=\"white\";\n\n")
	b.WriteString("    node [shape=box, style=filled, color=\"#4a5568\", fontcolor=\"white\", fontname=\"Helvetica\"];\n")
	b.WriteString("    edge [color=\"#cbd5e0\", fontcolor=\"#a0aec0\", fontsize=10];\n\n")

	// Core: the power path exists in every build.
	b.WriteString("    FC [label=\"Flight Controller\\n(UARTs / 5V / GND)\", fillcolor=\"#2b6cb0\"];\n")
	b.WriteString("    ESC [label=\"ESC / Power Board\\n(Battery Input)\", fillcolor=\"#2b6cb0\"];\n")
	b.WriteString("    BAT [label=\"Battery\\n(XT60)\", fillcolor=\"#d69e2e\", fontcolor=\"black\"];\n\n")
	b.WriteString("    BAT -> ESC [label=\"V_BAT (12-25V)\", color=\"#ecc94b\", penwidth=2];\n")
	b.WriteString("    ESC -> FC [label=\"Ribbon Cable\\n(V_BAT + Current + M1-M4)\", penwidth=2];\n")

	if strings.Contains(text, "receiver") || strings.Contains(text, "elrs") {
		b.WriteString("\n    RX [label=\"Receiver\\n(ELRS/Crossfire)\"];\n")
		b.WriteString("    RX -> FC [label=\"5V / GND\"];\n")
		b.WriteString("    RX -> FC [label=\"TX -> RX1\", color=\"#68d391\"];\n")
		b.WriteString("    RX -> FC [label=\"RX -> TX1\", color=\"#68d391\"];\n")
	}

	switch {
	case strings.Contains(text, "dji") || strings.Contains(text, "o3") || strings.Contains(text, "vista"):
		b.WriteString("\n    VTX [label=\"Digital VTX\\n(DJI O3 / Vista)\", fillcolor=\"#e53e3e\"];\n")
		b.WriteString("    VTX -> FC [label=\"9V / GND\", color=\"#fc8181\"];\n")
		b.WriteString("    VTX -> FC [label=\"RX -> TX2 (MSP)\"];\n")
		b.WriteString("    VTX -> FC [label=\"TX -> RX2 (MSP)\"];\n")
	case strings.Contains(text, "analog"):
		b.WriteString("\n    CAM [label=\"Analog Camera\"];\n")
		b.WriteString("    VTX [label=\"Analog VTX\"];\n")
		b.WriteString("    CAM -> FC [label=\"Video In\"];\n")
		b.WriteString("    FC -> VTX [label=\"Video Out (OSD)\"];\n")
		b.WriteString("    VTX -> FC [label=\"SmartAudio (TX3)\"];\n")
	}

	if strings.Contains(text, "gps") {
		b.WriteString("\n    GPS [label=\"GPS Module\\n(M10)\"];\n")
		b.WriteString("    GPS -> FC [label=\"5V / GND\"];\n")
		b.WriteString("    GPS -> FC [label=\"TX -> RX4\"];\n")
		b.WriteString("    GPS -> FC [label=\"RX -> TX4\"];\n")
	}

	b.WriteString("\n")
	for i := 1; i <= 4; i++ {
		fmt.Fprintf(&b, "    M%d [label=\"Motor %d\", shape=circle, width=1, fixedsize=true];\n", i, i)
	}
	for i := 1; i <= 4; i++ {
		fmt.Fprintf(&b, "    ESC -> M%d;\n", i)
	}

	b.WriteString("}\n")
	return b.String()
}

// bomText flattens the BOM into one lowercase haystack for the
// peripheral checks.
func bomText(bom []*parts.Part) string {
	var b strings.Builder
	for _, p := range bom {
		if p == nil {
			continue
		}
		b.WriteString(string(p.Category))
		b.WriteString(" ")
		b.WriteString(p.Name)
		b.WriteString(" ")
		b.WriteString(p.Description)
		b.WriteString(" ")
	}
	return strings.ToLower(b.String())
}
