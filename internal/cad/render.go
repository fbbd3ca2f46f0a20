package cad

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
)

// renderTimeout caps one OpenSCAD invocation. Component models are
// simple; anything slower is stuck.
const renderTimeout = 30 * time.Second

// renderSCAD writes the script next to the library and compiles it to
// STL. Returns the STL path on success.
func (g *Generator) renderSCAD(ctx context.Context, script, base string) (string, error) {
	scadPath := filepath.Join(g.outDir, base+".scad")
	stlPath := filepath.Join(g.outDir, base+".stl")

	if err := os.WriteFile(scadPath, []byte(script), 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", scadPath, err)
	}

	rctx, cancel := context.WithTimeout(ctx, renderTimeout)
	defer cancel()

	cmd := exec.CommandContext(rctx, g.openscad, "-o", stlPath, scadPath)
	cmd.Dir = g.outDir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logging.CADDebug("Rendering %s with %s", base, g.openscad)
	start := time.Now()
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("openscad failed for %s: %v%s", base, err, stderrTail(stderr.String()))
	}
	if _, err := os.Stat(stlPath); err != nil {
		return "", fmt.Errorf("openscad produced no STL for %s", base)
	}

	logging.CADDebug("Rendered %s in %s", base, time.Since(start).Round(time.Millisecond))
	return stlPath, nil
}

func stderrTail(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	return ": " + lines[len(lines)-1]
}

// PlaceholderSTL is a single-facet mesh emitted when rendering is
// unavailable. Viewers get a visible triangle instead of a broken load.
func PlaceholderSTL(name string) string {
	return fmt.Sprintf(`solid %[1]s
facet normal 0 0 1
outer loop
vertex 0 0 0
vertex 10 0 0
vertex 0 10 0
endloop
endfacet
endsolid %[1]s
`, name)
}
