// Package dashboard assembles the single-file HTML mission report for
// a finished design. Geometry, physics, cost and telemetry all travel
// inline (STLs as base64 data URIs), so the file opens from disk on
// any machine with no server behind it.
package dashboard

import (
	_ "embed"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"quadforge/internal/council"
	"quadforge/internal/logging"
	"quadforge/internal/manifest"
	"quadforge/internal/physics"
	"quadforge/internal/simulate"
)

//go:embed template.html
var templateHTML string

// FileName is what Assemble writes into the output directory.
const FileName = "dashboard.html"

// PartSlots are the viewer slots the template binds, named the same
// way the CAD generator keys its STLs.
var PartSlots = []string{"frame", "motor", "prop", "fc", "camera", "battery"}

// Artifacts collects everything one report embeds.
type Artifacts struct {
	Name        string
	WheelbaseMM float64
	PartSTLs    map[string]string // slot -> STL path on disk
	Physics     physics.Report
	Cost        *manifest.Manifest
	Steps       []council.GuideStep
	FlightLog   simulate.Telemetry
}

// Assemble fills the embedded template and writes dashboard.html into
// outDir, returning the written path. A missing STL becomes an empty
// data URI and the viewer falls back to a stand-in cube for that slot.
func Assemble(outDir string, a Artifacts) (string, error) {
	timer := logging.StartTimer(logging.CategoryDashboard, "Assemble")
	defer timer.Stop()

	html := templateHTML
	for _, slot := range PartSlots {
		token := `"[[` + strings.ToUpper(slot) + `_B64]]"`
		html = strings.ReplaceAll(html, token, strconv.Quote(stlDataURI(a.PartSTLs[slot])))
	}

	wheelbase := a.WheelbaseMM
	if wheelbase <= 0 {
		wheelbase = 200
	}
	html = strings.ReplaceAll(html, "[[WHEELBASE]]", strconv.FormatFloat(wheelbase, 'f', -1, 64))
	html = strings.ReplaceAll(html, "[[DESIGN_NAME]]", safeName(a.Name))
	html = strings.ReplaceAll(html, "[[PHYSICS_JSON]]", jsonString(a.Physics))
	html = strings.ReplaceAll(html, "[[COST_JSON]]", jsonString(costOrEmpty(a.Cost)))
	html = strings.ReplaceAll(html, "[[STEPS_JSON]]", jsonString(stepsOrEmpty(a.Steps)))
	html = strings.ReplaceAll(html, "[[FLIGHT_LOG_JSON]]", jsonString(logOrEmpty(a.FlightLog)))

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create dashboard directory: %w", err)
	}
	path := filepath.Join(outDir, FileName)
	if err := os.WriteFile(path, []byte(html), 0644); err != nil {
		return "", fmt.Errorf("failed to write dashboard: %w", err)
	}
	logging.Dashboard("assembled %s (%dKB)", path, len(html)/1024)
	return path, nil
}

// stlDataURI inlines an STL as a data URI. Missing or unreadable files
// become an empty URI rather than an error so one failed render cannot
// take down the whole report.
func stlDataURI(path string) string {
	if path == "" {
		return ""
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		logging.DashboardDebug("cannot inline %s: %v", path, err)
		return ""
	}
	return "data:model/stl;base64," + base64.StdEncoding.EncodeToString(raw)
}

func jsonString(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

// safeName strips anything that could escape an attribute or a script
// string. Design names are already slugs; this covers the hand-typed
// ones.
func safeName(name string) string {
	if name == "" {
		return "Untitled Design"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', '"', '\'', '&', '\\':
			return -1
		}
		return r
	}, name)
}

func costOrEmpty(m *manifest.Manifest) *manifest.Manifest {
	if m == nil {
		return &manifest.Manifest{Currency: "USD", Vendors: map[string][]manifest.Line{}}
	}
	return m
}

func stepsOrEmpty(steps []council.GuideStep) []council.GuideStep {
	if steps == nil {
		return []council.GuideStep{}
	}
	return steps
}

func logOrEmpty(t simulate.Telemetry) simulate.Telemetry {
	if t.Time == nil {
		t.Time, t.Height, t.ThrottleAvg, t.CurrentA = []float64{}, []float64{}, []float64{}, []float64{}
	}
	return t
}
