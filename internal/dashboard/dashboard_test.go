package dashboard

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quadforge/internal/cad"
	"quadforge/internal/council"
	"quadforge/internal/manifest"
	"quadforge/internal/physics"
	"quadforge/internal/simulate"
)

func TestTemplateCarriesEveryToken(t *testing.T) {
	tokens := []string{
		`"[[FRAME_B64]]"`, `"[[MOTOR_B64]]"`, `"[[PROP_B64]]"`,
		`"[[FC_B64]]"`, `"[[CAMERA_B64]]"`, `"[[BATTERY_B64]]"`,
		"[[WHEELBASE]]", "[[STEPS_JSON]]", "[[PHYSICS_JSON]]",
		"[[COST_JSON]]", "[[FLIGHT_LOG_JSON]]", "[[DESIGN_NAME]]",
	}
	for _, token := range tokens {
		assert.Contains(t, templateHTML, token)
	}
}

func TestAssemble(t *testing.T) {
	dir := t.TempDir()
	stl := filepath.Join(dir, "frame.stl")
	require.NoError(t, os.WriteFile(stl, []byte(cad.PlaceholderSTL("frame")), 0644))

	rep := physics.Report{TotalWeightG: 650, TWR: 2.1, HoverThrottlePc: 47.6, Status: physics.StatusFlyable}
	out, err := Assemble(dir, Artifacts{
		Name:        "CINE_WHOOP",
		WheelbaseMM: 120,
		PartSTLs:    map[string]string{"frame": stl},
		Physics:     rep,
		Cost: &manifest.Manifest{
			Currency: "USD", Subtotal: 187.46, TotalEstimated: 211.83,
			Vendors: map[string][]manifest.Line{
				"GetFPV": {{Part: "Motors", Name: "1404 4600KV", Price: 71.96}},
			},
		},
		Steps:     []council.GuideStep{{Step: "Mount Motors", Detail: "M2 screws, thread locker."}},
		FlightLog: simulate.FlightLog(rep, 10),
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, FileName), out)

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	html := string(raw)

	assert.NotContains(t, html, "[[", "unreplaced tokens left in output")
	assert.Contains(t, html, "CINE_WHOOP")
	assert.Contains(t, html, "wheelbase 120 mm")
	assert.Contains(t, html, `frame: "data:model/stl;base64,`)
	// Slots with no rendered STL collapse to an empty URI; the viewer
	// draws its stand-in cube for those.
	assert.Contains(t, html, `motor: ""`)
	assert.Contains(t, html, `"twr":2.1`)
	assert.Contains(t, html, `"total_estimated_cost":211.83`)
	assert.Contains(t, html, "Mount Motors")
	assert.Contains(t, html, `"throttle_avg":[`)
}

func TestAssembleEmptyArtifacts(t *testing.T) {
	dir := t.TempDir()
	out, err := Assemble(dir, Artifacts{})
	require.NoError(t, err)

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	html := string(raw)

	assert.NotContains(t, html, "[[")
	assert.Contains(t, html, "Untitled Design")
	// Zero wheelbase falls back so the camera rig still frames something.
	assert.Contains(t, html, "const WHEELBASE = 200")
	assert.Contains(t, html, `"time":[]`)
	assert.NotContains(t, html, "null,null")
}

func TestAssembleUnreadableSTL(t *testing.T) {
	dir := t.TempDir()
	out, err := Assemble(dir, Artifacts{
		Name:     "GHOST",
		PartSTLs: map[string]string{"frame": filepath.Join(dir, "missing.stl")},
	})
	require.NoError(t, err)

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `frame: ""`)
}

func TestSafeName(t *testing.T) {
	assert.Equal(t, "scriptCRASHER/script", safeName(`<script>"CRASHER"</script>`))
	assert.Equal(t, "Untitled Design", safeName(""))
	assert.Equal(t, "SKY_RIPPER_V2", safeName("SKY_RIPPER_V2"))
}

func TestJSONStringCompact(t *testing.T) {
	s := jsonString(map[string]int{"a": 1})
	assert.Equal(t, `{"a":1}`, s)
	assert.False(t, strings.Contains(s, "\n"))
}
