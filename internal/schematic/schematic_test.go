package schematic

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quadforge/internal/parts"
)

func namedPart(category parts.Category, name string) *parts.Part {
	return &parts.Part{Category: category, Name: name}
}

func TestDiagramCoreAlwaysPresent(t *testing.T) {
	dot := Diagram("QF-test", nil)

	assert.Contains(t, dot, "digraph wiring {")
	assert.Contains(t, dot, "rankdir=LR;")
	assert.Contains(t, dot, `bgcolor="#1a202c";`)
	assert.Contains(t, dot, `BAT -> ESC [label="V_BAT (12-25V)", color="#ecc94b", penwidth=2];`)
	assert.Contains(t, dot, "Ribbon Cable")
	for _, motor := range []string{"M1", "M2", "M3", "M4"} {
		assert.Contains(t, dot, "ESC -> "+motor+";")
	}
	assert.Equal(t, 4, strings.Count(dot, "shape=circle"))

	assert.NotContains(t, dot, "Receiver")
	assert.NotContains(t, dot, "VTX")
	assert.NotContains(t, dot, "GPS Module")
}

func TestDiagramDigitalVideo(t *testing.T) {
	bom := []*parts.Part{
		namedPart(parts.CategoryCamera, "DJI O3 Air Unit"),
		namedPart(parts.CategoryRX, "RadioMaster ELRS Receiver"),
	}
	dot := Diagram("QF-test", bom)

	assert.Contains(t, dot, "Digital VTX")
	assert.Contains(t, dot, `VTX -> FC [label="9V / GND", color="#fc8181"];`)
	assert.Contains(t, dot, "RX -> TX2 (MSP)")
	assert.NotContains(t, dot, "Analog Camera")

	assert.Contains(t, dot, "Receiver\\n(ELRS/Crossfire)")
	assert.Contains(t, dot, `color="#68d391"`)
}

func TestDiagramAnalogVideo(t *testing.T) {
	bom := []*parts.Part{
		namedPart(parts.CategoryCamera, "Foxeer Razer Analog Camera"),
	}
	dot := Diagram("QF-test", bom)

	assert.Contains(t, dot, "Analog Camera")
	assert.Contains(t, dot, "SmartAudio (TX3)")
	assert.NotContains(t, dot, "Digital VTX")
}

func TestDiagramGPS(t *testing.T) {
	bom := []*parts.Part{
		namedPart(parts.CategoryGPS, "Matek M10Q-5883"),
	}
	dot := Diagram("QF-test", bom)

	assert.Contains(t, dot, "GPS Module")
	assert.Contains(t, dot, "TX -> RX4")
}

func TestGenerateWithoutGraphviz(t *testing.T) {
	dir := t.TempDir()
	r := NewRenderer(dir, "dot-not-installed-for-tests")

	res, err := r.Generate(context.Background(), "QF-test", nil)
	require.NoError(t, err)
	assert.Empty(t, res.SVGPath)

	data, err := os.ReadFile(res.DOTPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "digraph wiring {")
}
