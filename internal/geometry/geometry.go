// Package geometry checks the spatial integrity of a drone layout:
// prop clearance on a true-X frame, camera field of view obstruction,
// and disk loading as a flight feel prediction.
package geometry

import (
	"fmt"
	"math"

	"quadforge/internal/logging"
)

const (
	StatusPass = "PASS"
	StatusFail = "FAIL"
)

// Flight feel bands by disk loading (g/cm^2).
const (
	FeelFloaty   = "Glider / Ultralight (Floaty)"
	FeelBalanced = "Standard Freestyle (Balanced)"
	FeelLockedIn = "Racing / Cinematic (Locked In)"
	FeelBrick    = "Heavy Lift / Brick (Inefficient)"
)

// Layout describes the physical parameters under test. Zero fields fall
// back to standard 5-inch freestyle values.
type Layout struct {
	WheelbaseMM    float64 `json:"wheelbase"`
	PropDiameterMM float64 `json:"prop_diameter_mm"`
	TotalWeightG   float64 `json:"total_weight_g"`
	FCMountMM      float64 `json:"fc_mounting_mm"`
}

// Metrics are the derived spatial measurements.
type Metrics struct {
	PropGapMM           float64 `json:"prop_gap_mm"`
	DiskLoadingGCm2     float64 `json:"disk_loading_g_cm2"`
	FlightFeel          string  `json:"flight_feel_prediction"`
	GeometricEfficiency float64 `json:"geometric_efficiency"`
}

// Report carries the verdict. Errors fail the design, warnings do not.
type Report struct {
	Status   string   `json:"status"`
	Warnings []string `json:"warnings"`
	Errors   []string `json:"errors"`
	Metrics  Metrics  `json:"metrics"`
}

// Failed reports whether the layout cannot be built as specified.
func (r Report) Failed() bool { return r.Status == StatusFail }

// Check runs the geometric simulation for one layout.
func Check(l Layout) Report {
	wheelbase := l.WheelbaseMM
	if wheelbase == 0 {
		wheelbase = 225
	}
	propMM := l.PropDiameterMM
	if propMM == 0 {
		propMM = 127 // 5 inch
	}
	weight := l.TotalWeightG
	if weight == 0 {
		weight = 600
	}
	fcMount := l.FCMountMM
	if fcMount == 0 {
		fcMount = 30.5
	}

	report := Report{Status: StatusPass, Warnings: []string{}, Errors: []string{}}

	// On a true-X frame adjacent motor shafts sit one side length
	// apart, and the side comes off the diagonal wheelbase.
	sideDist := wheelbase / math.Sqrt2
	propGap := sideDist - propMM

	switch {
	case propGap < 1.0:
		report.Errors = append(report.Errors, fmt.Sprintf(
			"CRITICAL: Propellers collide! Gap is %.2fmm. (Wheelbase %gmm vs Prop %gmm).",
			propGap, wheelbase, propMM))
		report.Status = StatusFail
	case propGap < 5.0:
		report.Warnings = append(report.Warnings, fmt.Sprintf(
			"Prop gap is extremely tight (%.2fmm). Turbulence and prop-wash likely.", propGap))
	case propGap > 50.0:
		report.Warnings = append(report.Warnings, fmt.Sprintf(
			"Frame is oversized for these props (Gap: %.2fmm). Consider larger props or smaller frame.", propGap))
	}

	// Camera FOV: the chassis runs the stack mount plus room for the
	// camera and VTX. A motor shaft nearly flush with the front plane
	// puts the prop arc in view.
	bodyLength := fcMount + 45.0
	motorX := sideDist / 2
	if motorX > (bodyLength/2 - 10) {
		report.Warnings = append(report.Warnings,
			"Propellers are positioned forward in the camera FOV (Props in View).")
	}

	radiusCM := (propMM / 10.0) / 2.0
	totalDiscCM2 := math.Pi * radiusCM * radiusCM * 4.0
	var diskLoading float64
	if totalDiscCM2 > 0 {
		diskLoading = weight / totalDiscCM2
	}

	feel := FeelBrick
	switch {
	case diskLoading < 0.4:
		feel = FeelFloaty
	case diskLoading < 0.7:
		feel = FeelBalanced
	case diskLoading < 1.0:
		feel = FeelLockedIn
	}

	report.Metrics = Metrics{
		PropGapMM:           round2(propGap),
		DiskLoadingGCm2:     round2(diskLoading),
		FlightFeel:          feel,
		GeometricEfficiency: round2(propGap / propMM),
	}

	logging.Geometry("layout check: wheelbase=%.0fmm prop=%.0fmm gap=%.2fmm status=%s",
		wheelbase, propMM, propGap, report.Status)
	return report
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
