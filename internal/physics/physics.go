// Package physics runs the numerical flight model over a bill of
// materials. It aggregates component weights, estimates motor thrust,
// and derives thrust-to-weight ratio, hover throttle, flight time, disk
// loading and theoretical top speed.
package physics

import (
	"errors"
	"math"

	"quadforge/internal/logging"
	"quadforge/internal/parts"
)

// Flight verdicts.
const (
	StatusFlyable      = "FLYABLE"
	StatusUnderpowered = "UNDERPOWERED"
)

// MinimumTWR is the flyability threshold. Below this a quad cannot
// climb out of ground effect with margin for control authority.
const MinimumTWR = 1.3

var (
	ErrEmptyBOM   = errors.New("physics: bill of materials is empty")
	ErrZeroWeight = errors.New("physics: total weight is zero")
)

// SimInput is the normalized flight model input. Weights are grams,
// thrust is per motor.
type SimInput struct {
	TotalWeightG   int     `json:"total_weight_g"`
	MaxThrustG     float64 `json:"max_thrust_g"`
	NumMotors      int     `json:"num_motors"`
	CapacityMAh    int     `json:"battery_capacity_mah"`
	MotorKV        int     `json:"motor_kv"`
	Voltage        float64 `json:"voltage"`
	PropDiamInches float64 `json:"prop_diameter_inch"`
	PropPitchInch  float64 `json:"prop_pitch_inch"`
}

// Report is the flight model output. Field names follow the master
// record layout so the dashboard can embed it verbatim.
type Report struct {
	TotalWeightG    int     `json:"total_weight_g"`
	TWR             float64 `json:"twr"`
	HoverThrottlePc float64 `json:"hover_throttle_percent"`
	FlightTimeMin   float64 `json:"est_flight_time_min"`
	DiskLoading     float64 `json:"disk_loading"`
	TopSpeedKMH     int     `json:"top_speed_kmh"`
	Status          string  `json:"status"`
}

// Simulate evaluates the flight model for one design.
func Simulate(in SimInput) (Report, error) {
	weight := float64(in.TotalWeightG)
	if weight == 0 {
		return Report{}, ErrZeroWeight
	}
	motors := in.NumMotors
	if motors == 0 {
		motors = 4
	}

	totalThrust := in.MaxThrustG * float64(motors)
	twr := totalThrust / weight
	hoverPct := (weight / totalThrust) * 100

	hoverAmps := HoverAmps(weight)
	// 80% usable capacity; running packs flat ruins them.
	flightMin := (float64(in.CapacityMAh) / 1000) / hoverAmps * 60 * 0.8

	// Disk loading in g/dm^2 measures floatiness vs aggressiveness.
	var diskLoading float64
	if in.PropDiamInches > 0 {
		radiusCM := (in.PropDiamInches * 2.54) / 2
		areaDM2 := (math.Pi * radiusCM * radiusCM) / 100
		diskLoading = weight / (areaDM2 * float64(motors))
	}

	// Pitch speed: RPM * pitch gives inches/minute, 39370 inches to
	// the km. 0.85 covers efficiency loss under load, 0.75 drag.
	var topSpeed float64
	if in.MotorKV > 0 && in.Voltage > 0 {
		rpm := float64(in.MotorKV) * in.Voltage * 0.85
		pitchSpeedKMH := (rpm * in.PropPitchInch * 60) / 39370
		topSpeed = pitchSpeedKMH * 0.75
	}

	status := StatusUnderpowered
	if twr > MinimumTWR {
		status = StatusFlyable
	}

	return Report{
		TotalWeightG:    int(weight),
		TWR:             round2(twr),
		HoverThrottlePc: round1(hoverPct),
		FlightTimeMin:   round1(flightMin),
		DiskLoading:     round2(diskLoading),
		TopSpeedKMH:     int(topSpeed),
		Status:          status,
	}, nil
}

// Prepare normalizes a BOM into a SimInput. Specs set by sourcing win;
// anything missing is recovered from listing names, and plainly broken
// aggregates are replaced with standard 5-inch assumptions so one bad
// listing cannot zero out the whole model.
func Prepare(bom []*parts.Part) (SimInput, error) {
	if len(bom) == 0 {
		return SimInput{}, ErrEmptyBOM
	}

	var (
		totalWeight float64
		thrust      float64
		kv          int
		voltage     float64
		capacity    int
		propInches  float64
		propPitch   float64
	)

	for _, p := range bom {
		weight, ok := p.Specs.Float(parts.SpecWeightG)
		if !ok || weight == 0 {
			weight = parts.ExtractWeightG(p.Name)
		}
		if weight == 0 {
			weight = parts.FallbackWeightG(p.Category, p.Name)
		}
		// Four corners of everything that spins.
		if p.Category == parts.CategoryMotor || p.Category == parts.CategoryProp {
			totalWeight += weight * 4
		} else {
			totalWeight += weight
		}

		switch p.Category {
		case parts.CategoryMotor:
			if kv == 0 {
				if v, ok := p.Specs.Int(parts.SpecKV); ok {
					kv = v
				} else {
					kv = parts.ExtractKV(p.Name)
				}
			}
			if thrust == 0 {
				if v, ok := p.Specs.Float(parts.SpecThrustG); ok {
					thrust = v
				} else {
					thrust = parts.EstimateThrustG(p.Name)
				}
			}
		case parts.CategoryBattery:
			if voltage == 0 {
				if cells, ok := p.Specs.Int(parts.SpecCells); ok {
					voltage = parts.CellsToVoltage(cells)
				} else if cells := parts.ExtractCells(p.Name); cells > 0 {
					voltage = parts.CellsToVoltage(cells)
				}
			}
			if capacity == 0 {
				if v, ok := p.Specs.Int(parts.SpecCapacityMAh); ok {
					capacity = v
				} else {
					capacity = parts.ExtractCapacityMAh(p.Name)
				}
			}
		case parts.CategoryProp:
			if propInches == 0 {
				if v, ok := p.Specs.Float(parts.SpecPropInches); ok {
					propInches = v
				} else {
					propInches = parts.ExtractPropInches(p.Name)
				}
			}
			if propPitch == 0 {
				if v, ok := p.Specs.Float(parts.SpecPitchInches); ok {
					propPitch = v
				}
			}
		}
	}

	// Sanitization. A sub-50g total means the weight pass failed, not
	// that someone designed a 40g five inch.
	if totalWeight < 50 {
		totalWeight = 400.0
	}
	if kv == 0 {
		kv = 1800
	}
	if voltage == 0 {
		voltage = parts.InferVoltageFromKV(kv)
	}
	if propInches == 0 {
		propInches = parts.InferPropInchesFromMotor(motorName(bom))
	}
	if capacity == 0 {
		capacity = 1300
	}
	if propPitch == 0 {
		propPitch = 3.5
	}

	// Generic thrust guesses assumed a 4S pack. Rescale for the pack
	// we actually found; thrust tracks voltage closely enough here.
	if thrust == parts.GenericThrustG {
		thrust *= voltage / 16.0
	}

	in := SimInput{
		TotalWeightG:   int(totalWeight),
		MaxThrustG:     thrust,
		NumMotors:      4,
		CapacityMAh:    capacity,
		MotorKV:        kv,
		Voltage:        voltage,
		PropDiamInches: propInches,
		PropPitchInch:  propPitch,
	}
	logging.PhysicsDebug("prepared sim input: weight=%dg thrust=%.0fg kv=%d voltage=%.1fV prop=%.1f\"",
		in.TotalWeightG, in.MaxThrustG, in.MotorKV, in.Voltage, in.PropDiamInches)
	return in, nil
}

// Run prepares and simulates in one step.
func Run(bom []*parts.Part) (Report, error) {
	in, err := Prepare(bom)
	if err != nil {
		return Report{}, err
	}
	report, err := Simulate(in)
	if err != nil {
		return Report{}, err
	}
	logging.Physics("flight model: twr=%.2f hover=%.1f%% flight=%.1fmin status=%s",
		report.TWR, report.HoverThrottlePc, report.FlightTimeMin, report.Status)
	return report, nil
}

// HoverAmps estimates hover current draw for an all-up weight. Whoops
// sip ~2.5A, a heavy rig draws well past 12A just holding altitude.
func HoverAmps(weightG float64) float64 {
	switch {
	case weightG < 50:
		return 2.5
	case weightG < 250:
		return 6.0
	default:
		return 12.0 + (weightG-300)/50
	}
}

func motorName(bom []*parts.Part) string {
	for _, p := range bom {
		if p.Category == parts.CategoryMotor {
			return p.Name
		}
	}
	return ""
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
