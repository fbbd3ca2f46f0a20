package evolve

import (
	"quadforge/internal/logging"
	"quadforge/internal/parts"
	"quadforge/internal/physics"
)

// motorClass is the coarse power system a mounting pattern implies.
// Thrust is static bench thrust swinging a five inch prop; Flight
// scales it linearly with the genome's actual prop diameter.
type motorClass struct {
	Label   string
	WeightG float64
	ThrustG float64
	KV      int
	Cells   int
}

var motorClasses = []struct {
	maxMountMM float64
	class      motorClass
}{
	{9.5, motorClass{"1002", 2.5, 60, 19000, 1}},
	{12.0, motorClass{"1103", 4, 120, 8000, 2}},
	{16.0, motorClass{"1106", 8, 180, 4500, 3}},
	{20.0, motorClass{"2306", 32, 1050, 1750, 6}},
}

// heavyClass covers anything past the 20mm pattern.
var heavyClass = motorClass{"2807", 42, 1500, 1300, 6}

// classFor picks the motor class a mounting pattern fits.
func classFor(mountMM float64) motorClass {
	for _, row := range motorClasses {
		if mountMM <= row.maxMountMM {
			return row.class
		}
	}
	return heavyClass
}

// Mass model constants, all grams. The arm factor folds arm count and
// carbon density into one number tuned against shipped 5-inch frames.
const (
	framePlatesG  = 40.0
	armMassFactor = 0.22
	electronicsG  = 60.0 // stack, camera, wiring, hardware
	packGPerMAh   = 0.127
	propGPerInch  = 1.25
)

// WeightG estimates all-up weight for a genome.
func WeightG(g Genome) float64 {
	class := classFor(g.MotorMountMM)
	frame := framePlatesG + g.WheelbaseMM*g.ArmThicknessMM*armMassFactor
	props := 4 * propGPerInch * g.PropDiameterInch
	pack := float64(g.BatteryMAh) * packGPerMAh
	return frame + 4*class.WeightG + electronicsG + pack + props
}

// Flight runs the flight model over a genome, deriving the sim input
// from the motor class its mounting pattern implies.
func Flight(g Genome) physics.Report {
	class := classFor(g.MotorMountMM)
	in := physics.SimInput{
		TotalWeightG:   int(WeightG(g)),
		MaxThrustG:     class.ThrustG * g.PropDiameterInch / 5.0,
		NumMotors:      4,
		CapacityMAh:    g.BatteryMAh,
		MotorKV:        class.KV,
		Voltage:        parts.CellsToVoltage(class.Cells),
		PropDiamInches: g.PropDiameterInch,
		PropPitchInch:  g.PropDiameterInch * 0.75,
	}
	report, err := physics.Simulate(in)
	if err != nil {
		logging.EvolveWarn("flight model rejected %s: %v", g.Name, err)
		return physics.Report{Status: physics.StatusUnderpowered}
	}
	return report
}
