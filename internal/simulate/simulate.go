// Package simulate scores a finished design as a hover test and
// synthesizes the telemetry traces the dashboard charts. The flight
// model already ran; this layer turns its numbers into a verdict a
// pilot understands and into time-series data worth plotting.
package simulate

import (
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"

	"quadforge/internal/logging"
	"quadforge/internal/physics"
)

// Outcomes of a simulated hover test.
const (
	OutcomePass     = "PASS"
	OutcomeMarginal = "MARGINAL"
	OutcomeCrash    = "CRASH"
)

const (
	// CrashTWR is the floor below which the craft never leaves the
	// ground. 1.0 would hover in theory; under 1.05 there is no
	// authority left to fight drift.
	CrashTWR = 1.05

	// MarginalHoverPct flags designs that fly but have no headroom.
	MarginalHoverPct = 80.0

	// DefaultSamples is the telemetry length for one hover test at
	// 10Hz, ten seconds of simulated flight.
	DefaultSamples = 100

	// targetAltM is the altitude setpoint the throttle loop chases.
	targetAltM = 1.5
)

// Result is the verdict for one simulated hover test.
type Result struct {
	Outcome          string  `json:"outcome"`
	HoverThrottlePct float64 `json:"hover_throttle_percent"`
	Notes            string  `json:"notes"`
}

// Crashed reports whether the test ended on the ground.
func (r Result) Crashed() bool { return r.Outcome == OutcomeCrash }

// Run scores a flight model report as a hover test.
func Run(report physics.Report) Result {
	res := Result{HoverThrottlePct: report.HoverThrottlePc}
	switch {
	case report.TWR < CrashTWR:
		res.Outcome = OutcomeCrash
		res.Notes = fmt.Sprintf("insufficient thrust: twr %.2f cannot sustain hover", report.TWR)
	case report.HoverThrottlePc > MarginalHoverPct:
		res.Outcome = OutcomeMarginal
		res.Notes = fmt.Sprintf("heavy: hovering at %.1f%% throttle leaves no headroom for maneuvers", report.HoverThrottlePc)
	default:
		res.Outcome = OutcomePass
		res.Notes = fmt.Sprintf("stable hover at %.1f%% throttle, twr %.2f", report.HoverThrottlePc, report.TWR)
	}
	logging.Sim("hover test: %s (hover=%.1f%% twr=%.2f)", res.Outcome, report.HoverThrottlePc, report.TWR)
	return res
}

// Telemetry holds the synthesized hover-test traces, keyed the way the
// dashboard template reads them.
type Telemetry struct {
	Time        []float64 `json:"time"`
	Height      []float64 `json:"height"`
	ThrottleAvg []float64 `json:"throttle_avg"`
	CurrentA    []float64 `json:"current_a"`
}

// FlightLog synthesizes n telemetry samples of a closed-loop climb to
// 1.5m at 10Hz. Throttle chases the altitude error around the hover
// point; an underpowered craft pegs full throttle and sinks anyway.
// Noise is seeded from the report so re-running a design redraws the
// same curves.
func FlightLog(report physics.Report, n int) Telemetry {
	if n <= 0 {
		n = DefaultSamples
	}
	rng := rand.New(rand.NewSource(seed(report)))
	hover := report.HoverThrottlePc / 100
	amps := physics.HoverAmps(float64(report.TotalWeightG))

	log := Telemetry{
		Time:        make([]float64, 0, n),
		Height:      make([]float64, 0, n),
		ThrottleAvg: make([]float64, 0, n),
		CurrentA:    make([]float64, 0, n),
	}
	h := 0.0
	for i := 0; i < n; i++ {
		th := 1.0
		if report.TWR > 1.0 {
			th = hover + (targetAltM-h)*0.5
		}
		th += (rng.Float64() - 0.5) * 0.05
		th = math.Max(0, math.Min(1, th))

		if report.TWR > 1.0 {
			h += (th - hover) * 2.0
		} else {
			h -= 0.5
		}
		if h < 0 {
			h = 0
		}

		cur := amps
		if hover > 0 {
			cur = amps * (th / hover)
		}
		log.Time = append(log.Time, float64(i)/10.0)
		log.Height = append(log.Height, round2(h))
		log.ThrottleAvg = append(log.ThrottleAvg, round2(th))
		log.CurrentA = append(log.CurrentA, round1(cur))
	}
	logging.SimDebug("flight log: %d samples, final height %.2fm", n, h)
	return log
}

// seed folds the report into a stable rng seed so telemetry is a pure
// function of the design.
func seed(report physics.Report) int64 {
	f := fnv.New64a()
	fmt.Fprintf(f, "%.2f|%.1f|%d", report.TWR, report.HoverThrottlePc, report.TotalWeightG)
	return int64(f.Sum64())
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
