package physics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quadforge/internal/parts"
)

func TestSimulateFreestyle(t *testing.T) {
	in := SimInput{
		TotalWeightG:   650,
		MaxThrustG:     1300,
		NumMotors:      4,
		CapacityMAh:    1300,
		MotorKV:        1750,
		Voltage:        22.2,
		PropDiamInches: 5.0,
		PropPitchInch:  4.3,
	}
	r, err := Simulate(in)
	require.NoError(t, err)

	assert.Equal(t, 650, r.TotalWeightG)
	assert.InDelta(t, 8.0, r.TWR, 0.001)
	assert.InDelta(t, 12.5, r.HoverThrottlePc, 0.001)
	assert.InDelta(t, 3.3, r.FlightTimeMin, 0.001)
	assert.InDelta(t, 128.28, r.DiskLoading, 0.01)
	assert.Equal(t, 162, r.TopSpeedKMH)
	assert.Equal(t, StatusFlyable, r.Status)
}

func TestSimulateUnderpowered(t *testing.T) {
	in := SimInput{TotalWeightG: 1200, MaxThrustG: 350, NumMotors: 4}
	r, err := Simulate(in)
	require.NoError(t, err)

	assert.InDelta(t, 1.17, r.TWR, 0.001)
	assert.InDelta(t, 85.7, r.HoverThrottlePc, 0.001)
	assert.Equal(t, StatusUnderpowered, r.Status)
	assert.Zero(t, r.DiskLoading)
	assert.Zero(t, r.TopSpeedKMH)
}

func TestSimulateWhoop(t *testing.T) {
	in := SimInput{
		TotalWeightG:   35,
		MaxThrustG:     40,
		NumMotors:      4,
		CapacityMAh:    300,
		MotorKV:        19000,
		Voltage:        3.7,
		PropDiamInches: 1.2,
		PropPitchInch:  3.5,
	}
	r, err := Simulate(in)
	require.NoError(t, err)

	assert.InDelta(t, 4.57, r.TWR, 0.001)
	// Sub-50g rigs hover on ~2.5A.
	assert.InDelta(t, 5.8, r.FlightTimeMin, 0.001)
	assert.Equal(t, StatusFlyable, r.Status)
}

func TestSimulateZeroWeight(t *testing.T) {
	_, err := Simulate(SimInput{MaxThrustG: 1000})
	assert.ErrorIs(t, err, ErrZeroWeight)
}

func TestPrepareFromListingNames(t *testing.T) {
	bom := []*parts.Part{
		{Category: parts.CategoryMotor, Name: "XING2 2207 1750KV 32.5g"},
		{Category: parts.CategoryFrame, Name: "Source One 5 Inch Frame 120g"},
		{Category: parts.CategoryBattery, Name: "CNHL Black Series 1300mAh 6S 198g"},
		{Category: parts.CategoryProp, Name: "Gemfan 5043 Props 8g"},
		{Category: parts.CategoryStack, Name: "SpeedyBee F405 V4 55A Stack"},
		{Category: parts.CategoryCamera, Name: "Caddx Ratel 2"},
	}

	in, err := Prepare(bom)
	require.NoError(t, err)

	// 4x motors (130) + frame (120) + battery (198) + 4x props (32)
	// + stack fallback (15) + camera fallback (8).
	assert.Equal(t, 503, in.TotalWeightG)
	assert.Equal(t, 1750, in.MotorKV)
	assert.InDelta(t, 1300, in.MaxThrustG, 0.001)
	assert.InDelta(t, 22.2, in.Voltage, 0.001)
	assert.Equal(t, 1300, in.CapacityMAh)
	assert.InDelta(t, 5.0, in.PropDiamInches, 0.001)
	assert.InDelta(t, 3.5, in.PropPitchInch, 0.001)
}

func TestPrepareSanitizesBrokenBOM(t *testing.T) {
	bom := []*parts.Part{
		{Category: parts.CategoryMotor, Name: "Tiny Motor 3g"},
	}

	in, err := Prepare(bom)
	require.NoError(t, err)

	// 12g total is a failed weight pass, not a real build.
	assert.Equal(t, 400, in.TotalWeightG)
	assert.Equal(t, 1800, in.MotorKV)
	assert.InDelta(t, 22.2, in.Voltage, 0.001)
	// Generic thrust rescaled from the 4S reference to 6S.
	assert.InDelta(t, 1387.5, in.MaxThrustG, 0.001)
	assert.Equal(t, 1300, in.CapacityMAh)
	assert.InDelta(t, 5.0, in.PropDiamInches, 0.001)
}

func TestPreparePrefersFusedSpecs(t *testing.T) {
	motor := &parts.Part{Category: parts.CategoryMotor, Name: "Odd Listing Title"}
	motor.SetSpec(parts.SpecWeightG, 30.0, parts.ProvenanceScrape)
	motor.SetSpec(parts.SpecKV, 2400, parts.ProvenanceInference)
	motor.SetSpec(parts.SpecThrustG, 1500.0, parts.ProvenanceVision)

	battery := &parts.Part{Category: parts.CategoryBattery, Name: "Pack"}
	battery.SetSpec(parts.SpecCells, 4, parts.ProvenanceInference)
	battery.SetSpec(parts.SpecCapacityMAh, 850, parts.ProvenanceInference)
	battery.SetSpec(parts.SpecWeightG, 100.0, parts.ProvenanceScrape)

	in, err := Prepare([]*parts.Part{motor, battery})
	require.NoError(t, err)

	assert.Equal(t, 220, in.TotalWeightG)
	assert.Equal(t, 2400, in.MotorKV)
	assert.InDelta(t, 1500, in.MaxThrustG, 0.001)
	assert.InDelta(t, 14.8, in.Voltage, 0.001)
	assert.Equal(t, 850, in.CapacityMAh)
}

func TestPrepareEmptyBOM(t *testing.T) {
	_, err := Prepare(nil)
	assert.ErrorIs(t, err, ErrEmptyBOM)
}

func TestRun(t *testing.T) {
	bom := []*parts.Part{
		{Category: parts.CategoryMotor, Name: "XING2 2207 1750KV 32.5g"},
		{Category: parts.CategoryFrame, Name: "Source One 5 Inch Frame 120g"},
		{Category: parts.CategoryBattery, Name: "CNHL 1300mAh 6S 198g"},
		{Category: parts.CategoryProp, Name: "Gemfan 5043 Props 8g"},
	}
	r, err := Run(bom)
	require.NoError(t, err)
	assert.Equal(t, StatusFlyable, r.Status)
	assert.Greater(t, r.TWR, MinimumTWR)
}
