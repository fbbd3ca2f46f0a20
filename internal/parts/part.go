// Package parts defines the component records that flow through the design
// pipeline and the text heuristics that extract specs from product listings.
package parts

import (
	"time"
)

// Category identifies the component class of a part.
type Category string

const (
	CategoryFrame   Category = "frame"
	CategoryMotor   Category = "motor"
	CategoryProp    Category = "prop"
	CategoryBattery Category = "battery"
	CategoryStack   Category = "stack" // FC + ESC combo
	CategoryCamera  Category = "camera"
	CategoryVTX     Category = "vtx"
	CategoryRX      Category = "rx"
	CategoryGPS     Category = "gps"
)

// AllCategories lists every known category in shopping order.
var AllCategories = []Category{
	CategoryFrame, CategoryMotor, CategoryProp, CategoryBattery,
	CategoryStack, CategoryCamera, CategoryVTX, CategoryRX, CategoryGPS,
}

// Valid reports whether the category is a known one.
func (c Category) Valid() bool {
	for _, known := range AllCategories {
		if c == known {
			return true
		}
	}
	return false
}

// Provenance records where a part or one of its spec values came from.
type Provenance string

const (
	ProvenanceSearch    Provenance = "search"    // search result snippet
	ProvenanceScrape    Provenance = "scrape"    // scraped product page
	ProvenanceVision    Provenance = "vision"    // image spec extraction
	ProvenanceInference Provenance = "inference" // text heuristics
	ProvenanceArsenal   Provenance = "arsenal"   // local store hit
)

// Spec keys. Values are stored as float64 for numeric specs and string
// otherwise.
const (
	SpecKV             = "kv"
	SpecStator         = "stator"
	SpecCells          = "cells"
	SpecCapacityMAh    = "capacity_mah"
	SpecWeightG        = "weight_g"
	SpecThrustG        = "thrust_g"
	SpecVoltageMinV    = "voltage_min_v"
	SpecVoltageMaxV    = "voltage_max_v"
	SpecPropInches     = "prop_inches"
	SpecPitchInches    = "pitch_inches"
	SpecWheelbaseMM    = "wheelbase_mm"
	SpecMotorMountMM   = "motor_mount_mm"
	SpecShaftMM        = "shaft_mm"
	SpecFCMountMM      = "fc_mount_mm"
	SpecUSBOrientation = "usb_orientation"
	SpecCameraWidthMM  = "camera_width_mm"
	SpecUARTCount      = "uart_count"
	SpecDigital        = "digital" // 1 = digital video system
)

// Specs holds extracted component specifications keyed by the Spec*
// constants. JSON round-trips turn all numbers into float64, so numeric
// access goes through Float.
type Specs map[string]interface{}

// Float returns the numeric value for key.
func (s Specs) Float(key string) (float64, bool) {
	v, ok := s[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// Int returns the value for key truncated to int.
func (s Specs) Int(key string) (int, bool) {
	f, ok := s.Float(key)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// String returns the string value for key.
func (s Specs) String(key string) (string, bool) {
	v, ok := s[key]
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}

// Has reports whether key is present.
func (s Specs) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Clone returns a shallow copy.
func (s Specs) Clone() Specs {
	out := make(Specs, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Part is a sourced component candidate or stored arsenal record.
type Part struct {
	ID          string                `json:"id"`
	Category    Category              `json:"category"`
	Name        string                `json:"name"`
	URL         string                `json:"url,omitempty"`
	ImageURL    string                `json:"image_url,omitempty"`
	Price       float64               `json:"price,omitempty"`
	Currency    string                `json:"currency,omitempty"`
	Vendor      string                `json:"vendor,omitempty"`
	Description string                `json:"description,omitempty"`
	Specs       Specs                 `json:"specs,omitempty"`
	Source      Provenance            `json:"source,omitempty"`
	SpecSources map[string]Provenance `json:"spec_sources,omitempty"`
	CreatedAt   time.Time             `json:"created_at,omitempty"`
	UpdatedAt   time.Time             `json:"updated_at,omitempty"`
}

// SetSpec records a spec value along with where it came from.
func (p *Part) SetSpec(key string, value interface{}, from Provenance) {
	if p.Specs == nil {
		p.Specs = Specs{}
	}
	if p.SpecSources == nil {
		p.SpecSources = map[string]Provenance{}
	}
	p.Specs[key] = value
	p.SpecSources[key] = from
}

// criticalSpecs lists the spec keys a candidate must carry before fusion
// considers it complete for its category.
var criticalSpecs = map[Category][]string{
	CategoryMotor:   {SpecKV, SpecThrustG, SpecWeightG},
	CategoryBattery: {SpecCells, SpecCapacityMAh, SpecWeightG},
	CategoryProp:    {SpecPropInches},
	CategoryFrame:   {SpecWheelbaseMM},
	CategoryStack:   {SpecFCMountMM},
	CategoryCamera:  {SpecCameraWidthMM},
}

// HasCriticalSpecs reports whether the part carries every spec its
// category requires for validation.
func (p *Part) HasCriticalSpecs() bool {
	required, ok := criticalSpecs[p.Category]
	if !ok {
		return true
	}
	for _, key := range required {
		if !p.Specs.Has(key) {
			return false
		}
	}
	return true
}

// MissingSpecs lists the critical spec keys the part lacks.
func (p *Part) MissingSpecs() []string {
	required, ok := criticalSpecs[p.Category]
	if !ok {
		return nil
	}
	var missing []string
	for _, key := range required {
		if !p.Specs.Has(key) {
			missing = append(missing, key)
		}
	}
	return missing
}
