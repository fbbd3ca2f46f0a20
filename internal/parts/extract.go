package parts

import (
	"regexp"
	"strconv"
	"strings"
)

// Listing titles carry most of the engineering data we need. Vendors embed
// stator codes, KV ratings, cell counts and prop sizes directly in product
// names ("2207 1750KV", "6S 1300mAh", "5043 props"), so a handful of
// patterns recovers usable specs even when a page never loads.
var (
	weightRe   = regexp.MustCompile(`(\d+\.?\d*)\s?g\b`)
	kvRe       = regexp.MustCompile(`(\d{3,5})\s?kv`)
	cellsRe    = regexp.MustCompile(`(\d)s`)
	capacityRe = regexp.MustCompile(`(\d{3,5})\s?mah`)
	statorRe   = regexp.MustCompile(`\b(\d{4})\b`)
	propCodeRe = regexp.MustCompile(`\b(\d)(\d)(\d{2})`)
	propInchRe = regexp.MustCompile(`(\d\.?\d?)\s?inch`)

	propMMRe       = regexp.MustCompile(`\b(\d{2})\s*mm`)
	propInchAltRe  = regexp.MustCompile(`\b(\d(?:\.\d)?)\s*(?:inch|"|in)\b`)
	propSizeCodeRe = regexp.MustCompile(`\b([3-7])\d{3}\b`)
)

// motorMounts maps stator size to bolt circle diameter in mm.
// Whoop-class motors use a 3-hole 6.6mm pattern; everything above is 4-hole.
var motorMounts = map[string]float64{
	"0603": 6.6,
	"0702": 6.6,
	"0703": 6.6,
	"0802": 6.6,
	"0803": 9.0,
	"1002": 9.0,
	"1102": 9.0, // toothpick standard
	"1103": 9.0,
	"1202": 9.0,
	"1204": 9.0,
	"1404": 9.0, // 4-inch long range standard
	"1507": 12.0,
	"2004": 12.0,
	"2205": 16.0,
	"2207": 16.0,
	"2306": 16.0,
	"2208": 16.0,
	"2806": 19.0, // 7-inch class
	"2807": 19.0,
	"2810": 19.0,
}

// ExtractWeightG pulls a gram weight out of listing text. Returns 0 when
// the text carries no weight.
func ExtractWeightG(text string) float64 {
	m := weightRe.FindStringSubmatch(strings.ToLower(text))
	if m == nil {
		return 0
	}
	w, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	return w
}

// FallbackWeightG guesses a component weight when the listing gives none.
// Motor and frame guesses key off the name: anything in the 22xx class
// reads as a 35g freestyle motor, a 5-inch frame as 120g.
func FallbackWeightG(cat Category, name string) float64 {
	lower := strings.ToLower(name)
	switch cat {
	case CategoryMotor:
		if strings.Contains(lower, "2") {
			return 35.0
		}
		return 5.0
	case CategoryFrame:
		if strings.Contains(lower, "5") {
			return 120.0
		}
		return 30.0
	case CategoryStack:
		return 15.0
	case CategoryCamera:
		return 8.0
	case CategoryBattery:
		return 200.0
	case CategoryProp:
		return 5.0
	}
	return 0
}

// ExtractKV pulls the motor velocity constant from listing text.
// Returns 0 when absent.
func ExtractKV(text string) int {
	m := kvRe.FindStringSubmatch(strings.ToLower(text))
	if m == nil {
		return 0
	}
	kv, _ := strconv.Atoi(m[1])
	return kv
}

// ExtractCells pulls the battery cell count ("6S", "4s") from listing text.
func ExtractCells(text string) int {
	m := cellsRe.FindStringSubmatch(strings.ToLower(text))
	if m == nil {
		return 0
	}
	cells, _ := strconv.Atoi(m[1])
	return cells
}

// CellsToVoltage converts a cell count to nominal pack voltage (3.7V/cell).
func CellsToVoltage(cells int) float64 {
	return float64(cells) * 3.7
}

// ExtractCapacityMAh pulls battery capacity from listing text.
func ExtractCapacityMAh(text string) int {
	m := capacityRe.FindStringSubmatch(strings.ToLower(text))
	if m == nil {
		return 0
	}
	mah, _ := strconv.Atoi(m[1])
	return mah
}

// EstimateThrustG estimates per-motor max thrust in grams from the motor
// name. A step function over stator class: 28xx long-range motors push
// ~2kg, the 5-inch standards ~1.3kg, micros far less. Unknown motors get
// a generic 1kg which callers should rescale for pack voltage.
func EstimateThrustG(motorName string) float64 {
	name := strings.ToLower(motorName)
	switch {
	case strings.Contains(name, "28"):
		return 2000.0
	case strings.Contains(name, "2306"), strings.Contains(name, "2207"):
		return 1300.0
	case strings.Contains(name, "1404"):
		return 400.0
	case strings.Contains(name, "0802"):
		return 40.0
	}
	return 1000.0
}

// GenericThrustG is the EstimateThrustG fallback value. Thrust figures at
// exactly this value were guessed, not measured, and scale with voltage.
const GenericThrustG = 1000.0

// InferVoltageFromKV guesses pack voltage from motor KV. High-KV motors
// run low-voltage packs and vice versa; 0 KV defaults to 4S.
func InferVoltageFromKV(kv int) float64 {
	switch {
	case kv == 0:
		return 14.8
	case kv > 12000:
		return 3.7 // 1S whoop
	case kv > 5000:
		return 7.4 // 2S-3S cinewhoop
	case kv > 2200:
		return 14.8 // 4S freestyle
	}
	return 22.2 // 6S
}

// InferPropInchesFromMotor guesses prop diameter from the motor stator
// class embedded in its name.
func InferPropInchesFromMotor(motorName string) float64 {
	name := strings.ToLower(motorName)
	switch {
	case strings.Contains(name, "0802"), strings.Contains(name, "0702"):
		return 1.2 // 31mm whoop
	case strings.Contains(name, "110"), strings.Contains(name, "120"):
		return 2.5
	case strings.Contains(name, "1404"), strings.Contains(name, "150"):
		return 3.5
	case strings.Contains(name, "220"), strings.Contains(name, "230"):
		return 5.0
	case strings.Contains(name, "280"):
		return 7.0
	}
	return 5.0
}

// MotorMountFromStator infers the motor bolt circle from a stator size in
// the product title. Only known stator codes map; an unrecognized 4-digit
// run reports false rather than a guess.
func MotorMountFromStator(title string) (float64, bool) {
	if title == "" {
		return 0, false
	}
	m := statorRe.FindStringSubmatch(title)
	if m == nil {
		return 0, false
	}
	mount, ok := motorMounts[m[1]]
	return mount, ok
}

// ExtractStator pulls the 4-digit stator code itself, for callers that
// record it as a spec rather than resolving the bolt pattern.
func ExtractStator(title string) (string, bool) {
	m := statorRe.FindStringSubmatch(title)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ExtractPropDiameterMM extracts prop diameter in mm from a product title.
// Tries millimeter sizes first (31mm, 75mm whoop props), then inch
// notation (5", 5.1 inch), then 4-digit prop codes (5043 reads as 5").
func ExtractPropDiameterMM(title string) (float64, bool) {
	if title == "" {
		return 0, false
	}
	lower := strings.ToLower(title)

	if m := propMMRe.FindStringSubmatch(lower); m != nil {
		mm, _ := strconv.ParseFloat(m[1], 64)
		return mm, true
	}
	if m := propInchAltRe.FindStringSubmatch(lower); m != nil {
		in, _ := strconv.ParseFloat(m[1], 64)
		return in * 25.4, true
	}
	// Aggressive: 4-digit codes starting 3-7 are prop sizes, not years or KV.
	if m := propSizeCodeRe.FindStringSubmatch(lower); m != nil {
		first, _ := strconv.ParseFloat(m[1], 64)
		return first * 25.4, true
	}
	return 0, false
}

// ExtractPropInches pulls prop diameter in inches from a name like
// "5043" or "5 inch". Returns 0 when neither form appears.
func ExtractPropInches(name string) float64 {
	lower := strings.ToLower(name)
	if m := propCodeRe.FindStringSubmatch(lower); m != nil {
		d, _ := strconv.ParseFloat(m[1], 64)
		return d
	}
	if m := propInchRe.FindStringSubmatch(lower); m != nil {
		d, _ := strconv.ParseFloat(m[1], 64)
		return d
	}
	return 0
}
