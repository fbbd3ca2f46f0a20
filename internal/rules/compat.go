package rules

import (
	_ "embed"
	"fmt"
	"math"
	"strings"
	"sync"

	"quadforge/internal/logging"
	"quadforge/internal/parts"
)

//go:embed compat.mg
var compatProgram string

// Kind classifies a compatibility finding.
type Kind string

const (
	KindVoltage   Kind = "voltage"
	KindUndervolt Kind = "undervolt"
	KindKV        Kind = "kv"
	KindMount     Kind = "mount"
	KindStack     Kind = "stack"
	KindProp      Kind = "prop"
	KindUART      Kind = "uart"
)

// Finding is one derived violation, tied back to the offending part.
type Finding struct {
	Kind   Kind   `json:"kind"`
	PartID string `json:"part_id"`
	Detail string `json:"detail"`
}

// Target carries the topology values the design is checked against.
type Target struct {
	VoltageV   float64 `json:"voltage_v"`
	PropInches float64 `json:"prop_inches"`
}

// Verdict is the outcome of a compatibility check.
type Verdict struct {
	OK       bool      `json:"ok"`
	Findings []Finding `json:"findings"`
}

// Checker turns a BOM into facts and derives violations against the
// embedded compatibility rulebase.
type Checker struct {
	mu     sync.Mutex
	engine *Engine
}

// NewChecker builds a checker with the built-in rulebase loaded.
func NewChecker() (*Checker, error) {
	e, err := NewEngine(compatProgram)
	if err != nil {
		return nil, err
	}
	e.ToggleAutoEval(false)
	return &Checker{engine: e}, nil
}

// LoadExtra adds a workspace rule pack on top of the built-in logic.
func (c *Checker) LoadExtra(src string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine.LoadProgram(src)
}

// Engine exposes the underlying engine for ad hoc queries.
func (c *Checker) Engine() *Engine { return c.engine }

// Check asserts the BOM as facts, evaluates the rulebase, and reports
// every violation it derives. Specs that were never recovered simply
// produce no facts, so missing data cannot create false findings.
func (c *Checker) Check(target Target, bom []*parts.Part) (*Verdict, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.engine.Clear()

	facts, labels := buildFacts(target, bom)
	if err := c.engine.AddFacts(facts); err != nil {
		return nil, fmt.Errorf("rules: assert facts: %w", err)
	}
	if err := c.engine.Evaluate(); err != nil {
		return nil, fmt.Errorf("rules: evaluate: %w", err)
	}

	findings, err := c.collectFindings(labels)
	if err != nil {
		return nil, err
	}

	verdict := &Verdict{OK: len(findings) == 0, Findings: findings}
	if verdict.OK {
		logging.Rules("compat check passed (%d facts asserted)", len(facts))
	} else {
		logging.RulesWarn("compat check found %d violations", len(findings))
		for _, f := range findings {
			logging.RulesWarn("  [%s] %s", f.Kind, f.Detail)
		}
	}
	return verdict, nil
}

// buildFacts scales specs to integers and assigns BOM-local ids like
// motor_1 (atomized to /motor_1 by the engine). The label map carries
// ids back to product names for the finding details.
func buildFacts(target Target, bom []*parts.Part) ([]Fact, map[string]string) {
	var facts []Fact
	labels := make(map[string]string)
	counts := make(map[parts.Category]int)
	uartDemand := 0

	add := func(pred string, args ...any) {
		facts = append(facts, Fact{Predicate: pred, Args: args})
	}

	for _, p := range bom {
		counts[p.Category]++
		id := fmt.Sprintf("%s_%d", p.Category, counts[p.Category])
		labels[id] = p.Name
		add("part", id, string(p.Category))

		switch p.Category {
		case parts.CategoryMotor:
			kv, ok := p.Specs.Int(parts.SpecKV)
			if !ok {
				kv = parts.ExtractKV(p.Name)
			}
			if kv > 0 {
				add("motor_kv", id, kv)
			}
			if mm, ok := p.Specs.Float(parts.SpecMotorMountMM); ok && mm > 0 {
				add("motor_mount", id, tenths(mm))
			} else if mm, ok := parts.MotorMountFromStator(p.Name); ok {
				add("motor_mount", id, tenths(mm))
			}
			if minV, ok := p.Specs.Float(parts.SpecVoltageMinV); ok && minV > 0 {
				add("motor_min_voltage", id, tenths(minV))
			}

		case parts.CategoryBattery:
			cells, ok := p.Specs.Int(parts.SpecCells)
			if !ok {
				cells = parts.ExtractCells(p.Name)
			}
			if cells > 0 {
				volts := parts.CellsToVoltage(cells)
				add("battery_voltage", id, tenths(volts))
				add("battery_voltage_margin", id, tenths(volts*1.05))
			}

		case parts.CategoryStack:
			if mm, ok := p.Specs.Float(parts.SpecFCMountMM); ok && mm > 0 {
				add("stack_mount", id, tenths(mm))
			}
			if n, ok := p.Specs.Int(parts.SpecUARTCount); ok && n > 0 {
				add("stack_uarts", id, n)
			}

		case parts.CategoryProp:
			in, ok := p.Specs.Float(parts.SpecPropInches)
			if !ok || in <= 0 {
				in = parts.ExtractPropInches(p.Name)
			}
			if in > 0 {
				add("prop_size", id, tenths(in))
			}

		case parts.CategoryFrame:
			if wb, ok := p.Specs.Float(parts.SpecWheelbaseMM); ok && wb > 0 {
				add("frame_prop_max", id, maxPropTenths(wb))
			}
			if mm, ok := p.Specs.Float(parts.SpecMotorMountMM); ok && mm > 0 {
				add("frame_motor_mount", id, tenths(mm))
			}
			if mm, ok := p.Specs.Float(parts.SpecFCMountMM); ok && mm > 0 {
				add("frame_stack_mount", id, tenths(mm))
			}

		case parts.CategoryCamera:
			// Digital cam/VTX kits speak MSP over a UART.
			if d, ok := p.Specs.Int(parts.SpecDigital); ok && d == 1 {
				uartDemand++
			}

		case parts.CategoryVTX, parts.CategoryRX, parts.CategoryGPS:
			// Analog VTX control, ELRS, and GPS each occupy a UART.
			uartDemand++
		}
	}

	if uartDemand > 0 {
		add("uart_demand", uartDemand)
	}
	if target.VoltageV > 0 {
		add("target_voltage", tenths(target.VoltageV))
	}
	if target.PropInches > 0 {
		add("target_prop", propClass(target.PropInches))
	}
	return facts, labels
}

// tenths scales a float spec to a rule-friendly integer (22.2V -> 222,
// 30.5mm -> 305, 5.1in -> 51).
func tenths(v float64) int {
	return int(math.Round(v * 10))
}

// propClass rounds a prop diameter to its whole-inch class in tenths,
// so a 5.1in prop matches the 5in KV window.
func propClass(in float64) int {
	return int(math.Round(in)) * 10
}

// maxPropTenths derives the largest prop class a frame can swing
// without the disks touching, in tenths of an inch. Geometry does the
// fine-grained clearance math; this is the coarse symbolic bound.
func maxPropTenths(wheelbaseMM float64) int {
	side := wheelbaseMM / math.Sqrt2
	return int(math.Floor((side - 1.0) / 25.4 * 10))
}

func (c *Checker) collectFindings(labels map[string]string) ([]Finding, error) {
	var findings []Finding

	name := func(arg any) string {
		s, _ := arg.(string)
		s = strings.TrimPrefix(s, "/")
		if label, ok := labels[s]; ok && label != "" {
			return fmt.Sprintf("%s (%s)", s, label)
		}
		return s
	}
	id := func(arg any) string {
		s, _ := arg.(string)
		return strings.TrimPrefix(s, "/")
	}
	num := func(arg any) int64 {
		n, _ := arg.(int64)
		return n
	}

	voltage, err := c.engine.GetFacts("voltage_violation")
	if err != nil {
		return nil, err
	}
	for _, f := range voltage {
		findings = append(findings, Finding{
			Kind:   KindVoltage,
			PartID: id(f.Args[0]),
			Detail: fmt.Sprintf("battery %s is %.1fV against a %.1fV target pack", name(f.Args[0]), float64(num(f.Args[1]))/10, float64(num(f.Args[2]))/10),
		})
	}

	undervolt, err := c.engine.GetFacts("undervolt_violation")
	if err != nil {
		return nil, err
	}
	for _, f := range undervolt {
		findings = append(findings, Finding{
			Kind:   KindUndervolt,
			PartID: id(f.Args[0]),
			Detail: fmt.Sprintf("battery %s tops out at %.1fV with full-charge margin, below the %.1fV floor of motor %s", name(f.Args[0]), float64(num(f.Args[2]))/10, float64(num(f.Args[3]))/10, name(f.Args[1])),
		})
	}

	kv, err := c.engine.GetFacts("kv_violation")
	if err != nil {
		return nil, err
	}
	for _, f := range kv {
		findings = append(findings, Finding{
			Kind:   KindKV,
			PartID: id(f.Args[0]),
			Detail: fmt.Sprintf("motor %s is %dKV, outside the window for this pack and prop class", name(f.Args[0]), num(f.Args[1])),
		})
	}

	mount, err := c.engine.GetFacts("mount_violation")
	if err != nil {
		return nil, err
	}
	for _, f := range mount {
		findings = append(findings, Finding{
			Kind:   KindMount,
			PartID: id(f.Args[0]),
			Detail: fmt.Sprintf("motor %s bolt pattern does not match frame %s", name(f.Args[0]), name(f.Args[1])),
		})
	}

	stack, err := c.engine.GetFacts("stack_violation")
	if err != nil {
		return nil, err
	}
	for _, f := range stack {
		findings = append(findings, Finding{
			Kind:   KindStack,
			PartID: id(f.Args[0]),
			Detail: fmt.Sprintf("stack %s mounting pattern does not match frame %s", name(f.Args[0]), name(f.Args[1])),
		})
	}

	prop, err := c.engine.GetFacts("prop_violation")
	if err != nil {
		return nil, err
	}
	for _, f := range prop {
		findings = append(findings, Finding{
			Kind:   KindProp,
			PartID: id(f.Args[0]),
			Detail: fmt.Sprintf("prop %s is too large for frame %s", name(f.Args[0]), name(f.Args[1])),
		})
	}

	uart, err := c.engine.GetFacts("uart_deficit")
	if err != nil {
		return nil, err
	}
	for _, f := range uart {
		findings = append(findings, Finding{
			Kind:   KindUART,
			PartID: id(f.Args[0]),
			Detail: fmt.Sprintf("stack %s exposes %d UARTs but the peripherals need %d", name(f.Args[0]), num(f.Args[2]), num(f.Args[1])),
		})
	}

	return findings, nil
}
