package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"quadforge/internal/parts"
	"quadforge/internal/physics"
	"quadforge/internal/pipeline"
	"quadforge/internal/simulate"
)

// VerdictBanner renders a hover test outcome as a colored banner:
// green FLYABLE, yellow MARGINAL, red GROUNDED.
func VerdictBanner(res simulate.Result, s Styles) string {
	var badge string
	switch res.Outcome {
	case simulate.OutcomePass:
		badge = s.BannerPass.Render("FLYABLE")
	case simulate.OutcomeMarginal:
		badge = s.BannerMarginal.Render("MARGINAL")
	default:
		badge = s.BannerFail.Render("GROUNDED")
	}
	if res.Notes == "" {
		return badge
	}
	return badge + " " + s.Body.Render(res.Notes)
}

// BOMTable lays out the sourced bill of materials.
func BOMTable(bom []*parts.Part) *Table {
	t := NewTable("Bill of Materials", "Part", "Selection", "Price", "Vendor")
	for _, p := range bom {
		vendor := p.Vendor
		if vendor == "" {
			vendor = "n/a"
		}
		t.AddRow(string(p.Category), p.Name, money(p.Price), vendor)
	}
	return t
}

// PhysicsTable lays out the flight model numbers.
func PhysicsTable(rep physics.Report) *Table {
	t := NewTable("Flight Physics", "Metric", "Value")
	t.AddRow("All-up weight", fmt.Sprintf("%d g", rep.TotalWeightG))
	t.AddRow("Thrust-to-weight", fmt.Sprintf("%.2f", rep.TWR))
	t.AddRow("Hover throttle", fmt.Sprintf("%.1f%%", rep.HoverThrottlePc))
	t.AddRow("Flight time", fmt.Sprintf("%.1f min", rep.FlightTimeMin))
	t.AddRow("Disk loading", fmt.Sprintf("%.2f g/dm2", rep.DiskLoading))
	t.AddRow("Top speed", fmt.Sprintf("%d km/h", rep.TopSpeedKMH))
	t.AddRow("Status", rep.Status)
	return t
}

// Report renders a finished design as terminal markdown. Styling
// degrades to the raw markdown when glamour cannot handle the
// terminal.
func Report(d *pipeline.Design) (string, error) {
	if d == nil {
		return "", errors.New("no design to report")
	}
	return renderMarkdown(buildMarkdown(d)), nil
}

func buildMarkdown(d *pipeline.Design) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", d.Name)
	fmt.Fprintf(&sb, "**Status:** %s\n\n", d.Status)
	if d.Plan != nil && strings.TrimSpace(d.Plan.BuildSummary) != "" {
		sb.WriteString(strings.TrimSpace(d.Plan.BuildSummary))
		sb.WriteString("\n\n")
	}

	if len(d.BOM) > 0 {
		sb.WriteString("## Bill of Materials\n\n")
		sb.WriteString("| Part | Selection | Price |\n")
		sb.WriteString("|------|-----------|-------|\n")
		for _, p := range d.BOM {
			fmt.Fprintf(&sb, "| %s | %s | %s |\n", p.Category, p.Name, money(p.Price))
		}
		sb.WriteString("\n")
	}
	if d.Cost != nil {
		fmt.Fprintf(&sb, "**Estimated total: $%.2f** (parts $%.2f, shipping $%.2f, tax $%.2f)\n\n",
			d.Cost.TotalEstimated, d.Cost.Subtotal, d.Cost.EstimatedShipping, d.Cost.EstimatedTax)
	}

	if d.Physics.TotalWeightG > 0 {
		sb.WriteString("## Flight Physics\n\n")
		fmt.Fprintf(&sb, "- All-up weight: %d g\n", d.Physics.TotalWeightG)
		fmt.Fprintf(&sb, "- Thrust-to-weight: %.2f\n", d.Physics.TWR)
		fmt.Fprintf(&sb, "- Hover throttle: %.1f%%\n", d.Physics.HoverThrottlePc)
		fmt.Fprintf(&sb, "- Estimated flight time: %.1f min\n", d.Physics.FlightTimeMin)
		fmt.Fprintf(&sb, "- Top speed: %d km/h\n\n", d.Physics.TopSpeedKMH)
	}

	if d.Simulation.Outcome != "" {
		fmt.Fprintf(&sb, "## Hover Test\n\n**%s** %s\n\n", d.Simulation.Outcome, d.Simulation.Notes)
	}

	if len(d.ValidationLog) > 0 {
		sb.WriteString("## Validation History\n\n")
		for _, a := range d.ValidationLog {
			fmt.Fprintf(&sb, "%d. **%s**", a.Round, a.Result)
			if a.Failure != "" {
				fmt.Fprintf(&sb, " %s", a.Failure)
				if a.Detail != "" {
					fmt.Fprintf(&sb, ": %s", a.Detail)
				}
			}
			if a.Fix != "" {
				fmt.Fprintf(&sb, " (fix: %s)", a.Fix)
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	if d.Guide != nil && strings.TrimSpace(d.Guide.GuideMD) != "" {
		sb.WriteString("## Assembly Guide\n\n")
		sb.WriteString(strings.TrimSpace(d.Guide.GuideMD))
		sb.WriteString("\n")
	}

	return sb.String()
}

// renderMarkdown styles markdown for the terminal, recovering to plain
// text if glamour panics on an odd TERM.
func renderMarkdown(md string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			out = md
		}
	}()

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return md
	}
	rendered, err := renderer.Render(md)
	if err != nil {
		return md
	}
	return rendered
}

func money(v float64) string {
	if v <= 0 {
		return "n/a"
	}
	return fmt.Sprintf("$%.2f", v)
}
