// Package tui is the terminal face of the forge CLI: the clarification
// prompt, verdict banners, status tables, and the rendered build report.
package tui

import (
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Color palette, light and dark variants plus mode-independent
// semantic colors.
var (
	// Light mode colors (default)
	LightBackground = lipgloss.Color("#f5f4f0")
	LightForeground = lipgloss.Color("#18222e")
	LightPrimary    = lipgloss.Color("#18222e") // ink
	LightAccent     = lipgloss.Color("#ef6c00") // forge orange
	LightSecondary  = lipgloss.Color("#e6e3dc")
	LightMuted      = lipgloss.Color("#9aa1ab")
	LightBorder     = lipgloss.Color("#d9d5cc")
	LightCard       = lipgloss.Color("#ffffff")

	// Dark mode colors
	DarkBackground = lipgloss.Color("#10161e")
	DarkForeground = lipgloss.Color("#eceae6")
	DarkPrimary    = lipgloss.Color("#ff9e3d") // orange, flipped
	DarkAccent     = lipgloss.Color("#ef6c00")
	DarkSecondary  = lipgloss.Color("#1a2430")
	DarkMuted      = lipgloss.Color("#55627a")
	DarkBorder     = lipgloss.Color("#27344a")
	DarkCard       = lipgloss.Color("#161f2b")

	// Semantic colors (same in both modes)
	Destructive = lipgloss.Color("#E53935") // red
	Success     = lipgloss.Color("#43A047") // green
	Warning     = lipgloss.Color("#FFB300") // amber
	Info        = lipgloss.Color("#1E88E5") // blue
)

// Theme holds the current color scheme.
type Theme struct {
	Background lipgloss.Color
	Foreground lipgloss.Color
	Primary    lipgloss.Color
	Accent     lipgloss.Color
	Secondary  lipgloss.Color
	Muted      lipgloss.Color
	Border     lipgloss.Color
	Card       lipgloss.Color
	IsDark     bool
}

// LightTheme returns the light mode theme.
func LightTheme() Theme {
	return Theme{
		Background: LightBackground,
		Foreground: LightForeground,
		Primary:    LightPrimary,
		Accent:     LightAccent,
		Secondary:  LightSecondary,
		Muted:      LightMuted,
		Border:     LightBorder,
		Card:       LightCard,
		IsDark:     false,
	}
}

// DarkTheme returns the dark mode theme.
func DarkTheme() Theme {
	return Theme{
		Background: DarkBackground,
		Foreground: DarkForeground,
		Primary:    DarkPrimary,
		Accent:     DarkAccent,
		Secondary:  DarkSecondary,
		Muted:      DarkMuted,
		Border:     DarkBorder,
		Card:       DarkCard,
		IsDark:     true,
	}
}

// DetectTheme picks dark or light from terminal hints, defaulting to
// light. COLORFGBG is the usual "foreground;background" pair; ANSI
// background indices 0-6 and 8 read as dark.
func DetectTheme() Theme {
	if fgbg := os.Getenv("COLORFGBG"); fgbg != "" {
		fields := strings.Split(fgbg, ";")
		if len(fields) == 2 {
			if bg, err := strconv.Atoi(fields[1]); err == nil {
				if (bg >= 0 && bg <= 6) || bg == 8 {
					return DarkTheme()
				}
			}
		}
	}
	if os.Getenv("QUADFORGE_DARK_MODE") == "1" {
		return DarkTheme()
	}
	return LightTheme()
}

// Styles holds the styled components the CLI renders with.
type Styles struct {
	Theme Theme

	// Layout
	Header lipgloss.Style
	Footer lipgloss.Style

	// Text
	Title    lipgloss.Style
	Subtitle lipgloss.Style
	Body     lipgloss.Style
	Muted    lipgloss.Style
	Bold     lipgloss.Style

	// Interactive
	Prompt         lipgloss.Style
	Option         lipgloss.Style
	OptionSelected lipgloss.Style

	// Status
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style

	// Verdict banners
	BannerPass     lipgloss.Style
	BannerMarginal lipgloss.Style
	BannerFail     lipgloss.Style

	// Components
	Badge   lipgloss.Style
	Spinner lipgloss.Style
	Divider lipgloss.Style
}

// NewStyles builds the style set for a theme.
func NewStyles(theme Theme) Styles {
	return Styles{
		Theme: theme,

		Header: lipgloss.NewStyle().
			Background(theme.Primary).
			Foreground(lipgloss.Color("#ffffff")).
			Padding(0, 2).
			Bold(true),

		Footer: lipgloss.NewStyle().
			Foreground(theme.Muted).
			Padding(0, 2),

		Title: lipgloss.NewStyle().
			Foreground(theme.Primary).
			Bold(true),

		Subtitle: lipgloss.NewStyle().
			Foreground(theme.Muted).
			Italic(true),

		Body: lipgloss.NewStyle().
			Foreground(theme.Foreground),

		Muted: lipgloss.NewStyle().
			Foreground(theme.Muted),

		Bold: lipgloss.NewStyle().
			Foreground(theme.Foreground).
			Bold(true),

		Prompt: lipgloss.NewStyle().
			Foreground(theme.Accent).
			Bold(true),

		Option: lipgloss.NewStyle().
			Foreground(theme.Foreground).
			PaddingLeft(2),

		OptionSelected: lipgloss.NewStyle().
			Foreground(theme.Accent).
			Bold(true),

		Success: lipgloss.NewStyle().
			Foreground(Success).
			Bold(true),

		Error: lipgloss.NewStyle().
			Foreground(Destructive).
			Bold(true),

		Warning: lipgloss.NewStyle().
			Foreground(Warning).
			Bold(true),

		Info: lipgloss.NewStyle().
			Foreground(Info),

		BannerPass: lipgloss.NewStyle().
			Background(Success).
			Foreground(lipgloss.Color("#ffffff")).
			Padding(0, 2).
			Bold(true),

		BannerMarginal: lipgloss.NewStyle().
			Background(Warning).
			Foreground(lipgloss.Color("#18222e")).
			Padding(0, 2).
			Bold(true),

		BannerFail: lipgloss.NewStyle().
			Background(Destructive).
			Foreground(lipgloss.Color("#ffffff")).
			Padding(0, 2).
			Bold(true),

		Badge: lipgloss.NewStyle().
			Background(theme.Accent).
			Foreground(lipgloss.Color("#ffffff")).
			Padding(0, 1).
			Bold(true),

		Spinner: lipgloss.NewStyle().
			Foreground(theme.Accent),

		Divider: lipgloss.NewStyle().
			Foreground(theme.Border),
	}
}

// DefaultStyles returns styles for the detected theme.
func DefaultStyles() Styles {
	return NewStyles(DetectTheme())
}

// RenderDivider returns a horizontal rule of the given width.
func (s Styles) RenderDivider(width int) string {
	if width <= 0 {
		width = 60
	}
	return s.Divider.Render(strings.Repeat("─", width))
}
