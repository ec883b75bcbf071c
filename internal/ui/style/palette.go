package style

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	Cyan    = lipgloss.Color("#00E5FF") // Primary highlight
	Magenta = lipgloss.Color("#FF1B6B") // Accent
	Yellow  = lipgloss.Color("#FFB500") // Warnings
	Green   = lipgloss.Color("#2AFFAA") // Good yield / success
	Red     = lipgloss.Color("#FF5555") // Errors

	// Base colors
	Base03 = lipgloss.Color("#1B1D23") // Background
	Base01 = lipgloss.Color("#6C7280") // Muted text
	Base1  = lipgloss.Color("#B4BCC8") // Secondary text

	// Yield specific colors
	LiveColor     = Green
	FallbackColor = Yellow
)

// Palette provides a centralized color management
type Palette struct {
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Success   lipgloss.Color
	Error     lipgloss.Color
	Warning   lipgloss.Color

	Background    lipgloss.Color
	TextMuted     lipgloss.Color
	TextSecondary lipgloss.Color

	Live     lipgloss.Color
	Fallback lipgloss.Color
}

// DefaultPalette returns the default color palette
func DefaultPalette() Palette {
	return Palette{
		Primary:   Cyan,
		Secondary: Magenta,
		Success:   Green,
		Error:     Red,
		Warning:   Yellow,

		Background:    Base03,
		TextMuted:     Base01,
		TextSecondary: Base1,

		Live:     LiveColor,
		Fallback: FallbackColor,
	}
}

// ProvenanceColor picks the color for a live, fallback or estimated value.
func (p Palette) ProvenanceColor(source string) lipgloss.Color {
	if source == "live" {
		return p.Live
	}
	return p.Fallback
}
