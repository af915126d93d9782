package presenter

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	ColorPrimary = lipgloss.Color("#7C3AED") // Purple
	ColorAccent  = lipgloss.Color("#10B981") // Green
	ColorDanger  = lipgloss.Color("#EF4444") // Red
	ColorWarning = lipgloss.Color("#F59E0B") // Amber

	ColorText    = lipgloss.Color("#E5E7EB")
	ColorTextDim = lipgloss.Color("#9CA3AF")
	ColorBorder  = lipgloss.Color("#4B5563")
)

// Styles defines the presenter's styles
type Styles struct {
	Box      lipgloss.Style
	Title    lipgloss.Style
	Code     lipgloss.Style
	Label    lipgloss.Style
	Value    lipgloss.Style
	BarFull  lipgloss.Style
	BarEmpty lipgloss.Style
	Verified lipgloss.Style
	Rejected lipgloss.Style
	Pending  lipgloss.Style
	Error    lipgloss.Style
	Help     lipgloss.Style
}

// NewStyles creates the default styles
func NewStyles() *Styles {
	s := &Styles{}

	s.Box = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder).
		Padding(1, 2)

	s.Title = lipgloss.NewStyle().
		Foreground(ColorPrimary).
		Bold(true)

	s.Code = lipgloss.NewStyle().
		Foreground(ColorText).
		Bold(true)

	s.Label = lipgloss.NewStyle().
		Foreground(ColorTextDim)

	s.Value = lipgloss.NewStyle().
		Foreground(ColorText)

	s.BarFull = lipgloss.NewStyle().
		Foreground(ColorPrimary)

	s.BarEmpty = lipgloss.NewStyle().
		Foreground(ColorBorder)

	s.Verified = lipgloss.NewStyle().
		Foreground(ColorAccent).
		Bold(true)

	s.Rejected = lipgloss.NewStyle().
		Foreground(ColorDanger).
		Bold(true)

	s.Pending = lipgloss.NewStyle().
		Foreground(ColorWarning)

	s.Error = lipgloss.NewStyle().
		Foreground(ColorDanger)

	s.Help = lipgloss.NewStyle().
		Foreground(ColorTextDim)

	return s
}
