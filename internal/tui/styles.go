package tui

import "github.com/charmbracelet/lipgloss"

// Palette (ANSI 256)
var (
	Primary   = lipgloss.Color("48")  // green
	Secondary = lipgloss.Color("45")  // cyan
	Accent    = lipgloss.Color("201") // magenta
	Warning   = lipgloss.Color("214") // amber
	Error     = lipgloss.Color("197") // red-pink
	Muted     = lipgloss.Color("245")
	Dim       = lipgloss.Color("238")
	Text      = lipgloss.Color("252")
	DarkBg    = lipgloss.Color("236")
)

var (
	HeaderStyle = lipgloss.NewStyle().
			Background(DarkBg).
			Foreground(Text).
			Padding(0, 1)

	TitleStyle = lipgloss.NewStyle().
			Foreground(Secondary).
			Bold(true)

	LabelStyle = lipgloss.NewStyle().
			Foreground(Muted)

	BodyStyle = lipgloss.NewStyle().
			Foreground(Text)

	HelpStyle = lipgloss.NewStyle().
			Foreground(Muted)

	NoticeStyle = lipgloss.NewStyle().
			Foreground(Warning)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)

	SpinnerStyle = lipgloss.NewStyle().
			Foreground(Accent)

	InputStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Secondary).
			Padding(0, 1)

	DiffAddStyle  = lipgloss.NewStyle().Foreground(Primary)
	DiffDelStyle  = lipgloss.NewStyle().Foreground(Error)
	DiffHunkStyle = lipgloss.NewStyle().Foreground(Accent)
	DiffMetaStyle = lipgloss.NewStyle().Foreground(Dim)
)

// statusStyles colors the status badge
var statusStyles = map[string]lipgloss.Style{
	"planning":            lipgloss.NewStyle().Foreground(Secondary).Bold(true),
	"plan_review":         lipgloss.NewStyle().Foreground(Warning).Bold(true),
	"generating":          lipgloss.NewStyle().Foreground(Secondary).Bold(true),
	"user_input_required": lipgloss.NewStyle().Foreground(Warning).Bold(true),
	"done":                lipgloss.NewStyle().Foreground(Primary).Bold(true),
	"error":               lipgloss.NewStyle().Foreground(Error).Bold(true),
}

// Symbols
const (
	SymbolPending = "○"
	SymbolPassed  = "✓"
	SymbolFailed  = "✗"
)

// Logo renders the app name
func Logo() string {
	return TitleStyle.Render("DAVE-BOT")
}
