package cli

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

var (
	colorKey    = lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7571F9"}
	colorHeader = lipgloss.AdaptiveColor{Light: "#1A1A1A", Dark: "#DDDDDD"}
	colorError  = lipgloss.AdaptiveColor{Light: "#D20F39", Dark: "#F38BA8"}
	colorMuted  = lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#5C5C5C"}
)

// styles are the text-mode styles. The zero value renders plain text.
type styles struct {
	key    lipgloss.Style
	header lipgloss.Style
	err    lipgloss.Style
	border lipgloss.Style
}

func newStyles(color bool) styles {
	if !color {
		return styles{
			key:    lipgloss.NewStyle(),
			header: lipgloss.NewStyle(),
			err:    lipgloss.NewStyle(),
			border: lipgloss.NewStyle(),
		}
	}
	return styles{
		key:    lipgloss.NewStyle().Foreground(colorKey).Bold(true),
		header: lipgloss.NewStyle().Foreground(colorHeader).Bold(true),
		err:    lipgloss.NewStyle().Foreground(colorError).Bold(true),
		border: lipgloss.NewStyle().Foreground(colorMuted),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
