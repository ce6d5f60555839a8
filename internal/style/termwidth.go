package style

import (
	"os"

	"golang.org/x/term"
)

// TerminalWidth returns stdout's terminal column width, or fallback when
// stdout is not a terminal (piped output, redirected logs).
func TerminalWidth(fallback int) int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return fallback
	}
	return w
}
