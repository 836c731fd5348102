package output

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

// Messenger prints status lines for humans. Info and success go to Out,
// warnings to Err. Quiet suppresses everything but warnings.
type Messenger struct {
	Out   io.Writer
	Err   io.Writer
	Quiet bool
}

// NewMessenger returns a messenger on stdout and stderr.
func NewMessenger(quiet bool) *Messenger {
	return &Messenger{Out: os.Stdout, Err: os.Stderr, Quiet: quiet}
}

//nolint:gochecknoglobals // Shared color palette
var (
	infoPrefix    = color.New(color.FgCyan).Sprint("i")
	warnPrefix    = color.New(color.FgYellow, color.Bold).Sprint("!")
	successPrefix = color.New(color.FgGreen).Sprint("✓")
)

// Infof prints an informational line.
func (m *Messenger) Infof(format string, args ...any) {
	if m.Quiet {
		return
	}
	_, _ = fmt.Fprintf(m.Out, "%s %s\n", infoPrefix, fmt.Sprintf(format, args...))
}

// Warnf prints a warning line.
func (m *Messenger) Warnf(format string, args ...any) {
	_, _ = fmt.Fprintf(m.Err, "%s %s\n", warnPrefix, fmt.Sprintf(format, args...))
}

// Successf prints a success line.
func (m *Messenger) Successf(format string, args ...any) {
	if m.Quiet {
		return
	}
	_, _ = fmt.Fprintf(m.Out, "%s %s\n", successPrefix, fmt.Sprintf(format, args...))
}

// Colorize returns s in the color matching a scan or session state.
func Colorize(state, s string) string {
	switch state {
	case "finished", "completed":
		return color.GreenString(s)
	case "incompatible":
		return color.New(color.Faint).Sprint(s)
	case "aborted", "stalled":
		return color.RedString(s)
	default:
		return s
	}
}
