package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/dshills/revmux/internal/dispatch"
)

const (
	ruleWidth = 60
	wrapWidth = 78
	// rawLimit caps raw-text output in non-verbose mode
	rawLimit = 1200
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	dimStyle   = lipgloss.NewStyle().Faint(true)
)

// Present renders the dispatcher aggregate: successful models first with
// their payload, then each failure individually. The payload variant is
// resolved once per result: pretty-printed JSON when the model returned a
// structured object, otherwise raw text truncated unless verbose.
func Present(w io.Writer, rs *dispatch.Results, verbose bool) error {
	ew := &errWriter{w: w}

	ew.println(titleStyle.Render("Review Results"))
	ew.println(strings.Repeat("─", ruleWidth))
	ew.printf("Models: %d total, %d succeeded, %d failed\n",
		len(rs.Results), rs.Succeeded(), rs.Failed())
	ew.printf("Output: %s\n", rs.Dir)

	for _, res := range rs.Results {
		if !res.OK() {
			continue
		}
		ew.printf("\n%s %s %s\n",
			okStyle.Render("✓"),
			titleStyle.Render(res.Model),
			dimStyle.Render(fmt.Sprintf("(%.1fs)", res.Duration.Seconds())))
		ew.println(strings.Repeat("─", ruleWidth))
		ew.println(payloadView(res, verbose))
	}

	for _, res := range rs.Results {
		if res.OK() {
			continue
		}
		ew.printf("\n%s %s %s\n",
			failStyle.Render("✗"),
			titleStyle.Render(res.Model),
			dimStyle.Render(fmt.Sprintf("(%s after %d attempt(s))", res.Status, res.Attempts)))
		ew.println(strings.Repeat("─", ruleWidth))
		if res.Status == dispatch.StatusTimeout {
			ew.println("  timed out")
		} else if res.ExitCode >= 0 {
			ew.printf("  exit code %d\n", res.ExitCode)
		}
		if res.StderrTail != "" {
			for _, line := range strings.Split(wordwrap.String(res.StderrTail, wrapWidth), "\n") {
				ew.printf("  %s\n", line)
			}
		}
	}

	if failed := rs.Failed(); failed > 0 && rs.Succeeded() > 0 {
		ew.printf("\n%s\n", failStyle.Render(
			fmt.Sprintf("Warning: %d of %d model(s) failed", failed, len(rs.Results))))
	}

	return ew.err
}

// payloadView picks the display form for one successful result.
func payloadView(res dispatch.Result, verbose bool) string {
	if res.Payload != nil {
		data, err := json.MarshalIndent(res.Payload, "", "  ")
		if err == nil {
			return string(data)
		}
	}
	text := res.Text
	if !verbose && len(text) > rawLimit {
		text = text[:rawLimit] + "\n" + dimStyle.Render("... (truncated, full output in the results directory)")
	}
	return wordwrap.String(text, wrapWidth)
}

// errWriter wraps an io.Writer and captures the first error.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...interface{}) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func (ew *errWriter) println(s string) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintln(ew.w, s)
}
