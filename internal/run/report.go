package run

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	colorGreen = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	colorRed   = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	colorGray  = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	colorWhite = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(colorWhite)
	okStyle     = lipgloss.NewStyle().Bold(true).Foreground(colorGreen)
	failStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorRed)
	hintStyle   = lipgloss.NewStyle().Foreground(colorGray)
)

// Render formats a run summary for the terminal. Accounts appear in the
// order they were processed, followed by remediation hints for any account
// whose credentials need re-authorization.
func Render(s Summary) string {
	var b strings.Builder

	b.WriteString(headerStyle.Render(fmt.Sprintf(
		"Run %s (%s to %s)",
		s.RunID,
		s.Window.Start.Format("2006-01-02"),
		s.Window.End.Format("2006-01-02"),
	)))
	b.WriteString("\n")

	for _, r := range s.Results {
		if r.Failed() {
			b.WriteString(fmt.Sprintf("%s %s: %s", failStyle.Render("NG"), r.Account, r.Status))
			if r.Detail != "" {
				b.WriteString(fmt.Sprintf(" (%s)", r.Detail))
			}
		} else {
			b.WriteString(fmt.Sprintf("%s %s: %d attachment(s)", okStyle.Render("OK"), r.Account, r.Attachments))
		}
		b.WriteString("\n")
	}

	b.WriteString(fmt.Sprintf(
		"%d/%d accounts succeeded, %d attachment(s) downloaded in %s\n",
		len(s.Results)-s.Failed(), len(s.Results), s.Downloaded(),
		s.Finished.Sub(s.Started).Round(time.Millisecond),
	))

	for _, r := range s.Results {
		if r.Status.NeedsReauth() {
			b.WriteString(hintStyle.Render(fmt.Sprintf("run `mailsnag auth %s` to re-authorize", r.Account)))
			b.WriteString("\n")
		}
	}

	return b.String()
}
