package render

import (
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/trebuchet-org/treb-deploy/internal/domain"
)

var titleCase = cases.Title(language.English)

// FormatError formats an error message with the error icon
func FormatError(message string) string {
	return color.New(color.FgRed).Sprintf("❌ %s", message)
}

// FormatSuccess formats a success message with the success icon
func FormatSuccess(message string) string {
	return color.New(color.FgGreen).Sprintf("✅ %s", message)
}

// FormatWarning formats a warning message with the warning icon
func FormatWarning(message string) string {
	return color.New(color.FgYellow).Sprintf("⚠️  %s", message)
}

// statusText renders SUCCEEDED as "Succeeded", colored by outcome
func statusText(status domain.StepStatus) string {
	label := titleCase.String(strings.ToLower(string(status)))
	switch status {
	case domain.StepSucceeded:
		return color.New(color.FgGreen).Sprint(label)
	case domain.StepFailed:
		return color.New(color.FgRed).Sprint(label)
	case domain.StepSkipped, domain.StepPending:
		return color.New(color.Faint).Sprint(label)
	default:
		return color.New(color.FgYellow).Sprint(label)
	}
}

func runStatusText(status domain.RunStatus) string {
	label := titleCase.String(strings.ReplaceAll(strings.ToLower(string(status)), "_", " "))
	if status == domain.RunCompleted {
		return color.New(color.FgGreen, color.Bold).Sprint(label)
	}
	return color.New(color.FgRed, color.Bold).Sprint(label)
}

// newTable returns a borderless table in the style used across commands
func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.Style().Options.DrawBorder = false
	t.Style().Options.SeparateColumns = false
	t.Style().Options.SeparateRows = false
	t.Style().Box.PaddingRight = "  "
	return t
}
