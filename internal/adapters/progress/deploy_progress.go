package progress

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"

	"github.com/trebuchet-org/treb-deploy/internal/domain"
	"github.com/trebuchet-org/treb-deploy/internal/usecase"
)

var (
	headerStyle  = color.New(color.Bold)
	stepStyle    = color.New(color.FgCyan)
	successStyle = color.New(color.FgGreen)
	warnStyle    = color.New(color.FgYellow)
	errorStyle   = color.New(color.FgRed)
	mutedStyle   = color.New(color.Faint)
)

// DeployProgress renders deployment progress as lines on out. With a
// spinner enabled, confirmation waits are shown as a spinner instead of a
// line; only use it when steps run one at a time.
type DeployProgress struct {
	out        io.Writer
	useSpinner bool

	mu        sync.Mutex
	spinner   *spinner.Spinner
	startTime time.Time
}

// NewDeployProgress creates a console progress sink
func NewDeployProgress(out io.Writer, useSpinner bool) *DeployProgress {
	return &DeployProgress{
		out:        out,
		useSpinner: useSpinner,
		startTime:  time.Now(),
	}
}

// OnProgress handles progress events. Events may arrive from several goroutines.
func (p *DeployProgress) OnProgress(ctx context.Context, event usecase.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if event.Spinner && p.useSpinner {
		p.startSpinner(fmt.Sprintf(" Waiting for %s (tx %s)", event.Step, shortHash(event.Message)))
		return
	}
	p.stopSpinner()

	switch event.Stage {
	case usecase.StagePlanLoaded:
		name := ""
		if plan, ok := event.Metadata.(*domain.DeploymentPlan); ok {
			name = plan.Name
		}
		headerStyle.Fprintf(p.out, "Deploying %s (%d %s)\n", name, event.Total, plural(event.Total, "step"))

	case usecase.StageRunResumed:
		steps, _ := event.Metadata.([]string)
		mutedStyle.Fprintf(p.out, "Resuming previous run: %d/%d already deployed (%s)\n",
			event.Current, event.Total, strings.Join(steps, ", "))

	case usecase.StageStepSubmitting:
		stepStyle.Fprintf(p.out, "[%d/%d] Deploying %s", event.Current, event.Total, event.Step)
		if event.Message != "" && event.Message != event.Step {
			mutedStyle.Fprintf(p.out, " (%s)", event.Message)
		}
		fmt.Fprintln(p.out)

	case usecase.StageStepSubmitted:
		mutedStyle.Fprintf(p.out, "  %s: tx %s\n", event.Step, event.Message)

	case usecase.StageStepRetrying:
		warnStyle.Fprintf(p.out, "  ↻ %s: %s\n", event.Step, event.Message)

	case usecase.StageStepSucceeded:
		successStyle.Fprintf(p.out, "  ✓ %s deployed at %s\n", event.Step, event.Message)

	case usecase.StageStepFailed:
		errorStyle.Fprintf(p.out, "  ✗ %s failed: %s\n", event.Step, event.Message)

	case usecase.StageStepSkipped:
		mutedStyle.Fprintf(p.out, "  ⊘ %s skipped\n", event.Step)

	case usecase.StageRunFinished:
		status := domain.RunStatus("")
		if result, ok := event.Metadata.(*usecase.DeployResult); ok {
			status = result.Status
		}
		style := successStyle
		if status != domain.RunCompleted {
			style = errorStyle
		}
		style.Fprintf(p.out, "%s: %d/%d deployed in %s\n",
			statusLabel(status), event.Current, event.Total, time.Since(p.startTime).Round(time.Millisecond))
	}
}

func (p *DeployProgress) startSpinner(suffix string) {
	if p.spinner == nil {
		p.spinner = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		p.spinner.Writer = p.out
		_ = p.spinner.Color("cyan", "bold")
	}
	p.spinner.Suffix = suffix
	if !p.spinner.Active() {
		p.spinner.Start()
	}
}

func (p *DeployProgress) stopSpinner() {
	if p.spinner != nil && p.spinner.Active() {
		p.spinner.Stop()
	}
}

func statusLabel(status domain.RunStatus) string {
	switch status {
	case domain.RunCompleted:
		return "Completed"
	case domain.RunHalted:
		return "Halted"
	case domain.RunCancelled:
		return "Cancelled"
	default:
		return "Finished"
	}
}

func shortHash(h string) string {
	if len(h) <= 14 {
		return h
	}
	return h[:10] + "…" + h[len(h)-4:]
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

// Ensure DeployProgress implements ProgressSink
var _ usecase.ProgressSink = (*DeployProgress)(nil)
