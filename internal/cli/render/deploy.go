package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/trebuchet-org/treb-deploy/internal/domain"
	"github.com/trebuchet-org/treb-deploy/internal/usecase"
)

// DeployRenderer renders the outcome of a run
type DeployRenderer struct {
	out      io.Writer
	asJSON   bool
	planPath string
}

// NewDeployRenderer creates a new deploy renderer
func NewDeployRenderer(out io.Writer, asJSON bool, planPath string) *DeployRenderer {
	return &DeployRenderer{out: out, asJSON: asJSON, planPath: planPath}
}

// Render writes the records table, or one JSON document in JSON mode.
func (r *DeployRenderer) Render(result *usecase.DeployResult) error {
	if r.asJSON {
		enc := json.NewEncoder(r.out)
		enc.SetIndent("", "  ")
		return enc.Encode(result.RunState(r.planPath))
	}

	header := fmt.Sprintf("%s on %s", result.Plan.Name, result.Network)
	if result.ChainID != 0 {
		header += fmt.Sprintf(" (chain %d)", result.ChainID)
	}
	if result.DryRun {
		header += " [dry run]"
	}
	fmt.Fprintln(r.out)
	color.New(color.Bold).Fprintln(r.out, header)

	t := newTable()
	t.AppendHeader(table.Row{"Step", "Artifact", "Address", "Tx", "Block", "Attempts", "Status"})
	for _, step := range result.Plan.Steps {
		if rec, ok := result.Record(step.Name); ok {
			block := ""
			if rec.BlockNumber > 0 {
				block = strconv.FormatUint(rec.BlockNumber, 10)
			}
			t.AppendRow(table.Row{
				rec.Step,
				rec.Artifact,
				rec.Address.Hex(),
				shortHex(rec.TxHash.Hex()),
				block,
				rec.Attempts,
				statusText(rec.Status),
			})
			continue
		}
		t.AppendRow(table.Row{step.Name, step.Artifact.Name, "", "", "", "", statusText(result.States[step.Name])})
	}
	fmt.Fprintln(r.out, t.Render())
	fmt.Fprintln(r.out)

	fmt.Fprintf(r.out, "%s: %d/%d deployed in %s (run %s)\n",
		runStatusText(result.Status), len(result.Records), len(result.Plan.Steps),
		result.Duration.Round(time.Millisecond), result.RunID)
	if len(result.Resumed) > 0 {
		fmt.Fprintf(r.out, "Resumed %d step(s) from the previous run\n", len(result.Resumed))
	}
	if result.Err != nil {
		msg := result.Err.Error()
		if result.FailedStep != "" {
			msg = fmt.Sprintf("%s (%s)", msg, domain.ErrorKind(result.Err))
		}
		fmt.Fprintln(r.out, FormatError(msg))
	}
	return nil
}

func shortHex(h string) string {
	if len(h) <= 18 {
		return h
	}
	return h[:10] + "…" + h[len(h)-6:]
}

var _ Renderer[*usecase.DeployResult] = (*DeployRenderer)(nil)
