package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/trebuchet-org/treb-deploy/internal/domain"
)

// PlanRenderer renders a validated plan in execution order
type PlanRenderer struct {
	out    io.Writer
	asJSON bool
}

// NewPlanRenderer creates a new plan renderer
func NewPlanRenderer(out io.Writer, asJSON bool) *PlanRenderer {
	return &PlanRenderer{out: out, asJSON: asJSON}
}

type planStepJSON struct {
	Name      string   `json:"name"`
	Artifact  string   `json:"artifact"`
	Path      string   `json:"path,omitempty"`
	Args      []any    `json:"args,omitempty"`
	DependsOn []string `json:"depends_on,omitempty"`
}

type planJSON struct {
	Name  string         `json:"name"`
	Steps []planStepJSON `json:"steps"`
}

// Render prints the steps in the order they will be dispatched.
func (r *PlanRenderer) Render(plan *domain.DeploymentPlan) error {
	if r.asJSON {
		doc := planJSON{Name: plan.Name, Steps: make([]planStepJSON, 0, len(plan.Steps))}
		for _, step := range plan.Steps {
			doc.Steps = append(doc.Steps, planStepJSON{
				Name:      step.Name,
				Artifact:  step.Artifact.Name,
				Path:      step.Artifact.Path,
				Args:      step.ConstructorArgs,
				DependsOn: step.DependsOn,
			})
		}
		enc := json.NewEncoder(r.out)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	}

	color.New(color.Bold).Fprintf(r.out, "Plan %s (%d steps)\n", plan.Name, len(plan.Steps))

	t := newTable()
	t.AppendHeader(table.Row{"#", "Step", "Artifact", "Depends On", "Args"})
	for i, step := range plan.Steps {
		t.AppendRow(table.Row{
			i + 1,
			step.Name,
			step.Artifact.Name,
			strings.Join(step.DependsOn, ", "),
			formatArgs(step.ConstructorArgs),
		})
	}
	fmt.Fprintln(r.out, t.Render())
	fmt.Fprintln(r.out, FormatSuccess("Plan is valid"))
	return nil
}

func formatArgs(args []any) string {
	if len(args) == 0 {
		return ""
	}
	parts := make([]string, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case string:
			parts[i] = fmt.Sprintf("%q", v)
		case []any:
			parts[i] = "[" + formatArgs(v) + "]"
		default:
			parts[i] = fmt.Sprint(v)
		}
	}
	return strings.Join(parts, ", ")
}

var _ Renderer[*domain.DeploymentPlan] = (*PlanRenderer)(nil)
