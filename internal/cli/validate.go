package cli

import (
	"github.com/spf13/cobra"

	"github.com/trebuchet-org/treb-deploy/internal/app"
	"github.com/trebuchet-org/treb-deploy/internal/cli/render"
	domainconfig "github.com/trebuchet-org/treb-deploy/internal/domain/config"
)

// NewValidateCmd creates the validate command
func NewValidateCmd() *cobra.Command {
	var (
		planPath string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a plan and print its execution order",
		Long: `Parse a plan, resolve its artifacts, check constructor arguments and
dependencies, and print the steps in the order they will run. Nothing is sent
to any network.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := getViper(cmd)
			if err != nil {
				return err
			}
			// validation never needs a network or a key
			v.Set("network", domainconfig.SimulatedNetwork)

			planner, err := app.InitPlanner(v)
			if err != nil {
				return err
			}

			plan, err := planner.LoadPlan.Load(cmd.Context(), planPath)
			if err != nil {
				return err
			}

			return render.NewPlanRenderer(cmd.OutOrStdout(), asJSON).Render(plan)
		},
	}

	cmd.Flags().StringVarP(&planPath, "plan", "p", "", "Path to the plan file (YAML)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the plan as JSON")
	cmd.Flags().String("artifacts-dir", "", "Compiled artifacts directory (defaults to the foundry profile's out)")
	_ = cmd.MarkFlagRequired("plan")

	return cmd
}
