package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/trebuchet-org/treb-deploy/internal/adapters/fs"
	"github.com/trebuchet-org/treb-deploy/internal/adapters/progress"
	"github.com/trebuchet-org/treb-deploy/internal/app"
	"github.com/trebuchet-org/treb-deploy/internal/cli/render"
	"github.com/trebuchet-org/treb-deploy/internal/usecase"
)

// NewDeployCmd creates the deploy command
func NewDeployCmd() *cobra.Command {
	var (
		planPath string
		outPath  string
		asJSON   bool
		resume   bool
		yes      bool
	)

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy every step of a plan",
		Long: `Deploy every step of a plan in dependency order.

Each step is submitted, retried on transient connection errors and confirmed
before its dependents start. A reverted deployment halts the run; the records
of confirmed steps are kept in .treb/runs and the run can be continued with
--resume once the cause is fixed.`,
		Example: `  treb-deploy deploy --plan deploy.yaml
  treb-deploy deploy --plan deploy.yaml --network sepolia --parallelism 4
  treb-deploy deploy --plan deploy.yaml --dry-run --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := getViper(cmd)
			if err != nil {
				return err
			}

			var sink usecase.ProgressSink = usecase.NopProgress{}
			if !asJSON {
				useSpinner := v.GetInt("parallelism") == 1 && !color.NoColor
				sink = progress.NewDeployProgress(cmd.ErrOrStderr(), useSpinner)
			}

			a, cleanup, err := app.InitApp(v, sink)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx := cmd.Context()
			if a.Config.Timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, a.Config.Timeout)
				defer cancel()
			}

			plan, err := a.LoadPlan.Load(ctx, planPath)
			if err != nil {
				return err
			}

			if !yes && a.Confirmer.Required() {
				ok, err := a.Confirmer.ConfirmRun(ctx, plan)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("deployment aborted")
				}
			}

			result, err := a.DeployPlan.Execute(ctx, usecase.DeployParams{
				Plan:        plan,
				PlanPath:    planPath,
				Network:     a.Config.Network.Name,
				Parallelism: a.Config.Parallelism,
				Retry:       usecase.RetryPolicyFromConfig(a.Config.Retry),
				Resume:      resume,
				DryRun:      a.Config.DryRun,
			})
			if err != nil {
				return err
			}

			if err := a.Metrics.WriteTextfile(); err != nil {
				a.Log.Warn("failed to write metrics", "error", err)
			}
			if outPath != "" {
				if err := fs.WriteResultFile(outPath, result.RunState(planPath)); err != nil {
					return err
				}
			}

			if err := render.NewDeployRenderer(cmd.OutOrStdout(), asJSON, planPath).Render(result); err != nil {
				return err
			}

			if !result.Success() {
				return &ExitError{Code: ExitPartialFailure, Err: result.Err}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&planPath, "plan", "p", "", "Path to the plan file (YAML)")
	cmd.Flags().Int("parallelism", 1, "Maximum number of steps in flight")
	cmd.Flags().Bool("dry-run", false, "Check arguments and predict addresses without sending transactions")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Write the run result as JSON to this file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	cmd.Flags().BoolVar(&resume, "resume", false, "Continue the last unfinished run of this plan on this network")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	cmd.Flags().String("private-key", "", "Deployer private key (prefer TREB_PRIVATE_KEY)")
	cmd.Flags().String("sender", "", "Deployer address for --dry-run without a private key")
	cmd.Flags().String("artifacts-dir", "", "Compiled artifacts directory (defaults to the foundry profile's out)")
	cmd.Flags().Int("retry-attempts", 3, "Attempts per submission or confirmation before giving up")
	cmd.Flags().Duration("confirmation-timeout", 0, "How long to wait for each confirmation (default 2m)")
	cmd.Flags().String("metrics-file", "", "Write Prometheus metrics to this file when the run ends")
	_ = cmd.MarkFlagRequired("plan")

	return cmd
}
