package interactive

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/manifoldco/promptui"

	"github.com/trebuchet-org/treb-deploy/internal/domain"
	"github.com/trebuchet-org/treb-deploy/internal/domain/config"
)

// PrompterAdapter asks the operator to approve runs against remote networks
type PrompterAdapter struct {
	config *config.RuntimeConfig
	run    func(promptui.Prompt) (string, error)
}

// NewPrompterAdapter creates a new prompter adapter
func NewPrompterAdapter(cfg *config.RuntimeConfig) *PrompterAdapter {
	return &PrompterAdapter{
		config: cfg,
		run: func(p promptui.Prompt) (string, error) {
			return p.Run()
		},
	}
}

// Required reports whether a run must be approved before any transaction is
// sent. Local chains, dry runs and non-interactive sessions never prompt.
func (p *PrompterAdapter) Required() bool {
	if p.config.NonInteractive || p.config.DryRun {
		return false
	}
	return !p.config.Network.IsLocal()
}

// ConfirmRun shows what is about to be deployed and waits for a yes/no answer.
func (p *PrompterAdapter) ConfirmRun(ctx context.Context, plan *domain.DeploymentPlan) (bool, error) {
	if p.config.NonInteractive {
		return false, fmt.Errorf("confirmation not available in non-interactive mode")
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	label := fmt.Sprintf("Deploy %d step(s) of %s to %s",
		len(plan.Steps), plan.Name, color.New(color.FgCyan, color.Bold).Sprint(p.config.Network.Name))

	_, err := p.run(promptui.Prompt{
		Label:     label,
		IsConfirm: true,
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, promptui.ErrAbort):
		return false, nil
	case errors.Is(err, promptui.ErrInterrupt):
		return false, context.Canceled
	default:
		return false, fmt.Errorf("confirmation failed: %w", err)
	}
}
