package usecase

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/trebuchet-org/treb-deploy/internal/domain"
)

// Provider submits deployments to a network and observes their confirmation.
// Deploy is not idempotent: every call sends a new transaction.
type Provider interface {
	Deploy(ctx context.Context, artifact *domain.Artifact, args []any) (domain.Submission, error)
	WaitForConfirmation(ctx context.Context, txHash common.Hash) (*domain.Receipt, error)
}

// ChainInfo is implemented by providers that know which chain they target.
type ChainInfo interface {
	ChainID() uint64
}

// ArgumentEncoder builds creation calldata from an artifact and constructor arguments.
type ArgumentEncoder interface {
	EncodeConstructor(artifact *domain.Artifact, args []any) ([]byte, error)
}

// ArtifactRepository resolves artifact references to compiled contracts.
type ArtifactRepository interface {
	GetArtifact(ctx context.Context, ref string) (*domain.Artifact, error)
}

// PlanReader reads the authored form of a plan.
type PlanReader interface {
	ReadPlan(ctx context.Context, path string) (*domain.PlanSpec, error)
}

// RunStateStore persists run state between invocations.
type RunStateStore interface {
	Load(ctx context.Context, plan, network string) (*domain.RunState, error)
	Save(ctx context.Context, state *domain.RunState) error
}

// RunConfirmer approves a run before any transaction is sent.
type RunConfirmer interface {
	Required() bool
	ConfirmRun(ctx context.Context, plan *domain.DeploymentPlan) (bool, error)
}

// MetricsRecorder observes step and run outcomes.
type MetricsRecorder interface {
	StepFinished(step string, status domain.StepStatus, attempts int, duration time.Duration)
	RunFinished(status domain.RunStatus, duration time.Duration)
}

// NopMetrics discards all observations.
type NopMetrics struct{}

func (NopMetrics) StepFinished(string, domain.StepStatus, int, time.Duration) {}
func (NopMetrics) RunFinished(domain.RunStatus, time.Duration)                {}

// Progress tracking interfaces

// Stage identifies the kind of progress event.
type Stage string

const (
	StagePlanLoaded     Stage = "plan_loaded"
	StageRunResumed     Stage = "run_resumed"
	StageStepSubmitting Stage = "step_submitting"
	StageStepSubmitted  Stage = "step_submitted"
	StageStepRetrying   Stage = "step_retrying"
	StageStepSucceeded  Stage = "step_succeeded"
	StageStepFailed     Stage = "step_failed"
	StageStepSkipped    Stage = "step_skipped"
	StageRunFinished    Stage = "run_finished"
)

// ProgressEvent represents a progress update
type ProgressEvent struct {
	Stage    Stage
	Step     string
	Current  int
	Total    int
	Message  string
	Spinner  bool
	Metadata any
}

// ProgressSink receives progress events
type ProgressSink interface {
	OnProgress(ctx context.Context, event ProgressEvent)
}

// NopProgress is a no-op implementation of ProgressSink
type NopProgress struct{}

func (NopProgress) OnProgress(context.Context, ProgressEvent) {}
