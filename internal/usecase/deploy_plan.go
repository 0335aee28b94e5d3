package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/trebuchet-org/treb-deploy/internal/domain"
)

// DeployPlan executes a deployment plan against a provider.
type DeployPlan struct {
	provider Provider
	store    RunStateStore
	progress ProgressSink
	metrics  MetricsRecorder
	log      *slog.Logger
}

// NewDeployPlan creates a new DeployPlan use case
func NewDeployPlan(
	provider Provider,
	store RunStateStore,
	progress ProgressSink,
	metrics MetricsRecorder,
	log *slog.Logger,
) *DeployPlan {
	if progress == nil {
		progress = NopProgress{}
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &DeployPlan{
		provider: provider,
		store:    store,
		progress: progress,
		metrics:  metrics,
		log:      log.With("component", "DeployPlan"),
	}
}

// DeployParams contains parameters for a run
type DeployParams struct {
	Plan        *domain.DeploymentPlan
	PlanPath    string
	Network     string
	Parallelism int
	Retry       RetryPolicy
	Resume      bool
	DryRun      bool
}

// DeployResult contains the outcome of a run. A halted or cancelled run
// still carries every record that was confirmed.
type DeployResult struct {
	RunID      string
	Plan       *domain.DeploymentPlan
	Network    string
	ChainID    uint64
	Status     domain.RunStatus
	Records    []domain.DeploymentRecord
	States     domain.StepStates
	FailedStep string
	Err        error
	Resumed    []string
	DryRun     bool
	StartedAt  time.Time
	Duration   time.Duration
}

// Success reports whether every step succeeded.
func (r *DeployResult) Success() bool {
	return r.Status == domain.RunCompleted
}

// Record returns the record for step, if the step succeeded.
func (r *DeployResult) Record(step string) (domain.DeploymentRecord, bool) {
	return lo.Find(r.Records, func(rec domain.DeploymentRecord) bool { return rec.Step == step })
}

// RunState returns the persistable view of the result.
func (r *DeployResult) RunState(planPath string) *domain.RunState {
	state := &domain.RunState{
		RunID:      r.RunID,
		Plan:       r.Plan.Name,
		PlanPath:   planPath,
		Network:    r.Network,
		ChainID:    r.ChainID,
		DryRun:     r.DryRun,
		Status:     r.Status,
		Records:    append([]domain.DeploymentRecord{}, r.Records...),
		Steps:      make(domain.StepStates, len(r.States)),
		FailedStep: r.FailedStep,
		StartedAt:  r.StartedAt,
		UpdatedAt:  time.Now(),
	}
	for k, v := range r.States {
		state.Steps[k] = v
	}
	if r.Err != nil {
		state.ErrorKind = domain.ErrorKind(r.Err)
		state.Error = r.Err.Error()
	}
	return state
}

type eventKind int

const (
	eventRetrying eventKind = iota
	eventSubmitted
	eventFinished
)

// stepEvent is sent by a worker to the dispatcher. Workers never touch run
// state directly.
type stepEvent struct {
	kind       eventKind
	step       *domain.DeploymentStep
	submission domain.Submission
	receipt    *domain.Receipt
	attempts   int
	err        error
	next       time.Duration
}

// Execute runs the plan. The returned error is non-nil only when the run
// could not start; step failures are reported through the result.
func (uc *DeployPlan) Execute(ctx context.Context, params DeployParams) (*DeployResult, error) {
	plan := params.Plan
	if err := plan.Validate(); err != nil {
		return nil, domain.InvalidPlan(err)
	}

	parallelism := max(params.Parallelism, 1)
	policy := params.Retry
	if policy.Attempts == 0 {
		policy = DefaultRetryPolicy
	}

	result := &DeployResult{
		RunID:     uuid.NewString(),
		Plan:      plan,
		Network:   params.Network,
		Status:    domain.RunNotStarted,
		States:    make(domain.StepStates, len(plan.Steps)),
		DryRun:    params.DryRun,
		StartedAt: time.Now(),
	}
	if ci, ok := uc.provider.(ChainInfo); ok {
		result.ChainID = ci.ChainID()
	}
	for _, step := range plan.Steps {
		result.States[step.Name] = domain.StepPending
	}

	if params.Resume {
		if err := uc.seedFromPreviousRun(ctx, result); err != nil {
			return nil, fmt.Errorf("failed to resume: %w", err)
		}
	}

	uc.progress.OnProgress(ctx, ProgressEvent{
		Stage:    StagePlanLoaded,
		Total:    len(plan.Steps),
		Metadata: plan,
	})

	result.Status = domain.RunRunning
	uc.persist(ctx, result, params)
	uc.log.Info("run started", "run_id", result.RunID, "plan", plan.Name, "network", params.Network,
		"steps", len(plan.Steps), "parallelism", parallelism, "dry_run", params.DryRun)

	addresses := make(map[string]common.Address, len(plan.Steps))
	for _, rec := range result.Records {
		addresses[rec.Step] = rec.Address
	}

	// submitCtx stops submissions that have not gone out yet once the run halts
	submitCtx, stopSubmits := context.WithCancel(ctx)
	defer stopSubmits()

	events := make(chan stepEvent, parallelism*4)
	started := make(map[string]time.Time, len(plan.Steps))
	var g errgroup.Group
	g.SetLimit(parallelism)

	var (
		inflight  int
		halted    bool
		cancelled bool
		done      = ctx.Done()
	)

	halt := func(step string, err error) {
		if halted {
			uc.log.Warn("additional step failure after halt", "step", step, "error", err)
			return
		}
		halted = true
		stopSubmits()
		result.FailedStep = step
		result.Err = domain.NewStepError(step, err)
	}

	for {
		if !cancelled && ctx.Err() != nil {
			cancelled = true
			done = nil
		}

		for !halted && !cancelled && inflight < parallelism {
			step, err := uc.nextReady(plan, result.States, addresses)
			if err != nil {
				uc.skip(ctx, result, step)
				halt(step.Name, err)
				break
			}
			if step == nil {
				break
			}

			args, err := domain.ResolveReferences(step.ConstructorArgs, func(name string) (common.Address, bool) {
				addr, ok := addresses[name]
				return addr, ok
			})
			if err != nil {
				uc.skip(ctx, result, step)
				halt(step.Name, err)
				break
			}

			if err := result.States.Transition(step.Name, domain.StepPending, domain.StepSubmitting); err != nil {
				return nil, err
			}
			started[step.Name] = time.Now()
			inflight++

			uc.progress.OnProgress(ctx, ProgressEvent{
				Stage:   StageStepSubmitting,
				Step:    step.Name,
				Current: plan.Index(step.Name) + 1,
				Total:   len(plan.Steps),
				Message: step.Artifact.Name,
			})

			g.Go(func() error {
				uc.runStep(submitCtx, step, args, policy, events)
				return nil
			})
		}

		if inflight == 0 {
			break
		}

		select {
		case ev := <-events:
			switch ev.kind {
			case eventRetrying:
				uc.log.Warn("retrying step", "step", ev.step.Name, "attempt", ev.attempts, "next", ev.next, "error", ev.err)
				uc.progress.OnProgress(ctx, ProgressEvent{
					Stage:    StageStepRetrying,
					Step:     ev.step.Name,
					Message:  fmt.Sprintf("attempt %d failed: %v (retrying in %s)", ev.attempts, ev.err, ev.next.Round(time.Millisecond)),
					Metadata: ev.err,
				})

			case eventSubmitted:
				if err := result.States.Transition(ev.step.Name, domain.StepSubmitting, domain.StepConfirming); err != nil {
					return nil, err
				}
				uc.log.Debug("transaction submitted", "step", ev.step.Name, "tx", ev.submission.TxHash.Hex(), "nonce", ev.submission.Nonce)
				uc.progress.OnProgress(ctx, ProgressEvent{
					Stage:    StageStepSubmitted,
					Step:     ev.step.Name,
					Message:  ev.submission.TxHash.Hex(),
					Spinner:  true,
					Metadata: ev.submission,
				})

			case eventFinished:
				inflight--
				duration := time.Since(started[ev.step.Name])
				if ev.err != nil {
					from := result.States[ev.step.Name]
					if err := result.States.Transition(ev.step.Name, from, domain.StepFailed); err != nil {
						return nil, err
					}
					switch {
					case isContextError(ev.err) && ctx.Err() != nil:
						cancelled = true
						done = nil
						uc.log.Warn("step aborted by cancellation", "step", ev.step.Name, "error", ev.err)
					case isContextError(ev.err) && halted:
						uc.log.Info("step aborted after halt", "step", ev.step.Name, "error", ev.err)
					default:
						halt(ev.step.Name, ev.err)
					}
					uc.metrics.StepFinished(ev.step.Name, domain.StepFailed, ev.attempts, duration)
					uc.progress.OnProgress(ctx, ProgressEvent{
						Stage:    StageStepFailed,
						Step:     ev.step.Name,
						Message:  ev.err.Error(),
						Metadata: ev.err,
					})
					uc.persist(ctx, result, params)
					continue
				}

				if err := result.States.Transition(ev.step.Name, domain.StepConfirming, domain.StepSucceeded); err != nil {
					return nil, err
				}
				record := newRecord(ev)
				result.Records = append(result.Records, record)
				addresses[record.Step] = record.Address

				uc.log.Info("step succeeded", "step", record.Step, "address", record.Address.Hex(), "attempts", record.Attempts)
				uc.metrics.StepFinished(record.Step, domain.StepSucceeded, record.Attempts, duration)
				uc.progress.OnProgress(ctx, ProgressEvent{
					Stage:    StageStepSucceeded,
					Step:     record.Step,
					Current:  len(result.Records),
					Total:    len(plan.Steps),
					Message:  record.Address.Hex(),
					Metadata: record,
				})
				uc.persist(ctx, result, params)
			}

		case <-done:
			cancelled = true
			done = nil
			uc.log.Warn("run cancelled, waiting for submitted steps to confirm", "in_flight", inflight)
		}
	}

	_ = g.Wait()

	for _, step := range plan.Steps {
		if result.States[step.Name] == domain.StepPending {
			uc.skip(ctx, result, step)
		}
	}

	switch {
	case halted:
		result.Status = domain.RunHalted
	case cancelled:
		result.Status = domain.RunCancelled
		result.Err = fmt.Errorf("run cancelled: %w", context.Cause(ctx))
	default:
		result.Status = domain.RunCompleted
	}
	result.Duration = time.Since(result.StartedAt)

	uc.persist(ctx, result, params)
	uc.metrics.RunFinished(result.Status, result.Duration)
	uc.progress.OnProgress(ctx, ProgressEvent{
		Stage:    StageRunFinished,
		Current:  len(result.Records),
		Total:    len(plan.Steps),
		Metadata: result,
	})
	uc.log.Info("run finished", "run_id", result.RunID, "status", result.Status,
		"records", len(result.Records), "duration", result.Duration)

	return result, nil
}

// nextReady returns the first pending step, in plan order, whose
// dependencies have all succeeded. A pending step whose dependency ended
// without a record is returned with ErrDependencyUnmet.
func (uc *DeployPlan) nextReady(plan *domain.DeploymentPlan, states domain.StepStates, addresses map[string]common.Address) (*domain.DeploymentStep, error) {
	for _, step := range plan.Steps {
		if states[step.Name] != domain.StepPending {
			continue
		}
		ready := true
		for _, dep := range step.DependsOn {
			status := states[dep]
			if !status.IsTerminal() {
				ready = false
				break
			}
			if _, ok := addresses[dep]; status != domain.StepSucceeded || !ok {
				return step, fmt.Errorf("%w: %q has no successful deployment record", domain.ErrDependencyUnmet, dep)
			}
		}
		if ready {
			return step, nil
		}
	}
	return nil, nil
}

// runStep submits a step and waits for its confirmation. Submission
// observes ctx, which is cancelled on halt as well as on run cancellation;
// once a transaction is sent its confirmation is awaited on a context
// detached from cancellation.
func (uc *DeployPlan) runStep(ctx context.Context, step *domain.DeploymentStep, args []any, policy RetryPolicy, events chan<- stepEvent) {
	onRetry := func(attempt int, err error, next time.Duration) {
		events <- stepEvent{kind: eventRetrying, step: step, attempts: attempt, err: err, next: next}
	}

	sub, attempts, err := retry(ctx, policy, func(ctx context.Context) (domain.Submission, error) {
		return uc.provider.Deploy(ctx, step.Artifact, args)
	}, onRetry)
	if err != nil {
		events <- stepEvent{kind: eventFinished, step: step, attempts: attempts, err: exhausted(err, attempts)}
		return
	}
	events <- stepEvent{kind: eventSubmitted, step: step, submission: sub, attempts: attempts}

	confirmCtx := context.WithoutCancel(ctx)
	receipt, waits, err := retry(confirmCtx, policy, func(ctx context.Context) (*domain.Receipt, error) {
		return uc.provider.WaitForConfirmation(ctx, sub.TxHash)
	}, onRetry)
	if err != nil {
		err = exhausted(err, waits)
	}
	events <- stepEvent{kind: eventFinished, step: step, submission: sub, receipt: receipt, attempts: attempts, err: err}
}

func (uc *DeployPlan) skip(ctx context.Context, result *DeployResult, step *domain.DeploymentStep) {
	if err := result.States.Transition(step.Name, domain.StepPending, domain.StepSkipped); err != nil {
		uc.log.Error("failed to skip step", "step", step.Name, "error", err)
		return
	}
	uc.metrics.StepFinished(step.Name, domain.StepSkipped, 0, 0)
	uc.progress.OnProgress(ctx, ProgressEvent{Stage: StageStepSkipped, Step: step.Name})
}

func (uc *DeployPlan) seedFromPreviousRun(ctx context.Context, result *DeployResult) error {
	if uc.store == nil {
		return fmt.Errorf("no run state store configured")
	}
	prev, err := uc.store.Load(ctx, result.Plan.Name, result.Network)
	if err != nil {
		return err
	}
	if prev.Status == domain.RunCompleted {
		return fmt.Errorf("previous run %s of %q on %s already completed", prev.RunID, prev.Plan, prev.Network)
	}
	if prev.ChainID != 0 && result.ChainID != 0 && prev.ChainID != result.ChainID {
		return fmt.Errorf("previous run %s targeted chain %d, %s is chain %d", prev.RunID, prev.ChainID, result.Network, result.ChainID)
	}
	if prev.DryRun && !result.DryRun {
		return fmt.Errorf("previous run %s was a dry run", prev.RunID)
	}

	for _, rec := range prev.Records {
		step, ok := result.Plan.Step(rec.Step)
		if !ok {
			return fmt.Errorf("step %q from the previous run is no longer in the plan", rec.Step)
		}
		if step.Artifact.Name != rec.Artifact {
			return fmt.Errorf("step %q changed artifact from %s to %s", rec.Step, rec.Artifact, step.Artifact.Name)
		}
		result.States[rec.Step] = domain.StepSucceeded
		result.Records = append(result.Records, rec)
		result.Resumed = append(result.Resumed, rec.Step)
	}

	result.RunID = prev.RunID
	if !prev.StartedAt.IsZero() {
		result.StartedAt = prev.StartedAt
	}

	uc.progress.OnProgress(ctx, ProgressEvent{
		Stage:    StageRunResumed,
		Current:  len(result.Records),
		Total:    len(result.Plan.Steps),
		Metadata: result.Resumed,
	})
	uc.log.Info("resuming previous run", "run_id", prev.RunID, "completed_steps", len(result.Records))
	return nil
}

func (uc *DeployPlan) persist(ctx context.Context, result *DeployResult, params DeployParams) {
	if uc.store == nil || params.DryRun {
		return
	}
	if err := uc.store.Save(context.WithoutCancel(ctx), result.RunState(params.PlanPath)); err != nil {
		uc.log.Warn("failed to save run state", "run_id", result.RunID, "error", err)
	}
}

func newRecord(ev stepEvent) domain.DeploymentRecord {
	record := domain.DeploymentRecord{
		Step:        ev.step.Name,
		Artifact:    ev.step.Artifact.Name,
		Address:     ev.submission.Address,
		TxHash:      ev.submission.TxHash,
		Status:      domain.StepSucceeded,
		Attempts:    ev.attempts,
		ConfirmedAt: time.Now().UTC(),
	}
	if r := ev.receipt; r != nil {
		if r.ContractAddress != (common.Address{}) {
			record.Address = r.ContractAddress
		}
		record.BlockNumber = r.BlockNumber
		record.GasUsed = r.GasUsed
	}
	return record
}

// exhausted marks a still-retryable error as a deployment failure once no
// attempts remain.
func exhausted(err error, attempts int) error {
	if err == nil || !domain.IsRetryable(err) {
		return err
	}
	return fmt.Errorf("%w after %d attempts: %w", domain.ErrDeploymentFailed, attempts, err)
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
