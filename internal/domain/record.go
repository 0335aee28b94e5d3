package domain

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// StepStatus is the lifecycle state of a single step within a run.
type StepStatus string

const (
	StepPending    StepStatus = "PENDING"
	StepSubmitting StepStatus = "SUBMITTING"
	StepConfirming StepStatus = "CONFIRMING"
	StepSucceeded  StepStatus = "SUCCEEDED"
	StepFailed     StepStatus = "FAILED"
	StepSkipped    StepStatus = "SKIPPED"
)

// IsTerminal reports whether no further transition is possible.
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StepSucceeded, StepFailed, StepSkipped:
		return true
	default:
		return false
	}
}

// CanTransition reports whether a step may move from one status to another.
//
//	Pending -> Submitting -> Confirming -> Succeeded
//	Submitting, Confirming -> Failed
//	Pending -> Skipped (never dispatched)
func CanTransition(from, to StepStatus) bool {
	switch from {
	case StepPending:
		return to == StepSubmitting || to == StepSkipped
	case StepSubmitting:
		return to == StepConfirming || to == StepFailed
	case StepConfirming:
		return to == StepSucceeded || to == StepFailed
	default:
		return false
	}
}

// StepStates tracks the status of every step in a run.
type StepStates map[string]StepStatus

// Transition moves step from its expected current status to the next one.
func (s StepStates) Transition(step string, from, to StepStatus) error {
	cur, ok := s[step]
	if !ok {
		return fmt.Errorf("unknown step %q", step)
	}
	if cur != from {
		return fmt.Errorf("invalid transition for %q: expected %s, got %s", step, from, cur)
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("disallowed transition for %q: %s -> %s", step, from, to)
	}
	s[step] = to
	return nil
}

// RunStatus is the lifecycle state of a plan execution.
type RunStatus string

const (
	RunNotStarted RunStatus = "NOT_STARTED"
	RunRunning    RunStatus = "RUNNING"
	RunCompleted  RunStatus = "COMPLETED"
	RunHalted     RunStatus = "HALTED"
	RunCancelled  RunStatus = "CANCELLED"
)

// Submission is what the provider hands back once a deployment transaction
// has been sent.
type Submission struct {
	Address common.Address
	TxHash  common.Hash
	Nonce   uint64
}

// Receipt is the confirmed outcome of a deployment transaction.
type Receipt struct {
	TxHash          common.Hash
	ContractAddress common.Address
	BlockNumber     uint64
	GasUsed         uint64
}

// DeploymentRecord is the immutable outcome of one successful step.
type DeploymentRecord struct {
	Step        string         `json:"step"`
	Artifact    string         `json:"artifact"`
	Address     common.Address `json:"address"`
	TxHash      common.Hash    `json:"tx_hash"`
	Status      StepStatus     `json:"status"`
	BlockNumber uint64         `json:"block_number,omitempty"`
	GasUsed     uint64         `json:"gas_used,omitempty"`
	Attempts    int            `json:"attempts"`
	ConfirmedAt time.Time      `json:"confirmed_at"`
}

// RunState is the persisted view of a run, used for resume and result files.
type RunState struct {
	RunID      string             `json:"run_id"`
	Plan       string             `json:"plan"`
	PlanPath   string             `json:"plan_path,omitempty"`
	Network    string             `json:"network"`
	ChainID    uint64             `json:"chain_id,omitempty"`
	DryRun     bool               `json:"dry_run,omitempty"`
	Status     RunStatus          `json:"status"`
	Records    []DeploymentRecord `json:"records"`
	Steps      StepStates         `json:"steps,omitempty"`
	FailedStep string             `json:"failed_step,omitempty"`
	ErrorKind  string             `json:"error_kind,omitempty"`
	Error      string             `json:"error,omitempty"`
	StartedAt  time.Time          `json:"started_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// Record returns the record for step, if one exists.
func (s *RunState) Record(step string) (DeploymentRecord, bool) {
	for _, r := range s.Records {
		if r.Step == step {
			return r, true
		}
	}
	return DeploymentRecord{}, false
}
