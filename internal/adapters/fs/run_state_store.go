package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/trebuchet-org/treb-deploy/internal/domain"
	"github.com/trebuchet-org/treb-deploy/internal/domain/config"
	"github.com/trebuchet-org/treb-deploy/internal/usecase"
)

var unsafeChars = regexp.MustCompile(`[^a-z0-9]+`)

// RunStateStoreAdapter implements RunStateStore using one JSON file per
// plan and network.
type RunStateStoreAdapter struct {
	stateDir string
}

// NewRunStateStoreAdapter creates a new RunStateStoreAdapter
func NewRunStateStoreAdapter(cfg *config.RuntimeConfig) *RunStateStoreAdapter {
	return &RunStateStoreAdapter{stateDir: cfg.StateDir}
}

// Path returns the state file used for plan on network.
func (s *RunStateStoreAdapter) Path(plan, network string) string {
	return filepath.Join(s.stateDir, fmt.Sprintf("deploy-%s-%s.json", slug(plan), slug(network)))
}

// Load reads the last saved state for plan on network.
func (s *RunStateStoreAdapter) Load(_ context.Context, plan, network string) (*domain.RunState, error) {
	path := s.Path(plan, network)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no previous run of %q on %s: %w", plan, network, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read run state file: %w", err)
	}

	var state domain.RunState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse run state file %s: %w", path, err)
	}
	if state.Plan != plan || state.Network != network {
		return nil, fmt.Errorf("run state file %s belongs to %q on %s", path, state.Plan, state.Network)
	}

	return &state, nil
}

// Save writes the state, replacing any previous file atomically.
func (s *RunStateStoreAdapter) Save(_ context.Context, state *domain.RunState) error {
	return writeJSONAtomic(s.Path(state.Plan, state.Network), state)
}

// Delete removes the state file for plan on network.
func (s *RunStateStoreAdapter) Delete(_ context.Context, plan, network string) error {
	err := os.Remove(s.Path(plan, network))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete run state file: %w", err)
	}
	return nil
}

func slug(s string) string {
	s = unsafeChars.ReplaceAllString(strings.ToLower(s), "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "default"
	}
	return s
}

// Ensure RunStateStoreAdapter implements RunStateStore
var _ usecase.RunStateStore = (*RunStateStoreAdapter)(nil)
