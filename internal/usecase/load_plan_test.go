package usecase_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/trebuchet-org/treb-deploy/internal/domain"
	"github.com/trebuchet-org/treb-deploy/internal/usecase"
)

// MockPlanReader is a mock implementation of PlanReader
type MockPlanReader struct {
	mock.Mock
}

func (m *MockPlanReader) ReadPlan(ctx context.Context, path string) (*domain.PlanSpec, error) {
	args := m.Called(ctx, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PlanSpec), args.Error(1)
}

// MockEncoder is a mock implementation of ArgumentEncoder
type MockEncoder struct {
	mock.Mock
}

func (m *MockEncoder) EncodeConstructor(artifact *domain.Artifact, args []any) ([]byte, error) {
	ret := m.Called(artifact, args)
	if ret.Get(0) == nil {
		return nil, ret.Error(1)
	}
	return ret.Get(0).([]byte), ret.Error(1)
}

// mapArtifacts resolves artifact references from a map.
type mapArtifacts struct {
	artifacts map[string]*domain.Artifact
	requested []string
}

func (r *mapArtifacts) GetArtifact(_ context.Context, ref string) (*domain.Artifact, error) {
	r.requested = append(r.requested, ref)
	if a, ok := r.artifacts[ref]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrArtifactNotFound, ref)
}

func newArtifacts(names ...string) *mapArtifacts {
	r := &mapArtifacts{artifacts: make(map[string]*domain.Artifact)}
	for _, n := range names {
		r.artifacts[n] = &domain.Artifact{Name: n, Bytecode: []byte{0x60, 0x00}}
	}
	return r
}

func TestLoadPlan(t *testing.T) {
	ctx := context.Background()

	t.Run("normalizes order and checks arguments", func(t *testing.T) {
		reader := new(MockPlanReader)
		reader.On("ReadPlan", ctx, "plans/system.yaml").Return(&domain.PlanSpec{
			Name: "system",
			Steps: []domain.StepSpec{
				{Name: "Vault", Artifact: "Vault", Args: []any{"${Token.address}"}, DependsOn: []string{"Token"}},
				{Name: "Token", Artifact: "Token", Args: []any{"Token", "TKN"}},
			},
		}, nil)

		encoder := new(MockEncoder)
		encoder.On("EncodeConstructor", mock.Anything, []any{"0x0000000000000000000000000000000000000000"}).Return([]byte{0x01}, nil).Once()
		encoder.On("EncodeConstructor", mock.Anything, []any{"Token", "TKN"}).Return([]byte{0x02}, nil).Once()

		uc := usecase.NewLoadPlan(reader, newArtifacts("Token", "Vault"), encoder, discardLogger())
		plan, err := uc.Load(ctx, "plans/system.yaml")
		require.NoError(t, err)

		assert.Equal(t, "system", plan.Name)
		assert.Equal(t, []string{"Token", "Vault"}, plan.StepNames())
		assert.NoError(t, plan.Validate())
		encoder.AssertExpectations(t)
	})

	t.Run("artifact json paths are relative to the plan", func(t *testing.T) {
		reader := new(MockPlanReader)
		reader.On("ReadPlan", ctx, filepath.Join("deploy", "plan.yaml")).Return(&domain.PlanSpec{
			Name:  "paths",
			Steps: []domain.StepSpec{{Name: "Token", Artifact: "artifacts/Token.json"}},
		}, nil)

		artifacts := newArtifacts(filepath.Join("deploy", "artifacts", "Token.json"))
		encoder := new(MockEncoder)
		encoder.On("EncodeConstructor", mock.Anything, mock.Anything).Return([]byte{}, nil)

		uc := usecase.NewLoadPlan(reader, artifacts, encoder, discardLogger())
		_, err := uc.Load(ctx, filepath.Join("deploy", "plan.yaml"))
		require.NoError(t, err)
		assert.Equal(t, []string{filepath.Join("deploy", "artifacts", "Token.json")}, artifacts.requested)
	})

	tests := []struct {
		name     string
		spec     *domain.PlanSpec
		readErr  error
		encErr   error
		wantIs   []error
		wantText string
	}{
		{
			name:    "unreadable file",
			readErr: fmt.Errorf("yaml: line 3: mapping values are not allowed in this context"),
			wantIs:  []error{domain.ErrInvalidPlan},
		},
		{
			name:     "unknown artifact",
			spec:     &domain.PlanSpec{Name: "p", Steps: []domain.StepSpec{{Name: "Tokn", Artifact: "Tokn"}}},
			wantIs:   []error{domain.ErrInvalidPlan, domain.ErrArtifactNotFound},
			wantText: `step "Tokn"`,
		},
		{
			name: "undeclared dependency",
			spec: &domain.PlanSpec{Name: "p", Steps: []domain.StepSpec{
				{Name: "Token", Artifact: "Token", DependsOn: []string{"Registry"}},
			}},
			wantIs:   []error{domain.ErrInvalidPlan, domain.ErrDependencyUnmet},
			wantText: `undeclared step "Registry"`,
		},
		{
			name: "reference without dependency",
			spec: &domain.PlanSpec{Name: "p", Steps: []domain.StepSpec{
				{Name: "Token", Artifact: "Token"},
				{Name: "Vault", Artifact: "Vault", Args: []any{"${Token}"}},
			}},
			wantIs: []error{domain.ErrInvalidPlan, domain.ErrDependencyUnmet},
		},
		{
			name: "cycle",
			spec: &domain.PlanSpec{Name: "p", Steps: []domain.StepSpec{
				{Name: "Token", Artifact: "Token", DependsOn: []string{"Vault"}},
				{Name: "Vault", Artifact: "Vault", DependsOn: []string{"Token"}},
			}},
			wantIs:   []error{domain.ErrInvalidPlan, domain.ErrDependencyUnmet},
			wantText: "circular dependency",
		},
		{
			name:     "argument mismatch",
			spec:     &domain.PlanSpec{Name: "p", Steps: []domain.StepSpec{{Name: "Token", Artifact: "Token", Args: []any{1, 2}}}},
			encErr:   fmt.Errorf("%w: constructor takes 1 argument, got 2", domain.ErrArgumentMismatch),
			wantIs:   []error{domain.ErrInvalidPlan, domain.ErrArgumentMismatch},
			wantText: `step "Token"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := new(MockPlanReader)
			if tt.readErr != nil {
				reader.On("ReadPlan", mock.Anything, "plan.yaml").Return(nil, tt.readErr)
			} else {
				reader.On("ReadPlan", mock.Anything, "plan.yaml").Return(tt.spec, nil)
			}

			encoder := new(MockEncoder)
			if tt.encErr != nil {
				encoder.On("EncodeConstructor", mock.Anything, mock.Anything).Return(nil, tt.encErr)
			}

			uc := usecase.NewLoadPlan(reader, newArtifacts("Token", "Vault"), encoder, discardLogger())
			plan, err := uc.Load(ctx, "plan.yaml")
			require.Error(t, err)
			assert.Nil(t, plan)
			for _, target := range tt.wantIs {
				assert.ErrorIs(t, err, target)
			}
			if tt.wantText != "" {
				assert.Contains(t, err.Error(), tt.wantText)
			}
			if tt.encErr == nil {
				encoder.AssertNotCalled(t, "EncodeConstructor", mock.Anything, mock.Anything)
			}
		})
	}
}
