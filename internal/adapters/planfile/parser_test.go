package planfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trebuchet-org/treb-deploy/internal/domain"
)

func TestParser_Parse(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		want    *domain.PlanSpec
		wantErr string
	}{
		{
			name: "full plan",
			yaml: `
name: Token System
steps:
  - name: Token
    artifact: src/Token.sol:Token
    args: ["Token", "TKN", 1000000]
  - name: Vault
    args: ["${Token.address}", [1, 2]]
    depends_on: [Token]
`,
			want: &domain.PlanSpec{
				Name: "Token System",
				Steps: []domain.StepSpec{
					{Name: "Token", Artifact: "src/Token.sol:Token", Args: []any{"Token", "TKN", 1000000}},
					{Name: "Vault", Artifact: "Vault", Args: []any{"${Token.address}", []any{1, 2}}, DependsOn: []string{"Token"}},
				},
			},
		},
		{
			name: "no steps",
			yaml: "name: empty\n",
			want: &domain.PlanSpec{Name: "empty", Steps: []domain.StepSpec{}},
		},
		{
			name:    "unknown field",
			yaml:    "name: x\nsteps:\n  - name: A\n    dependsOn: [B]\n",
			wantErr: "field dependsOn not found",
		},
		{
			name:    "missing step name",
			yaml:    "steps:\n  - artifact: Token\n",
			wantErr: "step 1: name is required",
		},
		{
			name:    "mapping argument",
			yaml:    "steps:\n  - name: A\n    args: [{a: 1}]\n",
			wantErr: "mappings are not supported",
		},
		{
			name:    "empty document",
			yaml:    "",
			wantErr: "plan file is empty",
		},
		{
			name:    "malformed",
			yaml:    "steps: [",
			wantErr: "failed to parse YAML",
		},
	}

	p := NewParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Parse([]byte(tt.yaml))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParser_ReadPlan(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	p := NewParser()

	t.Run("name defaults to file name", func(t *testing.T) {
		path := filepath.Join(dir, "core-system.yaml")
		require.NoError(t, os.WriteFile(path, []byte("steps:\n  - name: Token\n"), 0o644))

		spec, err := p.ReadPlan(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, "core-system", spec.Name)
		require.Len(t, spec.Steps, 1)
		assert.Equal(t, "Token", spec.Steps[0].Artifact)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := p.ReadPlan(ctx, filepath.Join(dir, "missing.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "plan file not found")
	})

	t.Run("errors carry the file name", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("steps:\n  - args: []\n"), 0o644))

		_, err := p.ReadPlan(ctx, path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bad.yaml: step 1")
	})
}
