package planfile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/trebuchet-org/treb-deploy/internal/domain"
	"github.com/trebuchet-org/treb-deploy/internal/usecase"
)

// planFile is the YAML layout of a plan
type planFile struct {
	Name  string     `yaml:"name"`
	Steps []stepFile `yaml:"steps"`
}

type stepFile struct {
	Name      string   `yaml:"name"`
	Artifact  string   `yaml:"artifact,omitempty"`
	Args      []any    `yaml:"args,omitempty"`
	DependsOn []string `yaml:"depends_on,omitempty"`
}

// Parser reads plan files
type Parser struct{}

// NewParser creates a new plan file parser
func NewParser() *Parser {
	return &Parser{}
}

// ReadPlan parses the plan file at path
func (p *Parser) ReadPlan(ctx context.Context, path string) (*domain.PlanSpec, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("plan file not found: %s", absPath)
		}
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}

	spec, err := p.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(absPath), err)
	}

	if spec.Name == "" {
		base := filepath.Base(absPath)
		spec.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return spec, nil
}

// Parse decodes plan YAML. Unknown keys are rejected.
func (p *Parser) Parse(data []byte) (*domain.PlanSpec, error) {
	var file planFile

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("plan file is empty")
		}
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	spec := &domain.PlanSpec{
		Name:  strings.TrimSpace(file.Name),
		Steps: make([]domain.StepSpec, 0, len(file.Steps)),
	}
	for i, step := range file.Steps {
		name := strings.TrimSpace(step.Name)
		if name == "" {
			return nil, fmt.Errorf("step %d: name is required", i+1)
		}
		artifact := strings.TrimSpace(step.Artifact)
		if artifact == "" {
			artifact = name
		}
		args, err := normalizeArgs(step.Args)
		if err != nil {
			return nil, fmt.Errorf("step %q: %w", name, err)
		}
		spec.Steps = append(spec.Steps, domain.StepSpec{
			Name:      name,
			Artifact:  artifact,
			Args:      args,
			DependsOn: step.DependsOn,
		})
	}

	return spec, nil
}

// normalizeArgs rejects YAML mappings, which have no constructor argument equivalent.
func normalizeArgs(args []any) ([]any, error) {
	for i, arg := range args {
		switch v := arg.(type) {
		case map[string]any:
			return nil, fmt.Errorf("argument %d: mappings are not supported, use a list", i)
		case []any:
			if _, err := normalizeArgs(v); err != nil {
				return nil, fmt.Errorf("argument %d: %w", i, err)
			}
		}
	}
	return args, nil
}

var _ usecase.PlanReader = (*Parser)(nil)
