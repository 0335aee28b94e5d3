package domain

import (
	"fmt"
	"regexp"
	"slices"

	"github.com/ethereum/go-ethereum/common"
)

var (
	stepNamePattern  = regexp.MustCompile(`^[A-Za-z0-9_\-]+$`)
	referencePattern = regexp.MustCompile(`^\$\{\s*([A-Za-z0-9_\-]+)(?:\.address)?\s*\}$`)
)

// PlanSpec is the authored form of a plan, as read from a plan file.
type PlanSpec struct {
	Name  string
	Steps []StepSpec
}

// StepSpec is the authored form of a single step.
type StepSpec struct {
	Name      string
	Artifact  string
	Args      []any
	DependsOn []string
}

// DeploymentStep is a single deployment in a plan.
type DeploymentStep struct {
	Name            string
	Artifact        *Artifact
	ConstructorArgs []any
	DependsOn       []string
}

// References returns the step names referenced from constructor arguments.
func (s *DeploymentStep) References() []string {
	var refs []string
	collectReferences(s.ConstructorArgs, &refs)
	return refs
}

// DeploymentPlan is an ordered, dependency-annotated list of steps. Every
// DependsOn entry refers to a step earlier in Steps.
type DeploymentPlan struct {
	Name  string
	Steps []*DeploymentStep

	index map[string]int
}

// NewDeploymentPlan validates the steps and orders them so that every step
// comes after its dependencies. Authoring order is kept wherever the
// dependencies allow it.
func NewDeploymentPlan(name string, steps []*DeploymentStep) (*DeploymentPlan, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: plan name is required", ErrInvalidPlan)
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("%w: at least one step is required", ErrInvalidPlan)
	}

	byName := make(map[string]*DeploymentStep, len(steps))
	for _, step := range steps {
		if !stepNamePattern.MatchString(step.Name) {
			return nil, fmt.Errorf("%w: step name %q must match %s", ErrInvalidPlan, step.Name, stepNamePattern)
		}
		if _, dup := byName[step.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate step %q", ErrInvalidPlan, step.Name)
		}
		byName[step.Name] = step
	}

	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if dep == step.Name {
				return nil, NewStepError(step.Name, fmt.Errorf("%w: step cannot depend on itself", ErrDependencyUnmet))
			}
			if _, ok := byName[dep]; !ok {
				return nil, NewStepError(step.Name, fmt.Errorf("%w: depends on undeclared step %q", ErrDependencyUnmet, dep))
			}
		}
		for _, ref := range step.References() {
			if !slices.Contains(step.DependsOn, ref) {
				return nil, NewStepError(step.Name, fmt.Errorf("%w: argument references %q which is not listed in depends_on", ErrDependencyUnmet, ref))
			}
		}
	}

	ordered, err := stableTopologicalSort(steps)
	if err != nil {
		return nil, err
	}

	plan := &DeploymentPlan{Name: name, Steps: ordered}
	plan.reindex()
	return plan, nil
}

// stableTopologicalSort performs Kahn's algorithm, always picking the
// earliest authored step among those whose dependencies are satisfied.
func stableTopologicalSort(steps []*DeploymentStep) ([]*DeploymentStep, error) {
	placed := make(map[string]bool, len(steps))
	result := make([]*DeploymentStep, 0, len(steps))

	for len(result) < len(steps) {
		progressed := false
		for _, step := range steps {
			if placed[step.Name] {
				continue
			}
			ready := true
			for _, dep := range step.DependsOn {
				if !placed[dep] {
					ready = false
					break
				}
			}
			if ready {
				placed[step.Name] = true
				result = append(result, step)
				progressed = true
				break
			}
		}
		if !progressed {
			var cycle []string
			for _, step := range steps {
				if !placed[step.Name] {
					cycle = append(cycle, step.Name)
				}
			}
			return nil, fmt.Errorf("%w: circular dependency detected involving steps: %v", ErrDependencyUnmet, cycle)
		}
	}

	return result, nil
}

func (p *DeploymentPlan) reindex() {
	p.index = make(map[string]int, len(p.Steps))
	for i, step := range p.Steps {
		p.index[step.Name] = i
	}
}

// Validate checks the ordering invariant: every dependency names an earlier
// step. A plan that passes cannot contain a cycle.
func (p *DeploymentPlan) Validate() error {
	if p == nil || len(p.Steps) == 0 {
		return fmt.Errorf("%w: empty plan", ErrInvalidPlan)
	}
	if p.index == nil || len(p.index) != len(p.Steps) {
		p.reindex()
	}
	if len(p.index) != len(p.Steps) {
		return fmt.Errorf("%w: duplicate step names", ErrInvalidPlan)
	}
	for i, step := range p.Steps {
		for _, dep := range step.DependsOn {
			j, ok := p.index[dep]
			if !ok {
				return NewStepError(step.Name, fmt.Errorf("%w: depends on undeclared step %q", ErrDependencyUnmet, dep))
			}
			if j >= i {
				return NewStepError(step.Name, fmt.Errorf("%w: depends on %q which is not ordered before it", ErrDependencyUnmet, dep))
			}
		}
	}
	return nil
}

// Step returns the named step.
func (p *DeploymentPlan) Step(name string) (*DeploymentStep, bool) {
	if p.index == nil {
		p.reindex()
	}
	i, ok := p.index[name]
	if !ok {
		return nil, false
	}
	return p.Steps[i], true
}

// Index returns the position of the named step, or -1.
func (p *DeploymentPlan) Index(name string) int {
	if p.index == nil {
		p.reindex()
	}
	if i, ok := p.index[name]; ok {
		return i
	}
	return -1
}

// StepNames returns step names in plan order.
func (p *DeploymentPlan) StepNames() []string {
	names := make([]string, len(p.Steps))
	for i, step := range p.Steps {
		names[i] = step.Name
	}
	return names
}

// ParseReference extracts the step name from "${Step}" or "${Step.address}".
func ParseReference(value string) (string, bool) {
	m := referencePattern.FindStringSubmatch(value)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func collectReferences(values []any, refs *[]string) {
	for _, v := range values {
		switch val := v.(type) {
		case string:
			if name, ok := ParseReference(val); ok && !slices.Contains(*refs, name) {
				*refs = append(*refs, name)
			}
		case []any:
			collectReferences(val, refs)
		}
	}
}

// ResolveReferences returns a copy of args with every step reference
// replaced by the hex address returned from lookup.
func ResolveReferences(args []any, lookup func(step string) (common.Address, bool)) ([]any, error) {
	if args == nil {
		return nil, nil
	}
	out := make([]any, len(args))
	for i, v := range args {
		switch val := v.(type) {
		case string:
			name, ok := ParseReference(val)
			if !ok {
				out[i] = val
				continue
			}
			addr, found := lookup(name)
			if !found {
				return nil, fmt.Errorf("%w: no deployed address for %q", ErrDependencyUnmet, name)
			}
			out[i] = addr.Hex()
		case []any:
			nested, err := ResolveReferences(val, lookup)
			if err != nil {
				return nil, err
			}
			out[i] = nested
		default:
			out[i] = v
		}
	}
	return out, nil
}
