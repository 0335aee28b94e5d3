package usecase

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/trebuchet-org/treb-deploy/internal/domain"
)

// LoadPlan reads a plan file, resolves its artifacts and validates it.
type LoadPlan struct {
	reader    PlanReader
	artifacts ArtifactRepository
	encoder   ArgumentEncoder
	log       *slog.Logger
}

// NewLoadPlan creates a new LoadPlan use case
func NewLoadPlan(reader PlanReader, artifacts ArtifactRepository, encoder ArgumentEncoder, log *slog.Logger) *LoadPlan {
	return &LoadPlan{
		reader:    reader,
		artifacts: artifacts,
		encoder:   encoder,
		log:       log.With("component", "LoadPlan"),
	}
}

// Load returns a validated plan in dependency order. Every error it returns
// is an authoring error and matches domain.ErrInvalidPlan.
func (uc *LoadPlan) Load(ctx context.Context, path string) (*domain.DeploymentPlan, error) {
	doc, err := uc.reader.ReadPlan(ctx, path)
	if err != nil {
		return nil, domain.InvalidPlan(err)
	}

	planDir := filepath.Dir(path)
	steps := make([]*domain.DeploymentStep, 0, len(doc.Steps))
	for _, s := range doc.Steps {
		ref := s.Artifact
		if strings.HasSuffix(ref, ".json") && !filepath.IsAbs(ref) {
			ref = filepath.Join(planDir, ref)
		}

		artifact, err := uc.artifacts.GetArtifact(ctx, ref)
		if err != nil {
			return nil, domain.InvalidPlan(domain.NewStepError(s.Name, err))
		}
		uc.log.Debug("resolved artifact", "step", s.Name, "artifact", artifact.Name, "path", artifact.Path)

		steps = append(steps, &domain.DeploymentStep{
			Name:            s.Name,
			Artifact:        artifact,
			ConstructorArgs: s.Args,
			DependsOn:       s.DependsOn,
		})
	}

	plan, err := domain.NewDeploymentPlan(doc.Name, steps)
	if err != nil {
		return nil, domain.InvalidPlan(err)
	}

	if err := uc.checkArguments(plan); err != nil {
		return nil, domain.InvalidPlan(err)
	}

	return plan, nil
}

// checkArguments encodes every step with placeholder addresses so that
// argument mismatches surface before anything is submitted.
func (uc *LoadPlan) checkArguments(plan *domain.DeploymentPlan) error {
	placeholder := func(string) (common.Address, bool) { return common.Address{}, true }
	for _, step := range plan.Steps {
		args, err := domain.ResolveReferences(step.ConstructorArgs, placeholder)
		if err != nil {
			return domain.NewStepError(step.Name, err)
		}
		if _, err := uc.encoder.EncodeConstructor(step.Artifact, args); err != nil {
			return domain.NewStepError(step.Name, err)
		}
	}
	return nil
}
