package app

import (
	"log/slog"

	"github.com/trebuchet-org/treb-deploy/internal/adapters/metrics"
	"github.com/trebuchet-org/treb-deploy/internal/domain/config"
	"github.com/trebuchet-org/treb-deploy/internal/usecase"
)

// Planner holds what is needed to load and validate plans without touching a network
type Planner struct {
	Config   *config.RuntimeConfig
	Log      *slog.Logger
	LoadPlan *usecase.LoadPlan
}

// NewPlanner creates a new planner instance
func NewPlanner(cfg *config.RuntimeConfig, log *slog.Logger, loadPlan *usecase.LoadPlan) *Planner {
	return &Planner{
		Config:   cfg,
		Log:      log,
		LoadPlan: loadPlan,
	}
}

// App is the main application container that holds all use cases
type App struct {
	// Configuration
	Config *config.RuntimeConfig
	Log    *slog.Logger

	// Use cases
	LoadPlan   *usecase.LoadPlan
	DeployPlan *usecase.DeployPlan

	// Metrics are written out by the CLI once the run is over
	Metrics *metrics.Collector

	// Confirmer gates runs against remote networks
	Confirmer usecase.RunConfirmer
}

// NewApp creates a new application instance with all use cases
func NewApp(
	cfg *config.RuntimeConfig,
	log *slog.Logger,
	loadPlan *usecase.LoadPlan,
	deployPlan *usecase.DeployPlan,
	collector *metrics.Collector,
	confirmer usecase.RunConfirmer,
) *App {
	return &App{
		Config:     cfg,
		Log:        log,
		LoadPlan:   loadPlan,
		DeployPlan: deployPlan,
		Metrics:    collector,
		Confirmer:  confirmer,
	}
}
