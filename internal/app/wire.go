//go:build wireinject
// +build wireinject

package app

import (
	"github.com/google/wire"
	"github.com/spf13/viper"

	"github.com/trebuchet-org/treb-deploy/internal/adapters"
	"github.com/trebuchet-org/treb-deploy/internal/config"
	"github.com/trebuchet-org/treb-deploy/internal/logging"
	"github.com/trebuchet-org/treb-deploy/internal/usecase"
)

// InitApp creates a fully wired App instance. The cleanup closes the
// provider connection.
func InitApp(v *viper.Viper, sink usecase.ProgressSink) (*App, func(), error) {
	wire.Build(
		config.Provider,
		logging.LoggingSet,

		// Adapters
		adapters.AllAdapters,

		// Use cases
		usecase.NewLoadPlan,
		usecase.NewDeployPlan,

		// App
		NewApp,
	)
	return nil, nil, nil
}

// InitPlanner creates a Planner, which never connects to a network.
func InitPlanner(v *viper.Viper) (*Planner, error) {
	wire.Build(
		config.Provider,
		logging.LoggingSet,
		adapters.PlanSet,
		usecase.NewLoadPlan,
		NewPlanner,
	)
	return nil, nil
}
