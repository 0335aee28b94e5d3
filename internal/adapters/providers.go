package adapters

import (
	"github.com/google/wire"

	"github.com/trebuchet-org/treb-deploy/internal/adapters/abi"
	"github.com/trebuchet-org/treb-deploy/internal/adapters/blockchain"
	"github.com/trebuchet-org/treb-deploy/internal/adapters/fs"
	"github.com/trebuchet-org/treb-deploy/internal/adapters/interactive"
	"github.com/trebuchet-org/treb-deploy/internal/adapters/metrics"
	"github.com/trebuchet-org/treb-deploy/internal/adapters/planfile"
	"github.com/trebuchet-org/treb-deploy/internal/adapters/repository/contracts"
	"github.com/trebuchet-org/treb-deploy/internal/usecase"
)

// PlanSet provides everything needed to read and validate a plan
var PlanSet = wire.NewSet(
	planfile.NewParser,
	wire.Bind(new(usecase.PlanReader), new(*planfile.Parser)),

	contracts.NewRepository,
	wire.Bind(new(usecase.ArtifactRepository), new(*contracts.Repository)),

	abi.NewEncoder,
	wire.Bind(new(usecase.ArgumentEncoder), new(*abi.Encoder)),
)

// FSSet provides filesystem-based implementations
var FSSet = wire.NewSet(
	fs.NewRunStateStoreAdapter,
	wire.Bind(new(usecase.RunStateStore), new(*fs.RunStateStoreAdapter)),
)

// BlockchainSet provides the deployment provider selected by configuration
var BlockchainSet = wire.NewSet(
	blockchain.ProvideProvider,
)

// MetricsSet provides the prometheus collector
var MetricsSet = wire.NewSet(
	metrics.NewCollector,
	wire.Bind(new(usecase.MetricsRecorder), new(*metrics.Collector)),
)

// InteractiveSet provides the operator confirmation prompt
var InteractiveSet = wire.NewSet(
	interactive.NewPrompterAdapter,
	wire.Bind(new(usecase.RunConfirmer), new(*interactive.PrompterAdapter)),
)

// AllAdapters includes all adapter sets
var AllAdapters = wire.NewSet(
	PlanSet,
	FSSet,
	BlockchainSet,
	MetricsSet,
	InteractiveSet,
)
