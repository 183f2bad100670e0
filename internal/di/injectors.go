//go:build wireinject
// +build wireinject

package di

import (
	wire "github.com/google/wire"
	"pvz/internal"
	"pvz/internal/archive"
	"pvz/internal/controllers"
	"pvz/internal/nostr"
	"pvz/internal/providers"
	"pvz/internal/services"
	"pvz/internal/structures"
	"pvz/internal/zombie"
)

var scanSet = wire.NewSet(
	providers.NewConfigProvider,
	providers.NewLogProvider,
	providers.NewMetricsProvider,
	providers.NewInstrumentedCacheProvider,

	nostr.NewPool,
	wire.Bind(new(nostr.Querier), new(*nostr.Pool)),
	nostr.NewDirectory,
	wire.Bind(new(zombie.RelayListSource), new(*nostr.Directory)),
	wire.Bind(new(services.Directory), new(*nostr.Directory)),

	zombie.NewSystemClock,
	zombie.NewConfiguredCollector,
	wire.Bind(new(services.ActivityCollector), new(*zombie.Collector)),
	zombie.NewClassifier,

	services.NewConfigThresholds,
	services.NewScanService,
)

func InitApp(cfg *structures.CliFlags) (*internal.App, error) {

	wire.Build(
		scanSet,
		archive.NewZstdCompressor,
		archive.NewFileManager,
		archive.NewScheduler,
		controllers.NewScanController,
		controllers.NewHealthController,
		internal.InitRoutes,
		internal.NewApp,
	)

	return nil, nil
}

func InitRuntime(cfg *structures.CliFlags) (*Runtime, error) {

	wire.Build(
		scanSet,
		wire.Struct(new(Runtime), "*"),
	)

	return nil, nil
}
