//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"PairPulse/pkg/config"
	"PairPulse/pkg/server"
)

// InitializeApp wires every dependency and returns the application.
// Wire generates the implementation in wire_gen.go.
func InitializeApp(ctx context.Context, cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetrics,

		// Storage and caches
		ProvideTickBuffer,
		ProvideTickStore,
		ProvideBatchWriter,
		ProvideCache,
		ProvideSnapshotCache,
		ProvideArchive,
		ProvideSnapshotPublisher,

		// Use cases
		ProvideOrchestrator,
		ProvideHistory,
		ProvideTickIngestor,
		ProvideTickCollector,
		ProvideKafkaConsumer,

		// Transport
		ProvideAnalyticsHandler,
		ProvideHTTPServer,

		ProvideApp,
	)
	return &server.App{}, nil
}
