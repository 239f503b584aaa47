package di

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"go.uber.org/zap"

	"github.com/colinxr/notion-graph-view-sub001/internal/application/cachesync"
	"github.com/colinxr/notion-graph-view-sub001/internal/application/extraction"
	graphapp "github.com/colinxr/notion-graph-view-sub001/internal/application/graph"
	"github.com/colinxr/notion-graph-view-sub001/internal/application/handlers"
	"github.com/colinxr/notion-graph-view-sub001/internal/application/ingest"
	"github.com/colinxr/notion-graph-view-sub001/internal/config"
	"github.com/colinxr/notion-graph-view-sub001/internal/domain/backlink"
	apperrors "github.com/colinxr/notion-graph-view-sub001/internal/errors"
	"github.com/colinxr/notion-graph-view-sub001/internal/infrastructure/cache"
	"github.com/colinxr/notion-graph-view-sub001/internal/infrastructure/events"
	"github.com/colinxr/notion-graph-view-sub001/internal/infrastructure/messaging"
	"github.com/colinxr/notion-graph-view-sub001/internal/infrastructure/observability"
	"github.com/colinxr/notion-graph-view-sub001/internal/interfaces/http/rest"
	"github.com/colinxr/notion-graph-view-sub001/internal/repository"
	"github.com/colinxr/notion-graph-view-sub001/internal/repository/ddb"
	"github.com/colinxr/notion-graph-view-sub001/internal/repository/memory"
	"github.com/colinxr/notion-graph-view-sub001/internal/repository/sqlite"
)

// HandlerTable is the registration table after it was applied to the bus.
type HandlerTable []events.Registration

// ProvideCollector creates the metrics collector.
func ProvideCollector(cfg *config.Config) *observability.Collector {
	ns := cfg.Logging.Service
	if ns == "" {
		ns = "graphsync"
	}
	return observability.NewCollector(ns)
}

// ProvideAWSConfig loads the shared AWS configuration. Credentials are
// resolved lazily, so this succeeds without them.
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
}

// ProvideDynamoDBClient creates a DynamoDB client, pointed at a local
// endpoint when one is configured.
func ProvideDynamoDBClient(awsCfg aws.Config, cfg *config.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg, func(o *awsdynamodb.Options) {
		if cfg.AWS.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.Endpoint)
		}
	})
}

// ProvideEventBridgeClient creates an EventBridge client.
func ProvideEventBridgeClient(awsCfg aws.Config, cfg *config.Config) *awseventbridge.Client {
	return awseventbridge.NewFromConfig(awsCfg, func(o *awseventbridge.Options) {
		if cfg.AWS.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.Endpoint)
		}
	})
}

// ProvideRepository opens the configured store. The cleanup closes it.
func ProvideRepository(ctx context.Context, cfg *config.Config, client *awsdynamodb.Client, logger *zap.Logger) (repository.Repository, func(), error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		logger.Info("using in-memory store")
		return memory.New(), func() {}, nil
	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, cfg.Store.SQLitePath, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {
			if err := store.Close(); err != nil {
				logger.Warn("failed to close sqlite store", zap.Error(err))
			}
		}, nil
	case config.DriverDynamoDB:
		logger.Info("using dynamodb store", zap.String("table", cfg.Store.TableName))
		return ddb.NewRepository(client, cfg.Store.TableName, ddb.DefaultIndexName, logger), func() {}, nil
	default:
		return nil, nil, apperrors.Configuration(apperrors.CodeInvalidConfig.String(),
			fmt.Sprintf("unknown store driver %q", cfg.Store.Driver)).
			Build()
	}
}

// ProvideMemoryStore creates the bounded in-process cache store and exports
// its occupancy.
func ProvideMemoryStore(cfg *config.Config, logger *zap.Logger, collector *observability.Collector) *cache.MemoryStore {
	mem := cache.NewMemoryStore(cfg.Cache.MaxItems, cfg.Cache.MaxBytes, logger)
	collector.WatchCacheStore(mem)
	return mem
}

// ProvideCacheStore guards the cache store with a circuit breaker.
func ProvideCacheStore(mem *cache.MemoryStore, cfg *config.Config, logger *zap.Logger) cache.Store {
	bc := cache.DefaultBreakerConfig()
	bc.ConsecutiveFailures = cfg.Cache.BreakerTrips
	bc.Timeout = cfg.Cache.BreakerTimeout
	return cache.NewBreakerStore(mem, bc, logger)
}

// ProvideBus creates the process-wide event bus.
func ProvideBus(logger *zap.Logger, collector *observability.Collector) *events.Bus {
	return events.NewBus(logger, collector)
}

// ProvideBackgroundPublisher creates the queue used for cache repopulation.
// It is started by the caller.
func ProvideBackgroundPublisher(bus *events.Bus, cfg *config.Config, logger *zap.Logger, collector *observability.Collector) *events.BackgroundPublisher {
	return events.NewBackgroundPublisher(bus, cfg.Events.QueueSize, logger, collector)
}

// ProvideCacheSync creates the cache synchronization service.
func ProvideCacheSync(store cache.Store, bg *events.BackgroundPublisher, cfg *config.Config, logger *zap.Logger, collector *observability.Collector) *cachesync.Service {
	return cachesync.NewService(store, bg, logger,
		cachesync.WithTTL(cfg.Cache.TTL),
		cachesync.WithMetrics(collector))
}

// ProvideBacklinkOptions maps the extraction settings.
func ProvideBacklinkOptions(cfg *config.Config) backlink.Options {
	opts := backlink.DefaultOptions()
	opts.Syntax = backlink.Syntax{
		Open:  cfg.Extraction.OpenMarker,
		Close: cfg.Extraction.CloseMarker,
		Alias: cfg.Extraction.AliasSeparator,
	}
	opts.ContextRadius = cfg.Extraction.ContextRadius
	return opts
}

// ProvideExtraction creates the extraction service.
func ProvideExtraction(repo repository.Repository, bus *events.Bus, opts backlink.Options, logger *zap.Logger, collector *observability.Collector) *extraction.Service {
	return extraction.NewService(repo, bus, opts, logger, collector)
}

// ProvideIngest creates the ingest service.
func ProvideIngest(repo repository.Repository, bus *events.Bus, caches *cachesync.Service, logger *zap.Logger) *ingest.Service {
	return ingest.NewService(repo, bus, caches, logger)
}

// ProvideGraphService creates the graph read service.
func ProvideGraphService(repo repository.Repository, caches *cachesync.Service, logger *zap.Logger) *graphapp.Service {
	return graphapp.NewService(repo, caches, logger)
}

// ProvideMirror creates the EventBridge mirror, or nil when it is disabled.
func ProvideMirror(cfg *config.Config, client *awseventbridge.Client, logger *zap.Logger) events.Subscriber {
	if !cfg.Events.MirrorEnabled {
		return nil
	}
	return messaging.NewMirror(client, cfg.Events.MirrorBusName, cfg.Events.MirrorSource, messaging.DefaultMirroredEvents, logger,
		messaging.WithRateLimit(cfg.Events.MirrorRate, cfg.Events.MirrorBurst))
}

// ProvideHandlers registers the standard handler set on the bus. A
// registration error is a wiring mistake and fails startup.
func ProvideHandlers(
	bus *events.Bus,
	caches *cachesync.Service,
	ext *extraction.Service,
	repo repository.Repository,
	mirror events.Subscriber,
	logger *zap.Logger,
) (HandlerTable, error) {
	table := handlers.Registrations(handlers.Deps{
		Graphs:     caches,
		Databases:  caches,
		Extractor:  ext,
		Repository: repo,
		Mirror:     mirror,
		Logger:     logger,
	})
	if err := bus.RegisterAll(table); err != nil {
		return nil, err
	}
	return table, nil
}

// ProvideHTTPHandler builds the router.
func ProvideHTTPHandler(
	cfg *config.Config,
	graphs *graphapp.Service,
	ing *ingest.Service,
	ext *extraction.Service,
	collector *observability.Collector,
	logger *zap.Logger,
) http.Handler {
	return rest.NewRouter(rest.RouterConfig{
		Handler:        rest.NewHandler(graphs, ing, ext, logger),
		Metrics:        collector,
		MetricsHandler: collector.Handler(),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger,
	})
}
