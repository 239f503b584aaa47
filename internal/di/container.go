// Package di wires the service together. wire.go declares the graph;
// wire_gen.go is the generated injector.
package di

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/colinxr/notion-graph-view-sub001/internal/application/cachesync"
	"github.com/colinxr/notion-graph-view-sub001/internal/application/extraction"
	graphapp "github.com/colinxr/notion-graph-view-sub001/internal/application/graph"
	"github.com/colinxr/notion-graph-view-sub001/internal/application/ingest"
	"github.com/colinxr/notion-graph-view-sub001/internal/config"
	"github.com/colinxr/notion-graph-view-sub001/internal/infrastructure/cache"
	"github.com/colinxr/notion-graph-view-sub001/internal/infrastructure/events"
	"github.com/colinxr/notion-graph-view-sub001/internal/infrastructure/observability"
	"github.com/colinxr/notion-graph-view-sub001/internal/repository"
)

// Container holds the application's long-lived components.
type Container struct {
	Config      *config.Config
	Logger      *zap.Logger
	Collector   *observability.Collector
	Repository  repository.Repository
	MemoryStore *cache.MemoryStore
	Bus         *events.Bus
	Background  *events.BackgroundPublisher
	Handlers    HandlerTable
	CacheSync   *cachesync.Service
	Extraction  *extraction.Service
	Ingest      *ingest.Service
	Graphs      *graphapp.Service
	HTTPHandler http.Handler
}
