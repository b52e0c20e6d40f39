package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	temporalsdkclient "go.temporal.io/sdk/client"
	"gorm.io/gorm"

	"github.com/yungbote/knowtree-backend/internal/data/db"
	kgmirror "github.com/yungbote/knowtree-backend/internal/data/graph"
	"github.com/yungbote/knowtree-backend/internal/modules/graphgen"
	"github.com/yungbote/knowtree-backend/internal/modules/graphgen/prompts"
	"github.com/yungbote/knowtree-backend/internal/modules/knowledge/ingest"
	"github.com/yungbote/knowtree-backend/internal/modules/knowledge/retrieval"
	"github.com/yungbote/knowtree-backend/internal/observability"
	"github.com/yungbote/knowtree-backend/internal/platform/embedding"
	"github.com/yungbote/knowtree-backend/internal/platform/llm"
	"github.com/yungbote/knowtree-backend/internal/platform/logger"
	"github.com/yungbote/knowtree-backend/internal/platform/neo4jdb"
	"github.com/yungbote/knowtree-backend/internal/platform/vectorstore"
	"github.com/yungbote/knowtree-backend/internal/realtime"
	"github.com/yungbote/knowtree-backend/internal/realtime/bus"
	"github.com/yungbote/knowtree-backend/internal/temporalx"
	"github.com/yungbote/knowtree-backend/internal/temporalx/ingestwf"
)

// App holds every long-lived dependency. The HTTP server, the Temporal
// worker and the CLI commands all run on top of one App.
type App struct {
	Log      *logger.Logger
	Cfg      Config
	DB       *gorm.DB
	Repos    Repos
	Metrics  *observability.Metrics
	LLM      *llm.Gateway
	Vectors  *vectorstore.Store
	Retrieve *retrieval.Engine
	Ingest   *ingest.Service
	Graphs   *graphgen.Workflow
	Hub      *realtime.SSEHub
	Events   bus.Bus
	Temporal temporalsdkclient.Client

	dbService    *db.Service
	neo4j        *neo4jdb.Client
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

func New(ctx context.Context) (*App, error) {
	envErr := LoadEnvFile()
	cfg := LoadConfig()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	if envErr != nil {
		log.Warn("failed to load .env", "error", envErr)
	}
	a := &App{Log: log, Cfg: cfg}
	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	log, cfg := a.Log, a.Cfg

	a.Metrics = observability.Init(log)
	a.otelShutdown = observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})

	dbs, err := db.NewFromEnv(log)
	if err != nil {
		return fmt.Errorf("init db: %w", err)
	}
	a.dbService = dbs
	a.DB = dbs.DB()
	if err := db.AutoMigrateAll(a.DB); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	a.Repos = wireRepos(a.DB, log)

	gateway, err := llm.NewGatewayFromEnv(log)
	if err != nil {
		return fmt.Errorf("init llm gateway: %w", err)
	}
	a.LLM = gateway

	embedder, err := embedding.NewFromEnv(log)
	if err != nil {
		return fmt.Errorf("init embedder: %w", err)
	}
	if embedder != nil && cfg.EmbeddingCache > 0 {
		embedder = embedding.WithQueryCache(embedder, cfg.EmbeddingCache)
	}

	a.Vectors = openVectorStore(ctx, log, cfg)
	a.Retrieve = retrieval.New(log, embedder, a.Vectors, a.Repos.KbChunk, a.Repos.KbDocument)
	a.Ingest = ingest.New(a.DB, log, a.Repos.KnowledgeBase, a.Repos.KbDocument, a.Repos.KbChunk, embedder, a.Vectors)

	tc, err := temporalx.NewClient(log)
	if err != nil {
		return fmt.Errorf("init temporal: %w", err)
	}
	if tc != nil {
		a.Temporal = tc
		a.Ingest.SetDispatcher(&ingestwf.Dispatcher{Client: tc, TaskQueue: temporalx.LoadConfig().TaskQueue})
	}

	a.Hub = realtime.NewSSEHub(log)
	a.Events = bus.New(log)

	registry, err := prompts.FromEnv()
	if err != nil {
		return fmt.Errorf("load prompts: %w", err)
	}
	deps := graphgen.Deps{
		DB:               a.DB,
		Log:              log,
		LLM:              gateway,
		Prompts:          registry,
		Graphs:           a.Repos.KnowledgeGraph,
		Nodes:            a.Repos.GraphNode,
		NodeResources:    a.Repos.NodeResource,
		Topics:           a.Repos.Topic,
		Resources:        a.Repos.Resource,
		KBs:              a.Repos.KnowledgeBase,
		Retriever:        a.Retrieve,
		Defaults:         cfg.Graph,
		MatchConcurrency: cfg.MatchConcurrency,
	}
	nc, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		log.Warn("neo4j unavailable; graph mirroring disabled", "error", err)
	}
	if nc != nil {
		a.neo4j = nc
		if mirror := kgmirror.NewKnowledgeGraphMirror(nc, log); mirror != nil {
			deps.Mirror = mirror
		}
	}
	a.Graphs, err = graphgen.New(deps)
	if err != nil {
		return err
	}
	return nil
}

// Start runs background loops: the bus forwarder into the hub and the
// redis collector.
func (a *App) Start(ctx context.Context) error {
	if a == nil || a.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	if err := a.Events.StartForwarder(ctx, a.Hub.Broadcast); err != nil {
		return fmt.Errorf("start event forwarder: %w", err)
	}
	a.Metrics.StartRedisCollector(ctx, a.Log, a.Cfg.RedisAddr)
	return nil
}

// ProcessInline makes uploads run their pipeline before Upload returns.
func (a *App) ProcessInline() {
	a.Ingest.SetDispatcher(syncDispatcher{svc: a.Ingest})
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	ctx := context.Background()
	var errs []error
	if a.Events != nil {
		errs = append(errs, a.Events.Close())
	}
	if a.Temporal != nil {
		a.Temporal.Close()
	}
	if a.neo4j != nil {
		errs = append(errs, a.neo4j.Close(ctx))
	}
	if a.dbService != nil {
		errs = append(errs, a.dbService.Close())
	}
	if a.otelShutdown != nil {
		errs = append(errs, a.otelShutdown(ctx))
	}
	if err := errors.Join(errs...); err != nil && a.Log != nil {
		a.Log.Warn("shutdown errors", "error", err)
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}

type syncDispatcher struct {
	svc *ingest.Service
}

func (d syncDispatcher) DispatchIngest(ctx context.Context, documentID uuid.UUID) error {
	return d.svc.ProcessDocument(ctx, documentID)
}
