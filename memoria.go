package memoria

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/siherrmann/memoria/core/embedding"
	"github.com/siherrmann/memoria/core/graph"
	"github.com/siherrmann/memoria/core/hierarchy"
	"github.com/siherrmann/memoria/core/retrieval"
	"github.com/siherrmann/memoria/database"
	"github.com/siherrmann/memoria/helper"
	"github.com/siherrmann/memoria/model"
	loadSql "github.com/siherrmann/memoria/sql"
)

// Options tunes a Memoria instance. The zero value is usable.
type Options struct {
	// Pipeline configures the query pipeline; zero uses the defaults.
	Pipeline model.PipelineConfig
	// Embedder produces query and entry embeddings. Nil disables semantic search.
	Embedder embedding.Provider
	// RedisURL selects a shared redis cache instead of the in-process one.
	RedisURL string
	// Registerer receives the pipeline metrics. Nil keeps them unregistered.
	Registerer prometheus.Registerer
	Logger     *slog.Logger
}

// OptionsFromEnv reads the embedding provider and the redis cache url
// (MEMORIA_REDIS_URL) from the environment.
func OptionsFromEnv() (*Options, error) {
	embedder, err := embedding.NewFromEnv()
	if err != nil {
		return nil, helper.NewError("embedding provider", err)
	}
	return &Options{
		Embedder: embedder,
		RedisURL: strings.TrimSpace(os.Getenv("MEMORIA_REDIS_URL")),
	}, nil
}

// Memoria provides a unified interface to the store and the retrieval paths
type Memoria struct {
	DB         *helper.Database
	Entries    *database.EntriesDBHandler
	Edges      *database.EdgesDBHandler
	Summaries  *database.SummariesDBHandler
	Embeddings *database.EmbeddingsDBHandler
	Index      *database.IndexDBHandler
	Scopes     *database.ScopesDBHandler

	Traverser *graph.Traverser
	Engine    *retrieval.Engine
	Retriever *hierarchy.Retriever
	Metrics   *retrieval.Metrics

	embedder embedding.Provider
	cache    retrieval.Cache
	log      *slog.Logger
}

// NewMemoria opens the store described by config and wires all handlers
func NewMemoria(config *helper.DatabaseConfiguration, options *Options) (*Memoria, error) {
	if options == nil {
		options = &Options{}
	}
	logger := options.Logger
	if logger == nil {
		logger = helper.NewLogger(os.Stdout, slog.LevelInfo)
	}
	embedder := options.Embedder
	if embedder == nil {
		embedder = embedding.Disabled()
	}

	db, err := helper.NewDatabase("memoria", config, logger)
	if err != nil {
		return nil, err
	}
	m := &Memoria{DB: db, embedder: embedder, log: logger}

	if err := m.initHandlers(); err != nil {
		_ = db.Close()
		return nil, err
	}

	pipelineConfig := options.Pipeline
	if pipelineConfig == (model.PipelineConfig{}) {
		pipelineConfig = model.DefaultPipelineConfig()
	}

	m.cache = retrieval.NewMemoryCache(pipelineConfig.CacheTTL)
	if options.RedisURL != "" {
		redisCache, err := retrieval.NewRedisCacheFromURL(context.Background(), options.RedisURL, pipelineConfig.CacheTTL)
		if err != nil {
			_ = db.Close()
			return nil, helper.NewError("connect query cache", err)
		}
		m.cache = redisCache
	}

	m.Metrics = retrieval.NewMetrics(options.Registerer)
	m.Traverser = graph.NewTraverser(m.Edges, logger)
	m.Retriever = hierarchy.NewRetriever(m.Summaries, embedder, logger)

	m.Engine, err = retrieval.NewEngine(retrieval.Stores{
		Entries:   m.Entries,
		Lexical:   m.Index,
		Vectors:   m.Embeddings,
		Scopes:    m.Scopes,
		Traverser: m.Traverser,
		Embedder:  embedder,
		Cache:     m.cache,
		Metrics:   m.Metrics,
	}, pipelineConfig, logger)
	if err != nil {
		_ = m.Close()
		return nil, helper.NewError("create query engine", err)
	}

	return m, nil
}

func (m *Memoria) initHandlers() error {
	err := loadSql.Init(m.DB.Instance, m.DB.Driver)
	if err != nil {
		return helper.NewError("initialize database", err)
	}

	// force=false to not reload if tables already exist
	m.Entries, err = database.NewEntriesDBHandler(m.DB, false)
	if err != nil {
		return helper.NewError("create entries handler", err)
	}
	m.Edges, err = database.NewEdgesDBHandler(m.DB, false)
	if err != nil {
		return helper.NewError("create edges handler", err)
	}
	m.Summaries, err = database.NewSummariesDBHandler(m.DB, false)
	if err != nil {
		return helper.NewError("create summaries handler", err)
	}
	m.Embeddings, err = database.NewEmbeddingsDBHandler(m.DB, false)
	if err != nil {
		return helper.NewError("create embeddings handler", err)
	}
	m.Index, err = database.NewIndexDBHandler(m.DB, 0)
	if err != nil {
		return helper.NewError("create index handler", err)
	}
	m.Scopes, err = database.NewScopesDBHandler(m.DB, false)
	if err != nil {
		return helper.NewError("create scopes handler", err)
	}

	return nil
}

// Close closes the query cache and the database connection
func (m *Memoria) Close() error {
	if closer, ok := m.cache.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			m.log.Warn("Closing query cache failed", slog.String("error", err.Error()))
		}
	}
	return m.DB.Close()
}

// Query runs a structured query through the pipeline.
func (m *Memoria) Query(ctx context.Context, request model.QueryRequest) (*model.QueryResponse, error) {
	return m.Engine.RunQuery(ctx, request)
}

// Explain runs request and returns the per stage breakdown of its execution.
func (m *Memoria) Explain(ctx context.Context, request model.QueryRequest) (*model.Explanation, error) {
	response, err := m.Engine.RunQuery(ctx, request)
	if err != nil {
		return nil, err
	}
	return retrieval.Explain(request, response), nil
}

// RetrieveHierarchical narrows the summary tree of a scope from the top
// level down and returns the best matching entries.
func (m *Memoria) RetrieveHierarchical(ctx context.Context, options model.HierarchicalOptions) (*model.HierarchicalResult, error) {
	return m.Retriever.Retrieve(ctx, options)
}

// DrillDown returns a summary with its children and member entries.
func (m *Memoria) DrillDown(ctx context.Context, summaryID string) (*model.DrillDownResult, error) {
	return m.Retriever.DrillDown(ctx, summaryID)
}

// Traverse walks the relation graph from query.Start.
func (m *Memoria) Traverse(ctx context.Context, query model.TraversalQuery) (*model.ReachableNodes, error) {
	return m.Traverser.Traverse(ctx, query)
}

// Relations lists the direct edges of node in direction. An empty
// relationType matches every relation.
func (m *Memoria) Relations(ctx context.Context, node model.NodeRef, direction model.Direction, relationType model.RelationType) ([]*model.Relation, error) {
	direction, err := model.ParseDirection(string(direction))
	if err != nil {
		return nil, err
	}

	var relations []*model.Relation
	if direction.Forward() {
		outgoing, err := m.Edges.SelectEdgesFrom(ctx, node, relationType)
		if err != nil {
			return nil, helper.NewError("select outgoing relations", err)
		}
		relations = append(relations, outgoing...)
	}
	if direction.Backward() {
		incoming, err := m.Edges.SelectEdgesTo(ctx, node, relationType)
		if err != nil {
			return nil, helper.NewError("select incoming relations", err)
		}
		relations = append(relations, incoming...)
	}

	return relations, nil
}

// InsertEntry stores entry and, if an embedder is available, its embedding.
// Cached query results are dropped afterwards.
func (m *Memoria) InsertEntry(ctx context.Context, entry *model.Entry) error {
	if err := m.Entries.InsertEntry(ctx, entry); err != nil {
		return helper.NewError("insert entry", err)
	}

	if m.embedder.Available(ctx) {
		embedded, err := m.embedder.Embed(ctx, entry.SearchableText())
		if err != nil {
			m.log.Warn("Embedding entry failed, entry is only lexically searchable",
				slog.String("entry", entry.Ref().String()),
				slog.String("error", err.Error()),
			)
		} else if err := m.InsertEmbedding(ctx, entry.Ref(), embedded.Vector, embedded.Model); err != nil {
			return err
		}
	}

	return m.invalidate(ctx)
}

// InsertEmbedding stores a precomputed embedding for node.
func (m *Memoria) InsertEmbedding(ctx context.Context, node model.NodeRef, vector []float32, modelName string) error {
	err := m.Embeddings.UpsertEmbedding(ctx, &model.StoredEmbedding{
		EntryType: node.Type,
		EntryID:   node.ID,
		Vector:    vector,
		Dimension: len(vector),
		Model:     modelName,
	})
	if err != nil {
		return helper.NewError("insert embedding", err)
	}
	return m.invalidate(ctx)
}

// InsertRelation stores a directed edge between two nodes.
func (m *Memoria) InsertRelation(ctx context.Context, relation *model.Relation) error {
	if err := m.Edges.InsertEdge(ctx, relation); err != nil {
		return helper.NewError("insert relation", err)
	}
	return m.invalidate(ctx)
}

// InsertScope registers parent as the next broader scope of scope.
func (m *Memoria) InsertScope(ctx context.Context, scope, parent model.Scope, name string) error {
	if err := m.Scopes.InsertScope(ctx, scope, parent, name); err != nil {
		return helper.NewError("insert scope", err)
	}
	return m.invalidate(ctx)
}

// InsertSummary stores a summary node. Without an embedding and with an
// available embedder its title and content are embedded.
func (m *Memoria) InsertSummary(ctx context.Context, summary *model.Summary) error {
	if len(summary.Embedding) == 0 && m.embedder.Available(ctx) {
		embedded, err := m.embedder.Embed(ctx, summary.Title+"\n"+summary.Content)
		if err != nil {
			m.log.Warn("Embedding summary failed",
				slog.String("summary", summary.ID),
				slog.String("error", err.Error()),
			)
		} else {
			summary.Embedding = embedded.Vector
		}
	}

	if err := m.Summaries.InsertSummary(ctx, summary); err != nil {
		return helper.NewError("insert summary", err)
	}
	return nil
}

// InsertSummaryMember links an entry or a child summary to a summary.
func (m *Memoria) InsertSummaryMember(ctx context.Context, member *model.SummaryMember) error {
	if err := m.Summaries.InsertMember(ctx, member); err != nil {
		return helper.NewError("insert summary member", err)
	}
	return nil
}

// InvalidateCache drops every cached query result.
func (m *Memoria) InvalidateCache(ctx context.Context) error {
	return m.invalidate(ctx)
}

func (m *Memoria) invalidate(ctx context.Context) error {
	if err := m.Engine.InvalidateCache(ctx); err != nil {
		return helper.NewError("invalidate query cache", err)
	}
	return nil
}
