// Package engine is the composition root: it wires the Index Router,
// Search Executor, Multi-Index Fanout, Reranker, Citation Builder, Query
// Planner, and Answer Assembler into the core's external API (spec §6, §9
// "single engine owning sub-components").
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/connexus-ai/ragbox-backend/internal/answer"
	"github.com/connexus-ai/ragbox-backend/internal/cache"
	"github.com/connexus-ai/ragbox-backend/internal/citation"
	"github.com/connexus-ai/ragbox-backend/internal/config"
	"github.com/connexus-ai/ragbox-backend/internal/index"
	"github.com/connexus-ai/ragbox-backend/internal/metrics"
	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/planner"
	"github.com/connexus-ai/ragbox-backend/internal/provider"
	"github.com/connexus-ai/ragbox-backend/internal/rerank"
	"github.com/connexus-ai/ragbox-backend/internal/rerr"
	"github.com/connexus-ai/ragbox-backend/internal/search"
	"github.com/connexus-ai/ragbox-backend/internal/store"
)

// Engine is the RetrievalEngine: the single owner of C1-C7's sub-components
// for one process. All fields are safe for concurrent use across requests.
type Engine struct {
	cfg *config.Config
	pool *pgxpool.Pool

	router     *index.Router
	vectors    *store.VectorStore
	documents  *store.DocumentStore
	pageCounts *store.PageCountIndex

	executor      *search.Executor
	imageExecutor *search.Executor
	fanout        *search.Fanout

	embedder    *provider.EmbeddingProvider
	embedCache  *cache.EmbeddingCache
	searchCache *cache.SearchCache
	imageCache  *cache.SearchCache

	reranker  *rerank.Reranker
	citations *citation.Builder
	assembler *answer.Assembler

	plannerGen plannerGenAI
	deepGen    answerGenAI
	simpleGen  answerGenAI

	redisMirror  *cache.RedisMirror
	invalidation *invalidationSubscriber
	metrics      *metrics.Metrics
}

// New wires every sub-component from cfg and an already-open database pool.
// Vertex AI clients are constructed here and must be closed via Close. m may
// be nil to disable Prometheus instrumentation (e.g. in tests).
func New(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, m *metrics.Metrics) (*Engine, error) {
	embedder, err := provider.NewEmbeddingProvider(ctx, cfg.EmbeddingProject, cfg.EmbeddingLocation, cfg.EmbeddingModel)
	if err != nil {
		return nil, fmt.Errorf("engine.New: embedding provider: %w", err)
	}

	deepProvider, err := provider.NewGenAIProvider(ctx, cfg.LLMProject, cfg.LLMLocation, cfg.DeepQueryModel)
	if err != nil {
		return nil, fmt.Errorf("engine.New: deep query model: %w", err)
	}
	simpleProvider, err := provider.NewGenAIProvider(ctx, cfg.LLMProject, cfg.LLMLocation, cfg.SimpleQueryModel)
	if err != nil {
		return nil, fmt.Errorf("engine.New: simple query model: %w", err)
	}

	var rerankProvider rerank.Provider
	if cfg.RerankerEndpoint != "" {
		rerankProvider = rerankAdapter{p: provider.NewRerankProvider(cfg.RerankerEndpoint, nil)}
	}

	router := index.NewRouter()
	pageCounts := store.NewPageCountIndex()
	vectors := store.NewVectorStore(pool)
	lexical := store.NewLexicalStore(pool)
	documents := store.NewDocumentStore(pool)

	searchCache := cache.NewSearchCache(cfg.QueryCacheTTL, cfg.QueryCacheMaxSize)
	imageCache := cache.NewSearchCache(cfg.QueryCacheTTL, cfg.QueryCacheMaxSize)
	executor := search.NewExecutor(vectors, lexical, searchCache, cfg.FetchKMultiplier, cfg.EfSearch, cfg.RRFConstant)
	imageExecutor := search.NewExecutor(vectors, lexical, imageCache, cfg.FetchKMultiplier, cfg.EfSearch, cfg.RRFConstant)

	redisMirror := cache.NewRedisMirror(cfg.RedisAddr, cfg.QueryCacheTTL)
	searchCache.SetMirror(redisMirror)
	imageCache.SetMirror(redisMirror)

	fanout := search.NewFanout(executor, cfg.MaxFanoutConcurrency)
	reranker := rerank.NewReranker(rerankProvider, cfg.RerankExpansionMultiplier)
	if m != nil {
		searchCache.SetMetrics(m, "search")
		imageCache.SetMetrics(m, "image")
		fanout.SetMetrics(m)
		reranker.SetMetrics(m)
	}

	e := &Engine{
		cfg:           cfg,
		pool:          pool,
		router:        router,
		vectors:       vectors,
		documents:     documents,
		pageCounts:    pageCounts,
		executor:      executor,
		imageExecutor: imageExecutor,
		fanout:        fanout,
		embedder:      embedder,
		embedCache:    cache.NewEmbeddingCache(cfg.QueryCacheTTL),
		searchCache:   searchCache,
		imageCache:    imageCache,
		reranker:      reranker,
		citations:     citation.NewBuilder(router, pageCounts, embedder),
		assembler:     answer.NewAssembler(cfg.ContextTokenBudget, cfg.ReservedTokens),
		plannerGen:    plannerGenAI{p: simpleProvider},
		deepGen:       answerGenAI{p: deepProvider},
		simpleGen:     answerGenAI{p: simpleProvider},
		redisMirror:   redisMirror,
		metrics:       m,
	}

	if err := e.Warm(ctx); err != nil {
		return nil, err
	}

	if cfg.PubSubProjectID != "" && cfg.PubSubSubscriptionID != "" {
		sub, err := newInvalidationSubscriber(ctx, cfg.PubSubProjectID, cfg.PubSubSubscriptionID, e)
		if err != nil {
			return nil, fmt.Errorf("engine.New: invalidation subscriber: %w", err)
		}
		e.invalidation = sub
		sub.Start(context.Background())
	}

	return e, nil
}

// Warm loads the DocumentIndexMap and page-count index from the document
// registry. Call once at startup and again after any out-of-band ingestion
// event that InvalidateCache was not told about directly.
func (e *Engine) Warm(ctx context.Context) error {
	entries, err := e.documents.ListIndexed(ctx)
	if err != nil {
		return fmt.Errorf("engine.Warm: %w", err)
	}
	e.router.Load(entries)

	if err := e.pageCounts.Load(ctx, e.pool); err != nil {
		return fmt.Errorf("engine.Warm: %w", err)
	}
	return nil
}

// Close releases the LLM clients and stops cache cleanup goroutines.
func (e *Engine) Close() {
	e.deepGen.p.Close()
	e.simpleGen.p.Close()
	e.embedCache.Stop()
	e.searchCache.Stop()
	e.imageCache.Stop()
	if e.invalidation != nil {
		e.invalidation.Stop()
	}
	if e.redisMirror != nil {
		e.redisMirror.Close()
	}
}

// QueryOptions bundles query's per-request inputs (spec §6). Zero-valued
// fields are defaulted from the engine's configuration by withDefaults.
type QueryOptions struct {
	K                 int
	UseHybridSearch   bool
	SemanticWeight    float64
	KeywordWeight     float64
	SearchMode        string // "semantic" | "keyword" | "hybrid"
	ActiveSources     []string
	UseAgenticRAG     bool
	MaxSubQueries     int
	ChunksPerSubquery int
	MaxTotalChunks    int
	RerankTopK        int
	Temperature       float64
	MaxTokens         int
	Model             string // "deep" | "simple" | "" (auto)
	ResponseLanguage  string
	QueryLanguage     string
}

func (e *Engine) withDefaults(o QueryOptions) QueryOptions {
	if o.K <= 0 {
		o.K = 5
	}
	if o.SemanticWeight == 0 && o.KeywordWeight == 0 {
		o.SemanticWeight, o.KeywordWeight = e.cfg.SemanticWeight, e.cfg.KeywordWeight
	}
	if o.SearchMode == "" {
		o.SearchMode = "hybrid"
	}
	if o.MaxSubQueries <= 0 {
		o.MaxSubQueries = e.cfg.MaxSubQueries
	}
	if o.ChunksPerSubquery <= 0 {
		o.ChunksPerSubquery = e.cfg.ChunksPerSubquery
	}
	if o.MaxTotalChunks <= 0 {
		o.MaxTotalChunks = e.cfg.MaxTotalChunks
	}
	if o.RerankTopK <= 0 {
		o.RerankTopK = o.K
	}
	if o.Temperature == 0 {
		o.Temperature = e.cfg.LLMTemperature
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = e.cfg.LLMMaxTokens
	}
	return o
}

// failedQueryResponse is the user-visible failure shape from spec §7.
func failedQueryResponse(message string) model.Response {
	return model.Response{Answer: message, Sources: []string{}, Citations: []model.Citation{}}
}

// Query is the core API's primary entry point (spec §6). Every response
// carries a fresh correlation ID (spec §5 "no per-request state is shared
// across requests") so a caller-side gateway can tie a response back to the
// structured log lines this method and its sub-components emit.
func (e *Engine) Query(ctx context.Context, question string, opts QueryOptions) (resp model.Response, err error) {
	start := time.Now()
	requestID := uuid.NewString()
	kind := "unclassified"
	defer func() {
		resp.RequestID = requestID
		if e.metrics != nil {
			e.metrics.QueryLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		}
	}()

	opts = e.withDefaults(opts)

	knownDocuments := e.documentNames()
	classification := planner.Classify(question, opts.K, knownDocuments, opts.UseAgenticRAG)
	kind = string(classification.Kind)
	opts.K = classification.EffectiveK

	activeSources := opts.ActiveSources
	if len(classification.DocumentNames) > 0 {
		activeSources = classification.DocumentNames
	}

	indexIDs, resolvedSources := e.resolveTextIndexes(activeSources)
	if len(indexIDs) == 0 {
		slog.Info("engine.Query: empty selection", "error", rerr.NewEmptySelection(activeSources))
		resp := model.Response{Sources: []string{}, Citations: []model.Citation{}}
		resp.ResponseTimeMs = time.Since(start).Milliseconds()
		return resp, nil
	}

	if classification.Kind == planner.KindOccurrence {
		resp := e.runOccurrenceQuery(ctx, indexIDs, classification.OccurrenceTerm, e.cfg.MaxOccurrenceResults)
		resp.ResponseTimeMs = time.Since(start).Milliseconds()
		return resp, nil
	}

	queryVec, err := e.embedQuery(ctx, question)
	if err != nil {
		resp := failedQueryResponse("Something went wrong while answering your question. Please try again.")
		resp.ResponseTimeMs = time.Since(start).Milliseconds()
		return resp, fmt.Errorf("engine.Query: %w", err)
	}

	semW, keyW := searchModeWeights(opts)
	rerankDisabled := rerank.Disabled(false, classification.IsContact)

	fetchK := opts.K
	if !rerankDisabled {
		fetchK = e.reranker.ExpansionK(opts.K)
	}

	chunks, err := e.fanout.SearchAcross(ctx, search.SearchAcrossParams{
		IndexIDs: indexIDs, QueryText: question, QueryVector: queryVec,
		K: fetchK, SemanticWeight: semW, KeywordWeight: keyW,
	})
	if err != nil {
		resp := failedQueryResponse("Something went wrong while answering your question. Please try again.")
		resp.ResponseTimeMs = time.Since(start).Milliseconds()
		return resp, fmt.Errorf("engine.Query: %w", err)
	}

	var subQueries []string
	if classification.EnableAgentic {
		subQueries, chunks = e.runAgenticDecomposition(ctx, question, opts, indexIDs, semW, keyW)
	}

	if rerankDisabled {
		if len(chunks) > opts.K {
			chunks = chunks[:opts.K]
		}
	} else {
		chunks = e.reranker.Rerank(ctx, question, chunks, opts.RerankTopK)
	}

	citations := e.citations.Build(ctx, chunks, citation.BuildParams{
		Query: question, QueryEmbedding: queryVec, QueryLanguage: opts.QueryLanguage,
		FallbackSources: resolvedSources,
	})

	gen := e.generatorFor(opts, classification, question)
	resp, err = e.assembler.Assemble(ctx, gen, answer.AssembleParams{
		Question: question, Citations: citations, Temperature: opts.Temperature,
		MaxTokens: opts.MaxTokens, SubQueries: subQueries,
	})
	resp = restrictToActiveSources(resp, activeSources)
	resp.ResponseTimeMs = time.Since(start).Milliseconds()
	if err != nil {
		return resp, fmt.Errorf("engine.Query: %w", err)
	}
	return resp, nil
}

// runOccurrenceQuery implements spec §4.6's occurrence-query path: it skips
// C4-C7 entirely and enumerates literal matches.
func (e *Engine) runOccurrenceQuery(ctx context.Context, indexIDs []string, term string, maxResults int) model.Response {
	var chunks []model.Chunk
	for _, indexID := range indexIDs {
		cs, err := e.vectors.AllChunks(ctx, indexID)
		if err != nil {
			slog.Warn("engine.runOccurrenceQuery: index unreadable, skipping", "index_id", indexID, "error", err)
			continue
		}
		chunks = append(chunks, cs...)
	}

	citations, answerText, truncated := planner.FindAllOccurrences(chunks, term, maxResults)
	return model.Response{
		Answer:        answerText,
		Sources:       sourcesOf(citations),
		Citations:     citations,
		NumChunksUsed: len(citations),
		Truncated:     truncated,
	}
}

// runAgenticDecomposition implements spec §4.6's agentic sub-query fanout:
// each sub-query is retrieved independently and the union deduplicated.
func (e *Engine) runAgenticDecomposition(ctx context.Context, question string, opts QueryOptions, indexIDs []string, semW, keyW float64) ([]string, []model.ScoredChunk) {
	subQueries := planner.Decompose(ctx, e.plannerGen, question, opts.MaxSubQueries)

	perSubquery := make([][]model.ScoredChunk, 0, len(subQueries))
	for _, sq := range subQueries {
		vec, err := e.embedQuery(ctx, sq)
		if err != nil {
			slog.Warn("engine.runAgenticDecomposition: sub-query embedding failed, skipping", "error", err)
			continue
		}
		chunks, err := e.fanout.SearchAcross(ctx, search.SearchAcrossParams{
			IndexIDs: indexIDs, QueryText: sq, QueryVector: vec,
			K: opts.ChunksPerSubquery, SemanticWeight: semW, KeywordWeight: keyW,
		})
		if err != nil {
			slog.Warn("engine.runAgenticDecomposition: sub-query search failed, skipping", "error", err)
			continue
		}
		perSubquery = append(perSubquery, chunks)
	}

	return subQueries, planner.MergeSubQueryResults(perSubquery, opts.MaxTotalChunks)
}

// SearchImages runs a direct, vector-only search across the image/OCR
// indexes of activeSources (all registered documents if empty), per spec
// §6's "direct image-only search".
func (e *Engine) SearchImages(ctx context.Context, query string, activeSources []string, k int) (model.Response, error) {
	if k <= 0 {
		k = 5
	}
	indexIDs, sources := e.resolveImageIndexes(activeSources)
	if len(indexIDs) == 0 {
		return model.Response{Sources: []string{}, Citations: []model.Citation{}}, nil
	}

	vec, err := e.embedQuery(ctx, query)
	if err != nil {
		return model.Response{}, fmt.Errorf("engine.SearchImages: %w", err)
	}

	var union []model.ScoredChunk
	arrival := 0
	for _, indexID := range indexIDs {
		hits, err := e.imageExecutor.SimilaritySearch(ctx, indexID, vec, k, 0)
		if err != nil {
			slog.Warn("engine.SearchImages: index search failed, skipping", "index_id", indexID, "error", err)
			continue
		}
		for _, h := range hits {
			h.ArrivalOrder = arrival
			arrival++
			union = append(union, h)
		}
	}

	citations := e.citations.Build(ctx, union, citation.BuildParams{
		Query: query, QueryEmbedding: vec, FallbackSources: sources,
	})
	citations = answer.Dedup(citations)
	if len(citations) > k {
		citations = citations[:k]
	}
	return model.Response{
		Sources:       sourcesOf(citations),
		Citations:     citations,
		NumChunksUsed: len(citations),
	}, nil
}

// InvalidateCache drops cached search results and refreshes the document
// index map and page-count snapshot. documentID is accepted per spec §6 but
// the core holds no document_id -> index_name reverse index cheap enough to
// target a single entry, so any call invalidates every cached entry and
// reloads the registry wholesale; infrequent ingestion events make this an
// acceptable trade against the complexity of a second reverse map.
func (e *Engine) InvalidateCache(ctx context.Context, documentID string) error {
	e.executor.InvalidateIndex("")
	e.imageExecutor.InvalidateIndex("")
	return e.Warm(ctx)
}

// FindAllOccurrences is the core API's standalone occurrence-search entry
// point (spec §6), independent of whether C6 would have classified the
// triggering question as an occurrence query.
func (e *Engine) FindAllOccurrences(ctx context.Context, term string, activeSources []string, maxResults int) model.Response {
	if maxResults <= 0 {
		maxResults = e.cfg.MaxOccurrenceResults
	}
	indexIDs, _ := e.resolveTextIndexes(activeSources)
	return e.runOccurrenceQuery(ctx, indexIDs, term, maxResults)
}

func (e *Engine) embedQuery(ctx context.Context, query string) ([]float32, error) {
	key := cache.EmbeddingQueryHash(query)
	if vec, ok := e.embedCache.Get(key); ok {
		return vec, nil
	}
	vecs, err := e.embedder.EmbedQuery(ctx, []string{query})
	if err != nil {
		return nil, rerr.NewBackendUnavailable("embedding", err)
	}
	if len(vecs) == 0 {
		return nil, rerr.NewBackendUnavailable("embedding", fmt.Errorf("empty embedding response"))
	}
	e.embedCache.Set(key, vecs[0])
	return vecs[0], nil
}

func (e *Engine) documentNames() []string {
	entries := e.router.Entries()
	names := make([]string, len(entries))
	for i, entry := range entries {
		names[i] = entry.DocumentName
	}
	return names
}

// resolveTextIndexes maps document names to their text index ids. An empty
// sources list resolves to every registered document (spec §4.1).
func (e *Engine) resolveTextIndexes(sources []string) (indexIDs []string, resolvedSources []string) {
	if len(sources) == 0 {
		for _, entry := range e.router.Entries() {
			indexIDs = append(indexIDs, entry.IndexName)
			resolvedSources = append(resolvedSources, entry.DocumentName)
		}
		return
	}
	for _, name := range sources {
		if id, ok := e.router.Resolve(name); ok {
			indexIDs = append(indexIDs, id)
			resolvedSources = append(resolvedSources, name)
		}
	}
	return
}

func (e *Engine) resolveImageIndexes(sources []string) (indexIDs []string, resolvedSources []string) {
	if len(sources) == 0 {
		for _, entry := range e.router.Entries() {
			if entry.ImageIndex != "" {
				indexIDs = append(indexIDs, entry.ImageIndex)
				resolvedSources = append(resolvedSources, entry.DocumentName)
			}
		}
		return
	}
	for _, name := range sources {
		if id, ok := e.router.ResolveImages(name); ok {
			indexIDs = append(indexIDs, id)
			resolvedSources = append(resolvedSources, name)
		}
	}
	return
}

// generatorFor picks deep_query_model or simple_query_model (spec §4.7.2).
// Absent an explicit choice, short, single-clause, non-agentic questions
// route to the lighter model.
func (e *Engine) generatorFor(opts QueryOptions, c planner.Classification, question string) answer.Generator {
	switch opts.Model {
	case "simple":
		return e.simpleGen
	case "deep":
		return e.deepGen
	}
	if c.Kind == planner.KindNormal && !c.EnableAgentic && len(strings.Fields(question)) <= 8 {
		return e.simpleGen
	}
	return e.deepGen
}

func searchModeWeights(opts QueryOptions) (semantic, keyword float64) {
	switch opts.SearchMode {
	case "semantic":
		return opts.SemanticWeight, 0
	case "keyword":
		return 0, opts.KeywordWeight
	default:
		return opts.SemanticWeight, opts.KeywordWeight
	}
}

// restrictToActiveSources enforces spec §8's "if active_sources is
// non-empty, every citation's source is in active_sources" invariant as a
// defensive pass over the assembler's output.
func restrictToActiveSources(resp model.Response, activeSources []string) model.Response {
	if len(activeSources) == 0 {
		return resp
	}
	allowed := make(map[string]struct{}, len(activeSources))
	for _, s := range activeSources {
		allowed[s] = struct{}{}
	}

	kept := make([]model.Citation, 0, len(resp.Citations))
	for _, c := range resp.Citations {
		if _, ok := allowed[c.Source]; ok {
			kept = append(kept, c)
		}
	}
	for i := range kept {
		kept[i].ID = i + 1
	}
	resp.Citations = kept
	resp.Sources = sourcesOf(kept)
	resp.NumChunksUsed = len(kept)
	return resp
}

func sourcesOf(citations []model.Citation) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(citations))
	for _, c := range citations {
		if _, ok := seen[c.Source]; ok {
			continue
		}
		seen[c.Source] = struct{}{}
		out = append(out, c.Source)
	}
	return out
}
