// Package config loads retrieval-core configuration from environment
// variables: fail fast on missing required settings, default the rest.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all retrieval-core configuration. Immutable after Load returns.
type Config struct {
	DatabaseURL      string
	DatabaseMaxConns int

	EmbeddingProject    string
	EmbeddingLocation   string
	EmbeddingModel      string
	EmbeddingDimensions int

	LLMProject       string
	LLMLocation      string
	DeepQueryModel   string
	SimpleQueryModel string
	LLMTemperature   float64
	LLMMaxTokens     int

	RerankerEndpoint string

	// Search Executor (C2) defaults.
	FetchKMultiplier int // M: fetch_k = k * M
	EfSearch         int
	SemanticWeight   float64
	KeywordWeight    float64
	RRFConstant      int

	// Cache (spec §4.2, §5).
	QueryCacheTTL     time.Duration
	QueryCacheMaxSize int

	// Multi-Index Fanout (C3).
	MaxFanoutConcurrency int

	// Reranker (C4).
	RerankExpansionMultiplier int

	// Query Planner (C6) / agentic RAG.
	AgenticEnabled       bool
	MaxSubQueries        int
	ChunksPerSubquery    int
	MaxTotalChunks       int
	MaxOccurrenceResults int

	// Answer Assembler (C7).
	ContextTokenBudget int
	ReservedTokens     int

	// Optional secondary cache mirror (SPEC_FULL DOMAIN STACK).
	RedisAddr string

	// Optional ingestion invalidation event bus.
	PubSubProjectID      string
	PubSubSubscriptionID string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("config.Load: DATABASE_URL is required")
	}

	project := os.Getenv("GOOGLE_CLOUD_PROJECT")
	if project == "" {
		return nil, fmt.Errorf("config.Load: GOOGLE_CLOUD_PROJECT is required")
	}

	cfg := &Config{
		DatabaseURL:      dbURL,
		DatabaseMaxConns: envInt("DATABASE_MAX_CONNS", 25),

		EmbeddingProject:    project,
		EmbeddingLocation:   envStr("EMBEDDING_LOCATION", "us-east4"),
		EmbeddingModel:      envStr("EMBEDDING_MODEL", "text-embedding-004"),
		EmbeddingDimensions: envInt("EMBEDDING_DIMENSIONS", 768),

		LLMProject:       project,
		LLMLocation:      envStr("LLM_LOCATION", "global"),
		DeepQueryModel:   envStr("DEEP_QUERY_MODEL", "gemini-3-pro-preview"),
		SimpleQueryModel: envStr("SIMPLE_QUERY_MODEL", "gemini-3-flash"),
		LLMTemperature:   envFloat("LLM_TEMPERATURE", 0.1),
		LLMMaxTokens:     envInt("LLM_MAX_TOKENS", 2500),

		RerankerEndpoint: envStr("RERANKER_ENDPOINT", ""),

		FetchKMultiplier: envInt("FETCH_K_MULTIPLIER", 4),
		EfSearch:         envInt("EF_SEARCH", 512),
		SemanticWeight:   envFloat("SEMANTIC_WEIGHT", 0.5),
		KeywordWeight:    envFloat("KEYWORD_WEIGHT", 0.5),
		RRFConstant:      envInt("RRF_CONSTANT", 60),

		QueryCacheTTL:     time.Duration(envInt("QUERY_CACHE_TTL_SECONDS", 300)) * time.Second,
		QueryCacheMaxSize: envInt("QUERY_CACHE_MAX_SIZE", 100),

		MaxFanoutConcurrency: envInt("MAX_FANOUT_CONCURRENCY", 10),

		RerankExpansionMultiplier: envInt("RERANK_EXPANSION_MULTIPLIER", 4),

		AgenticEnabled:       envBool("AGENTIC_RAG_ENABLED", false),
		MaxSubQueries:        envInt("MAX_SUB_QUERIES", 3),
		ChunksPerSubquery:    envInt("CHUNKS_PER_SUBQUERY", 10),
		MaxTotalChunks:       envInt("MAX_TOTAL_CHUNKS", 30),
		MaxOccurrenceResults: envInt("MAX_OCCURRENCE_RESULTS", 200),

		ContextTokenBudget: envInt("CONTEXT_TOKEN_BUDGET", 128_000),
		ReservedTokens:     envInt("RESERVED_TOKENS", 28_000),

		RedisAddr: envStr("REDIS_ADDR", ""),

		PubSubProjectID:      envStr("PUBSUB_PROJECT_ID", ""),
		PubSubSubscriptionID: envStr("PUBSUB_INVALIDATION_SUBSCRIPTION", ""),
	}

	if cfg.SemanticWeight+cfg.KeywordWeight <= 0 {
		return nil, fmt.Errorf("config.Load: semantic_weight + keyword_weight must be positive")
	}

	return cfg, nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
