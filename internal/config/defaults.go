// Package config provides centralized configuration constants and run-time
// limits for ikoma. All default values live here so there is a single source
// of truth.
package config

import "time"

// Loop limits
const (
	// DefaultMaxIterations caps the number of plan-execute-reflect cycles per run.
	DefaultMaxIterations = 25

	// DefaultTimeLimit caps the wall-clock duration of a run.
	DefaultTimeLimit = 10 * time.Minute

	// DefaultCheckpointEvery is how many iterations pass between human checkpoints.
	DefaultCheckpointEvery = 5

	// DefaultMaxPlanRetries bounds the plan-repair reflection loop.
	DefaultMaxPlanRetries = 2
)

// Fetcher defaults
const (
	// DefaultBucketCapacity is the per-domain token bucket size.
	DefaultBucketCapacity = 10

	// DefaultRefillRate is tokens per second added to each domain bucket.
	DefaultRefillRate = 5.0

	// DefaultHTTPTimeout is the per-request timeout.
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultMaxResponseSize caps response bodies before buffering.
	DefaultMaxResponseSize = 5 * 1024 * 1024

	// DefaultCacheTTL is how long cached GET responses stay valid.
	DefaultCacheTTL = time.Hour

	// DefaultFilterReloadInterval throttles domain-filter file reloads.
	DefaultFilterReloadInterval = 60 * time.Second

	// DefaultDomainPolicy decides fetches when neither domain list matches.
	DefaultDomainPolicy = "deny"

	// DefaultBackoffBase is the initial 429/503 backoff window.
	DefaultBackoffBase = 2 * time.Second

	// DefaultBackoffMultiplier grows the window per consecutive failure.
	DefaultBackoffMultiplier = 2.0

	// DefaultBackoffMax caps the backoff window.
	DefaultBackoffMax = 5 * time.Minute
)

// Memory and extraction defaults
const (
	// DefaultRetrieveLimit is how many memories the controller pulls per turn.
	DefaultRetrieveLimit = 3

	// DefaultChunkSize is the extractor's chunk size in characters.
	DefaultChunkSize = 1500

	// DefaultMinQuality is the quality gate below which extracted content is discarded.
	DefaultMinQuality = 0.3

	// MemorySchemaVersion stamps every stored memory entry. Readers skip
	// entries with versions they do not understand.
	MemorySchemaVersion = 1
)

// Paths
const (
	// DefaultDataDir is the per-user state directory, relative to $HOME.
	DefaultDataDir = ".ikoma"

	// DefaultConversationDB is the checkpointer database file name.
	DefaultConversationDB = "conversation.db"

	// DefaultVectorStoreDB is the vector memory database file name.
	DefaultVectorStoreDB = "vector_store.db"
)
