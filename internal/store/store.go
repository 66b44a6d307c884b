// Package store defines the narrow document-store interface the debate
// core consumes, plus the two implementations: a PocketBase-backed one
// used in production and an in-memory one used by tests.
package store

import "context"

// Collection names used across the module.
const (
	CollectionQueue      = "matchmaking_queue"
	CollectionDebates    = "debates"
	CollectionStats      = "user_debate_stats"
	CollectionTopics     = "topics"
	CollectionChallenges = "challenges"
)

// Filter is a single field predicate for Query. Op is one of
// "=", "!=", ">=", "<=".
type Filter struct {
	Field string
	Op    string
	Value any
}

// Document is a schemaless record. Implementations reserve the "version"
// field for the optimistic-concurrency counter checked by UpdateIf.
type Document = map[string]any

// Doc with its store-assigned id, as returned by Query.
type QueryResult struct {
	ID  string
	Doc Document
}

// Store is the external persistence collaborator. All mutating calls
// propagate collaborator unavailability as errors; Delete is idempotent.
type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Set(ctx context.Context, collection, id string, doc Document) error
	Update(ctx context.Context, collection, id string, fields Document) error

	// UpdateIf applies fields only when the stored "version" equals
	// expectedVersion, then increments it. Returns status.ErrConflict on a
	// lost race. This is the guard that turns concurrent read-modify-write
	// races into detectable, retryable conflicts.
	UpdateIf(ctx context.Context, collection, id string, expectedVersion int64, fields Document) error

	Delete(ctx context.Context, collection, id string) error
	Query(ctx context.Context, collection string, filters []Filter) ([]QueryResult, error)

	// Subscribe registers onChange for updates to one document and returns
	// an unsubscribe func. Notification is asynchronous and best-effort.
	Subscribe(collection, id string, onChange func(Document)) func()
}
