// Package relation implements the typed-relation store: CRUD for edges
// between content records, keyed by composite natural keys, with
// per-type pre-insert side effects, uniqueness enforcement, reference
// checks, and cycle detection over directed edge sets.
//
// The rule engine and cache engine are injected as narrow interfaces so
// the package graph stays acyclic.
package relation

import (
	"log/slog"

	"github.com/jamhub/jamhub/internal/record"
	"github.com/jamhub/jamhub/internal/schema"
	"github.com/jamhub/jamhub/internal/store"
)

// RuleEvaluator gates submission and team-join link inserts.
// Implemented by rules.Evaluator.
type RuleEvaluator interface {
	// CheckSubmission validates a category_post insert: time window,
	// per-user submission count, attachment format, minimum team size.
	CheckSubmission(categoryID, postID, userID string) error

	// CheckTeamJoin validates a group_user insert against team capacity.
	CheckTeamJoin(groupID string) error
}

// CacheUpdater recomputes derived stats after interaction links change.
// Implemented by cache.Updater.
type CacheUpdater interface {
	UpdateCacheStats(targetType, targetID string) error
}

// Store performs relation CRUD over the file store.
type Store struct {
	files *store.Store
	cfg   *schema.Config
	rules RuleEvaluator
	cache CacheUpdater
	log   *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithRuleEvaluator injects the rule engine consulted on submission and
// team-join inserts. Without one, those inserts skip rule checks.
func WithRuleEvaluator(rules RuleEvaluator) Option {
	return func(s *Store) { s.rules = rules }
}

// WithCacheUpdater injects the derived-stats engine triggered by
// target_interaction changes.
func WithCacheUpdater(cache CacheUpdater) Option {
	return func(s *Store) { s.cache = cache }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// New creates a relation store over the given file store and tables.
func New(files *store.Store, cfg *schema.Config, opts ...Option) *Store {
	s := &Store{files: files, cfg: cfg, log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Read returns relations of a type matching an exact-match filter over
// any field subset, in insertion order. No filter returns all.
func (s *Store) Read(typ string, filters map[string]any) ([]*record.Record, error) {
	if _, err := s.spec(typ); err != nil {
		return nil, err
	}
	return s.files.Find(typ, filters)
}
