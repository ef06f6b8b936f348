// Package content is the dispatcher tying the core together: CRUD for
// content records with permission gating, type defaults, validation,
// uniqueness, state-transition checks, pre-delete integrity checks, and
// post-delete cascades. Per-type behavior lives in hook implementations
// dispatched via a type-tag registry.
package content

import (
	"github.com/jamhub/jamhub/internal/cache"
	"github.com/jamhub/jamhub/internal/cascade"
	"github.com/jamhub/jamhub/internal/record"
	"github.com/jamhub/jamhub/internal/relation"
	"github.com/jamhub/jamhub/internal/rules"
	"github.com/jamhub/jamhub/internal/store"
)

// User is the acting principal for dispatcher operations.
type User struct {
	ID   string
	Role string
}

// Action names a dispatcher operation for permission checks.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// PermissionChecker decides whether a user may perform an action on a
// content type. rec is the existing record for read/update/delete and
// nil for create. A nil checker allows everything; the embedding HTTP
// layer supplies the real policy.
type PermissionChecker func(user User, action Action, typ string, rec *record.Record) bool

// RoleResolver reports a user's platform role. Consumed by embedders
// that derive permissions from roles; the core only threads it through.
type RoleResolver func(user User) string

// Env gives hook implementations access to the core's collaborators.
type Env struct {
	Files     *store.Store
	Relations *relation.Store
	Rules     *rules.Evaluator
	Cache     *cache.Updater
	Cascade   *cascade.Engine
	User      User
}

// Hooks is the per-type extension point. Implementations register under
// their content-type tag; every method set beyond ContentType is
// optional and discovered by interface assertion.
type Hooks interface {
	ContentType() string
}

// Defaulter supplies additional field defaults applied before the
// schema's own default table.
type Defaulter interface {
	Defaults() map[string]any
}

// Creator validates or amends a record before its first save.
type Creator interface {
	OnCreate(env *Env, r *record.Record) error
}

// PostCreator runs after the record is on disk (e.g. group creation
// inserts the owner membership).
type PostCreator interface {
	OnPostCreate(env *Env, r *record.Record) error
}

// PreUpdater gates an update before it is applied. current holds the
// stored record; updates is the incoming field set.
type PreUpdater interface {
	OnPreUpdate(env *Env, current *record.Record, updates map[string]any) error
}

// PreDeleter runs integrity checks before any cascade starts.
type PreDeleter interface {
	OnPreDelete(env *Env, r *record.Record) error
}

// DeleteCascader runs after the generic cascade, for type-specific
// cleanup the cascade engine does not cover.
type DeleteCascader interface {
	OnDeleteCascade(env *Env, r *record.Record) error
}

// defaultHooks returns the built-in hook registry.
func defaultHooks() map[string]Hooks {
	registry := make(map[string]Hooks)
	for _, h := range []Hooks{
		userHooks{},
		groupHooks{},
		postHooks{},
		ruleHooks{},
		interactionHooks{},
	} {
		registry[h.ContentType()] = h
	}
	return registry
}
