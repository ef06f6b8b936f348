package content

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/jamhub/jamhub/internal/cache"
	"github.com/jamhub/jamhub/internal/cascade"
	"github.com/jamhub/jamhub/internal/fault"
	"github.com/jamhub/jamhub/internal/record"
	"github.com/jamhub/jamhub/internal/relation"
	"github.com/jamhub/jamhub/internal/rules"
	"github.com/jamhub/jamhub/internal/schema"
	"github.com/jamhub/jamhub/internal/store"
)

// timeLayout is RFC 3339 at second granularity.
const timeLayout = "2006-01-02T15:04:05Z07:00"

// Dispatcher orchestrates content CRUD and owns the wiring of the rule,
// cache, cascade, and relation engines over one file store.
//
// A single process-wide mutex serializes every mutating operation, so
// multi-step cascades and cache recomputes never interleave within the
// process. The sequences are still not transactional: a crash mid-cascade
// can leave partially-cascaded state.
type Dispatcher struct {
	mu sync.Mutex

	files     *store.Store
	cfg       *schema.Config
	relations *relation.Store
	rules     *rules.Evaluator
	cache     *cache.Updater
	cascade   *cascade.Engine

	hooks           map[string]Hooks
	checkPermission PermissionChecker
	resolveRole     RoleResolver
	log             *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithPermissionChecker installs the embedder's permission callback.
func WithPermissionChecker(check PermissionChecker) Option {
	return func(d *Dispatcher) { d.checkPermission = check }
}

// WithRoleResolver installs the embedder's role lookup.
func WithRoleResolver(resolve RoleResolver) Option {
	return func(d *Dispatcher) { d.resolveRole = resolve }
}

// WithHooks replaces or extends the built-in hook registry entry for the
// hook's content type.
func WithHooks(h Hooks) Option {
	return func(d *Dispatcher) { d.hooks[h.ContentType()] = h }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(d *Dispatcher) { d.log = log }
}

// New wires the full core over one file store: cache engine, rule
// engine, relation store (with rules and cache injected), cascade
// engine, and the built-in hook registry.
func New(files *store.Store, cfg *schema.Config, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		files: files,
		cfg:   cfg,
		hooks: defaultHooks(),
		log:   slog.Default(),
	}
	d.cache = cache.New(files)
	d.rules = rules.New(files)
	d.relations = relation.New(files, cfg,
		relation.WithRuleEvaluator(d.rules),
		relation.WithCacheUpdater(d.cache),
	)
	d.cascade = cascade.New(files, cfg, cascade.WithCacheUpdater(d.cache))
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Relations exposes the wired relation store for relation CRUD.
func (d *Dispatcher) Relations() *relation.Store { return d.relations }

// Rules exposes the wired rule engine.
func (d *Dispatcher) Rules() *rules.Evaluator { return d.rules }

// Cache exposes the wired derived-stats engine.
func (d *Dispatcher) Cache() *cache.Updater { return d.cache }

// env builds the hook environment for one operation.
func (d *Dispatcher) env(user User) *Env {
	return &Env{
		Files:     d.files,
		Relations: d.relations,
		Rules:     d.rules,
		Cache:     d.cache,
		Cascade:   d.cascade,
		User:      user,
	}
}

// allowed consults the embedder's permission callback.
func (d *Dispatcher) allowed(user User, action Action, typ string, rec *record.Record) bool {
	if d.checkPermission == nil {
		return true
	}
	return d.checkPermission(user, action, typ, rec)
}

// CreateContent creates a record: permission gate, hook and schema
// defaults, required/enum validation, uniqueness, ID and timestamps,
// on-create hook, save, post-create hook.
func (d *Dispatcher) CreateContent(typ string, data map[string]any, user User) (*record.Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	spec, err := d.spec(typ)
	if err != nil {
		return nil, err
	}
	if !d.allowed(user, ActionCreate, typ, nil) {
		return nil, fault.Forbidden(fmt.Sprintf("user may not create %s records", typ))
	}

	r := record.New(typ, d.files.NewID(spec.Prefix))
	for k, v := range data {
		if k == "body" {
			if body, ok := v.(string); ok {
				r.Body = body
				continue
			}
		}
		r.Set(k, v)
	}

	env := d.env(user)
	hooks := d.hooks[typ]
	if defaulter, ok := hooks.(Defaulter); ok {
		for k, v := range defaulter.Defaults() {
			if !r.Has(k) {
				r.Set(k, v)
			}
		}
	}
	spec.ApplyDefaults(r)
	if !r.Has("created_by") && user.ID != "" {
		r.Set("created_by", user.ID)
	}

	if err := spec.CheckRequired(r); err != nil {
		return nil, fmt.Errorf("create %s: %w", typ, err)
	}
	if err := spec.CheckEnums(r); err != nil {
		return nil, fmt.Errorf("create %s: %w", typ, err)
	}
	if err := d.files.CheckUnique(spec.Unique, r, ""); err != nil {
		return nil, fmt.Errorf("create %s: %w", typ, err)
	}

	if creator, ok := hooks.(Creator); ok {
		if err := creator.OnCreate(env, r); err != nil {
			return nil, fmt.Errorf("create %s: %w", typ, err)
		}
	}

	now := record.Now().Format(timeLayout)
	r.Set("created_at", now)
	r.Set("updated_at", now)
	if err := d.files.Save(r); err != nil {
		return nil, err
	}
	d.log.Info("content created", "type", typ, "id", r.ID, "user", user.ID)

	if post, ok := hooks.(PostCreator); ok {
		if err := post.OnPostCreate(env, r); err != nil {
			// The record is committed; post-create side effects that
			// fail are surfaced but do not roll it back.
			return r, fmt.Errorf("post-create %s/%s: %w", typ, r.ID, err)
		}
	}
	return r, nil
}

// ReadContent returns one record by type and ID. Soft-deleted records
// read as NotFound.
func (d *Dispatcher) ReadContent(typ, id string, user User) (*record.Record, error) {
	if _, err := d.spec(typ); err != nil {
		return nil, err
	}
	r, err := d.files.Load(typ, id)
	if err != nil {
		return nil, err
	}
	if r.Deleted() {
		return nil, fault.NotFound(typ + "/" + id)
	}
	if !d.allowed(user, ActionRead, typ, r) {
		return nil, fault.Forbidden(fmt.Sprintf("user may not read %s/%s", typ, id))
	}
	return r, nil
}

// ListContent returns all non-deleted records of a type matching the
// filter, in creation order.
func (d *Dispatcher) ListContent(typ string, filters map[string]any, user User) ([]*record.Record, error) {
	if _, err := d.spec(typ); err != nil {
		return nil, err
	}
	all, err := d.files.Find(typ, filters)
	if err != nil {
		return nil, err
	}
	visible := make([]*record.Record, 0, len(all))
	for _, r := range all {
		if r.Deleted() || !d.allowed(user, ActionRead, typ, r) {
			continue
		}
		visible = append(visible, r)
	}
	return visible, nil
}

// UpdateContent applies updates to a record: permission gate, state
// transition validation, pre-update hook, enum and uniqueness
// validation, save with a fresh updated_at.
func (d *Dispatcher) UpdateContent(typ, id string, updates map[string]any, user User) (*record.Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	spec, err := d.spec(typ)
	if err != nil {
		return nil, err
	}
	current, err := d.files.Load(typ, id)
	if err != nil {
		return nil, err
	}
	if current.Deleted() {
		return nil, fault.NotFound(typ + "/" + id)
	}
	if !d.allowed(user, ActionUpdate, typ, current) {
		return nil, fault.Forbidden(fmt.Sprintf("user may not update %s/%s", typ, id))
	}

	for field := range spec.Transitions {
		next, ok := updates[field].(string)
		if !ok {
			continue
		}
		if err := spec.CheckTransition(field, current.String(field), next); err != nil {
			return nil, fmt.Errorf("update %s/%s: %w", typ, id, err)
		}
	}

	env := d.env(user)
	if pre, ok := d.hooks[typ].(PreUpdater); ok {
		if err := pre.OnPreUpdate(env, current, updates); err != nil {
			return nil, fmt.Errorf("update %s/%s: %w", typ, id, err)
		}
	}

	for k, v := range updates {
		if k == "id" || k == "created_at" || k == "created_by" {
			continue // immutable
		}
		if k == "body" {
			if body, ok := v.(string); ok {
				current.Body = body
				continue
			}
		}
		current.Set(k, v)
	}

	if err := spec.CheckEnums(current); err != nil {
		return nil, fmt.Errorf("update %s/%s: %w", typ, id, err)
	}
	if err := d.files.CheckUnique(spec.Unique, current, current.ID); err != nil {
		return nil, fmt.Errorf("update %s/%s: %w", typ, id, err)
	}

	current.Set("updated_at", record.Now().Format(timeLayout))
	if err := d.files.Save(current); err != nil {
		return nil, err
	}
	d.log.Info("content updated", "type", typ, "id", id, "user", user.ID)
	return current, nil
}

// DeleteContent destroys a record: permission gate, pre-delete integrity
// check, cascade (strictly before removal), type-specific cascade hook,
// then hard removal, or a soft delete for types that preserve history.
func (d *Dispatcher) DeleteContent(typ, id string, user User) (*record.Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	spec, err := d.spec(typ)
	if err != nil {
		return nil, err
	}
	r, err := d.files.Load(typ, id)
	if err != nil {
		return nil, err
	}
	if r.Deleted() {
		return nil, fault.NotFound(typ + "/" + id)
	}
	if !d.allowed(user, ActionDelete, typ, r) {
		return nil, fault.Forbidden(fmt.Sprintf("user may not delete %s/%s", typ, id))
	}

	env := d.env(user)
	hooks := d.hooks[typ]
	if pre, ok := hooks.(PreDeleter); ok {
		if err := pre.OnPreDelete(env, r); err != nil {
			return nil, fmt.Errorf("delete %s/%s: %w", typ, id, err)
		}
	}

	caster, hasCaster := hooks.(DeleteCascader)

	if spec.SoftDelete {
		// Soft-deleted types keep their relations so history stays
		// replayable; the cascade hook runs after the stamp lands and
		// sees the record as deleted.
		r.Set("deleted_at", record.Now().Format(timeLayout))
		if err := d.files.Save(r); err != nil {
			return nil, err
		}
		if hasCaster {
			if err := caster.OnDeleteCascade(env, r); err != nil {
				return r, fmt.Errorf("delete %s/%s: %w", typ, id, err)
			}
		}
	} else {
		// Cascade runs while the record still resolves; a cascade
		// failure leaves the primary record intact rather than
		// orphaning dependents.
		if err := d.cascade.Run(r); err != nil {
			return nil, err
		}
		if hasCaster {
			if err := caster.OnDeleteCascade(env, r); err != nil {
				return nil, fmt.Errorf("delete %s/%s: %w", typ, id, err)
			}
		}
		if err := d.files.Delete(typ, id); err != nil {
			return nil, err
		}
	}
	d.log.Info("content deleted", "type", typ, "id", id, "user", user.ID, "soft", spec.SoftDelete)
	return r, nil
}

// spec resolves a content type or fails with a validation fault.
func (d *Dispatcher) spec(typ string) (*schema.ContentSpec, error) {
	spec, ok := d.cfg.ContentSpec(typ)
	if !ok {
		return nil, fault.Validation(fmt.Sprintf("unknown content type %q", typ), "type")
	}
	return spec, nil
}
