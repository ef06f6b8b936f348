// Package cascade propagates deletion of an owning record to its
// dependents: interactions, their target links, and every relation
// referencing the deleted ID in any role. Cascades run strictly before
// the owning file is removed, so lookups during the cascade still
// resolve and a cascade failure leaves the primary record intact.
package cascade

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/jamhub/jamhub/internal/fault"
	"github.com/jamhub/jamhub/internal/record"
	"github.com/jamhub/jamhub/internal/schema"
	"github.com/jamhub/jamhub/internal/store"
)

// CacheUpdater recomputes derived stats for targets whose interaction
// links were removed by a cascade.
type CacheUpdater interface {
	UpdateCacheStats(targetType, targetID string) error
}

// Engine executes soft and hard delete cascades.
type Engine struct {
	files *store.Store
	cfg   *schema.Config
	cache CacheUpdater
	log   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithCacheUpdater injects the derived-stats engine.
func WithCacheUpdater(cache CacheUpdater) Option {
	return func(e *Engine) { e.cache = cache }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// New creates a cascade engine over the file store and tables.
func New(files *store.Store, cfg *schema.Config, opts ...Option) *Engine {
	e := &Engine{files: files, cfg: cfg, log: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

// ownedTypes are the content types a user must no longer own before the
// user record can be deleted.
var ownedTypes = []string{"event", "post", "resource", "rule", "group"}

// maxNamedOffenders caps how many owned records a refusal names.
const maxNamedOffenders = 5

// CheckUserDeletable refuses user deletion while the user still owns
// content, naming up to 5 offending records in the conflict.
func (e *Engine) CheckUserDeletable(userID string) error {
	var owned []string
	for _, typ := range ownedTypes {
		records, err := e.files.Find(typ, map[string]any{"created_by": userID})
		if err != nil {
			return err
		}
		for _, r := range records {
			if r.Deleted() {
				continue
			}
			owned = append(owned, typ+"/"+r.ID)
			if len(owned) == maxNamedOffenders {
				return ownedConflict(userID, owned)
			}
		}
	}
	if len(owned) > 0 {
		return ownedConflict(userID, owned)
	}
	return nil
}

func ownedConflict(userID string, owned []string) error {
	return fault.Conflict(
		fmt.Sprintf("user still owns %d or more records: %s",
			len(owned), strings.Join(owned, ", ")),
		"user/"+userID,
	).With("owned", strings.Join(owned, ","))
}

// Run executes the cascade for a record about to be deleted.
// The record's own file is untouched; the dispatcher removes it after
// the cascade succeeds.
//
// Resources soft-cascade: reachable interactions get deleted_at and the
// links are dropped, preserving history for replay. Events, posts, and
// users hard-cascade: interactions are permanently removed, comment
// replies depth-first. Every relation referencing the deleted ID in any
// role goes away in both cases; for events that includes
// category_category edges in both directions.
func (e *Engine) Run(r *record.Record) error {
	affected := newTargetSet()

	switch r.Type {
	case "resource":
		if err := e.softCascade(r.Type, r.ID, affected); err != nil {
			return fmt.Errorf("cascade %s/%s: %w", r.Type, r.ID, err)
		}
	case "event", "post":
		if err := e.hardCascadeTarget(r.Type, r.ID, affected); err != nil {
			return fmt.Errorf("cascade %s/%s: %w", r.Type, r.ID, err)
		}
	case "user":
		if err := e.hardCascadeAuthor(r.ID, affected); err != nil {
			return fmt.Errorf("cascade %s/%s: %w", r.Type, r.ID, err)
		}
	}

	if err := e.removeReferencingRelations(r.Type, r.ID); err != nil {
		return fmt.Errorf("cascade %s/%s: %w", r.Type, r.ID, err)
	}

	// The deleted record itself needs no recompute; everything else
	// whose links went away does.
	affected.remove(r.Type, r.ID)
	e.recompute(affected)
	return nil
}

// softCascade stamps deleted_at on every interaction reachable via
// target_interaction, then removes those links.
func (e *Engine) softCascade(targetType, targetID string, affected *targetSet) error {
	links, err := e.files.Find("target_interaction", map[string]any{
		"target_type": targetType,
		"target_id":   targetID,
	})
	if err != nil {
		return err
	}
	now := record.Now().Format(timeLayout)
	for _, link := range links {
		itx, err := e.files.Load("interaction", link.String("interaction_id"))
		if err == nil && !itx.Deleted() {
			itx.Set("deleted_at", now)
			if err := e.files.Save(itx); err != nil {
				return err
			}
		} else if err != nil && !fault.IsNotFound(err) {
			return err
		}
		if err := e.files.Delete("target_interaction", link.ID); err != nil && !fault.IsNotFound(err) {
			return err
		}
	}
	return nil
}

// hardCascadeTarget permanently removes every interaction reachable via
// target_interaction on the given target.
func (e *Engine) hardCascadeTarget(targetType, targetID string, affected *targetSet) error {
	links, err := e.files.Find("target_interaction", map[string]any{
		"target_type": targetType,
		"target_id":   targetID,
	})
	if err != nil {
		return err
	}
	for _, link := range links {
		if err := e.removeInteraction(link.String("interaction_id"), affected); err != nil {
			return err
		}
	}
	return nil
}

// hardCascadeAuthor permanently removes every interaction the user
// created. Their links may point at records that survive the cascade;
// those targets are collected for recompute.
func (e *Engine) hardCascadeAuthor(userID string, affected *targetSet) error {
	interactions, err := e.files.Find("interaction", map[string]any{"created_by": userID})
	if err != nil {
		return err
	}
	for _, itx := range interactions {
		if err := e.removeInteraction(itx.ID, affected); err != nil {
			return err
		}
	}
	return nil
}

// removeInteraction deletes one interaction, its child replies
// depth-first, and every target_interaction link referencing it.
func (e *Engine) removeInteraction(interactionID string, affected *targetSet) error {
	replies, err := e.files.Find("interaction", map[string]any{"parent_id": interactionID})
	if err != nil {
		return err
	}
	for _, reply := range replies {
		if err := e.removeInteraction(reply.ID, affected); err != nil {
			return err
		}
	}

	links, err := e.files.Find("target_interaction", map[string]any{
		"interaction_id": interactionID,
	})
	if err != nil {
		return err
	}
	for _, link := range links {
		affected.add(link.String("target_type"), link.String("target_id"))
		if err := e.files.Delete("target_interaction", link.ID); err != nil && !fault.IsNotFound(err) {
			return err
		}
	}

	if err := e.files.Delete("interaction", interactionID); err != nil && !fault.IsNotFound(err) {
		return err
	}
	return nil
}

// removeReferencingRelations removes every relation record referencing
// the deleted ID in any role, for every relation type that can reference
// the deleted record's content type. The walk is driven by the relation
// tables, so new relation types join the cascade automatically.
func (e *Engine) removeReferencingRelations(contentType, id string) error {
	for relType, spec := range e.cfg.Relations {
		for field, refType := range spec.Refs {
			if refType != contentType {
				continue
			}
			if err := e.deleteMatching(relType, map[string]any{field: id}); err != nil {
				return err
			}
		}
		for field, typeField := range spec.DynamicRefs {
			if err := e.deleteMatching(relType, map[string]any{
				typeField: contentType,
				field:     id,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) deleteMatching(relType string, filters map[string]any) error {
	matches, err := e.files.Find(relType, filters)
	if err != nil {
		return err
	}
	for _, rel := range matches {
		if err := e.files.Delete(relType, rel.ID); err != nil && !fault.IsNotFound(err) {
			return err
		}
	}
	return nil
}

// recompute refreshes cached stats for every collected target.
// Failures are logged; the cascade itself has already committed.
func (e *Engine) recompute(affected *targetSet) {
	if e.cache == nil {
		return
	}
	for t := range affected.members {
		if err := e.cache.UpdateCacheStats(t.typ, t.id); err != nil {
			e.log.Warn("cache recompute failed after cascade",
				"target_type", t.typ, "target_id", t.id, "error", err)
		}
	}
}

type targetKey struct{ typ, id string }

type targetSet struct{ members map[targetKey]bool }

func newTargetSet() *targetSet {
	return &targetSet{members: make(map[targetKey]bool)}
}

func (s *targetSet) add(typ, id string)    { s.members[targetKey{typ, id}] = true }
func (s *targetSet) remove(typ, id string) { delete(s.members, targetKey{typ, id}) }
