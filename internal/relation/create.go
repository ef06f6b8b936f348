package relation

import (
	"fmt"

	"github.com/jamhub/jamhub/internal/fault"
	"github.com/jamhub/jamhub/internal/record"
	"github.com/jamhub/jamhub/internal/schema"
)

// relPrefix is the ID prefix for relation files. Relation identity is the
// composite key; the ID only names the file.
const relPrefix = "rel"

// Create inserts a relation after the full pre-insert gauntlet:
// key completeness, enum membership, reference existence, composite-key
// uniqueness, and the relation type's own side effects (approval
// defaulting, duplicate-like rejection, block checks, cycle detection,
// prerequisite status, rule evaluation).
func (s *Store) Create(typ string, data map[string]any) (*record.Record, error) {
	spec, err := s.spec(typ)
	if err != nil {
		return nil, err
	}

	rel := record.New(typ, s.files.NewID(relPrefix))
	for k, v := range data {
		rel.Set(k, v)
	}

	if err := spec.CheckKeys(rel); err != nil {
		return nil, fmt.Errorf("create %s: %w", typ, err)
	}
	spec.ApplyDefaults(rel)
	if err := spec.CheckEnums(rel); err != nil {
		return nil, fmt.Errorf("create %s: %w", typ, err)
	}
	if err := s.checkReferences(spec, rel); err != nil {
		return nil, fmt.Errorf("create %s: %w", typ, err)
	}
	if err := s.checkDuplicateKey(spec, rel); err != nil {
		return nil, fmt.Errorf("create %s: %w", typ, err)
	}
	if err := s.preInsert(typ, rel); err != nil {
		return nil, fmt.Errorf("create %s: %w", typ, err)
	}

	rel.Set("created_at", record.Now().Format(timeLayout))
	if err := s.files.Save(rel); err != nil {
		return nil, err
	}
	s.log.Debug("relation created", "type", typ, "id", rel.ID)

	s.postInsert(typ, rel)
	return rel, nil
}

// timeLayout is RFC 3339 at second granularity; stamps round-trip as
// plain strings through the YAML header.
const timeLayout = "2006-01-02T15:04:05Z07:00"

// checkReferences verifies every referenced entity exists and is not
// soft-deleted.
func (s *Store) checkReferences(spec *schema.RelationSpec, rel *record.Record) error {
	check := func(field, contentType string) error {
		id := rel.String(field)
		target, err := s.files.Load(contentType, id)
		if err != nil {
			return err
		}
		if target.Deleted() {
			return fault.NotFound(contentType + "/" + id).With("reason", "soft-deleted")
		}
		return nil
	}
	for field, contentType := range spec.Refs {
		if err := check(field, contentType); err != nil {
			return err
		}
	}
	for field, typeField := range spec.DynamicRefs {
		if err := check(field, rel.String(typeField)); err != nil {
			return err
		}
	}
	return nil
}

// checkDuplicateKey rejects an insert whose key-field values already
// exist.
func (s *Store) checkDuplicateKey(spec *schema.RelationSpec, rel *record.Record) error {
	filters := make(map[string]any, len(spec.Keys))
	for _, field := range spec.Keys {
		filters[field] = rel.Fields[field]
	}
	existing, err := s.files.Find(rel.Type, filters)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return fault.Conflict("relation already exists", rel.Type+"/"+existing[0].ID)
	}
	return nil
}

// preInsert runs the relation type's own gate before the file is written.
func (s *Store) preInsert(typ string, rel *record.Record) error {
	switch typ {
	case "group_user":
		return s.preInsertGroupUser(rel)
	case "target_interaction":
		return s.preInsertTargetInteraction(rel)
	case "user_user":
		return s.preInsertUserUser(rel)
	case "category_category":
		return s.preInsertCategoryCategory(rel)
	case "category_group":
		return s.preInsertCategoryGroup(rel)
	case "category_post":
		return s.preInsertCategoryPost(rel)
	}
	return nil
}

// postInsert runs side effects that need the relation on disk.
// Failures are logged, not propagated: the relation itself is committed.
func (s *Store) postInsert(typ string, rel *record.Record) {
	if typ != "target_interaction" || s.cache == nil {
		return
	}
	targetType := rel.String("target_type")
	targetID := rel.String("target_id")
	if err := s.cache.UpdateCacheStats(targetType, targetID); err != nil {
		s.log.Warn("cache recompute failed",
			"target_type", targetType, "target_id", targetID, "error", err)
	}
}

// preInsertGroupUser applies membership defaults and the team-join gate.
//
// Role owner is always accepted and stamps joined_at. Other members
// default to pending when the group requires approval, accepted
// otherwise.
func (s *Store) preInsertGroupUser(rel *record.Record) error {
	if s.rules != nil {
		if err := s.rules.CheckTeamJoin(rel.String("group_id")); err != nil {
			return err
		}
	}

	now := record.Now().Format(timeLayout)
	if rel.String("role") == "owner" {
		rel.Set("status", "accepted")
		rel.Set("joined_at", now)
		return nil
	}
	if rel.String("status") == "" {
		group, err := s.files.Load("group", rel.String("group_id"))
		if err != nil {
			return err
		}
		if group.Bool("requires_approval") {
			rel.Set("status", "pending")
		} else {
			rel.Set("status", "accepted")
		}
	}
	if rel.String("status") == "accepted" {
		rel.Set("joined_at", now)
	}
	return nil
}

// preInsertTargetInteraction rejects a second "like" from the same user
// on the same target.
func (s *Store) preInsertTargetInteraction(rel *record.Record) error {
	itx, err := s.files.Load("interaction", rel.String("interaction_id"))
	if err != nil {
		return err
	}
	if itx.String("type") != "like" {
		return nil
	}

	links, err := s.files.Find("target_interaction", map[string]any{
		"target_type": rel.String("target_type"),
		"target_id":   rel.String("target_id"),
	})
	if err != nil {
		return err
	}
	for _, link := range links {
		other, err := s.files.Load("interaction", link.String("interaction_id"))
		if err != nil {
			if fault.IsNotFound(err) {
				continue // dangling link; verify CLI reports these
			}
			return err
		}
		if other.Deleted() || other.String("type") != "like" {
			continue
		}
		if other.String("created_by") == itx.String("created_by") {
			return fault.Conflict("user already liked this target", "interaction/"+other.ID).
				With("user", itx.String("created_by"))
		}
	}
	return nil
}

// preInsertUserUser rejects self-relations, and a follow when the target
// has a block relation against the source.
func (s *Store) preInsertUserUser(rel *record.Record) error {
	source := rel.String("source_user_id")
	target := rel.String("target_user_id")
	if source == target {
		return fault.Validation("self-relation is not allowed", "target_user_id")
	}
	if rel.String("relation_type") != "follow" {
		return nil
	}
	blocks, err := s.files.Find("user_user", map[string]any{
		"source_user_id": target,
		"target_user_id": source,
		"relation_type":  "block",
	})
	if err != nil {
		return err
	}
	if len(blocks) > 0 {
		return fault.Forbidden("target user has blocked the source user")
	}
	return nil
}

// preInsertCategoryCategory rejects self-edges and, for stage and
// prerequisite edges, any insert that would close a cycle in that
// relation_type's directed edge set.
func (s *Store) preInsertCategoryCategory(rel *record.Record) error {
	source := rel.String("source_category_id")
	target := rel.String("target_category_id")
	if source == target {
		return fault.Validation("self-relation is not allowed", "target_category_id")
	}
	relType := rel.String("relation_type")
	if relType != "stage" && relType != "prerequisite" {
		return nil
	}
	return s.checkEdgeCycle(relType, source, target)
}

// preInsertCategoryGroup requires every prerequisite category of the
// target category to be closed before a group registers.
func (s *Store) preInsertCategoryGroup(rel *record.Record) error {
	categoryID := rel.String("category_id")
	incoming, err := s.files.Find("category_category", map[string]any{
		"target_category_id": categoryID,
		"relation_type":      "prerequisite",
	})
	if err != nil {
		return err
	}
	for _, edge := range incoming {
		prereq, err := s.files.Load("event", edge.String("source_category_id"))
		if err != nil {
			return err
		}
		if prereq.String("status") != "closed" {
			return fault.Validation(
				fmt.Sprintf("prerequisite category %s is not closed", prereq.ID),
				"category_id",
			).With("prerequisite", prereq.ID).With("status", prereq.String("status"))
		}
	}
	return nil
}

// preInsertCategoryPost runs the submission rules for the category.
func (s *Store) preInsertCategoryPost(rel *record.Record) error {
	if s.rules == nil {
		return nil
	}
	userID := rel.String("created_by")
	if userID == "" {
		post, err := s.files.Load("post", rel.String("post_id"))
		if err != nil {
			return err
		}
		userID = post.String("created_by")
	}
	return s.rules.CheckSubmission(rel.String("category_id"), rel.String("post_id"), userID)
}

// spec resolves a relation type or fails with a validation fault.
func (s *Store) spec(typ string) (*schema.RelationSpec, error) {
	spec, ok := s.cfg.RelationSpec(typ)
	if !ok {
		return nil, fault.Validation(fmt.Sprintf("unknown relation type %q", typ), "type")
	}
	return spec, nil
}
