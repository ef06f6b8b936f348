package relation

import (
	"fmt"

	"github.com/jamhub/jamhub/internal/record"
)

// Update applies the updates to every relation matching the filter and
// returns the updated set. Enum-valued attributes are validated.
//
// A group_user transition to accepted stamps joined_at if unset; any
// group_user status change stamps status_changed_at.
func (s *Store) Update(typ string, filters, updates map[string]any) ([]*record.Record, error) {
	spec, err := s.spec(typ)
	if err != nil {
		return nil, err
	}

	matches, err := s.files.Find(typ, filters)
	if err != nil {
		return nil, err
	}

	updated := make([]*record.Record, 0, len(matches))
	for _, rel := range matches {
		for k, v := range updates {
			rel.Set(k, v)
		}
		if err := spec.CheckEnums(rel); err != nil {
			return nil, fmt.Errorf("update %s: %w", typ, err)
		}
		if typ == "group_user" {
			applyMembershipStamps(rel, updates)
		}
		rel.Set("updated_at", record.Now().Format(timeLayout))
		if err := s.files.Save(rel); err != nil {
			return nil, err
		}
		updated = append(updated, rel)
	}
	return updated, nil
}

// applyMembershipStamps maintains group_user membership timestamps.
func applyMembershipStamps(rel *record.Record, updates map[string]any) {
	if _, changed := updates["status"]; !changed {
		return
	}
	now := record.Now().Format(timeLayout)
	if rel.String("status") == "accepted" && rel.String("joined_at") == "" {
		rel.Set("joined_at", now)
	}
	rel.Set("status_changed_at", now)
}

// Delete removes every relation matching the filter and returns the
// removed set. Removing target_interaction links triggers cache
// recomputation on the affected targets.
func (s *Store) Delete(typ string, filters map[string]any) ([]*record.Record, error) {
	if _, err := s.spec(typ); err != nil {
		return nil, err
	}

	matches, err := s.files.Find(typ, filters)
	if err != nil {
		return nil, err
	}

	type target struct{ typ, id string }
	affected := make(map[target]bool)

	for _, rel := range matches {
		if err := s.files.Delete(typ, rel.ID); err != nil {
			return nil, err
		}
		if typ == "target_interaction" {
			affected[target{rel.String("target_type"), rel.String("target_id")}] = true
		}
	}

	if s.cache != nil {
		for t := range affected {
			if err := s.cache.UpdateCacheStats(t.typ, t.id); err != nil {
				s.log.Warn("cache recompute failed",
					"target_type", t.typ, "target_id", t.id, "error", err)
			}
		}
	}

	s.log.Debug("relations deleted", "type", typ, "count", len(matches))
	return matches, nil
}
