package content

import (
	"github.com/jamhub/jamhub/internal/fault"
	"github.com/jamhub/jamhub/internal/record"
)

// interactionHooks validates reply parents and rating payloads on
// create, and recomputes target stats after the soft delete. Interaction
// links survive the delete so cache replay keeps its history.
type interactionHooks struct{}

func (interactionHooks) ContentType() string { return "interaction" }

func (interactionHooks) OnCreate(env *Env, r *record.Record) error {
	if parentID := r.String("parent_id"); parentID != "" {
		parent, err := env.Files.Load("interaction", parentID)
		if err != nil {
			return err
		}
		if parent.Deleted() {
			return fault.NotFound("interaction/" + parentID)
		}
		if parent.String("type") != "comment" {
			return fault.Validation("replies may only target comments", "parent_id")
		}
	}
	if r.String("type") == "rating" {
		values, ok := r.Fields["values"].(map[string]any)
		if !ok || len(values) == 0 {
			return fault.Validation("rating requires a values map of dimension scores", "values")
		}
	}
	return nil
}

func (interactionHooks) OnDeleteCascade(env *Env, r *record.Record) error {
	links, err := env.Files.Find("target_interaction", map[string]any{
		"interaction_id": r.ID,
	})
	if err != nil {
		return err
	}
	for _, link := range links {
		if err := env.Cache.UpdateCacheStats(link.String("target_type"), link.String("target_id")); err != nil {
			return err
		}
	}
	return nil
}
