package content

import "github.com/jamhub/jamhub/internal/record"

// groupHooks inserts the creator's owner membership once the group file
// exists. Owner memberships are always accepted and stamp joined_at.
type groupHooks struct{}

func (groupHooks) ContentType() string { return "group" }

func (groupHooks) OnPostCreate(env *Env, r *record.Record) error {
	creator := r.String("created_by")
	if creator == "" {
		return nil
	}
	_, err := env.Relations.Create("group_user", map[string]any{
		"group_id": r.ID,
		"user_id":  creator,
		"role":     "owner",
	})
	return err
}
