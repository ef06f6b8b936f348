package content

import "github.com/jamhub/jamhub/internal/record"

// userHooks guards user deletion: a user who still owns events, posts,
// resources, rules, or groups cannot be removed.
type userHooks struct{}

func (userHooks) ContentType() string { return "user" }

func (userHooks) OnPreDelete(env *Env, r *record.Record) error {
	return env.Cascade.CheckUserDeletable(r.ID)
}
