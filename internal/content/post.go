package content

import "github.com/jamhub/jamhub/internal/record"

// postHooks routes a transition to published through the publish rules
// of every category the post is linked to.
type postHooks struct{}

func (postHooks) ContentType() string { return "post" }

func (postHooks) OnPreUpdate(env *Env, current *record.Record, updates map[string]any) error {
	next, ok := updates["status"].(string)
	if !ok || next != "published" || current.String("status") == "published" {
		return nil
	}
	return env.Rules.CheckPublish(current.ID)
}
