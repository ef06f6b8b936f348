package rules

import "github.com/jamhub/jamhub/internal/record"

// CheckPublish validates a post's transition to published against the
// publish policy of every rule linked to the post's categories.
//
// Per rule carrying a policy: allow_public true permits publishing;
// otherwise require_review true tells the caller to route through review
// instead; otherwise publishing is rejected outright.
func (e *Evaluator) CheckPublish(postID string) error {
	links, err := e.files.Find("category_post", map[string]any{"post_id": postID})
	if err != nil {
		return err
	}
	for _, link := range links {
		rules, err := e.categoryRules(link.String("category_id"))
		if err != nil {
			return err
		}
		for _, rule := range rules {
			if err := checkPublishPolicy(rule); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkPublishPolicy(rule *record.Record) error {
	hasPolicy := rule.Has("allow_public") || rule.Has("require_review")
	if !hasPolicy {
		return nil
	}
	if rule.Bool("allow_public") {
		return nil
	}
	if rule.Bool("require_review") {
		return ruleFault(rule, "require_review",
			"direct publishing is not allowed, submit for review instead")
	}
	return ruleFault(rule, "allow_public", "publishing is not allowed")
}
