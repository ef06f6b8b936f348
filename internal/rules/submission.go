package rules

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/jamhub/jamhub/internal/fault"
	"github.com/jamhub/jamhub/internal/record"
)

// CheckSubmission validates a category_post insert against every rule
// attached to the category. Per rule, the checks run in a fixed order:
// time window, max_submissions, submission_format, min_team_size. The
// first failure aborts with a validation fault naming the rule.
func (e *Evaluator) CheckSubmission(categoryID, postID, userID string) error {
	rules, err := e.categoryRules(categoryID)
	if err != nil {
		return err
	}
	for _, rule := range rules {
		if err := e.checkWindow(rule); err != nil {
			return err
		}
		if err := e.checkMaxSubmissions(rule, categoryID, userID); err != nil {
			return err
		}
		if err := e.checkFormat(rule, postID); err != nil {
			return err
		}
		if err := e.checkMinTeamSize(rule, categoryID, userID); err != nil {
			return err
		}
	}
	return nil
}

// checkWindow requires now to lie within [submission_start,
// submission_deadline]. Either bound may be absent.
func (e *Evaluator) checkWindow(rule *record.Record) error {
	now := e.now()
	if start, ok := rule.Time("submission_start"); ok && now.Before(start) {
		return ruleFault(rule, "submission_start", "submission window has not opened")
	}
	if deadline, ok := rule.Time("submission_deadline"); ok && now.After(deadline) {
		return ruleFault(rule, "submission_deadline", "submission deadline has passed")
	}
	return nil
}

// checkMaxSubmissions counts the user's non-deleted posts already linked
// to the category.
func (e *Evaluator) checkMaxSubmissions(rule *record.Record, categoryID, userID string) error {
	limit, ok := rule.Int("max_submissions")
	if !ok {
		return nil
	}
	links, err := e.files.Find("category_post", map[string]any{"category_id": categoryID})
	if err != nil {
		return err
	}
	count := 0
	for _, link := range links {
		post, err := e.files.Load("post", link.String("post_id"))
		if err != nil {
			if fault.IsNotFound(err) {
				continue
			}
			return err
		}
		if post.Deleted() || post.String("created_by") != userID {
			continue
		}
		count++
	}
	if count >= limit {
		return ruleFault(rule, "max_submissions",
			fmt.Sprintf("submission limit of %d reached", limit))
	}
	return nil
}

// checkFormat requires every attached resource's file extension to be in
// the rule's allowed list, and at least one attachment to exist.
func (e *Evaluator) checkFormat(rule *record.Record, postID string) error {
	allowed := stringList(rule.Fields["submission_format"])
	if len(allowed) == 0 {
		return nil
	}
	attachments, err := e.files.Find("resource", map[string]any{"post_id": postID})
	if err != nil {
		return err
	}
	checked := 0
	for _, res := range attachments {
		if res.Deleted() {
			continue
		}
		ext := strings.TrimPrefix(filepath.Ext(res.String("filename")), ".")
		if !slices.Contains(allowed, strings.ToLower(ext)) {
			return ruleFault(rule, "submission_format",
				fmt.Sprintf("attachment %q is not an allowed format %v", res.String("filename"), allowed))
		}
		checked++
	}
	if checked == 0 {
		return ruleFault(rule, "submission_format",
			fmt.Sprintf("submission requires an attachment in format %v", allowed))
	}
	return nil
}

// checkMinTeamSize requires the submitter's group to have enough accepted
// members. The group is inferred from the category's registered groups:
// the one where the submitter is an accepted member.
func (e *Evaluator) checkMinTeamSize(rule *record.Record, categoryID, userID string) error {
	min, ok := rule.Int("min_team_size")
	if !ok {
		return nil
	}
	groupID, err := e.submitterGroup(categoryID, userID)
	if err != nil {
		return err
	}
	if groupID == "" {
		if min > 1 {
			return ruleFault(rule, "min_team_size",
				fmt.Sprintf("submitter has no team registered to the category, %d members required", min))
		}
		return nil
	}
	count, err := e.acceptedMemberCount(groupID)
	if err != nil {
		return err
	}
	if count < min {
		return ruleFault(rule, "min_team_size",
			fmt.Sprintf("team has %d accepted members, %d required", count, min))
	}
	return nil
}

// submitterGroup finds the category-registered group the user is an
// accepted member of. Returns "" when the user has none.
func (e *Evaluator) submitterGroup(categoryID, userID string) (string, error) {
	links, err := e.files.Find("category_group", map[string]any{
		"category_id": categoryID,
		"status":      "registered",
	})
	if err != nil {
		return "", err
	}
	for _, link := range links {
		groupID := link.String("group_id")
		members, err := e.files.Find("group_user", map[string]any{
			"group_id": groupID,
			"user_id":  userID,
			"status":   "accepted",
		})
		if err != nil {
			return "", err
		}
		if len(members) > 0 {
			return groupID, nil
		}
	}
	return "", nil
}

// ruleFault builds the deny fault naming the rule and constraint.
func ruleFault(rule *record.Record, constraint, message string) error {
	return fault.Validation(
		fmt.Sprintf("rule %q: %s", rule.String("name"), message), constraint,
	).With("rule", rule.ID)
}

// stringList coerces a YAML sequence field into []string, lowercased.
func stringList(v any) []string {
	seq, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(seq))
	for _, item := range seq {
		if s, ok := item.(string); ok {
			out = append(out, strings.ToLower(s))
		}
	}
	return out
}
