// Package cache implements the derived-stats engine. Cached counters on
// a post are never incremented in place: every invocation replays all
// non-deleted interactions reachable via target_interaction links and
// rewrites the post's like_count, comment_count, and average_rating.
// Replay keeps the cached fields equal to a full recomputation by
// construction, at the cost of a linear scan per update.
package cache

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/jamhub/jamhub/internal/fault"
	"github.com/jamhub/jamhub/internal/record"
	"github.com/jamhub/jamhub/internal/store"
)

// Updater recomputes denormalized aggregates for a target record.
type Updater struct {
	files *store.Store
	log   *slog.Logger
}

// Option configures an Updater.
type Option func(*Updater)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(u *Updater) { u.log = log }
}

// New creates an Updater over the file store.
func New(files *store.Store, opts ...Option) *Updater {
	u := &Updater{files: files, log: slog.Default()}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// timeLayout is RFC 3339 at second granularity.
const timeLayout = "2006-01-02T15:04:05Z07:00"

// UpdateCacheStats recomputes a target's cached statistics.
// Defined only for posts; other target types are a no-op.
//
// like_count and comment_count are simple counts by interaction type
// (comments counted regardless of reply depth). average_rating is the
// mean of positive weighted scores over the post's scoring criteria,
// rounded to 2 decimals, or null when no rating qualifies. updated_at
// is stamped on every invocation.
func (u *Updater) UpdateCacheStats(targetType, targetID string) error {
	if targetType != "post" {
		u.log.Debug("cache stats undefined for target type", "target_type", targetType)
		return nil
	}

	post, err := u.files.Load("post", targetID)
	if err != nil {
		return fmt.Errorf("update cache stats: %w", err)
	}

	links, err := u.files.Find("target_interaction", map[string]any{
		"target_type": "post",
		"target_id":   targetID,
	})
	if err != nil {
		return err
	}

	criteria, err := u.scoringCriteria(targetID)
	if err != nil {
		return err
	}

	var likes, comments int
	var scores []float64
	for _, link := range links {
		itx, err := u.files.Load("interaction", link.String("interaction_id"))
		if err != nil {
			if fault.IsNotFound(err) {
				continue
			}
			return err
		}
		if itx.Deleted() {
			continue
		}
		switch itx.String("type") {
		case "like":
			likes++
		case "comment":
			comments++
		case "rating":
			if score, ok := weightedScore(itx, criteria); ok {
				scores = append(scores, score)
			}
		}
	}

	post.Set("like_count", likes)
	post.Set("comment_count", comments)
	if len(scores) > 0 {
		var sum float64
		for _, s := range scores {
			sum += s
		}
		post.Set("average_rating", math.Round(sum/float64(len(scores))*100)/100)
	} else {
		post.Set("average_rating", nil)
	}
	post.Set("updated_at", record.Now().Format(timeLayout))

	if err := u.files.Save(post); err != nil {
		return err
	}
	u.log.Debug("cache stats recomputed",
		"post", targetID, "likes", likes, "comments", comments, "ratings", len(scores))
	return nil
}

// scoringCriteria resolves the criteria that apply to a post via
// category_post -> category_rule -> rule.scoring_criteria. The first
// rule with criteria in enumeration order wins; which category applies
// when a post links to several with different rules has no stronger
// tie-break.
func (u *Updater) scoringCriteria(postID string) ([]criterion, error) {
	links, err := u.files.Find("category_post", map[string]any{"post_id": postID})
	if err != nil {
		return nil, err
	}
	for _, link := range links {
		ruleLinks, err := u.files.Find("category_rule", map[string]any{
			"category_id": link.String("category_id"),
		})
		if err != nil {
			return nil, err
		}
		for _, ruleLink := range ruleLinks {
			rule, err := u.files.Load("rule", ruleLink.String("rule_id"))
			if err != nil {
				if fault.IsNotFound(err) {
					continue
				}
				return nil, err
			}
			if rule.Deleted() {
				continue
			}
			if criteria := parseCriteria(rule.Fields["scoring_criteria"]); len(criteria) > 0 {
				return criteria, nil
			}
		}
	}
	return nil, nil
}

// criterion is one scoring dimension with its percentage weight.
type criterion struct {
	name   string
	weight float64
}

// parseCriteria decodes a rule's scoring_criteria sequence:
// [{name: "Innovation", weight: 60}, ...].
func parseCriteria(v any) []criterion {
	seq, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]criterion, 0, len(seq))
	for _, item := range seq {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name, _ := entry["name"].(string)
		weight, ok := asFloat(entry["weight"])
		if name == "" || !ok {
			continue
		}
		out = append(out, criterion{name: name, weight: weight})
	}
	return out
}

// weightedScore computes Σ(dimension_score × weight/100) over the
// rating's value dimensions that match a criterion name. Non-positive
// results are excluded from the average.
func weightedScore(itx *record.Record, criteria []criterion) (float64, bool) {
	values, ok := itx.Fields["values"].(map[string]any)
	if !ok || len(criteria) == 0 {
		return 0, false
	}
	var total float64
	matched := false
	for _, c := range criteria {
		raw, ok := values[c.name]
		if !ok {
			continue
		}
		score, ok := asFloat(raw)
		if !ok {
			continue
		}
		total += score * c.weight / 100
		matched = true
	}
	if !matched || total <= 0 {
		return 0, false
	}
	return total, true
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
