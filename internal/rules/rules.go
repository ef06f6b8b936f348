// Package rules implements the declarative rule engine. Rules are
// content records attached to a category via category_rule links; every
// linked rule must pass (implicit AND). Link priority orders evaluation
// only; the first failing rule aborts immediately, naming the rule and
// the violated constraint. There is no soft-fail mode: deny-only.
package rules

import (
	"log/slog"
	"sort"
	"time"

	"github.com/jamhub/jamhub/internal/record"
	"github.com/jamhub/jamhub/internal/store"
)

// Evaluator evaluates rule records against submission, team-join, and
// publish operations.
type Evaluator struct {
	files *store.Store
	log   *slog.Logger
	now   func() time.Time
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithNow replaces the clock, for tests exercising time windows.
func WithNow(now func() time.Time) Option {
	return func(e *Evaluator) { e.now = now }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(e *Evaluator) { e.log = log }
}

// New creates an Evaluator over the file store.
func New(files *store.Store, opts ...Option) *Evaluator {
	e := &Evaluator{files: files, log: slog.Default(), now: record.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// categoryRules returns the category's non-deleted rule records in link
// priority order (ascending; ties keep link insertion order).
func (e *Evaluator) categoryRules(categoryID string) ([]*record.Record, error) {
	links, err := e.files.Find("category_rule", map[string]any{"category_id": categoryID})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(links, func(i, j int) bool {
		pi, _ := links[i].Int("priority")
		pj, _ := links[j].Int("priority")
		return pi < pj
	})

	rules := make([]*record.Record, 0, len(links))
	for _, link := range links {
		rule, err := e.files.Load("rule", link.String("rule_id"))
		if err != nil {
			return nil, err
		}
		if rule.Deleted() {
			continue
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// acceptedMemberCount counts a group's accepted members.
func (e *Evaluator) acceptedMemberCount(groupID string) (int, error) {
	members, err := e.files.Find("group_user", map[string]any{
		"group_id": groupID,
		"status":   "accepted",
	})
	if err != nil {
		return 0, err
	}
	return len(members), nil
}

// groupCategories returns the IDs of categories a group is registered to.
func (e *Evaluator) groupCategories(groupID string) ([]string, error) {
	links, err := e.files.Find("category_group", map[string]any{
		"group_id": groupID,
		"status":   "registered",
	})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(links))
	for _, link := range links {
		ids = append(ids, link.String("category_id"))
	}
	return ids, nil
}
