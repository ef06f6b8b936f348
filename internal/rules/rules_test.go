package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamhub/jamhub/internal/fault"
	"github.com/jamhub/jamhub/internal/record"
	"github.com/jamhub/jamhub/internal/store"
	"github.com/jamhub/jamhub/internal/testutil"
)

type fixture struct {
	files *store.Store
	eval  *Evaluator
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	files, err := store.Open(t.TempDir(), store.WithIDGenerator(testutil.NewIDSequence()))
	require.NoError(t, err)
	return &fixture{files: files, eval: New(files, opts...)}
}

func (f *fixture) seed(t *testing.T, typ, id string, fields map[string]any) *record.Record {
	t.Helper()
	r := record.New(typ, id)
	for k, v := range fields {
		r.Set(k, v)
	}
	require.NoError(t, f.files.Save(r))
	return r
}

// attach links a rule to a category with the given priority.
func (f *fixture) attach(t *testing.T, categoryID, ruleID string, priority int) {
	t.Helper()
	f.seed(t, "category_rule", f.files.NewID("rel"), map[string]any{
		"category_id": categoryID,
		"rule_id":     ruleID,
		"priority":    priority,
	})
}

func TestCheckSubmission_NoRulesPasses(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "event", "evt_1", map[string]any{"title": "Jam"})

	require.NoError(t, f.eval.CheckSubmission("evt_1", "post_1", "user_1"))
}

func TestCheckSubmission_Window(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, WithNow(func() time.Time { return now }))
	f.seed(t, "event", "evt_1", map[string]any{"title": "Jam"})
	f.seed(t, "rule", "rule_1", map[string]any{
		"name":                "window",
		"rule_type":           "submission",
		"submission_start":    "2026-03-01T00:00:00Z",
		"submission_deadline": "2026-03-15T23:59:59Z",
	})
	f.attach(t, "evt_1", "rule_1", 1)

	require.NoError(t, f.eval.CheckSubmission("evt_1", "post_1", "user_1"))

	now = time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC)
	err := f.eval.CheckSubmission("evt_1", "post_1", "user_1")
	require.Error(t, err)
	assert.True(t, fault.IsValidation(err))
	assert.Contains(t, err.Error(), "not opened")

	now = time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	err = f.eval.CheckSubmission("evt_1", "post_1", "user_1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deadline")
}

func TestCheckSubmission_MaxSubmissions(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "event", "evt_1", map[string]any{"title": "Jam"})
	f.seed(t, "rule", "rule_1", map[string]any{
		"name":            "limit",
		"rule_type":       "submission",
		"max_submissions": 1,
	})
	f.attach(t, "evt_1", "rule_1", 1)

	require.NoError(t, f.eval.CheckSubmission("evt_1", "post_1", "user_1"))

	// An existing non-deleted submission by the same user exhausts the limit.
	f.seed(t, "post", "post_1", map[string]any{"title": "First", "created_by": "user_1"})
	f.seed(t, "category_post", f.files.NewID("rel"), map[string]any{
		"category_id": "evt_1",
		"post_id":     "post_1",
	})

	err := f.eval.CheckSubmission("evt_1", "post_2", "user_1")
	require.Error(t, err)
	assert.True(t, fault.IsValidation(err))
	assert.Contains(t, err.Error(), "limit")

	// Another user is unaffected.
	require.NoError(t, f.eval.CheckSubmission("evt_1", "post_2", "user_2"))

	// Soft-deleting the earlier post frees the slot.
	post, err := f.files.Load("post", "post_1")
	require.NoError(t, err)
	post.Set("deleted_at", "2026-01-01T00:00:00Z")
	require.NoError(t, f.files.Save(post))
	require.NoError(t, f.eval.CheckSubmission("evt_1", "post_2", "user_1"))
}

func TestCheckSubmission_Format(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "event", "evt_1", map[string]any{"title": "Jam"})
	f.seed(t, "rule", "rule_1", map[string]any{
		"name":              "format",
		"rule_type":         "submission",
		"submission_format": []any{"pdf", "zip"},
	})
	f.attach(t, "evt_1", "rule_1", 1)

	// No attachment at all fails.
	err := f.eval.CheckSubmission("evt_1", "post_1", "user_1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires an attachment")

	f.seed(t, "resource", "res_1", map[string]any{
		"name": "deck", "post_id": "post_1", "filename": "deck.PDF",
	})
	require.NoError(t, f.eval.CheckSubmission("evt_1", "post_1", "user_1"))

	f.seed(t, "resource", "res_2", map[string]any{
		"name": "demo", "post_id": "post_1", "filename": "demo.mov",
	})
	err = f.eval.CheckSubmission("evt_1", "post_1", "user_1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "demo.mov")
}

func TestCheckSubmission_MinTeamSize(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "event", "evt_1", map[string]any{"title": "Jam"})
	f.seed(t, "rule", "rule_1", map[string]any{
		"name":          "teams",
		"rule_type":     "submission",
		"min_team_size": 2,
	})
	f.attach(t, "evt_1", "rule_1", 1)
	f.seed(t, "group", "grp_1", map[string]any{"name": "Team"})
	f.seed(t, "category_group", f.files.NewID("rel"), map[string]any{
		"category_id": "evt_1", "group_id": "grp_1", "status": "registered",
	})

	// No registered team at all.
	err := f.eval.CheckSubmission("evt_1", "post_1", "user_9")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no team registered")

	// One accepted member out of two required.
	f.seed(t, "group_user", f.files.NewID("rel"), map[string]any{
		"group_id": "grp_1", "user_id": "user_1", "status": "accepted",
	})
	err = f.eval.CheckSubmission("evt_1", "post_1", "user_1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 accepted members")

	// Pending members do not count.
	f.seed(t, "group_user", f.files.NewID("rel"), map[string]any{
		"group_id": "grp_1", "user_id": "user_2", "status": "pending",
	})
	require.Error(t, f.eval.CheckSubmission("evt_1", "post_1", "user_1"))

	// A second accepted member satisfies the rule.
	f.seed(t, "group_user", f.files.NewID("rel"), map[string]any{
		"group_id": "grp_1", "user_id": "user_3", "status": "accepted",
	})
	require.NoError(t, f.eval.CheckSubmission("evt_1", "post_1", "user_1"))
}

func TestCheckSubmission_PriorityOrdersFailures(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "event", "evt_1", map[string]any{"title": "Jam"})
	f.seed(t, "rule", "rule_a", map[string]any{
		"name": "first", "rule_type": "submission", "min_team_size": 3,
	})
	f.seed(t, "rule", "rule_b", map[string]any{
		"name": "second", "rule_type": "submission",
		"submission_format": []any{"pdf"},
	})
	f.attach(t, "evt_1", "rule_a", 2)
	f.attach(t, "evt_1", "rule_b", 1)

	// rule_b has the lower priority value, so its failure wins.
	err := f.eval.CheckSubmission("evt_1", "post_1", "user_1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `rule "second"`)
}

func TestCheckTeamJoin_Capacity(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "event", "evt_1", map[string]any{"title": "Jam"})
	f.seed(t, "rule", "rule_1", map[string]any{
		"name": "cap", "rule_type": "team_join", "max_team_size": 2,
	})
	f.attach(t, "evt_1", "rule_1", 1)
	f.seed(t, "group", "grp_1", map[string]any{"name": "Team"})
	f.seed(t, "category_group", f.files.NewID("rel"), map[string]any{
		"category_id": "evt_1", "group_id": "grp_1", "status": "registered",
	})

	require.NoError(t, f.eval.CheckTeamJoin("grp_1"))

	f.seed(t, "group_user", f.files.NewID("rel"), map[string]any{
		"group_id": "grp_1", "user_id": "user_1", "status": "accepted",
	})
	require.NoError(t, f.eval.CheckTeamJoin("grp_1"))

	f.seed(t, "group_user", f.files.NewID("rel"), map[string]any{
		"group_id": "grp_1", "user_id": "user_2", "status": "accepted",
	})
	err := f.eval.CheckTeamJoin("grp_1")
	require.Error(t, err)
	assert.True(t, fault.IsValidation(err))
	assert.Contains(t, err.Error(), "2 of 2")
}

func TestCheckTeamJoin_UnregisteredGroupUnlimited(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "group", "grp_1", map[string]any{"name": "Team"})

	require.NoError(t, f.eval.CheckTeamJoin("grp_1"))
}

func TestCheckPublish_Policies(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "event", "evt_1", map[string]any{"title": "Jam"})
	f.seed(t, "post", "post_1", map[string]any{"title": "Entry"})
	f.seed(t, "category_post", f.files.NewID("rel"), map[string]any{
		"category_id": "evt_1", "post_id": "post_1",
	})

	// No policy rule: publishing is unconstrained.
	require.NoError(t, f.eval.CheckPublish("post_1"))

	rule := f.seed(t, "rule", "rule_1", map[string]any{
		"name": "policy", "rule_type": "publish", "allow_public": true,
	})
	f.attach(t, "evt_1", "rule_1", 1)
	require.NoError(t, f.eval.CheckPublish("post_1"))

	rule.Set("allow_public", false).Set("require_review", true)
	require.NoError(t, f.files.Save(rule))
	err := f.eval.CheckPublish("post_1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "review")

	rule.Set("require_review", false)
	require.NoError(t, f.files.Save(rule))
	err = f.eval.CheckPublish("post_1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not allowed")
}

func TestCategoryRules_SkipsDeleted(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "event", "evt_1", map[string]any{"title": "Jam"})
	f.seed(t, "rule", "rule_1", map[string]any{
		"name": "gone", "rule_type": "submission",
		"min_team_size": 5,
		"deleted_at":    "2026-01-01T00:00:00Z",
	})
	f.attach(t, "evt_1", "rule_1", 1)

	require.NoError(t, f.eval.CheckSubmission("evt_1", "post_1", "user_1"))
}
