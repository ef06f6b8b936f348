package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamhub/jamhub/internal/fault"
	"github.com/jamhub/jamhub/internal/record"
	"github.com/jamhub/jamhub/internal/store"
	"github.com/jamhub/jamhub/internal/testutil"
)

type fixture struct {
	files   *store.Store
	updater *Updater
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	files, err := store.Open(t.TempDir(), store.WithIDGenerator(testutil.NewIDSequence()))
	require.NoError(t, err)
	return &fixture{files: files, updater: New(files)}
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

// link attaches an interaction to a post.
func (f *fixture) link(t *testing.T, postID, itxID string) {
	t.Helper()
	f.seed(t, "target_interaction", f.files.NewID("rel"), map[string]any{
		"target_type":    "post",
		"target_id":      postID,
		"interaction_id": itxID,
	})
}

func TestUpdateCacheStats_Counts(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "post", "post_1", map[string]any{"title": "Entry"})
	f.seed(t, "interaction", "itx_1", map[string]any{"type": "like", "created_by": "user_1"})
	f.seed(t, "interaction", "itx_2", map[string]any{"type": "like", "created_by": "user_2"})
	f.seed(t, "interaction", "itx_3", map[string]any{"type": "comment", "created_by": "user_1", "content": "nice"})
	for _, itx := range []string{"itx_1", "itx_2", "itx_3"} {
		f.link(t, "post_1", itx)
	}

	require.NoError(t, f.updater.UpdateCacheStats("post", "post_1"))

	post, err := f.files.Load("post", "post_1")
	require.NoError(t, err)
	likes, _ := post.Int("like_count")
	comments, _ := post.Int("comment_count")
	assert.Equal(t, 2, likes)
	assert.Equal(t, 1, comments)
	assert.Nil(t, post.Fields["average_rating"])
	assert.NotEmpty(t, post.String("updated_at"))
}

func TestUpdateCacheStats_SkipsDeletedAndDangling(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "post", "post_1", map[string]any{"title": "Entry"})
	f.seed(t, "interaction", "itx_1", map[string]any{"type": "like", "created_by": "user_1"})
	f.seed(t, "interaction", "itx_2", map[string]any{
		"type": "like", "created_by": "user_2", "deleted_at": "2026-01-01T00:00:00Z",
	})
	f.link(t, "post_1", "itx_1")
	f.link(t, "post_1", "itx_2")
	f.link(t, "post_1", "itx_gone") // dangling link, tolerated

	require.NoError(t, f.updater.UpdateCacheStats("post", "post_1"))

	post, err := f.files.Load("post", "post_1")
	require.NoError(t, err)
	likes, _ := post.Int("like_count")
	assert.Equal(t, 1, likes)
}

func TestUpdateCacheStats_WeightedAverage(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "event", "evt_1", map[string]any{"title": "Jam"})
	f.seed(t, "post", "post_1", map[string]any{"title": "Entry"})
	f.seed(t, "rule", "rule_1", map[string]any{
		"name":      "judging",
		"rule_type": "scoring",
		"scoring_criteria": []any{
			map[string]any{"name": "Innovation", "weight": 60},
			map[string]any{"name": "Quality", "weight": 40},
		},
	})
	f.seed(t, "category_post", f.files.NewID("rel"), map[string]any{
		"category_id": "evt_1", "post_id": "post_1",
	})
	f.seed(t, "category_rule", f.files.NewID("rel"), map[string]any{
		"category_id": "evt_1", "rule_id": "rule_1",
	})
	f.seed(t, "interaction", "itx_1", map[string]any{
		"type": "rating", "created_by": "user_1",
		"values": map[string]any{"Innovation": 80, "Quality": 50},
	})
	f.link(t, "post_1", "itx_1")

	require.NoError(t, f.updater.UpdateCacheStats("post", "post_1"))

	// 80*0.6 + 50*0.4 = 68
	post, err := f.files.Load("post", "post_1")
	require.NoError(t, err)
	avg, ok := post.Float("average_rating")
	require.True(t, ok)
	assert.InDelta(t, 68.0, avg, 0.001)
}

func TestUpdateCacheStats_MeanOfSeveralRatings(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "event", "evt_1", map[string]any{"title": "Jam"})
	f.seed(t, "post", "post_1", map[string]any{"title": "Entry"})
	f.seed(t, "rule", "rule_1", map[string]any{
		"name":      "judging",
		"rule_type": "scoring",
		"scoring_criteria": []any{
			map[string]any{"name": "Overall", "weight": 100},
		},
	})
	f.seed(t, "category_post", f.files.NewID("rel"), map[string]any{
		"category_id": "evt_1", "post_id": "post_1",
	})
	f.seed(t, "category_rule", f.files.NewID("rel"), map[string]any{
		"category_id": "evt_1", "rule_id": "rule_1",
	})
	f.seed(t, "interaction", "itx_1", map[string]any{
		"type": "rating", "created_by": "user_1",
		"values": map[string]any{"Overall": 70},
	})
	f.seed(t, "interaction", "itx_2", map[string]any{
		"type": "rating", "created_by": "user_2",
		"values": map[string]any{"Overall": 75},
	})
	// Rating under an unknown dimension contributes nothing.
	f.seed(t, "interaction", "itx_3", map[string]any{
		"type": "rating", "created_by": "user_3",
		"values": map[string]any{"Vibes": 100},
	})
	for _, itx := range []string{"itx_1", "itx_2", "itx_3"} {
		f.link(t, "post_1", itx)
	}

	require.NoError(t, f.updater.UpdateCacheStats("post", "post_1"))

	post, err := f.files.Load("post", "post_1")
	require.NoError(t, err)
	avg, ok := post.Float("average_rating")
	require.True(t, ok)
	assert.InDelta(t, 72.5, avg, 0.001)
}

func TestUpdateCacheStats_RatingsWithoutCriteriaExcluded(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "post", "post_1", map[string]any{"title": "Entry"})
	f.seed(t, "interaction", "itx_1", map[string]any{
		"type": "rating", "created_by": "user_1",
		"values": map[string]any{"Overall": 90},
	})
	f.link(t, "post_1", "itx_1")

	require.NoError(t, f.updater.UpdateCacheStats("post", "post_1"))

	post, err := f.files.Load("post", "post_1")
	require.NoError(t, err)
	assert.Nil(t, post.Fields["average_rating"])
}

func TestUpdateCacheStats_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "post", "post_1", map[string]any{"title": "Entry"})
	f.seed(t, "interaction", "itx_1", map[string]any{"type": "like", "created_by": "user_1"})
	f.link(t, "post_1", "itx_1")

	require.NoError(t, f.updater.UpdateCacheStats("post", "post_1"))
	require.NoError(t, f.updater.UpdateCacheStats("post", "post_1"))

	post, err := f.files.Load("post", "post_1")
	require.NoError(t, err)
	likes, _ := post.Int("like_count")
	assert.Equal(t, 1, likes)
}

func TestUpdateCacheStats_NonPostNoOp(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.updater.UpdateCacheStats("event", "evt_missing"))
}

func TestUpdateCacheStats_MissingPost(t *testing.T) {
	f := newFixture(t)

	err := f.updater.UpdateCacheStats("post", "post_missing")
	require.Error(t, err)
	assert.True(t, fault.IsNotFound(err))
}
