package aggregate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rikseotools/vence/internal/model"
)

func cand(id string, priority int, at time.Time, src model.SourceName) model.Candidate {
	return model.Candidate{ID: id, Priority: priority, CreatedAt: at, Source: src, Title: string(src)}
}

func TestAggregateOrdersAndBuckets(t *testing.T) {
	now := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	in := map[model.SourceName][]model.Candidate{
		model.SourceMotivation:  {cand("m", 45, now, model.SourceMotivation)},
		model.SourceRegressions: {cand("r", 95, now, model.SourceRegressions)},
		model.SourceArticles: {
			cand("a-old", 85, now.Add(-time.Hour), model.SourceArticles),
			cand("a-new", 85, now, model.SourceArticles),
		},
		model.SourceAchievement: {cand("s", 60, now, model.SourceAchievement)},
	}
	in[model.SourceMotivation][0].IsRead = true

	res := Aggregate(in)
	var got []string
	for _, c := range res.Items {
		got = append(got, c.ID)
	}
	assert.Equal(t, []string{"r", "a-new", "a-old", "s", "m"}, got)
	assert.Equal(t, 4, res.UnreadCount)
	assert.Len(t, res.Buckets[BucketCritical], 1)
	assert.Len(t, res.Buckets[BucketImportant], 2)
	assert.Len(t, res.Buckets[BucketRecommendations], 1)
	assert.Len(t, res.Buckets[BucketInfo], 1)
}

func TestAggregateFirstSourceWins(t *testing.T) {
	now := time.Now()
	in := map[model.SourceName][]model.Candidate{
		model.SourceStatic:   {cand("dup", 72, now, model.SourceStatic)},
		model.SourceDisputes: {cand("dup", 72, now, model.SourceDisputes)},
		model.SourceSupport:  {cand("dup", 72, now, model.SourceSupport)},
	}
	res := Aggregate(in)
	require.Len(t, res.Items, 1)
	assert.Equal(t, model.SourceDisputes, res.Items[0].Source)
}

func TestAggregateIsDeterministic(t *testing.T) {
	now := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	in := map[model.SourceName][]model.Candidate{
		model.SourceArticles: {cand("b", 85, now, model.SourceArticles), cand("a", 85, now, model.SourceArticles)},
		model.SourceSupport:  {cand("c", 75, now, model.SourceSupport), cand("a", 75, now, model.SourceSupport)},
	}
	first := Aggregate(in)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, Aggregate(in))
	}
	assert.Equal(t, "a", first.Items[0].ID)
	assert.Equal(t, 85, first.Items[0].Priority)
}

func TestAggregateEmpty(t *testing.T) {
	res := Aggregate(nil)
	assert.Empty(t, res.Items)
	assert.NotNil(t, res.Items)
	assert.Zero(t, res.UnreadCount)
}

func TestBucketBoundaries(t *testing.T) {
	assert.Equal(t, BucketCritical, BucketOf(90))
	assert.Equal(t, BucketImportant, BucketOf(89))
	assert.Equal(t, BucketImportant, BucketOf(70))
	assert.Equal(t, BucketRecommendations, BucketOf(50))
	assert.Equal(t, BucketInfo, BucketOf(49))
}
