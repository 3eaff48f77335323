package aggregate

import (
	"sort"

	"github.com/rikseotools/vence/internal/model"
)

// Bucket is a display band derived from priority.
type Bucket string

const (
	BucketCritical        Bucket = "critical"
	BucketImportant       Bucket = "important"
	BucketRecommendations Bucket = "recommendations"
	BucketInfo            Bucket = "info"
)

// BucketOf maps a priority onto its band.
func BucketOf(priority int) Bucket {
	switch {
	case priority >= 90:
		return BucketCritical
	case priority >= 70:
		return BucketImportant
	case priority >= 50:
		return BucketRecommendations
	default:
		return BucketInfo
	}
}

type Result struct {
	Items       []model.Candidate            `json:"items"`
	UnreadCount int                          `json:"unread_count"`
	Buckets     map[Bucket][]model.Candidate `json:"buckets"`
}

// Aggregate merges per-source candidates into one ordered feed. Sources are
// visited in name order and the first occurrence of an id wins, so the
// output only depends on the input.
func Aggregate(bySource map[model.SourceName][]model.Candidate) Result {
	names := make([]string, 0, len(bySource))
	for name := range bySource {
		names = append(names, string(name))
	}
	sort.Strings(names)

	seen := make(map[string]bool)
	var items []model.Candidate
	for _, name := range names {
		for _, c := range bySource[model.SourceName(name)] {
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			items = append(items, c)
		}
	}
	model.SortCandidates(items)

	res := Result{
		Items: items,
		Buckets: map[Bucket][]model.Candidate{
			BucketCritical:        {},
			BucketImportant:       {},
			BucketRecommendations: {},
			BucketInfo:            {},
		},
	}
	if res.Items == nil {
		res.Items = []model.Candidate{}
	}
	for _, c := range items {
		if !c.IsRead {
			res.UnreadCount++
		}
		b := BucketOf(c.Priority)
		res.Buckets[b] = append(res.Buckets[b], c)
	}
	return res
}
