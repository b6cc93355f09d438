package analytics

import (
	"cmp"
	"maps"
	"slices"
	"time"

	"github.com/IshaanNene/mediabias/internal/types"
)

// GroupAll is the group key of buckets summed over every publisher.
const GroupAll = "all"

// AggregationBucket holds the summed party counts of one group in one
// period.
type AggregationBucket struct {
	GroupKey    string
	PeriodStart time.Time
	Counts      map[string]int
}

// Count returns the count for party, zero when absent.
func (b AggregationBucket) Count(party string) int {
	return b.Counts[party]
}

type bucketKey struct {
	period time.Time
	group  string
}

// Aggregate sums records into one bucket per (period, publisher), sorted
// by period and then publisher. Record periods are re-derived with g so
// records bucketed under another configuration still land correctly.
func Aggregate(records []types.PartyMentionRecord, g Granularity) []AggregationBucket {
	index := make(map[bucketKey]int)
	var buckets []AggregationBucket

	for _, r := range records {
		key := bucketKey{period: g.PeriodStart(r.PeriodStart), group: r.Publisher}
		i, ok := index[key]
		if !ok {
			i = len(buckets)
			index[key] = i
			buckets = append(buckets, AggregationBucket{
				GroupKey:    key.group,
				PeriodStart: key.period,
				Counts:      make(map[string]int, len(r.Counts)),
			})
		}
		for party, n := range r.Counts {
			buckets[i].Counts[party] += n
		}
	}

	sortBuckets(buckets)
	return buckets
}

func sortBuckets(buckets []AggregationBucket) {
	slices.SortFunc(buckets, func(a, b AggregationBucket) int {
		if c := a.PeriodStart.Compare(b.PeriodStart); c != 0 {
			return c
		}
		return cmp.Compare(a.GroupKey, b.GroupKey)
	})
}

// cloneBuckets deep-copies buckets so callers cannot mutate a snapshot.
func cloneBuckets(buckets []AggregationBucket) []AggregationBucket {
	out := make([]AggregationBucket, len(buckets))
	for i, b := range buckets {
		out[i] = AggregationBucket{
			GroupKey:    b.GroupKey,
			PeriodStart: b.PeriodStart,
			Counts:      maps.Clone(b.Counts),
		}
	}
	return out
}
