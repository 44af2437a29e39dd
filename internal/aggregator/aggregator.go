package aggregator

import (
	"sort"

	"voice-geo-go/internal/geo"
	"voice-geo-go/internal/types"
)

// Insight tallies results across the chunks of a live session.
type Insight struct {
	Runs            int            `json:"runs"`
	Failures        int            `json:"failures"`
	OutcomesByState map[string]int `json:"outcomes_by_state"`
	LocationCounts  map[string]int `json:"location_counts"`
}

func New() Insight {
	return Insight{OutcomesByState: map[string]int{}, LocationCounts: map[string]int{}}
}

// Add folds one run into the tally. A failed run only counts as a failure.
func (in *Insight) Add(outcomes []geo.Outcome, locs types.ResolvedLocationSet, failed bool) {
	if in.OutcomesByState == nil || in.LocationCounts == nil {
		*in = mergeInto(New(), *in)
	}
	in.Runs++
	if failed {
		in.Failures++
		return
	}
	for _, o := range outcomes {
		in.OutcomesByState[string(o.State)]++
	}
	for _, l := range locs {
		in.LocationCounts[l.Location]++
	}
}

// Clone returns a copy safe to hand to another goroutine.
func (in Insight) Clone() Insight {
	return mergeInto(New(), in)
}

// TopLocations returns up to n locations by mention count, ties by name.
func (in Insight) TopLocations(n int) []string {
	type lc struct {
		l string
		c int
	}
	var arr []lc
	for k, v := range in.LocationCounts {
		arr = append(arr, lc{k, v})
	}
	sort.Slice(arr, func(i, j int) bool {
		if arr[i].c != arr[j].c {
			return arr[i].c > arr[j].c
		}
		return arr[i].l < arr[j].l
	})
	top := []string{}
	for i := 0; i < len(arr) && i < n; i++ {
		top = append(top, arr[i].l)
	}
	return top
}

func mergeInto(dst, src Insight) Insight {
	dst.Runs, dst.Failures = src.Runs, src.Failures
	for k, v := range src.OutcomesByState {
		dst.OutcomesByState[k] = v
	}
	for k, v := range src.LocationCounts {
		dst.LocationCounts[k] = v
	}
	return dst
}
