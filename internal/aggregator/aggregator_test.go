package aggregator

import (
	"testing"

	"voice-geo-go/internal/geo"
	"voice-geo-go/internal/types"
)

func TestAddAndTop(t *testing.T) {
	var in Insight
	chicago := types.ResolvedLocationSet{{Location: "downtown Chicago", Importance: 0.6}}
	in.Add([]geo.Outcome{{State: geo.StateAccepted}, {State: geo.StateRejected}}, chicago, false)
	in.Add([]geo.Outcome{{State: geo.StateAccepted}}, append(chicago, types.LocationCandidate{Location: "Miami"}), false)
	in.Add(nil, nil, true)

	if in.Runs != 3 || in.Failures != 1 {
		t.Errorf("runs=%d failures=%d", in.Runs, in.Failures)
	}
	if in.OutcomesByState["accepted"] != 2 || in.OutcomesByState["rejected_by_filter"] != 1 {
		t.Errorf("outcomes = %v", in.OutcomesByState)
	}
	top := in.TopLocations(5)
	if len(top) != 2 || top[0] != "downtown Chicago" || top[1] != "Miami" {
		t.Errorf("top = %v", top)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	in := New()
	in.Add(nil, types.ResolvedLocationSet{{Location: "Seattle"}}, false)
	c := in.Clone()
	in.Add(nil, types.ResolvedLocationSet{{Location: "Seattle"}}, false)
	if c.LocationCounts["Seattle"] != 1 || in.LocationCounts["Seattle"] != 2 {
		t.Errorf("clone shares state: %v vs %v", c.LocationCounts, in.LocationCounts)
	}
}
