package extractor

import (
	"context"
	"sort"
	"strings"

	"voice-geo-go/internal/types"
)

// Mock tags phrases from a fixed gazetteer, in order of appearance.
type Mock struct {
	Gazetteer map[string]string
}

func NewMock() *Mock {
	return &Mock{Gazetteer: map[string]string{
		"main street":      "LOC",
		"downtown chicago": "GPE",
		"portland":         "GPE",
		"seattle":          "GPE",
		"miami":            "GPE",
		"police":           "ORG",
	}}
}

func (m *Mock) Extract(_ context.Context, text string) ([]types.Entity, error) {
	lower := strings.ToLower(text)
	src := text
	if len(lower) != len(text) {
		src = lower
	}
	type hit struct {
		at    int
		text  string
		label string
	}
	var hits []hit
	for phrase, label := range m.Gazetteer {
		from := 0
		for {
			i := strings.Index(lower[from:], phrase)
			if i < 0 {
				break
			}
			at := from + i
			hits = append(hits, hit{at: at, text: src[at : at+len(phrase)], label: label})
			from = at + len(phrase)
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].at < hits[j].at })
	out := make([]types.Entity, 0, len(hits))
	for _, h := range hits {
		out = append(out, types.NewEntity(h.text, h.label))
	}
	return out, nil
}
