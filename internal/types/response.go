package types

// EntityView is the wire shape of an Entity.
type EntityView struct {
	Entity string `json:"entity"`
	Type   string `json:"type"`
}

// Response is what the request boundary returns for one pipeline run.
type Response struct {
	Transcription Transcript          `json:"transcription"`
	Entities      []EntityView        `json:"entities"`
	Locations     ResolvedLocationSet `json:"locations"`
}

// NewResponse assembles the wire response. Nil slices are emitted as empty arrays.
func NewResponse(tr Transcript, ents []Entity, locs ResolvedLocationSet) Response {
	views := make([]EntityView, 0, len(ents))
	for _, e := range ents {
		views = append(views, EntityView{Entity: e.Text, Type: e.TypeName()})
	}
	if tr.Segments == nil {
		tr.Segments = []Segment{}
	}
	if locs == nil {
		locs = ResolvedLocationSet{}
	}
	return Response{Transcription: tr, Entities: views, Locations: locs}
}
