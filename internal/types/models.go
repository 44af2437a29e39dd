package types

import "strings"

// Provenance records where an AudioClip came from.
type Provenance string

const (
	ProvenanceUpload     Provenance = "upload"
	ProvenanceStream     Provenance = "stream"
	ProvenanceMicrophone Provenance = "microphone"
	ProvenanceSpool      Provenance = "spool"
)

// AudioClip is the raw payload acquired by the ingestor. It is not mutated
// after Fetch returns it.
type AudioClip struct {
	Data       []byte     `json:"-"`
	Format     string     `json:"format"`
	Provenance Provenance `json:"provenance"`
	Source     string     `json:"source,omitempty"`
	Truncated  bool       `json:"truncated,omitempty"`
}

// PCM is mono audio with samples in [-1, 1].
type PCM struct {
	Samples    []float32
	SampleRate int
}

// Duration in seconds.
func (p PCM) Duration() float64 {
	if p.SampleRate <= 0 {
		return 0
	}
	return float64(len(p.Samples)) / float64(p.SampleRate)
}

type Segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type Transcript struct {
	FullText string    `json:"full_text"`
	Segments []Segment `json:"segments"`
	Language string    `json:"language"`
}

// EntityKind is the closed set of semantic categories the resolver reasons about.
type EntityKind string

const (
	KindPlace        EntityKind = "Place"
	KindLocation     EntityKind = "Location"
	KindFacility     EntityKind = "Facility"
	KindOrganization EntityKind = "Organization"
	KindPerson       EntityKind = "Person"
	KindOther        EntityKind = "Other"
)

// KindFromLabel maps a tagger label (GPE, LOC, FAC, ...) or a kind name to an EntityKind.
func KindFromLabel(label string) EntityKind {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "GPE", "PLACE":
		return KindPlace
	case "LOC", "LOCATION":
		return KindLocation
	case "FAC", "FACILITY":
		return KindFacility
	case "ORG", "ORGANIZATION":
		return KindOrganization
	case "PERSON", "PER":
		return KindPerson
	default:
		return KindOther
	}
}

// IsGeographic reports whether entities of this kind are worth geocoding.
func (k EntityKind) IsGeographic() bool {
	switch k {
	case KindPlace, KindLocation, KindFacility:
		return true
	}
	return false
}

type Entity struct {
	Text  string
	Kind  EntityKind
	Label string // raw tagger label, e.g. "GPE"
}

// NewEntity builds an Entity from a tagger label.
func NewEntity(text, label string) Entity {
	return Entity{Text: text, Kind: KindFromLabel(label), Label: label}
}

// TypeName is the label reported to clients.
func (e Entity) TypeName() string {
	if e.Label != "" {
		return e.Label
	}
	return string(e.Kind)
}

type LocationCandidate struct {
	Location   string  `json:"location"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Type       string  `json:"type"`
	Importance float64 `json:"importance"`
}

// ResolvedLocationSet is ordered by importance descending and holds at most ten entries.
type ResolvedLocationSet []LocationCandidate
