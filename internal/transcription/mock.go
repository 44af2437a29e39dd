package transcription

import (
	"context"

	"voice-geo-go/internal/types"
)

// Mock returns a canned dispatch transcript for offline demos.
type Mock struct{}

func (Mock) Transcribe(_ context.Context, pcm types.PCM) (types.Transcript, error) {
	return Normalize(types.Transcript{
		Language: "en",
		Segments: []types.Segment{
			{Text: "Units respond to a robbery near Main Street.", Start: 0, End: 2.8},
			{Text: "Suspect last seen heading toward downtown Chicago.", Start: 2.8, End: 6.1},
		},
	}), nil
}
