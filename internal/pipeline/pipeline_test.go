package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"

	"voice-geo-go/internal/audio"
	"voice-geo-go/internal/config"
	"voice-geo-go/internal/denoise"
	"voice-geo-go/internal/extractor"
	"voice-geo-go/internal/geo"
	"voice-geo-go/internal/ingest"
	"voice-geo-go/internal/logger"
	"voice-geo-go/internal/transcription"
	"voice-geo-go/internal/types"
)

func testOrchestrator(t *testing.T) (*Orchestrator, string) {
	t.Helper()
	base := t.TempDir()
	return &Orchestrator{
		Fetcher:        ingest.NewFetcher(logger.Discard()),
		Normalizer:     audio.Normalizer{},
		Denoiser:       denoise.Noop{},
		Transcriber:    transcription.Mock{},
		Extractor:      extractor.NewMock(),
		Resolver:       geo.NewResolver(geo.NewMock(), config.DefaultPolicy(), geo.WithTiming(0, 0)),
		ScratchDir:     base,
		IngestDeadline: time.Second,
		Log:            logger.Discard(),
	}, base
}

func silence(seconds int) []byte {
	return audio.WAVBytes(types.PCM{Samples: make([]float32, 16000*seconds), SampleRate: 16000})
}

func upload(data []byte) ingest.Source {
	return ingest.Source{Provenance: types.ProvenanceUpload, Data: data, Name: "clip.wav"}
}

func assertNoArtifacts(t *testing.T, base string) {
	t.Helper()
	left, err := os.ReadDir(base)
	if err != nil {
		t.Fatalf("read scratch base: %v", err)
	}
	if len(left) != 0 {
		t.Errorf("%d artifacts left behind in %s", len(left), base)
	}
}

func TestRunEndToEnd(t *testing.T) {
	o, base := testOrchestrator(t)
	res, err := o.Run(context.Background(), upload(silence(1)), 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	resp := res.Response

	if resp.Transcription.Language != "en" || len(resp.Transcription.Segments) != 2 {
		t.Errorf("transcription = %+v", resp.Transcription)
	}
	kinds := map[string]string{}
	for _, e := range resp.Entities {
		kinds[e.Entity] = e.Type
	}
	if kinds["Main Street"] != "LOC" || kinds["downtown Chicago"] != "GPE" {
		t.Errorf("entities = %+v", resp.Entities)
	}
	if len(resp.Locations) != 1 || resp.Locations[0].Location != "downtown Chicago" {
		t.Fatalf("locations = %+v, want only downtown Chicago", resp.Locations)
	}
	if resp.Locations[0].Importance <= 0.2 {
		t.Errorf("importance = %v", resp.Locations[0].Importance)
	}
	var mainStreet *geo.Outcome
	for i := range res.Outcomes {
		if res.Outcomes[i].Entity.Text == "Main Street" {
			mainStreet = &res.Outcomes[i]
		}
	}
	if mainStreet == nil || mainStreet.State != geo.StateRejected {
		t.Errorf("Main Street outcome = %+v, want rejected by filter", mainStreet)
	}
	if res.RunID == "" {
		t.Error("missing run id")
	}
	assertNoArtifacts(t, base)
}

// fileNormalizer leaves a file in scratch so cleanup is observable.
type fileNormalizer struct{}

func (fileNormalizer) Normalize(_ context.Context, clip types.AudioClip, s *audio.Scratch) (types.PCM, error) {
	if _, err := s.WriteFile("input.wav", clip.Data); err != nil {
		return types.PCM{}, err
	}
	return types.PCM{Samples: make([]float32, 1600), SampleRate: 16000}, nil
}

type panicDenoiser struct{}

func (panicDenoiser) Denoise(context.Context, types.PCM) (types.PCM, error) { panic("filter blew up") }

type panicTranscriber struct{}

func (panicTranscriber) Transcribe(context.Context, types.PCM) (types.Transcript, error) {
	panic("model crashed")
}

type failingTranscriber struct{}

func (failingTranscriber) Transcribe(context.Context, types.PCM) (types.Transcript, error) {
	return types.Transcript{}, fmt.Errorf("%w: upstream 500", types.ErrTranscription)
}

type errDenoiser struct{ err error }

func (d errDenoiser) Denoise(context.Context, types.PCM) (types.PCM, error) { return types.PCM{}, d.err }

func TestFaultsLeaveNoArtifacts(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(o *Orchestrator)
		wantStage Stage
		wantKind  string
	}{
		{"denoise panic", func(o *Orchestrator) { o.Denoiser = panicDenoiser{} }, StageDenoise, "stage_failure"},
		{"transcribe panic", func(o *Orchestrator) { o.Transcriber = panicTranscriber{} }, StageTranscribe, "stage_failure"},
		{"transcribe error", func(o *Orchestrator) { o.Transcriber = failingTranscriber{} }, StageTranscribe, "transcription"},
		{"denoise error", func(o *Orchestrator) { o.Denoiser = errDenoiser{errors.New("bad filter graph")} }, StageDenoise, "stage_failure"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, base := testOrchestrator(t)
			o.Normalizer = fileNormalizer{}
			tt.setup(o)

			res, err := o.Run(context.Background(), upload(silence(1)), 0)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := ErrorStage(err); got != tt.wantStage {
				t.Errorf("stage = %q, want %q", got, tt.wantStage)
			}
			if got := Kind(err); got != tt.wantKind {
				t.Errorf("kind = %q, want %q", got, tt.wantKind)
			}
			if res.RunID != "" || res.Response.Entities != nil {
				t.Errorf("partial result returned: %+v", res)
			}
			assertNoArtifacts(t, base)
		})
	}
}

func TestDenoiserUnavailableFallsBack(t *testing.T) {
	o, base := testOrchestrator(t)
	o.Normalizer = fileNormalizer{}
	o.Denoiser = errDenoiser{denoise.ErrUnavailable}

	if _, err := o.Run(context.Background(), upload(silence(1)), 0); err != nil {
		t.Fatalf("Run: %v", err)
	}
	assertNoArtifacts(t, base)
}

func TestUnsupportedFormat(t *testing.T) {
	o, base := testOrchestrator(t)
	src := ingest.Source{Provenance: types.ProvenanceUpload, Data: []byte("definitely not audio"), Name: "notes.txt"}

	_, err := o.Run(context.Background(), src, 0)
	if ErrorStage(err) != StageNormalize || HTTPStatus(err) != http.StatusUnsupportedMediaType {
		t.Fatalf("err = %v (stage %q, status %d)", err, ErrorStage(err), HTTPStatus(err))
	}
	assertNoArtifacts(t, base)
}

func TestIngestFailureIsTagged(t *testing.T) {
	o, _ := testOrchestrator(t)
	src := ingest.Source{Provenance: types.ProvenanceStream, URL: "http://127.0.0.1:1/feed"}

	_, err := o.Run(context.Background(), src, 200*time.Millisecond)
	if ErrorStage(err) != StageIngest {
		t.Fatalf("err = %v, want ingest stage", err)
	}
	if s := HTTPStatus(err); s != http.StatusBadGateway && s != http.StatusGatewayTimeout {
		t.Errorf("status = %d", s)
	}
}

type truncatedFetcher struct{}

func (truncatedFetcher) Fetch(context.Context, ingest.Source, time.Duration) (types.AudioClip, error) {
	return types.AudioClip{Data: silence(1), Format: audio.FormatWAV, Provenance: types.ProvenanceStream, Truncated: true}, nil
}

func TestTruncatedStreamStillSucceeds(t *testing.T) {
	o, _ := testOrchestrator(t)
	o.Fetcher = truncatedFetcher{}

	res, err := o.Run(context.Background(), ingest.Source{Provenance: types.ProvenanceStream, URL: "http://feed"}, 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Truncated {
		t.Error("Truncated not carried through")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&StageError{Stage: StageNormalize, Err: types.ErrUnsupportedFormat}, http.StatusUnsupportedMediaType},
		{&StageError{Stage: StageIngest, Err: fmt.Errorf("x: %w", types.ErrTimeout)}, http.StatusGatewayTimeout},
		{&StageError{Stage: StageIngest, Err: types.ErrNetwork}, http.StatusBadGateway},
		{&StageError{Stage: StageTranscribe, Err: types.ErrTranscription}, http.StatusBadGateway},
		{&StageError{Stage: StageExtract, Err: errors.New("ner down")}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

// cancellingFetcher simulates a client that disconnects right after upload.
type cancellingFetcher struct{ cancel context.CancelFunc }

func (f cancellingFetcher) Fetch(context.Context, ingest.Source, time.Duration) (types.AudioClip, error) {
	f.cancel()
	return types.AudioClip{Data: silence(1), Format: audio.FormatWAV, Provenance: types.ProvenanceUpload}, nil
}

// ctxNormalizer and ctxDenoiser fail the way an exec.CommandContext child does.
type ctxNormalizer struct{}

func (ctxNormalizer) Normalize(ctx context.Context, clip types.AudioClip, s *audio.Scratch) (types.PCM, error) {
	if err := ctx.Err(); err != nil {
		return types.PCM{}, err
	}
	return fileNormalizer{}.Normalize(ctx, clip, s)
}

type ctxDenoiser struct{}

func (ctxDenoiser) Denoise(ctx context.Context, pcm types.PCM) (types.PCM, error) {
	if err := ctx.Err(); err != nil {
		return types.PCM{}, err
	}
	return pcm, nil
}

func TestCancelAfterIngestDoesNotAbortStages(t *testing.T) {
	o, base := testOrchestrator(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Fetcher = cancellingFetcher{cancel: cancel}
	o.Normalizer = ctxNormalizer{}
	o.Denoiser = ctxDenoiser{}

	res, err := o.Run(ctx, upload(silence(1)), 0)
	if err != nil {
		t.Fatalf("Run: %v (stage %q)", err, ErrorStage(err))
	}
	if len(res.Response.Transcription.Segments) == 0 {
		t.Error("transcription missing")
	}
	for _, oc := range res.Outcomes {
		if oc.State != geo.StateSkipped || oc.Reason != geo.ReasonCancelled {
			t.Errorf("outcome %+v, want skipped/cancelled", oc)
		}
	}
	assertNoArtifacts(t, base)
}
