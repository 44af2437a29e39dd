package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"voice-geo-go/internal/audio"
	"voice-geo-go/internal/denoise"
	"voice-geo-go/internal/extractor"
	"voice-geo-go/internal/geo"
	"voice-geo-go/internal/ingest"
	"voice-geo-go/internal/logger"
	"voice-geo-go/internal/metrics"
	"voice-geo-go/internal/transcription"
	"voice-geo-go/internal/types"
)

type Fetcher interface {
	Fetch(ctx context.Context, src ingest.Source, deadline time.Duration) (types.AudioClip, error)
}

type Normalizer interface {
	Normalize(ctx context.Context, clip types.AudioClip, scratch *audio.Scratch) (types.PCM, error)
}

type Resolver interface {
	Resolve(ctx context.Context, entities []types.Entity) geo.Resolution
}

// Orchestrator runs the stages for one request at a time per call. It keeps
// no state between runs, so one instance is shared by every handler.
type Orchestrator struct {
	Fetcher     Fetcher
	Normalizer  Normalizer
	Denoiser    denoise.Denoiser
	Transcriber transcription.Transcriber
	Extractor   extractor.Extractor
	Resolver    Resolver

	ScratchDir     string
	IngestDeadline time.Duration
	Log            *logger.Logger
	Metrics        *metrics.Metrics
}

// Result is one successful run.
type Result struct {
	RunID     string
	Response  types.Response
	Truncated bool
	Outcomes  []geo.Outcome
	Duration  time.Duration
}

// Run fetches src and processes it. A zero deadline uses IngestDeadline.
// Only the fetch honours cancellation; later stages run to completion.
func (o *Orchestrator) Run(ctx context.Context, src ingest.Source, deadline time.Duration) (Result, error) {
	if deadline <= 0 {
		deadline = o.IngestDeadline
	}
	var clip types.AudioClip
	err := o.stage(StageIngest, func() error {
		var err error
		clip, err = o.Fetcher.Fetch(ctx, src, deadline)
		return err
	})
	if err != nil {
		o.Metrics.Run("error", string(StageIngest))
		o.log().WithField("provenance", string(src.Provenance)).WithError(err).Warn("ingest failed")
		return Result{}, err
	}
	return o.RunClip(ctx, clip)
}

// RunClip processes an already acquired clip. Stages run to completion even
// if ctx is cancelled; only the resolver looks at ctx, between candidates.
func (o *Orchestrator) RunClip(ctx context.Context, clip types.AudioClip) (res Result, err error) {
	start := time.Now()
	work := context.WithoutCancel(ctx)
	res.RunID = xid.New().String()
	log := o.log().
		WithField("run_id", res.RunID).
		WithField("provenance", string(clip.Provenance)).
		WithField("format", clip.Format)

	scratch, err := audio.NewScratch(o.ScratchDir)
	if err != nil {
		return Result{}, &StageError{Stage: StageNormalize, Err: fmt.Errorf("%w: %v", types.ErrStageFailure, err)}
	}
	defer func() {
		if rerr := scratch.Release(); rerr != nil {
			log.WithError(rerr).Warn("scratch cleanup failed")
		}
		if err != nil {
			o.Metrics.Run("error", string(ErrorStage(err)))
			log.WithField("stage", string(ErrorStage(err))).WithError(err).Warn("pipeline failed")
			res = Result{}
			return
		}
		res.Duration = time.Since(start)
		o.Metrics.Run("ok", "")
		log.WithField("duration_ms", res.Duration.Milliseconds()).
			WithField("locations", len(res.Response.Locations)).
			Info("pipeline finished")
	}()

	var pcm types.PCM
	if err = o.stage(StageNormalize, func() error {
		var err error
		pcm, err = o.Normalizer.Normalize(work, clip, scratch)
		return err
	}); err != nil {
		return
	}

	if err = o.stage(StageDenoise, func() error {
		cleaned, err := o.Denoiser.Denoise(work, pcm)
		if errors.Is(err, denoise.ErrUnavailable) {
			log.Warn("denoiser unavailable, using normalized audio")
			return nil
		}
		if err != nil {
			return err
		}
		pcm = cleaned
		return nil
	}); err != nil {
		return
	}

	var tr types.Transcript
	if err = o.stage(StageTranscribe, func() error {
		var err error
		tr, err = o.Transcriber.Transcribe(work, pcm)
		tr = transcription.Normalize(tr)
		return err
	}); err != nil {
		return
	}

	var ents []types.Entity
	if err = o.stage(StageExtract, func() error {
		var err error
		ents, err = o.Extractor.Extract(work, tr.FullText)
		return err
	}); err != nil {
		return
	}

	var resolution geo.Resolution
	if err = o.stage(StageResolve, func() error {
		resolution = o.Resolver.Resolve(ctx, ents)
		return nil
	}); err != nil {
		return
	}

	res.Response = types.NewResponse(tr, ents, resolution.Locations)
	res.Outcomes = resolution.Outcomes
	res.Truncated = clip.Truncated
	return res, nil
}

// stage runs fn, turning a panic into ErrStageFailure and tagging any error.
func (o *Orchestrator) stage(name Stage, fn func() error) (err error) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: panic: %v", types.ErrStageFailure, p)
		}
		o.Metrics.Stage(string(name), time.Since(start))
		if err != nil {
			err = &StageError{Stage: name, Err: err}
		}
	}()
	return fn()
}

func (o *Orchestrator) log() *logger.Logger {
	if o.Log == nil {
		return logger.Discard().Component("pipeline")
	}
	return o.Log.Component("pipeline")
}
