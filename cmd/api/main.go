package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"voice-geo-go/internal/audio"
	"voice-geo-go/internal/config"
	"voice-geo-go/internal/denoise"
	"voice-geo-go/internal/events"
	"voice-geo-go/internal/extractor"
	"voice-geo-go/internal/geo"
	"voice-geo-go/internal/ingest"
	"voice-geo-go/internal/live"
	"voice-geo-go/internal/logger"
	"voice-geo-go/internal/metrics"
	"voice-geo-go/internal/pipeline"
	"voice-geo-go/internal/server"
	"voice-geo-go/internal/transcription"
)

// resolveAllowance covers geocoding a typical transcript's candidates.
const resolveAllowance = time.Minute

func main() {
	_ = godotenv.Load() // loads .env

	log := logger.New()
	log.WithField("service", "voice-geo-go").Info("starting service")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	policy, err := config.LoadPolicy(cfg.ResolverPolicyFile)
	if err != nil {
		log.WithError(err).Fatal("invalid resolver policy")
	}
	m := metrics.New()

	den, err := denoise.New(cfg.DenoiseBackend, cfg.FFmpegPath)
	if err != nil {
		log.WithError(err).Fatal("denoiser setup failed")
	}
	tr, err := transcription.New(cfg.TranscribeBackend, cfg.TranscribeURL, cfg.TranscribeAPIKey,
		cfg.TranscribeModel, cfg.TranscribeTimeout, cfg.UseMockTranscribe, log)
	if err != nil {
		log.WithError(err).Fatal("transcriber setup failed")
	}
	ex, err := extractor.New(extractor.Options{
		Backend:  cfg.ExtractBackend,
		NERURL:   cfg.NERURL,
		LLMURL:   cfg.LLMGatewayURL,
		LLMModel: cfg.LLMModel,
		LLMKey:   cfg.LLMAPIKey,
		Mock:     cfg.UseMockExtract,
	}, log)
	if err != nil {
		log.WithError(err).Fatal("extractor setup failed")
	}

	var provider geo.Provider = geo.NewNominatim(cfg.NominatimURL, cfg.NominatimUserAgent, cfg.GeocodeTimeout)
	if cfg.UseMockGeocoder {
		provider = geo.NewMock()
	}
	resolver := geo.NewResolver(provider, policy,
		geo.WithTiming(cfg.ResolverBaseDelay, cfg.ResolverMinInterval),
		geo.WithLogger(log),
		geo.WithMetrics(m))

	ff := audio.FFmpeg{Path: cfg.FFmpegPath}
	if !ff.Available() {
		log.WithField("ffmpeg", cfg.FFmpegPath).Warn("ffmpeg not found; only WAV input will decode and denoise is skipped")
	}

	orch := &pipeline.Orchestrator{
		Fetcher:        ingest.NewFetcher(log),
		Normalizer:     audio.Normalizer{FFmpeg: ff},
		Denoiser:       den,
		Transcriber:    tr,
		Extractor:      ex,
		Resolver:       resolver,
		ScratchDir:     cfg.ScratchDir,
		IngestDeadline: cfg.IngestDeadline,
		Log:            log,
		Metrics:        m,
	}

	hub := live.NewHub(log)
	capture := &live.Capture{
		Source: live.Microphone{
			FFmpeg:      ff,
			InputFormat: cfg.CaptureInputFormat,
			Device:      cfg.CaptureDevice,
			Chunk:       cfg.CaptureChunk,
		},
		Runner:  orch,
		Hub:     hub,
		Log:     log,
		Metrics: m,
	}

	deps := server.Deps{
		Runner:          orch,
		Capture:         capture,
		Hub:             hub,
		Metrics:         m,
		Log:             log,
		MaxUploadBytes:  cfg.MaxUploadBytes,
		MaxScanSeconds:  cfg.MaxScanSeconds,
		DefaultLocation: cfg.DefaultLocation,
	}
	if _, err := os.Stat(cfg.EventsDBPath); err == nil {
		store, err := events.Open(cfg.EventsDBPath)
		if err != nil {
			log.WithError(err).Fatal("failed to open events db")
		}
		defer store.Close()
		deps.Events = store
		log.WithField("events_db", cfg.EventsDBPath).Info("historical events loaded")
	} else {
		log.WithField("events_db", cfg.EventsDBPath).Warn("events db missing; run seed-events to enable /history")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var background sync.WaitGroup
	if cfg.SpoolDir != "" {
		spool := &live.Spool{Dir: cfg.SpoolDir, Runner: orch, Hub: hub, Log: log, Metrics: m}
		background.Add(1)
		go func() {
			defer background.Done()
			if err := spool.Run(ctx); err != nil {
				log.WithError(err).Error("spool watcher stopped")
			}
		}()
	}

	// longest a synchronous /scan or /transcribe may take, retries included
	budget := cfg.RequestBudget(transcription.DefaultMaxRetryTime +
		extractor.DefaultTimeout + extractor.RetryBudget + resolveAllowance)

	addr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.New(deps).Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: budget,
		IdleTimeout:  120 * time.Second,
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.WithError(err).Fatal("listen failed")
	}
	log.WithField("addr", addr).WithField("request_budget", budget.String()).Info("listening")
	if err := server.Run(ctx, srv, ln, budget, log); err != nil {
		log.WithError(err).Error("server stopped")
	}
	stop()

	if err := capture.Stop(); err != nil && !errors.Is(err, live.ErrNotRunning) {
		log.WithError(err).Warn("capture stop failed")
	}
	hub.Close()
	background.Wait()
	log.Info("shutdown complete")
}
