package live

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/xid"

	"voice-geo-go/internal/aggregator"
	"voice-geo-go/internal/audio"
	"voice-geo-go/internal/logger"
	"voice-geo-go/internal/metrics"
	"voice-geo-go/internal/pipeline"
	"voice-geo-go/internal/types"
)

var (
	ErrAlreadyRunning = errors.New("capture already running")
	ErrNotRunning     = errors.New("capture not running")
)

// ChunkSource yields bounded audio chunks until ctx ends.
type ChunkSource interface {
	Next(ctx context.Context) (types.AudioClip, error)
}

// Runner is the part of the orchestrator the background tasks need.
type Runner interface {
	RunClip(ctx context.Context, clip types.AudioClip) (pipeline.Result, error)
}

// Microphone records fixed-length chunks from an ffmpeg input device.
type Microphone struct {
	FFmpeg      audio.FFmpeg
	InputFormat string
	Device      string
	Chunk       time.Duration
}

func (m Microphone) Next(ctx context.Context) (types.AudioClip, error) {
	secs := strconv.FormatFloat(m.Chunk.Seconds(), 'f', -1, 64)
	cmd := m.FFmpeg.Command(ctx,
		"-f", m.InputFormat, "-i", m.Device,
		"-t", secs,
		"-ac", "1", "-ar", strconv.Itoa(audio.CanonicalRate),
		"-c:a", "pcm_s16le", "-f", "wav", "pipe:1")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return types.AudioClip{}, ctx.Err()
		}
		return types.AudioClip{}, fmt.Errorf("capture %s:%s: %w: %s", m.InputFormat, m.Device, err, strings.TrimSpace(stderr.String()))
	}
	return types.AudioClip{
		Data:       stdout.Bytes(),
		Format:     audio.FormatWAV,
		Provenance: types.ProvenanceMicrophone,
		Source:     m.InputFormat + ":" + m.Device,
	}, nil
}

// Status is a snapshot of the capture task.
type Status struct {
	Running     bool      `json:"running"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	Chunks      int       `json:"chunks"`
	Failures    int       `json:"failures"`
	LastChunkID string    `json:"last_chunk_id,omitempty"`
	LastError   string    `json:"last_error,omitempty"`

	Insight      aggregator.Insight `json:"insight"`
	TopLocations []string           `json:"top_locations"`
}

// Capture is the long-running microphone task: each chunk goes through the
// pipeline and its result is broadcast on the hub.
type Capture struct {
	Source     ChunkSource
	Runner     Runner
	Hub        *Hub
	Log        *logger.Logger
	Metrics    *metrics.Metrics
	RetryDelay time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	status Status
}

// Start launches the loop. It is detached from the caller's context.
func (c *Capture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	c.status = Status{Running: true, StartedAt: time.Now().UTC(), Insight: aggregator.New()}
	go c.loop(ctx, c.done)
	c.log().Info("capture started")
	return nil
}

// Stop cancels the loop and waits for the chunk in flight to finish.
func (c *Capture) Stop() error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()
	if cancel == nil {
		return ErrNotRunning
	}
	cancel()
	<-done

	c.mu.Lock()
	c.cancel, c.done = nil, nil
	c.status.Running = false
	c.mu.Unlock()
	c.log().Info("capture stopped")
	return nil
}

func (c *Capture) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.status
	st.Insight = c.status.Insight.Clone()
	st.TopLocations = st.Insight.TopLocations(5)
	return st
}

func (c *Capture) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	log := c.log()
	for {
		clip, err := c.Source.Next(ctx)
		if ctx.Err() != nil {
			return
		}
		chunkID := xid.New().String()
		if err != nil {
			log.WithField("chunk_id", chunkID).WithError(err).Warn("capture chunk failed")
			c.record(chunkID, pipeline.Result{}, err)
			c.Metrics.Chunk(string(types.ProvenanceMicrophone), "capture_error")
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.retryDelay()):
			}
			continue
		}

		// a chunk already captured is processed even if Stop arrives meanwhile
		res, err := c.Runner.RunClip(context.WithoutCancel(ctx), clip)
		c.record(chunkID, res, err)
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		c.Metrics.Chunk(string(types.ProvenanceMicrophone), outcome)
		if c.Hub != nil {
			c.Hub.Broadcast(resultMessage(chunkID, clip, "", res, err))
		}
	}
}

func (c *Capture) record(chunkID string, res pipeline.Result, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.Insight.Add(res.Outcomes, res.Response.Locations, err != nil)
	c.status.Chunks++
	c.status.LastChunkID = chunkID
	if err != nil {
		c.status.Failures++
		c.status.LastError = err.Error()
	} else {
		c.status.LastError = ""
	}
}

func (c *Capture) retryDelay() time.Duration {
	if c.RetryDelay <= 0 {
		return 2 * time.Second
	}
	return c.RetryDelay
}

func (c *Capture) log() *logger.Logger {
	if c.Log == nil {
		return logger.Discard().Component("capture")
	}
	return c.Log.Component("capture")
}
