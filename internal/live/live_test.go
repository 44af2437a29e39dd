package live

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"voice-geo-go/internal/logger"
	"voice-geo-go/internal/pipeline"
	"voice-geo-go/internal/types"
)

type fakeRunner struct {
	mu    sync.Mutex
	clips []types.AudioClip
	err   error
}

func (f *fakeRunner) RunClip(_ context.Context, clip types.AudioClip) (pipeline.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clips = append(f.clips, clip)
	if f.err != nil {
		return pipeline.Result{}, f.err
	}
	return pipeline.Result{Response: types.NewResponse(types.Transcript{FullText: "copy"}, nil, nil)}, nil
}

func (f *fakeRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clips)
}

// chunkFeed yields one clip per tick of its channel and blocks otherwise.
type chunkFeed struct {
	ch chan types.AudioClip
}

func (c chunkFeed) Next(ctx context.Context) (types.AudioClip, error) {
	select {
	case <-ctx.Done():
		return types.AudioClip{}, ctx.Err()
	case clip, ok := <-c.ch:
		if !ok {
			return types.AudioClip{}, errors.New("device gone")
		}
		return clip, nil
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub(logger.Discard())
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitFor(t, "subscriber", func() bool { return hub.Subscribers() == 1 })

	resp := types.NewResponse(types.Transcript{FullText: "units to main street"}, nil, nil)
	hub.Broadcast(Message{Type: "result", ChunkID: "c1", Source: types.ProvenanceMicrophone, Result: &resp})

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got Message
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ChunkID != "c1" || got.Result == nil || got.Result.Transcription.FullText != "units to main street" {
		t.Errorf("got %s", b)
	}

	conn.Close()
	waitFor(t, "unsubscribe", func() bool { return hub.Subscribers() == 0 })
}

func TestCaptureLifecycle(t *testing.T) {
	feed := chunkFeed{ch: make(chan types.AudioClip)}
	runner := &fakeRunner{}
	c := &Capture{Source: feed, Runner: runner, Hub: NewHub(logger.Discard()), Log: logger.Discard()}

	if err := c.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Stop before Start = %v", err)
	}
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.Start(); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start = %v", err)
	}

	for i := 0; i < 2; i++ {
		feed.ch <- types.AudioClip{Data: []byte("RIFF"), Provenance: types.ProvenanceMicrophone}
	}
	waitFor(t, "two chunks", func() bool { return c.Status().Chunks == 2 })

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	st := c.Status()
	if st.Running || st.Chunks != 2 || st.Failures != 0 || st.LastChunkID == "" {
		t.Errorf("status = %+v", st)
	}
	if runner.count() != 2 {
		t.Errorf("runner saw %d clips", runner.count())
	}
	if st.Insight.Runs != 2 || st.TopLocations == nil {
		t.Errorf("insight = %+v, top = %v", st.Insight, st.TopLocations)
	}
}

func TestCaptureRecordsFailures(t *testing.T) {
	feed := chunkFeed{ch: make(chan types.AudioClip)}
	runner := &fakeRunner{err: &pipeline.StageError{Stage: pipeline.StageTranscribe, Err: types.ErrTranscription}}
	c := &Capture{Source: feed, Runner: runner, RetryDelay: time.Millisecond}

	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	feed.ch <- types.AudioClip{Data: []byte("x")}
	waitFor(t, "failed chunk", func() bool { return c.Status().Failures == 1 })
	c.Stop()
	if !strings.Contains(c.Status().LastError, "transcribe") {
		t.Errorf("last error = %q", c.Status().LastError)
	}
}

func TestSpoolProcessesDroppedFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "early.wav"), []byte("RIFF....WAVE"), 0o644); err != nil {
		t.Fatal(err)
	}
	runner := &fakeRunner{}
	s := &Spool{Dir: dir, Settle: 20 * time.Millisecond, Runner: runner}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()

	waitFor(t, "existing file", func() bool { return exists(filepath.Join(dir, "processed", "early.wav")) })

	if err := os.WriteFile(filepath.Join(dir, "call-0142.mp3"), []byte("ID3"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "dropped file", func() bool { return exists(filepath.Join(dir, "processed", "call-0142.mp3")) })

	cancel()
	if err := <-errc; err != nil {
		t.Errorf("Run: %v", err)
	}
	if runner.count() != 2 {
		t.Errorf("runner saw %d clips, want 2", runner.count())
	}
	if !exists(filepath.Join(dir, "notes.txt")) {
		t.Error("non-audio file was touched")
	}
	for _, c := range runner.clips {
		if c.Provenance != types.ProvenanceSpool {
			t.Errorf("provenance = %q", c.Provenance)
		}
	}
}

func TestSpoolMovesFailures(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{err: &pipeline.StageError{Stage: pipeline.StageNormalize, Err: types.ErrUnsupportedFormat}}
	s := &Spool{Dir: dir, Settle: 20 * time.Millisecond, Runner: runner}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)
	waitFor(t, "spool dirs", func() bool { return exists(filepath.Join(dir, "failed")) })
	// give the watcher a moment to register before dropping the file
	time.Sleep(50 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(dir, "bad.wav"), []byte("junk"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "failed file", func() bool { return exists(filepath.Join(dir, "failed", "bad.wav")) })
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// ctxRunner fails when its context is already cancelled.
type ctxRunner struct {
	fakeRunner
}

func (c *ctxRunner) RunClip(ctx context.Context, clip types.AudioClip) (pipeline.Result, error) {
	if err := ctx.Err(); err != nil {
		return pipeline.Result{}, &pipeline.StageError{Stage: pipeline.StageNormalize, Err: err}
	}
	return c.fakeRunner.RunClip(ctx, clip)
}

func TestSpoolFinishesFileDuringShutdown(t *testing.T) {
	dir := t.TempDir()
	for _, sub := range []string{"processed", "failed"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	path := filepath.Join(dir, "late.wav")
	if err := os.WriteFile(path, []byte("RIFF....WAVE"), 0o644); err != nil {
		t.Fatal(err)
	}
	runner := &ctxRunner{}
	s := &Spool{Dir: dir, Runner: runner}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.process(ctx, path)

	if !exists(filepath.Join(dir, "processed", "late.wav")) {
		t.Errorf("file not processed; failed/ has it: %v", exists(filepath.Join(dir, "failed", "late.wav")))
	}
	if runner.count() != 1 {
		t.Errorf("runner saw %d clips, want 1", runner.count())
	}
}

func TestSpoolLeavesFailedFileOnShutdown(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cut.wav")
	if err := os.WriteFile(path, []byte("junk"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := &Spool{Dir: dir, Runner: &fakeRunner{err: errors.New("transcriber went away")}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.process(ctx, path)

	if !exists(path) {
		t.Error("file moved although the run failed during shutdown")
	}
	if exists(filepath.Join(dir, "failed", "cut.wav")) {
		t.Error("file moved to failed/ during shutdown")
	}
}

func TestSpoolSettlesBurstOfWrites(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{}
	s := &Spool{Dir: dir, Settle: 100 * time.Millisecond, Runner: runner}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)
	waitFor(t, "spool dirs", func() bool { return exists(filepath.Join(dir, "failed")) })
	time.Sleep(50 * time.Millisecond)

	path := filepath.Join(dir, "long-call.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if _, err := f.Write([]byte("RIFF....WAVE")); err != nil {
			t.Fatal(err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	f.Close()

	waitFor(t, "processed file", func() bool { return exists(filepath.Join(dir, "processed", "long-call.wav")) })
	time.Sleep(300 * time.Millisecond)
	if runner.count() != 1 {
		t.Errorf("runner saw %d clips, want 1", runner.count())
	}
}
