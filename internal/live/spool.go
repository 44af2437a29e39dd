package live

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/xid"

	"voice-geo-go/internal/audio"
	"voice-geo-go/internal/logger"
	"voice-geo-go/internal/metrics"
	"voice-geo-go/internal/types"
)

var spoolExtensions = map[string]bool{
	".wav": true, ".mp3": true, ".ogg": true, ".opus": true,
	".flac": true, ".m4a": true, ".aac": true, ".webm": true,
}

// Spool watches a directory for dropped recordings. Each file is processed
// once it has been quiet for Settle, then moved to processed/ or failed/.
type Spool struct {
	Dir     string
	Settle  time.Duration
	Runner  Runner
	Hub     *Hub
	Log     *logger.Logger
	Metrics *metrics.Metrics
}

// Run blocks until ctx is done or the watcher fails.
func (s *Spool) Run(ctx context.Context) error {
	log := s.logger()
	for _, sub := range []string{"processed", "failed"} {
		if err := os.MkdirAll(filepath.Join(s.Dir, sub), 0o755); err != nil {
			return fmt.Errorf("prepare spool dir: %w", err)
		}
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(s.Dir); err != nil {
		return fmt.Errorf("watch dir %q: %w", s.Dir, err)
	}
	log.WithField("dir", s.Dir).Info("watching spool directory")

	// files dropped while the service was down
	if entries, err := os.ReadDir(s.Dir); err == nil {
		for _, e := range entries {
			if ctx.Err() != nil {
				return nil
			}
			if !e.IsDir() && spoolExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
				s.process(ctx, filepath.Join(s.Dir, e.Name()))
			}
		}
	}

	ready := make(chan string, 64)
	var (
		mu      sync.Mutex
		gen     uint64
		pending = map[string]settleTimer{}
	)
	defer func() {
		mu.Lock()
		for _, p := range pending {
			p.timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !(event.Has(fsnotify.Create) || event.Has(fsnotify.Write)) {
				continue
			}
			if !spoolExtensions[strings.ToLower(filepath.Ext(event.Name))] {
				continue
			}
			name := event.Name
			mu.Lock()
			if p, ok := pending[name]; ok {
				p.timer.Stop()
			}
			// a timer that already fired finds a newer generation and does nothing
			gen++
			mine := gen
			pending[name] = settleTimer{gen: mine, timer: time.AfterFunc(s.settle(), func() {
				mu.Lock()
				if p, ok := pending[name]; !ok || p.gen != mine {
					mu.Unlock()
					return
				}
				delete(pending, name)
				mu.Unlock()
				select {
				case ready <- name:
				case <-ctx.Done():
				}
			})}
			mu.Unlock()
		case name := <-ready:
			s.process(ctx, name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("spool watcher error")
		}
	}
}

func (s *Spool) process(ctx context.Context, path string) {
	chunkID := xid.New().String()
	base := filepath.Base(path)
	log := s.logger().WithField("chunk_id", chunkID).WithField("file", base)

	data, err := os.ReadFile(path)
	if err != nil {
		// already moved or deleted
		log.WithError(err).Debug("spool file unreadable")
		return
	}
	clip := types.AudioClip{
		Data:       data,
		Format:     audio.DetectFormat(data, "", base),
		Provenance: types.ProvenanceSpool,
		Source:     path,
	}
	// a file picked up before shutdown is finished, not abandoned
	res, runErr := s.Runner.RunClip(context.WithoutCancel(ctx), clip)

	dest, outcome := "processed", "ok"
	if runErr != nil {
		if ctx.Err() != nil {
			log.WithError(runErr).Warn("spool file failed during shutdown, leaving it for the next start")
			return
		}
		dest, outcome = "failed", "error"
		log.WithError(runErr).Warn("spool file failed")
	} else {
		log.WithField("locations", len(res.Response.Locations)).Info("spool file processed")
	}
	s.Metrics.Chunk(string(types.ProvenanceSpool), outcome)
	if s.Hub != nil {
		s.Hub.Broadcast(resultMessage(chunkID, clip, base, res, runErr))
	}
	if err := os.Rename(path, filepath.Join(s.Dir, dest, base)); err != nil {
		log.WithError(err).Warn("could not move spool file")
	}
}

type settleTimer struct {
	gen   uint64
	timer *time.Timer
}

func (s *Spool) settle() time.Duration {
	if s.Settle <= 0 {
		return 750 * time.Millisecond
	}
	return s.Settle
}

func (s *Spool) logger() *logger.Logger {
	if s.Log == nil {
		return logger.Discard().Component("spool")
	}
	return s.Log.Component("spool")
}
