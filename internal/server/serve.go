package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"voice-geo-go/internal/logger"
)

// Run serves on ln until ctx is done, then stops accepting and waits up to
// drain for in-flight requests. It returns only after the drain ends, so
// deferred per-request cleanup has run by then.
func Run(ctx context.Context, srv *http.Server, ln net.Listener, drain time.Duration, log *logger.Logger) error {
	drained := make(chan error, 1)
	go func() {
		<-ctx.Done()
		log.WithField("drain", drain.String()).Info("shutting down, draining requests")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), drain)
		defer cancel()
		drained <- srv.Shutdown(shutdownCtx)
	}()
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	if err := <-drained; err != nil {
		return errors.Join(errors.New("in-flight requests did not finish"), err)
	}
	return nil
}
