package server

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"voice-geo-go/internal/events"
	"voice-geo-go/internal/ingest"
	"voice-geo-go/internal/live"
	"voice-geo-go/internal/pipeline"
	"voice-geo-go/internal/types"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	fmt.Fprint(w, "ok")
}

// handleTranscribe accepts a multipart "file" field or a raw audio body.
func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	reqLog := requestLog(r).With("handler", "transcribe")

	r.Body = http.MaxBytesReader(w, r.Body, s.d.MaxUploadBytes)
	src := ingest.Source{Provenance: types.ProvenanceUpload}
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt == "multipart/form-data" {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			s.uploadError(w, err)
			return
		}
		file, hdr, err := r.FormFile("file")
		if err != nil {
			writeBadRequest(w, "missing multipart field \"file\"")
			return
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			s.uploadError(w, err)
			return
		}
		src.Data, src.Name, src.ContentType = data, hdr.Filename, hdr.Header.Get("Content-Type")
	} else {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			s.uploadError(w, err)
			return
		}
		src.Data, src.ContentType = data, r.Header.Get("Content-Type")
		src.Name = r.URL.Query().Get("filename")
	}
	if len(src.Data) == 0 {
		writeBadRequest(w, "missing audio payload")
		return
	}
	reqLog.WithField("bytes", len(src.Data)).Info("upload received")
	s.run(w, r, src, 0)
}

func (s *Server) uploadError(w http.ResponseWriter, err error) {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		writeRejected(w, http.StatusRequestEntityTooLarge, "too_large", fmt.Sprintf("upload exceeds %d bytes", tooBig.Limit))
		return
	}
	writeBadRequest(w, "could not read upload: "+err.Error())
}

// handleScan records a slice of a live stream: ?url= or ?location= plus
// optional max_seconds.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	q := r.URL.Query()
	streamURL := q.Get("url")
	name := ""
	if streamURL == "" {
		name, streamURL = ingest.ResolvePreset(q.Get("location"), s.currentLocation())
	} else if u, err := url.Parse(streamURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		writeBadRequest(w, "url must be an absolute http(s) URL")
		return
	}

	var deadline time.Duration
	if v := q.Get("max_seconds"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs < 1 || secs > s.d.MaxScanSeconds {
			writeBadRequest(w, fmt.Sprintf("max_seconds must be between 1 and %d", s.d.MaxScanSeconds))
			return
		}
		deadline = time.Duration(secs) * time.Second
	}

	requestLog(r).With("handler", "scan").
		WithField("location", name).
		WithField("url", streamURL).
		Info("scan requested")
	s.run(w, r, ingest.Source{Provenance: types.ProvenanceStream, URL: streamURL}, deadline)
}

func (s *Server) run(w http.ResponseWriter, r *http.Request, src ingest.Source, deadline time.Duration) {
	reqLog := requestLog(r)
	res, err := s.d.Runner.Run(r.Context(), src, deadline)
	if err != nil {
		reqLog.WithField("stage", string(pipeline.ErrorStage(err))).WithError(err).Warn("pipeline returned error")
		writeRunError(w, err)
		return
	}
	if res.Truncated {
		w.Header().Set("X-Audio-Truncated", "true")
	}
	reqLog.WithField("run_id", res.RunID).
		WithField("entities", len(res.Response.Entities)).
		WithField("locations", len(res.Response.Locations)).
		Info("pipeline finished")
	writeJSON(w, http.StatusOK, res.Response)
}

type streamView struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

func (s *Server) handleStreams(w http.ResponseWriter, r *http.Request) {
	out := struct {
		Current string       `json:"current"`
		Streams []streamView `json:"streams"`
	}{Current: s.currentLocation()}
	for _, n := range ingest.PresetNames() {
		out.Streams = append(out.Streams, streamView{Name: n, URL: ingest.Presets[n]})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleNewLocation switches the feed used by scans that name none.
func (s *Server) handleNewLocation(w http.ResponseWriter, r *http.Request) {
	name, _ := ingest.ResolvePreset(r.URL.Query().Get("location"), ingest.DefaultPreset)
	s.mu.Lock()
	s.location = name
	s.mu.Unlock()
	requestLog(r).WithField("location", name).Info("default stream changed")
	fmt.Fprint(w, "ok")
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.d.Events == nil {
		writeRejected(w, http.StatusServiceUnavailable, "unavailable", "event store not configured")
		return
	}
	q := r.URL.Query()
	start, err1 := time.Parse(events.DateLayout, strings.TrimSpace(q.Get("start")))
	end, err2 := time.Parse(events.DateLayout, strings.TrimSpace(q.Get("end")))
	if err1 != nil || err2 != nil {
		writeBadRequest(w, "start and end must be YYYY-MM-DD")
		return
	}
	if end.Before(start) {
		writeBadRequest(w, "end is before start")
		return
	}
	evs, err := s.d.Events.FetchEvents(r.Context(), start, end)
	if err != nil {
		requestLog(r).WithError(err).Error("history query failed")
		writeJSON(w, http.StatusInternalServerError, errorEnvelope{Error: pipeline.ErrorBody{Stage: "history", Kind: "store", Message: err.Error()}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"map_markers": events.Markers(evs)})
}

func (s *Server) handleCaptureStart(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) || !s.captureEnabled(w) {
		return
	}
	if err := s.d.Capture.Start(); err != nil {
		if errors.Is(err, live.ErrAlreadyRunning) {
			writeRejected(w, http.StatusConflict, "conflict", err.Error())
			return
		}
		writeRejected(w, http.StatusInternalServerError, "capture", err.Error())
		return
	}
	requestLog(r).Info("capture start requested")
	writeJSON(w, http.StatusAccepted, s.d.Capture.Status())
}

func (s *Server) handleCaptureStop(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) || !s.captureEnabled(w) {
		return
	}
	if err := s.d.Capture.Stop(); err != nil {
		writeRejected(w, http.StatusConflict, "conflict", err.Error())
		return
	}
	requestLog(r).Info("capture stopped")
	writeJSON(w, http.StatusOK, s.d.Capture.Status())
}

func (s *Server) handleCaptureStatus(w http.ResponseWriter, r *http.Request) {
	if !s.captureEnabled(w) {
		return
	}
	writeJSON(w, http.StatusOK, s.d.Capture.Status())
}

func (s *Server) handleCaptureLive(w http.ResponseWriter, r *http.Request) {
	if s.d.Hub == nil {
		writeRejected(w, http.StatusServiceUnavailable, "unavailable", "live results not configured")
		return
	}
	s.d.Hub.ServeWS(w, r)
}

func (s *Server) captureEnabled(w http.ResponseWriter) bool {
	if s.d.Capture == nil {
		writeRejected(w, http.StatusServiceUnavailable, "unavailable", "capture not configured")
		return false
	}
	return true
}
