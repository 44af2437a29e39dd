package live

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"voice-geo-go/internal/logger"
	"voice-geo-go/internal/pipeline"
	"voice-geo-go/internal/types"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 16
)

// Message is one per-chunk event pushed to live subscribers.
type Message struct {
	Type      string              `json:"type"`
	ChunkID   string              `json:"chunk_id"`
	Source    types.Provenance    `json:"source"`
	Name      string              `json:"name,omitempty"`
	Time      time.Time           `json:"time"`
	Truncated bool                `json:"truncated,omitempty"`
	Result    *types.Response     `json:"result,omitempty"`
	Error     *pipeline.ErrorBody `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans chunk results out to websocket subscribers. Slow subscribers
// lose messages rather than blocking the producer.
type Hub struct {
	mu   sync.Mutex
	subs map[*subscriber]struct{}
	log  *logger.Logger
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{subs: map[*subscriber]struct{}{}, log: log.Component("live-hub")}
}

// Broadcast delivers msg to every current subscriber.
func (h *Hub) Broadcast(msg Message) {
	b, err := json.Marshal(msg)
	if err != nil {
		h.log.WithError(err).Error("marshal live message")
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		select {
		case s.send <- b:
		default:
			h.log.Warn("subscriber queue full, message dropped")
		}
	}
}

// Subscribers returns the number of connected clients.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// ServeWS upgrades the request and streams messages until the client goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	s := &subscriber{conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	h.log.WithField("remote_ip", r.RemoteAddr).Info("live subscriber connected")

	go h.writeLoop(s)
	h.readLoop(s)
}

// readLoop only watches for close and pongs; clients send nothing useful.
func (h *Hub) readLoop(s *subscriber) {
	defer h.drop(s)
	s.conn.SetReadLimit(512)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(s *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()
	for {
		select {
		case b, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) drop(s *subscriber) {
	h.mu.Lock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		close(s.send)
	}
	h.mu.Unlock()
	h.log.Info("live subscriber disconnected")
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		delete(h.subs, s)
		close(s.send)
	}
}

func resultMessage(chunkID string, clip types.AudioClip, name string, res pipeline.Result, err error) Message {
	msg := Message{ChunkID: chunkID, Source: clip.Provenance, Name: name, Time: time.Now().UTC()}
	if err != nil {
		body := pipeline.Describe(err)
		msg.Type = "error"
		msg.Error = &body
		return msg
	}
	msg.Type = "result"
	msg.Truncated = res.Truncated
	msg.Result = &res.Response
	return msg
}
