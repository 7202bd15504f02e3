package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dgallion1/dochighlight/internal/overview"
	"github.com/dgallion1/dochighlight/internal/raster"
	"github.com/dgallion1/dochighlight/internal/viewer"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Event is one message pushed to stream subscribers. A markers event
// without markers clears the overview.
type Event struct {
	Type    string               `json:"type"`
	DocID   string               `json:"doc_id"`
	Page    int                  `json:"page,omitempty"`
	Shapes  []viewer.HandleShape `json:"shapes,omitempty"`
	Markers []overview.Marker    `json:"markers,omitempty"`
	SpanID  string               `json:"span_id,omitempty"`
	Stroke  *raster.Stroke       `json:"stroke,omitempty"`
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

// enqueue never blocks. It reports false when the buffer is full or the
// subscriber is closed.
func (c *subscriber) enqueue(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *subscriber) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Hub fans layout output out to the websocket subscribers of each document.
// It is the viewer.Sink of every view the server creates.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[*subscriber]bool
	log  *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		subs: make(map[string]map[*subscriber]bool),
		log:  log,
	}
}

func (h *Hub) ShapesRendered(docID string, page int, shapes []viewer.HandleShape) {
	h.publish(Event{Type: "shapes", DocID: docID, Page: page, Shapes: shapes})
}

func (h *Hub) MarkersChanged(docID string, markers []overview.Marker) {
	h.publish(Event{Type: "markers", DocID: docID, Markers: markers})
}

func (h *Hub) StrokeChanged(docID, spanID string, stroke raster.Stroke) {
	h.publish(Event{Type: "stroke", DocID: docID, SpanID: spanID, Stroke: &stroke})
}

// Subscribers returns the number of connections watching docID.
func (h *Hub) Subscribers(docID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[docID])
}

// CloseDocument disconnects every subscriber of docID.
func (h *Hub) CloseDocument(docID string) {
	h.mu.Lock()
	subs := h.subs[docID]
	delete(h.subs, docID)
	h.mu.Unlock()
	for c := range subs {
		c.close()
	}
}

// publish never blocks: a subscriber whose buffer is full is dropped.
func (h *Hub) publish(ev Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("encode stream event", "type", ev.Type, "error", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.subs[ev.DocID] {
		if !c.enqueue(msg) {
			h.log.Warn("dropping slow stream subscriber", "doc_id", ev.DocID)
			delete(h.subs[ev.DocID], c)
			c.close()
		}
	}
}

func (h *Hub) register(docID string, c *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[docID] == nil {
		h.subs[docID] = make(map[*subscriber]bool)
	}
	h.subs[docID][c] = true
}

func (h *Hub) unregister(docID string, c *subscriber) {
	h.mu.Lock()
	if set, ok := h.subs[docID]; ok && set[c] {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, docID)
		}
	}
	h.mu.Unlock()
	c.close()
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "doc_id", v.ID(), "error", err)
		return
	}
	c := &subscriber{conn: conn, send: make(chan []byte, sendBuffer)}

	// Register before reading the current state so no event published in
	// between is lost; the snapshot follows anything already queued.
	s.hub.register(v.ID(), c)
	if s.registry.Get(v.ID()) == nil {
		// Closed while upgrading.
		s.hub.unregister(v.ID(), c)
		conn.Close()
		return
	}
	s.log.Info("stream subscribed", "doc_id", v.ID())

	var initial []Event
	for _, p := range v.RenderedPages() {
		if snap, ok := v.Page(p); ok {
			initial = append(initial, Event{Type: "shapes", DocID: v.ID(), Page: p, Shapes: snap.Shapes})
		}
	}
	initial = append(initial, Event{Type: "markers", DocID: v.ID(), Markers: v.Markers()})
	for _, ev := range initial {
		if msg, err := json.Marshal(ev); err == nil {
			c.enqueue(msg)
		}
	}

	go s.writePump(c)
	s.readPump(v, c)
}

// readPump discards client messages and keeps the read deadline fresh. A
// live subscriber keeps its view from being evicted.
func (s *Server) readPump(v *viewer.View, c *subscriber) {
	docID := v.ID()
	defer s.hub.unregister(docID, c)
	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		v.Touch()
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.log.Warn("stream read failed", "doc_id", docID, "error", err)
			}
			return
		}
	}
}

func (s *Server) writePump(c *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
