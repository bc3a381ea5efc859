package render

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jengzang/fleet-tracking-go/internal/models"
	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus"
)

// WebSocketName is the name of the streaming surface
const WebSocketName = "websocket"

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
	sendBuffer     = 4
)

// Client message types
const (
	MessageClick    = "click"
	MessageViewport = "viewport"
)

// Frame is one scene pushed to browser clients
type Frame struct {
	Type     string                     `json:"type"`
	Seq      uint64                     `json:"seq"`
	Viewport models.Viewport            `json:"viewport"`
	Features *geojson.FeatureCollection `json:"features"`
}

// ClientMessage is an interaction reported by a browser client
type ClientMessage struct {
	Type   string         `json:"type"`
	ID     string         `json:"id,omitempty"`
	Center *models.LatLng `json:"center,omitempty"`
	Zoom   float64        `json:"zoom,omitempty"`
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// WebSocketSurface streams scenes to connected browsers and dispatches
// their clicks and viewport changes to the current scene's callbacks
type WebSocketSurface struct {
	upgrader websocket.Upgrader
	logger   *logrus.Entry

	mu      sync.RWMutex
	clients map[string]*wsClient
	scene   Scene
	latest  []byte
	seq     uint64
	closed  bool
}

// NewWebSocketSurface creates a streaming surface
func NewWebSocketSurface(logger *logrus.Logger) *WebSocketSurface {
	return &WebSocketSurface{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Origin checks are left to the auth middleware in front of /ws
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:  logger.WithField("component", "render.websocket"),
		clients: make(map[string]*wsClient),
	}
}

// Name implements Surface
func (s *WebSocketSurface) Name() string { return WebSocketName }

// Available implements Surface
func (s *WebSocketSurface) Available() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.New("websocket surface is closed")
	}
	return nil
}

// Render implements Surface. Slow clients only ever hold the newest
// frames; older queued frames are dropped.
func (s *WebSocketSurface) Render(ctx context.Context, scene Scene) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("websocket surface is closed")
	}
	s.seq++
	data, err := json.Marshal(Frame{
		Type:     "scene",
		Seq:      s.seq,
		Viewport: scene.Viewport,
		Features: EncodeScene(scene),
	})
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	s.scene = scene
	s.latest = data

	for _, c := range s.clients {
		enqueue(c.send, data)
	}
	s.mu.Unlock()
	return nil
}

func enqueue(ch chan []byte, data []byte) {
	select {
	case ch <- data:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- data:
	default:
	}
}

// ServeHTTP upgrades the request and serves the client until it
// disconnects
func (s *WebSocketSurface) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}

	c := &wsClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.clients[c.id] = c
	if s.latest != nil {
		c.send <- s.latest
	}
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"client": c.id,
		"remote": r.RemoteAddr,
	}).Info("client connected")

	go s.writePump(c)
	s.readPump(c)
}

func (s *WebSocketSurface) unregister(c *wsClient) {
	s.mu.Lock()
	if _, ok := s.clients[c.id]; ok {
		delete(s.clients, c.id)
		close(c.send)
	}
	s.mu.Unlock()
}

func (s *WebSocketSurface) readPump(c *wsClient) {
	defer func() {
		s.unregister(c)
		c.conn.Close()
		s.logger.WithField("client", c.id).Info("client disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.WithError(err).WithField("client", c.id).Warn("read failed")
			}
			return
		}
		s.dispatch(c.id, msg)
	}
}

// dispatch runs a client interaction against the latest scene
func (s *WebSocketSurface) dispatch(clientID string, msg ClientMessage) {
	s.mu.RLock()
	scene := s.scene
	s.mu.RUnlock()

	switch msg.Type {
	case MessageClick:
		if !scene.Click(msg.ID) {
			s.logger.WithFields(logrus.Fields{"client": clientID, "id": msg.ID}).Debug("click on unknown element")
		}
	case MessageViewport:
		if msg.Center == nil {
			return
		}
		scene.ChangeViewport(*msg.Center, msg.Zoom)
	default:
		s.logger.WithFields(logrus.Fields{"client": clientID, "type": msg.Type}).Debug("ignoring client message")
	}
}

func (s *WebSocketSurface) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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

// Clients returns the number of connected clients
func (s *WebSocketSurface) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Close disconnects every client. The surface reports itself unavailable
// afterwards.
func (s *WebSocketSurface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for id, c := range s.clients {
		delete(s.clients, id)
		close(c.send)
	}
	return nil
}
