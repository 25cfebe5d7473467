// Package stream broadcasts parameter frames, captions, render state and
// session lifecycle to browser renderers over websockets.
package stream

import (
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/normanking/avatarsync/internal/caption"
	"github.com/normanking/avatarsync/internal/scheduler"
)

const (
	writeWait      = 5 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 512
	sendBuffer     = 64
)

// Message types
const (
	TypeFrame   = "frame"
	TypeCaption = "caption"
	TypeScene   = "scene"
	TypeSession = "session"
)

// Message is what renderers receive
type Message struct {
	Type    string           `json:"type"`
	Frame   *scheduler.Frame `json:"frame,omitempty"`
	Caption *caption.State   `json:"caption,omitempty"`
	Scene   *Scene           `json:"scene,omitempty"`
	Session *SessionUpdate   `json:"session,omitempty"`
}

// Uniforms collects shader uniforms by name. It satisfies face.UniformSetter.
type Uniforms map[string]any

// SetFloat records a float uniform
func (u Uniforms) SetFloat(name string, value float32) {
	u[name] = value
}

// SetVec2 records a vec2 uniform
func (u Uniforms) SetVec2(name string, v mgl32.Vec2) {
	u[name] = v
}

// Geometry is an indexed triangle mesh
type Geometry struct {
	Positions []mgl32.Vec3 `json:"positions"`
	Normals   []mgl32.Vec3 `json:"normals"`
	Indices   []uint32     `json:"indices"`
}

// Scene is the render state after one tick. Morph follows the bound
// model's morph target order and is empty when no model is bound.
type Scene struct {
	Face       Uniforms           `json:"face"`
	Background Uniforms           `json:"background"`
	Mouth      Geometry           `json:"mouth"`
	Rig        map[string]float32 `json:"rig"`
	Morph      []float32          `json:"morph,omitempty"`
}

// SessionUpdate reports a session lifecycle change
type SessionUpdate struct {
	ID    string `json:"id"`
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans frames and captions out to every connected renderer. A client
// that cannot keep up loses messages instead of stalling the render loop.
type Hub struct {
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub creates a hub
func NewHub(logger zerolog.Logger) *Hub {
	h := &Hub{
		clients: make(map[*client]struct{}),
		logger:  logger.With().Str("component", "stream").Logger(),
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h
}

// PublishFrame broadcasts a frame
func (h *Hub) PublishFrame(frame scheduler.Frame) {
	h.broadcast(Message{Type: TypeFrame, Frame: &frame})
}

// PublishCaption broadcasts a caption change
func (h *Hub) PublishCaption(st caption.State) {
	h.broadcast(Message{Type: TypeCaption, Caption: &st})
}

// PublishScene broadcasts the render state of one tick
func (h *Hub) PublishScene(scene Scene) {
	h.broadcast(Message{Type: TypeScene, Scene: &scene})
}

// PublishSession broadcasts a session lifecycle change
func (h *Hub) PublishSession(update SessionUpdate) {
	h.broadcast(Message{Type: TypeSession, Session: &update})
}

func (h *Hub) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to encode message")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Debug().Str("remote", c.conn.RemoteAddr().String()).Msg("Client too slow, dropping message")
		}
	}
}

// Clients returns the number of connected renderers
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and streams until the client leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.logger.Info().Str("remote", conn.RemoteAddr().String()).Msg("Renderer connected")

	go h.writePump(c)
	h.readPump(c)
}

// readPump only watches for the client going away; renderers send nothing.
func (h *Hub) readPump(c *client) {
	defer h.remove(c)

	c.conn.SetReadLimit(maxMessageSize)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Msg("WebSocket read error")
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
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
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
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

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		h.logger.Info().Str("remote", c.conn.RemoteAddr().String()).Msg("Renderer disconnected")
	}
}

// Close disconnects every client and refuses new ones
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

// checkOrigin allows same-origin, localhost and private-network renderers.
func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	// Same-origin requests omit the Origin header
	if origin == "" {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		h.logger.Warn().Str("origin", origin).Msg("Rejected WebSocket connection: invalid origin URL")
		return false
	}

	host := u.Hostname()
	if host == "localhost" {
		return true
	}

	requestHost := r.Host
	if hh, _, err := net.SplitHostPort(requestHost); err == nil {
		requestHost = hh
	}
	if host == requestHost {
		return true
	}

	if ip := net.ParseIP(host); ip != nil && (ip.IsLoopback() || ip.IsPrivate()) {
		return true
	}

	h.logger.Warn().Str("origin", origin).Msg("Rejected WebSocket connection")
	return false
}
