// Package hmr is the websocket side of hot updates: it tracks connected
// native clients per environment, announces builds to them and forwards
// their console output to the terminal.
package hmr

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vxrn/vxrn/internal/output"
	"github.com/vxrn/vxrn/internal/platform"
)

const (
	// HMRPath carries ping/pong and build notifications.
	HMRPath = "/__hmr"
	// ClientLogPath carries console output from the device.
	ClientLogPath = "/__client"

	writeWait  = 10 * time.Second
	sendBuffer = 16
)

// Message is one frame sent to or received from a client.
type Message struct {
	Type string `json:"type"`
	Body any    `json:"body,omitempty"`
}

// BuiltBody announces a new hot-update payload. Clients fetch the code
// from /file; nothing else is pushed.
type BuiltBody struct {
	ID       string `json:"id"`
	Hash     string `json:"hash"`
	Platform string `json:"platform,omitempty"`
}

// ClientLog is a console frame from a device.
type ClientLog struct {
	Type  string   `json:"type"`
	Level string   `json:"level"`
	Data  []string `json:"data"`
}

// Counter counts connected clients per environment.
type Counter struct {
	mu     sync.Mutex
	counts map[platform.Environment]int
}

// NewCounter returns an empty Counter.
func NewCounter() *Counter {
	return &Counter{counts: make(map[platform.Environment]int)}
}

func (c *Counter) add(env platform.Environment, delta int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[env] += delta
	if c.counts[env] <= 0 {
		delete(c.counts, env)
	}
}

// Count returns the clients connected for env.
func (c *Counter) Count(env platform.Environment) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[env]
}

// Total returns the clients connected across environments.
func (c *Counter) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.counts {
		n += v
	}
	return n
}

// Options configures a Hub.
type Options struct {
	Clients *Counter
	Logger  *log.Logger
	// Device receives forwarded client logs.
	Device *log.Logger
}

type client struct {
	id   string
	env  platform.Environment
	conn *websocket.Conn
	send chan []byte
}

// Hub owns every HMR connection of one dev server.
type Hub struct {
	clients  *Counter
	logger   *log.Logger
	device   *log.Logger
	upgrader websocket.Upgrader

	mu     sync.Mutex
	conns  map[*client]struct{}
	closed bool
}

// NewHub returns a Hub. A nil Clients gets a fresh Counter.
func NewHub(opts Options) *Hub {
	if opts.Clients == nil {
		opts.Clients = NewCounter()
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	if opts.Device == nil {
		opts.Device = log.New(io.Discard)
	}
	return &Hub{
		clients: opts.Clients,
		logger:  opts.Logger,
		device:  opts.Device,
		upgrader: websocket.Upgrader{
			// Devices connect from arbitrary origins on the LAN.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[*client]struct{}),
	}
}

// Clients returns the Hub's connection counter.
func (h *Hub) Clients() *Counter {
	return h.clients
}

// Routes mounts the websocket endpoints.
func (h *Hub) Routes(r chi.Router) {
	r.Get(HMRPath, h.handleHMR)
	r.Get(ClientLogPath, h.handleClientLog)
}

// Building tells clients of env that a rebuild started.
func (h *Hub) Building(env platform.Environment) {
	h.broadcast(env, Message{Type: "building"})
}

// Built tells clients of env that a fresh payload for id is available.
func (h *Hub) Built(env platform.Environment, id, hash string) {
	if hash == "" {
		hash = uuid.NewString()
	}
	h.broadcast(env, Message{Type: "built", Body: BuiltBody{ID: id, Hash: hash, Platform: string(env)}})
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*client, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()
	for _, c := range conns {
		c.conn.Close()
	}
}

// broadcast queues msg for every client of env, or all clients when env
// is empty. Slow clients drop frames instead of blocking the sender.
func (h *Hub) broadcast(env platform.Environment, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("encoding message", "type", msg.Type, "error", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		if env != "" && c.env != "" && c.env != env {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.logger.Warn("client too slow, dropping frame", "client", c.id, "type", msg.Type)
		}
	}
}

func (h *Hub) handleHMR(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("platform")
	env, parseErr := platform.Parse(raw)
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{id: uuid.NewString(), env: env, conn: conn, send: make(chan []byte, sendBuffer)}
	if !h.register(c) {
		conn.Close()
		return
	}
	h.logger.Info("client connected", "client", c.id, "platform", env)
	if parseErr != nil {
		h.logger.Warn("client has no valid platform; it will not receive hot updates", "client", c.id, "platform", raw)
	}

	done := make(chan struct{})
	go h.writeLoop(c, done)
	h.readLoop(c)

	close(done)
	h.unregister(c)
	h.logger.Info("client disconnected", "client", c.id, "platform", env)
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[c] = struct{}{}
	if c.env != "" {
		h.clients.add(c.env, 1)
	}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[c]; !ok {
		return
	}
	delete(h.conns, c)
	if c.env != "" {
		h.clients.add(c.env, -1)
	}
	c.conn.Close()
}

func (h *Hub) readLoop(c *client) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if isPing(data) {
			pong, _ := json.Marshal(Message{Type: "pong"})
			select {
			case c.send <- pong:
			default:
			}
			continue
		}
		h.logger.Debug("ignoring client frame", "client", c.id, "bytes", len(data))
	}
}

func (h *Hub) writeLoop(c *client, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debug("write failed", "client", c.id, "error", err)
				c.conn.Close()
				return
			}
		}
	}
}

func isPing(data []byte) bool {
	text := strings.TrimSpace(string(data))
	if text == "ping" {
		return true
	}
	var msg Message
	return json.Unmarshal(data, &msg) == nil && msg.Type == "ping"
}

func (h *Hub) handleClientLog(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame ClientLog
		if err := json.Unmarshal(data, &frame); err != nil || frame.Type != "client-log" {
			continue
		}
		h.device.Log(output.DeviceLevel(frame.Level), strings.Join(frame.Data, " "))
	}
}
