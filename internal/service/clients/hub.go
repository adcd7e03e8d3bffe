package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"FinPWA/internal/domain/models"
	"FinPWA/pkg/logger"
)

// Route is where page clients connect.
const Route = "/-/clients"

// Frame kinds exchanged with page clients.
const (
	KindMessage           = "message"
	KindClaim             = "claim"
	KindNotification      = "notification"
	KindFocus             = "focus"
	KindOpen              = "open"
	KindSync              = "sync"
	KindNotificationClick = "notificationclick"
)

var ErrClosed = errors.New("clients: hub closed")

// Frame is the websocket envelope in both directions.
type Frame struct {
	Kind         string                `json:"kind"`
	ClientID     string                `json:"client_id,omitempty"`
	URL          string                `json:"url,omitempty"`
	Tag          string                `json:"tag,omitempty"`
	Message      *models.ClientMessage `json:"message,omitempty"`
	Notification *models.Notification  `json:"notification,omitempty"`
	Action       string                `json:"action,omitempty"`
	Data         json.RawMessage       `json:"data,omitempty"`
}

// EventHandler receives events raised by page clients.
type EventHandler interface {
	Sync(ctx context.Context, tag string) (bool, error)
	NotificationClick(ctx context.Context, click models.NotificationClick) error
}

// Gauge tracks the number of connected clients.
type Gauge interface {
	SetConnectedClients(n int)
}

type Option func(*Hub)

func WithLogger(l *logger.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

func WithGauge(g Gauge) Option {
	return func(h *Hub) { h.gauge = g }
}

// WithSendBuffer bounds the frames queued per client before it is dropped.
func WithSendBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

func WithPingInterval(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.pingInterval = d
		}
	}
}

type client struct {
	id         string
	url        string
	controlled bool
	conn       *websocket.Conn
	send       chan []byte
	done       chan struct{}
	once       sync.Once
}

func (c *client) stop() {
	c.once.Do(func() { close(c.done) })
}

// Hub tracks the page clients connected over websocket.
type Hub struct {
	upgrader     websocket.Upgrader
	logger       *logger.Logger
	gauge        Gauge
	sendBuffer   int
	pingInterval time.Duration

	mu      sync.RWMutex
	clients map[string]*client
	order   []string
	handler EventHandler
	closed  bool
	wg      sync.WaitGroup
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:       logger.NewNop(),
		sendBuffer:   32,
		pingInterval: 30 * time.Second,
		clients:      make(map[string]*client),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetHandler installs the receiver of client events.
func (h *Hub) SetHandler(eh EventHandler) {
	h.mu.Lock()
	h.handler = eh
	h.mu.Unlock()
}

func (h *Hub) RegisterRoutes(e *echo.Echo) {
	e.GET(Route, h.Handle)
}

// Handle upgrades the request and serves the client until it disconnects.
// The page URL is taken from the "url" query parameter.
func (h *Hub) Handle(c echo.Context) error {
	pageURL := c.QueryParam("url")
	if pageURL == "" {
		pageURL = "/"
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return fmt.Errorf("upgrade: %w", err)
	}

	cl := &client{
		id:   uuid.NewString(),
		url:  pagePath(pageURL),
		conn: conn,
		send: make(chan []byte, h.sendBuffer),
		done: make(chan struct{}),
	}
	if err := h.add(cl); err != nil {
		_ = conn.Close()
		return nil
	}
	h.logger.Debug("client connected", logger.String("client_id", cl.id), logger.String("url", cl.url))

	go func() {
		defer h.wg.Done()
		h.writeLoop(cl)
	}()
	h.readLoop(c.Request().Context(), cl)
	return nil
}

func (h *Hub) add(cl *client) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	h.clients[cl.id] = cl
	h.order = append(h.order, cl.id)
	h.wg.Add(1)
	h.setGauge()
	return nil
}

func (h *Hub) remove(cl *client) {
	h.mu.Lock()
	if _, ok := h.clients[cl.id]; ok {
		delete(h.clients, cl.id)
		for i, id := range h.order {
			if id == cl.id {
				h.order = append(h.order[:i], h.order[i+1:]...)
				break
			}
		}
		h.setGauge()
	}
	h.mu.Unlock()
	cl.stop()
}

// setGauge must run with mu held.
func (h *Hub) setGauge() {
	if h.gauge != nil {
		h.gauge.SetConnectedClients(len(h.clients))
	}
}

func (h *Hub) readLoop(ctx context.Context, cl *client) {
	defer func() {
		h.remove(cl)
		_ = cl.conn.Close()
		h.logger.Debug("client disconnected", logger.String("client_id", cl.id))
	}()

	deadline := 2 * h.pingInterval
	_ = cl.conn.SetReadDeadline(time.Now().Add(deadline))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		var f Frame
		if err := cl.conn.ReadJSON(&f); err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				h.logger.Debug("client read", logger.String("client_id", cl.id), logger.Error(err))
			}
			return
		}
		_ = cl.conn.SetReadDeadline(time.Now().Add(deadline))
		h.dispatch(ctx, cl, f)
	}
}

func (h *Hub) dispatch(ctx context.Context, cl *client, f Frame) {
	h.mu.RLock()
	eh := h.handler
	h.mu.RUnlock()
	if eh == nil {
		return
	}

	var err error
	switch f.Kind {
	case KindSync:
		_, err = eh.Sync(ctx, f.Tag)
	case KindNotificationClick:
		err = eh.NotificationClick(ctx, models.NotificationClick{Action: f.Action, Data: f.Data})
	default:
		h.logger.Debug("ignoring client frame", logger.String("kind", f.Kind), logger.String("client_id", cl.id))
		return
	}
	if err != nil {
		h.logger.Warn("client event", logger.String("kind", f.Kind), logger.Error(err))
	}
}

func (h *Hub) writeLoop(cl *client) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-cl.done:
			_ = cl.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = cl.conn.Close()
			return
		case b := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := cl.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				h.remove(cl)
				_ = cl.conn.Close()
				return
			}
		case <-ticker.C:
			if err := cl.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				h.remove(cl)
				_ = cl.conn.Close()
				return
			}
		}
	}
}

// enqueue queues b for cl and drops a client whose buffer is full.
func (h *Hub) enqueue(cl *client, b []byte) bool {
	select {
	case cl.send <- b:
		return true
	default:
		h.logger.Warn("dropping slow client", logger.String("client_id", cl.id))
		go h.remove(cl)
		return false
	}
}

func (h *Hub) snapshot() []*client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*client, 0, len(h.order))
	for _, id := range h.order {
		out = append(out, h.clients[id])
	}
	return out
}

func (h *Hub) broadcast(f Frame) (int, error) {
	sent := 0
	for _, cl := range h.snapshot() {
		f.ClientID = cl.id
		b, err := json.Marshal(f)
		if err != nil {
			return sent, fmt.Errorf("marshal %s frame: %w", f.Kind, err)
		}
		if h.enqueue(cl, b) {
			sent++
		}
	}
	return sent, nil
}

// PostMessage sends msg to every connected client.
func (h *Hub) PostMessage(_ context.Context, msg models.ClientMessage) (int, error) {
	return h.broadcast(Frame{Kind: KindMessage, Message: &msg})
}

// Claim marks every connected client as controlled and tells it so.
func (h *Hub) Claim(_ context.Context, msg models.ClientMessage) (int, error) {
	h.mu.Lock()
	for _, cl := range h.clients {
		cl.controlled = true
	}
	h.mu.Unlock()
	return h.broadcast(Frame{Kind: KindClaim, Message: &msg})
}

// Focus asks the oldest client showing target to take focus.
func (h *Hub) Focus(_ context.Context, target string) (bool, error) {
	p := pagePath(target)
	for _, cl := range h.snapshot() {
		if cl.url != p {
			continue
		}
		b, err := json.Marshal(Frame{Kind: KindFocus, ClientID: cl.id, URL: target})
		if err != nil {
			return false, err
		}
		if h.enqueue(cl, b) {
			return true, nil
		}
	}
	return false, nil
}

// OpenWindow asks connected clients to open target.
func (h *Hub) OpenWindow(_ context.Context, target string) error {
	_, err := h.broadcast(Frame{Kind: KindOpen, URL: target})
	return err
}

func (h *Hub) ShowNotification(_ context.Context, n models.Notification) error {
	_, err := h.broadcast(Frame{Kind: KindNotification, Notification: &n})
	return err
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Controlled counts clients claimed by an activated worker.
func (h *Hub) Controlled() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, cl := range h.clients {
		if cl.controlled {
			n++
		}
	}
	return n
}

// Close disconnects every client and waits for their writers.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	all := make([]*client, 0, len(h.clients))
	for _, cl := range h.clients {
		all = append(all, cl)
	}
	h.mu.Unlock()

	for _, cl := range all {
		cl.stop()
	}
	h.wg.Wait()
	return nil
}

// pagePath reduces a page URL to its path for matching.
func pagePath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" {
		return "/"
	}
	return u.Path
}
