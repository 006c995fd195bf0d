// Package preview serves a live view of a running job over HTTP and websocket.
package preview

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const (
	writeTimeout = 2 * time.Second
	// sendQueue bounds the messages buffered for one client.
	sendQueue = 64
)

type FrameMessage struct {
	Type  string `json:"type"`
	Kind  string `json:"kind"`
	Index int    `json:"index"`
	JPEG  []byte `json:"jpeg"`
}

type ProgressMessage struct {
	Type    string  `json:"type"`
	Percent float64 `json:"percent"`
}

type AnnotationMessage struct {
	Type   string `json:"type"`
	Region int    `json:"region"`
	Frame  int    `json:"frame"`
	Text   string `json:"text"`
}

// Hub fans job events out to websocket clients and keeps the latest preview
// frame of each kind for plain HTTP polling.
type Hub struct {
	log *slog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	latest  map[string][]byte
}

// client owns one connection. A single writer drains send, so messages reach
// the client in publish order.
type client struct {
	conn *websocket.Conn
	send chan any
}

func newClient(conn *websocket.Conn, size int) *client {
	return &client{conn: conn, send: make(chan any, size)}
}

// enqueue never blocks: when the client is behind, its oldest pending
// message is dropped to make room.
func (c *client) enqueue(msg any) {
	for {
		select {
		case c.send <- msg:
			return
		default:
		}
		select {
		case <-c.send:
		default:
		}
	}
}

func (c *client) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, c.conn, msg)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func New(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:     log,
		clients: make(map[*client]struct{}),
		latest:  make(map[string][]byte),
	}
}

func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.handleWebSocket)
	mux.HandleFunc("GET /preview/{kind}", h.handleFrame)
	return mux
}

// Serve listens on addr until ctx is done.
func (h *Hub) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: h.Handler(), ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (h *Hub) PublishFrame(kind string, index int, jpeg []byte) {
	h.mu.Lock()
	h.latest[kind] = jpeg
	h.mu.Unlock()
	h.broadcast(FrameMessage{Type: "frame", Kind: kind, Index: index, JPEG: jpeg})
}

func (h *Hub) PublishProgress(percent float64) {
	h.broadcast(ProgressMessage{Type: "progress", Percent: percent})
}

func (h *Hub) PublishAnnotation(region, frame int, text string) {
	h.broadcast(AnnotationMessage{Type: "annotation", Region: region, Frame: frame, Text: text})
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// broadcast holds the write lock so concurrent publishers enqueue in a
// single order for every client.
func (h *Hub) broadcast(msg any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.enqueue(msg)
	}
}

func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		h.log.Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := newClient(conn, sendQueue)
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
	}()
	h.log.Debug("preview client connected", "remote", r.RemoteAddr)

	go func() {
		c.writeLoop(ctx)
		cancel()
	}()

	// clients only listen; reading keeps control frames flowing and notices disconnects
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

func (h *Hub) handleFrame(w http.ResponseWriter, r *http.Request) {
	kind := r.PathValue("kind")
	if len(kind) > 4 && kind[len(kind)-4:] == ".jpg" {
		kind = kind[:len(kind)-4]
	}
	h.mu.RLock()
	b, ok := h.latest[kind]
	h.mu.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(b)
}
