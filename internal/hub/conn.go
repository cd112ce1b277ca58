// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package hub

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"sitekit/internal/protocol"
	"sitekit/internal/store"
	"sitekit/internal/transport"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10

	// sendBuffer is how many outbound messages a connection may have queued
	// before it is considered too slow and dropped.
	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// conn is one websocket session. Every list the session sent a command for
// is watched: changes other sessions make to it are forwarded.
type conn struct {
	ws   *websocket.Conn
	send chan protocol.Message
	done chan struct{}
	once sync.Once

	mu       sync.Mutex
	watching map[store.Ref]struct{}
}

func newConn(ws *websocket.Conn) *conn {
	return &conn{
		ws:       ws,
		send:     make(chan protocol.Message, sendBuffer),
		done:     make(chan struct{}),
		watching: make(map[store.Ref]struct{}),
	}
}

func (c *conn) watch(ref store.Ref) {
	if ref.Scope == "" {
		return
	}
	c.mu.Lock()
	c.watching[ref] = struct{}{}
	c.mu.Unlock()
}

func (c *conn) watches(ref store.Ref) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.watching[ref]
	return ok
}

// enqueue queues msg without blocking. A full queue closes the session.
func (c *conn) enqueue(msg protocol.Message) {
	select {
	case <-c.done:
	case c.send <- msg:
	default:
		slog.Warn("dropping slow sync connection", "remote", c.ws.RemoteAddr().String())
		c.close()
	}
}

func (c *conn) close() {
	c.once.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

func (c *conn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.close()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(msg); err != nil {
				slog.Debug("sync write failed", "error", err)
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeHTTP upgrades the request to a websocket and serves commands until
// the peer disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		slog.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}
	ws.SetReadLimit(transport.MaxMessageSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	c := newConn(ws)
	h.register(c)
	defer h.unregister(c)
	go c.writeLoop()

	slog.Info("sync connection opened", "remote", r.RemoteAddr)
	ctx := context.WithoutCancel(r.Context())
	for {
		var cmd protocol.Command
		if err := ws.ReadJSON(&cmd); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.ErrUnexpectedEOF) {
				c.enqueue(protocol.Message{Type: protocol.TypeError, Error: "malformed command: " + err.Error()})
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("sync connection lost", "remote", r.RemoteAddr, "error", err)
			}
			break
		}

		cmdCtx, cancel := h.commandContext(ctx)
		res := h.Execute(cmdCtx, cmd)
		cancel()
		c.watch(res.Ref)
		c.enqueue(res.Reply)
		if res.Broadcast != nil {
			h.broadcast(ctx, res.Ref, *res.Broadcast, c)
		}
	}
	slog.Info("sync connection closed", "remote", r.RemoteAddr)
}

func (h *Hub) commandContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, h.timeout)
}

func (h *Hub) register(c *conn) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *conn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
	c.close()
}

// broadcast forwards msg to every local session watching ref except origin
// and publishes it to other instances when a relay is configured.
func (h *Hub) broadcast(ctx context.Context, ref store.Ref, msg protocol.Message, origin *conn) {
	h.deliver(ref, msg, origin)
	if h.relay != nil {
		if err := h.relay.Publish(ctx, ref, msg); err != nil {
			slog.Warn("relay publish failed", "ref", ref.String(), "type", msg.Type, "error", err)
		}
	}
}

func (h *Hub) deliver(ref store.Ref, msg protocol.Message, origin *conn) {
	h.mu.RLock()
	targets := make([]*conn, 0, len(h.conns))
	for c := range h.conns {
		if c != origin && c.watches(ref) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(msg)
	}
}

// Connections returns the number of open sessions.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Run relays broadcasts from other instances until ctx is cancelled. Without
// a relay it just waits.
func (h *Hub) Run(ctx context.Context) error {
	if h.relay == nil {
		<-ctx.Done()
		return nil
	}
	err := h.relay.Run(ctx, func(ref store.Ref, msg protocol.Message) {
		h.invalidate(ctx, ref)
		h.deliver(ref, msg, nil)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close drops every open session. http.Server.Shutdown does not close
// hijacked connections.
func (h *Hub) Close() {
	h.mu.RLock()
	conns := make([]*conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		c.close()
	}
}
