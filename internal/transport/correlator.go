// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package transport turns a duplex JSON channel into request/response calls.
// Outbound commands are fire-and-forget; replies arrive asynchronously and
// are routed to one-shot subscriptions by message type and request id.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"sitekit/internal/protocol"
)

// DefaultTimeout bounds how long a command waits for its reply.
const DefaultTimeout = 10 * time.Second

var (
	// ErrTimeout is returned when no reply arrived within the timeout.
	ErrTimeout = errors.New("transport: no response before timeout")

	// ErrClosed is returned once the connection has shut down.
	ErrClosed = errors.New("transport: connection closed")
)

// ServerError is a failure reported by the server for one command.
type ServerError struct {
	Action    string
	RequestID string
	Message   string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s rejected by server: %s", e.Action, e.Message)
}

// Conn is the duplex channel underneath a Correlator. *websocket.Conn from
// gorilla/websocket satisfies it.
type Conn interface {
	WriteJSON(v any) error
	ReadJSON(v any) error
	Close() error
}

// Handler receives an inbound message.
type Handler func(protocol.Message)

type subscription struct {
	id      uint64
	match   func(*protocol.Message) bool
	handler Handler
	once    bool
}

// Correlator owns a Conn: it serializes writes, runs the read loop and
// dispatches each inbound message to the subscriptions that match it.
type Correlator struct {
	conn    Conn
	timeout time.Duration

	writeMu sync.Mutex

	mu     sync.Mutex
	nextID uint64
	subs   []*subscription // registration order
	closed bool
	err    error
	done   chan struct{}
}

// Option configures a Correlator.
type Option func(*Correlator)

// WithTimeout overrides DefaultTimeout. Zero or negative values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(c *Correlator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewCorrelator wraps conn. Call Run to start delivering messages.
func NewCorrelator(conn Conn, opts ...Option) *Correlator {
	c := &Correlator{
		conn:    conn,
		timeout: DefaultTimeout,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Timeout returns the reply window used by Request and Expect.
func (c *Correlator) Timeout() time.Duration {
	return c.timeout
}

// Run reads messages until the connection fails or ctx is cancelled.
// It always returns a non-nil error and closes the correlator.
func (c *Correlator) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		c.shutdown(ctx.Err())
	})
	defer stop()

	for {
		var msg protocol.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			c.shutdown(err)
			return c.Err()
		}
		c.dispatch(&msg)
	}
}

// Done is closed when the correlator stops.
func (c *Correlator) Done() <-chan struct{} {
	return c.done
}

// Err returns why the correlator stopped, or nil while it is running.
func (c *Correlator) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close shuts the connection down. Pending requests fail with ErrClosed.
func (c *Correlator) Close() error {
	c.shutdown(ErrClosed)
	return nil
}

func (c *Correlator) shutdown(cause error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if cause == nil {
		cause = ErrClosed
	}
	c.err = cause
	c.subs = nil
	close(c.done)
	c.mu.Unlock()

	if err := c.conn.Close(); err != nil {
		slog.Debug("transport close", "error", err)
	}
}

// SendMessage writes cmd to the connection. It does not wait for a reply.
func (c *Correlator) SendMessage(cmd protocol.Command) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(cmd); err != nil {
		return fmt.Errorf("send %s: %w", cmd.Action, err)
	}
	slog.Debug("command sent", "action", cmd.Action, "request_id", cmd.RequestID)
	return nil
}

// Subscribe calls handler for the next message of msgType. The returned
// function removes the subscription; calling it after delivery is a no-op.
func (c *Correlator) Subscribe(msgType string, handler Handler) func() {
	return c.add(func(m *protocol.Message) bool {
		return m.Type == msgType
	}, handler, true)
}

// SubscribeRequest is Subscribe restricted to replies for one request id.
func (c *Correlator) SubscribeRequest(msgType, requestID string, handler Handler) func() {
	return c.add(func(m *protocol.Message) bool {
		return m.Type == msgType && m.RequestID == requestID
	}, handler, true)
}

// Listen calls handler for every message of msgType until the returned
// function is called. An empty msgType matches all messages.
func (c *Correlator) Listen(msgType string, handler Handler) func() {
	return c.add(func(m *protocol.Message) bool {
		return msgType == "" || m.Type == msgType
	}, handler, false)
}

// Expect subscribes to the reply for requestID and tears the subscription
// down after the timeout if nothing arrived. It reports nothing on timeout;
// use Request when the caller needs an error.
func (c *Correlator) Expect(msgType, requestID string, handler Handler) func() {
	unsubscribe := c.SubscribeRequest(msgType, requestID, handler)
	timer := time.AfterFunc(c.timeout, unsubscribe)
	return func() {
		timer.Stop()
		unsubscribe()
	}
}

// Request sends cmd and waits for the reply of responseType carrying the same
// request id. It fails with ErrTimeout after the timeout, with *ServerError
// when the server answers with an error message, and with ErrClosed if the
// connection drops. A missing request id is generated.
func (c *Correlator) Request(ctx context.Context, cmd protocol.Command, responseType string) (protocol.Message, error) {
	if cmd.RequestID == "" {
		cmd.RequestID = protocol.NewRequestID()
	}

	reply := make(chan protocol.Message, 1)
	unsubscribe := c.add(func(m *protocol.Message) bool {
		return m.RequestID == cmd.RequestID && (m.Type == responseType || m.Type == protocol.TypeError)
	}, func(m protocol.Message) {
		reply <- m
	}, true)
	defer unsubscribe()

	if err := c.SendMessage(cmd); err != nil {
		return protocol.Message{}, err
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case msg := <-reply:
		if msg.Type == protocol.TypeError {
			return msg, &ServerError{Action: cmd.Action, RequestID: cmd.RequestID, Message: msg.Error}
		}
		return msg, nil
	case <-timer.C:
		slog.Warn("command timed out", "action", cmd.Action, "request_id", cmd.RequestID, "timeout", c.timeout)
		return protocol.Message{}, fmt.Errorf("%s: %w", cmd.Action, ErrTimeout)
	case <-ctx.Done():
		return protocol.Message{}, ctx.Err()
	case <-c.done:
		return protocol.Message{}, ErrClosed
	}
}

func (c *Correlator) add(match func(*protocol.Message) bool, handler Handler, once bool) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return func() {}
	}
	c.nextID++
	id := c.nextID
	c.subs = append(c.subs, &subscription{id: id, match: match, handler: handler, once: once})
	return func() { c.remove(id) }
}

func (c *Correlator) remove(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = slices.DeleteFunc(c.subs, func(s *subscription) bool {
		return s.id == id
	})
}

// dispatch hands msg to every matching subscription. One-shot subscriptions
// are removed under the lock so each fires at most once, and handlers run
// after the lock is released.
func (c *Correlator) dispatch(msg *protocol.Message) {
	c.mu.Lock()
	var fire []Handler
	kept := c.subs[:0]
	for _, s := range c.subs {
		if s.match(msg) {
			fire = append(fire, s.handler)
			if s.once {
				continue
			}
		}
		kept = append(kept, s)
	}
	clear(c.subs[len(kept):])
	c.subs = kept
	c.mu.Unlock()

	if len(fire) == 0 {
		slog.Debug("unhandled message", "type", msg.Type, "request_id", msg.RequestID)
		return
	}
	for _, h := range fire {
		h(*msg)
	}
}
