// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package client is the optimistic command client for a page's components.
// Every mutating command is applied to the local cache first, sent with a
// request id, and then committed with the server's canonical data or rolled
// back on failure. One generic pipeline serves every entity kind.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"sitekit/internal/cache"
	"sitekit/internal/models"
	"sitekit/internal/ordering"
	"sitekit/internal/protocol"
	"sitekit/internal/transport"
)

var (
	// ErrUnknownComponent is returned when a command names a component that
	// is not in the loaded list. The cache is not touched.
	ErrUnknownComponent = errors.New("client: unknown component")

	// ErrReadOnly is returned for mutations on a published page.
	ErrReadOnly = errors.New("client: published pages are read-only")
)

// Conn is the part of transport.Correlator the client depends on.
type Conn interface {
	Request(ctx context.Context, cmd protocol.Command, responseType string) (protocol.Message, error)
	Listen(msgType string, handler transport.Handler) func()
}

// Client issues commands against one sync connection and keeps the results
// in a cache.Store.
type Client struct {
	conn     Conn
	store    *cache.Store
	notifier Notifier
	newID    func() string

	stopListening func()
	closer        func() error
}

// Option configures a Client.
type Option func(*Client)

// WithNotifier sets where command notifications go. Default: LogNotifier.
func WithNotifier(n Notifier) Option {
	return func(c *Client) { c.notifier = n }
}

// WithIDGenerator overrides how new component ids are made. Default: UUIDv4.
func WithIDGenerator(gen func() string) Option {
	return func(c *Client) { c.newID = gen }
}

// New creates a client on conn writing into store. It starts listening for
// changes broadcast by other sessions; call Close to stop.
func New(conn Conn, store *cache.Store, opts ...Option) *Client {
	c := &Client{
		conn:     conn,
		store:    store,
		notifier: LogNotifier{},
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.stopListening = conn.Listen("", c.handleBroadcast)
	return c
}

// Connect dials the sync endpoint and returns a running client with its own
// store. The client closes the connection on Close.
func Connect(ctx context.Context, url string, header http.Header, opts ...Option) (*Client, error) {
	return ConnectWithTimeout(ctx, url, header, transport.DefaultTimeout, opts...)
}

// ConnectWithTimeout is Connect with a custom reply window.
func ConnectWithTimeout(ctx context.Context, url string, header http.Header, timeout time.Duration, opts ...Option) (*Client, error) {
	ws, err := transport.Dial(ctx, url, header)
	if err != nil {
		return nil, err
	}
	corr := transport.NewCorrelator(ws, transport.WithTimeout(timeout))
	go func() {
		if err := corr.Run(context.Background()); err != nil && !errors.Is(err, transport.ErrClosed) {
			slog.Warn("sync connection ended", "error", err)
		}
	}()

	c := New(corr, cache.NewStore(), opts...)
	c.closer = corr.Close
	return c, nil
}

// Store returns the cache the client writes to.
func (c *Client) Store() *cache.Store {
	return c.store
}

// Close stops broadcast handling and closes the connection if the client
// opened it.
func (c *Client) Close() error {
	c.stopListening()
	if c.closer != nil {
		return c.closer()
	}
	return nil
}

// Components returns the editable (preview) component list of a page.
func (c *Client) Components(slug string) *Collection {
	return c.Page(slug, models.DocumentStatusPreview)
}

// Page returns the component list of a page in the given state.
func (c *Client) Page(slug string, status models.DocumentStatus) *Collection {
	return &Collection{
		client: c,
		kind:   protocol.Components,
		key:    cache.ComponentsKey(slug, status),
		slug:   slug,
		status: status,
	}
}

// Navbar returns the site navbar collection.
func (c *Client) Navbar() *Collection {
	return &Collection{client: c, kind: protocol.Navbar, key: cache.NavbarKey()}
}

// Footer returns the site footer collection.
func (c *Client) Footer() *Collection {
	return &Collection{client: c, kind: protocol.Footer, key: cache.FooterKey()}
}

func (c *Client) notify(kind NotificationKind, label, requestID string, key cache.Key, err error) {
	if c.notifier == nil {
		return
	}
	c.notifier.Notify(Notification{Kind: kind, Command: label, RequestID: requestID, Key: key, Err: err})
}

// command is one optimistic round trip. mutate is the local effect;
// reconcile turns the reply into a change of the confirmed list.
type command struct {
	op        protocol.Op
	cmd       protocol.Command
	mutate    cache.Mutation
	reconcile func(protocol.Message) (func(*cache.Confirmed), error)
}

// execute runs the snapshot, optimistic apply, send, commit-or-rollback
// sequence shared by every mutating command.
func (col *Collection) execute(ctx context.Context, x command) (protocol.Message, error) {
	c := col.client
	label := fmt.Sprintf("%s %s", x.op, col.kind.Name)

	cmd := x.cmd
	cmd.Action = col.kind.ActionFor(x.op)
	cmd.RequestID = protocol.NewRequestID()
	if col.kind.PerDocument {
		cmd.Slug = col.slug
		cmd.Status = col.status
	}

	if err := col.checkLocal(cmd); err != nil {
		c.notify(NotifyError, label, cmd.RequestID, col.key, err)
		return protocol.Message{}, err
	}

	c.notify(NotifyPending, label, cmd.RequestID, col.key, nil)
	tok, _ := c.store.ApplyOptimistic(col.key, label, x.mutate)

	msg, err := c.conn.Request(ctx, cmd, col.kind.ReplyType(x.op))
	if err == nil {
		var reconcile func(*cache.Confirmed)
		reconcile, err = x.reconcile(msg)
		if err == nil {
			if cerr := c.store.Commit(tok, reconcile); cerr != nil {
				slog.Warn("commit after settle", "key", col.key.String(), "error", cerr)
			}
			c.notify(NotifySuccess, label, cmd.RequestID, col.key, nil)
			return msg, nil
		}
	}

	if rerr := c.store.Rollback(tok); rerr != nil {
		slog.Warn("rollback after settle", "key", col.key.String(), "error", rerr)
	}
	c.notify(NotifyError, label, cmd.RequestID, col.key, err)
	return msg, err
}

// checkLocal rejects commands that must not reach the transport.
func (col *Collection) checkLocal(cmd protocol.Command) error {
	if col.status == models.DocumentStatusPublished {
		return ErrReadOnly
	}
	if err := cmd.Validate(); err != nil {
		return err
	}
	if cmd.ComponentID == "" || !col.client.store.Loaded(col.key) {
		return nil
	}
	if _, op, _ := protocol.Resolve(cmd.Action); op == protocol.OpCreate {
		return nil
	}
	list, _ := col.client.store.Get(col.key)
	if ordering.IndexOf(list, cmd.ComponentID) < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownComponent, cmd.ComponentID)
	}
	return nil
}
