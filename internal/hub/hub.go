// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package hub is the server side of the sync channel. It executes commands
// against a store.Repository, answers each one with a message carrying the
// same request id, and fans confirmed changes out to every other connection
// watching the same list, locally and through Valkey pub/sub.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wI2L/jsondiff"

	"sitekit/internal/cache"
	"sitekit/internal/models"
	"sitekit/internal/protocol"
	"sitekit/internal/store"
)

// SyncLogger records applied mutations. *store.SyncLogStore implements it.
type SyncLogger interface {
	Log(ctx context.Context, ref store.Ref, action, componentID, requestID string)
}

// listCache is the part of *cache.ComponentCache the hub uses.
type listCache interface {
	Get(ctx context.Context, key cache.Key) ([]models.Component, bool)
	Set(ctx context.Context, key cache.Key, list []models.Component)
	Invalidate(ctx context.Context, key cache.Key)
}

// Result is the outcome of one command: the reply for the sender and, for
// changes other sessions must see, the broadcast for everyone else.
type Result struct {
	Ref       store.Ref
	Reply     protocol.Message
	Broadcast *protocol.Message
}

// Hub executes commands and tracks the connections to fan changes out to.
type Hub struct {
	repo    store.Repository
	cache   listCache
	syncLog SyncLogger
	relay   *Relay
	timeout time.Duration

	mu    sync.RWMutex
	conns map[*conn]struct{}

	// generations counts changes per list so a cache fill that raced with
	// a write can be undone.
	genMu       sync.Mutex
	generations map[store.Ref]uint64
}

// Option configures a Hub.
type Option func(*Hub)

// WithComponentCache serves list requests from Valkey and invalidates the
// cached list on every change.
func WithComponentCache(cc *cache.ComponentCache) Option {
	return func(h *Hub) {
		if cc != nil {
			h.cache = cc
		}
	}
}

// WithSyncLog records every applied mutation.
func WithSyncLog(l SyncLogger) Option {
	return func(h *Hub) { h.syncLog = l }
}

// WithRelay shares broadcasts with other server instances.
func WithRelay(r *Relay) Option {
	return func(h *Hub) { h.relay = r }
}

// WithCommandTimeout bounds the store work of each command. Clients give up
// on a reply after the same window, so there is no point running longer.
func WithCommandTimeout(d time.Duration) Option {
	return func(h *Hub) { h.timeout = d }
}

// New creates a Hub backed by repo.
func New(repo store.Repository, opts ...Option) *Hub {
	h := &Hub{
		repo:        repo,
		cache:       (*cache.ComponentCache)(nil),
		conns:       make(map[*conn]struct{}),
		generations: make(map[store.Ref]uint64),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RefFor returns the list a command addresses.
func RefFor(kind protocol.Kind, slug string, status models.DocumentStatus) store.Ref {
	switch kind.Name {
	case protocol.Navbar.Name:
		return store.SiteRef(store.ScopeNavbar)
	case protocol.Footer.Name:
		return store.SiteRef(store.ScopeFooter)
	}
	return store.PageRef(slug, status)
}

// cacheKey maps a server list to its Valkey cache key.
func cacheKey(ref store.Ref) cache.Key {
	switch ref.Scope {
	case store.ScopeNavbar:
		return cache.NavbarKey()
	case store.ScopeFooter:
		return cache.FooterKey()
	}
	return cache.ComponentsKey(ref.Slug, ref.Status)
}

// Execute runs one command. Failures are reported in the reply as an error
// message carrying the command's request id.
func (h *Hub) Execute(ctx context.Context, cmd protocol.Command) Result {
	kind, op, ok := protocol.Resolve(cmd.Action)
	if !ok {
		return Result{Reply: errorReply(cmd, fmt.Errorf("%w: unknown action %q", protocol.ErrInvalidCommand, cmd.Action))}
	}
	ref := RefFor(kind, cmd.Slug, cmd.Status)
	if err := cmd.Validate(); err != nil {
		return Result{Ref: ref, Reply: errorReply(cmd, err)}
	}
	if op != protocol.OpList && ref.Status == models.DocumentStatusPublished {
		return Result{Ref: ref, Reply: errorReply(cmd, errors.New("published pages are read-only"))}
	}

	out, err := h.execute(ctx, kind, op, ref, cmd)
	if err != nil {
		slog.Warn("command failed",
			"action", cmd.Action,
			"request_id", cmd.RequestID,
			"ref", ref.String(),
			"error", err,
		)
		return Result{Ref: ref, Reply: errorReply(cmd, err)}
	}
	res := Result{Ref: ref, Reply: out.reply}
	res.Reply.Type = kind.ReplyType(op)
	res.Reply.RequestID = cmd.RequestID
	if kind.PerDocument {
		res.Reply.Slug = ref.Slug
		res.Reply.Status = string(ref.Status)
	}

	if out.changed {
		b := res.Reply
		b.RequestID = ""
		res.Broadcast = &b
		h.invalidate(ctx, ref)
		if h.syncLog != nil {
			h.syncLog.Log(ctx, ref, cmd.Action, cmd.ComponentID, cmd.RequestID)
		}
	}
	return res
}

// outcome is the payload of a successful command. changed is set when other
// sessions must see it.
type outcome struct {
	reply   protocol.Message
	changed bool
}

func (h *Hub) execute(ctx context.Context, kind protocol.Kind, op protocol.Op, ref store.Ref, cmd protocol.Command) (outcome, error) {
	switch op {
	case protocol.OpList:
		list, err := h.list(ctx, ref)
		if err != nil {
			return outcome{}, err
		}
		return dataResult(list, false)

	case protocol.OpCreate:
		index := -1
		if cmd.Order != nil {
			index = *cmd.Order
		}
		c, err := h.repo.Insert(ctx, ref, models.Component{
			ComponentID:   cmd.ComponentID,
			ComponentType: cmd.ComponentType,
			Data:          cmd.Data,
		}, index)
		if errors.Is(err, store.ErrExists) {
			// A retried create: answer with what is stored, change nothing.
			existing, gerr := h.repo.Get(ctx, ref, cmd.ComponentID)
			if gerr != nil {
				return outcome{}, gerr
			}
			return componentResult(existing, false)
		}
		if err != nil {
			return outcome{}, err
		}
		return componentResult(c, true)

	case protocol.OpUpdate:
		current, err := h.repo.Get(ctx, ref, cmd.ComponentID)
		if err != nil {
			return outcome{}, err
		}
		noop, err := isNoop(current, cmd.Data)
		if err != nil {
			return outcome{}, err
		}
		if noop {
			slog.Debug("skipping no-op update", "ref", ref.String(), "component_id", cmd.ComponentID)
			return componentResult(current, false)
		}
		c, err := h.repo.UpdateData(ctx, ref, cmd.ComponentID, cmd.Data)
		if err != nil {
			return outcome{}, err
		}
		return componentResult(c, true)

	case protocol.OpDelete:
		if err := h.repo.Delete(ctx, ref, cmd.ComponentID); err != nil {
			return outcome{}, err
		}
		return outcome{reply: protocol.Message{ComponentID: cmd.ComponentID}, changed: true}, nil

	case protocol.OpReplace:
		c, err := h.repo.Replace(ctx, ref, models.Component{
			ComponentID:   cmd.ComponentID,
			ComponentType: cmd.ComponentType,
			Data:          cmd.Data,
		}, cmd.Order)
		if err != nil {
			return outcome{}, err
		}
		return componentResult(c, true)

	case protocol.OpReorder:
		list, err := h.repo.Reorder(ctx, ref, cmd.OrderUpdates)
		if err != nil {
			return outcome{}, err
		}
		return dataResult(list, true)
	}
	return outcome{}, fmt.Errorf("%s: unsupported operation %q", kind.Name, op)
}

// list serves from the Valkey cache when possible and fills it on a miss.
// A fill that overlapped a write to the same list is dropped again, since
// the write's invalidation may have landed before it.
func (h *Hub) list(ctx context.Context, ref store.Ref) ([]models.Component, error) {
	key := cacheKey(ref)
	if list, ok := h.cache.Get(ctx, key); ok {
		return list, nil
	}
	gen := h.generation(ref)
	list, err := h.repo.List(ctx, ref)
	if err != nil {
		return nil, err
	}
	h.cache.Set(ctx, key, list)
	if h.generation(ref) != gen {
		h.cache.Invalidate(ctx, key)
	}
	return list, nil
}

// invalidate records a change to ref and drops its cached list. The
// generation moves first so concurrent fills see it.
func (h *Hub) invalidate(ctx context.Context, ref store.Ref) {
	h.genMu.Lock()
	h.generations[ref]++
	h.genMu.Unlock()
	h.cache.Invalidate(ctx, cacheKey(ref))
}

func (h *Hub) generation(ref store.Ref) uint64 {
	h.genMu.Lock()
	defer h.genMu.Unlock()
	return h.generations[ref]
}

func componentResult(c models.Component, changed bool) (outcome, error) {
	out, err := dataResult(c, changed)
	out.reply.ComponentID = c.ComponentID
	return out, err
}

func dataResult(v any, changed bool) (outcome, error) {
	data, err := protocol.EncodeData(v)
	if err != nil {
		return outcome{}, err
	}
	return outcome{reply: protocol.Message{Data: data}, changed: changed}, nil
}

// isNoop reports whether merging patch into c leaves its data unchanged.
func isNoop(c models.Component, patch map[string]any) (bool, error) {
	before, err := json.Marshal(c.Data)
	if err != nil {
		return false, fmt.Errorf("encode current data: %w", err)
	}
	merged := c.Clone()
	merged.MergeData(patch)
	after, err := json.Marshal(merged.Data)
	if err != nil {
		return false, fmt.Errorf("encode merged data: %w", err)
	}
	ops, err := jsondiff.CompareJSON(before, after)
	if err != nil {
		return false, fmt.Errorf("diff data: %w", err)
	}
	return len(ops) == 0, nil
}

func errorReply(cmd protocol.Command, err error) protocol.Message {
	return protocol.Message{
		Type:        protocol.TypeError,
		RequestID:   cmd.RequestID,
		ComponentID: cmd.ComponentID,
		Error:       err.Error(),
	}
}
