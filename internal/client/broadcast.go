// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package client

import (
	"log/slog"

	"sitekit/internal/cache"
	"sitekit/internal/models"
	"sitekit/internal/ordering"
	"sitekit/internal/protocol"
)

// handleBroadcast merges a change made by another session into the cache.
// Replies to this client's own commands carry a request id and are handled
// by the command that sent them. Keys that were never loaded are skipped;
// they are fetched in full on first use.
func (c *Client) handleBroadcast(msg protocol.Message) {
	if !msg.IsBroadcast() || msg.Type == protocol.TypeError {
		return
	}
	kind, op, ok := protocol.ResolveMessage(msg.Type)
	if !ok {
		slog.Debug("ignoring unknown broadcast", "type", msg.Type)
		return
	}

	key, ok := broadcastKey(kind, msg)
	if !ok || !c.store.Loaded(key) {
		return
	}

	reconcile, err := broadcastReconcile(op, msg)
	if err != nil {
		slog.Warn("dropping malformed broadcast", "type", msg.Type, "key", key.String(), "error", err)
		return
	}
	if reconcile != nil {
		c.store.Merge(key, reconcile)
	}
}

func broadcastKey(kind protocol.Kind, msg protocol.Message) (cache.Key, bool) {
	switch kind.Name {
	case protocol.Navbar.Name:
		return cache.NavbarKey(), true
	case protocol.Footer.Name:
		return cache.FooterKey(), true
	}
	if msg.Slug == "" {
		return cache.Key{}, false
	}
	status := models.DocumentStatus(msg.Status)
	if status == "" {
		status = models.DocumentStatusPreview
	}
	return cache.ComponentsKey(msg.Slug, status), true
}

func broadcastReconcile(op protocol.Op, msg protocol.Message) (func(*cache.Confirmed), error) {
	switch op {
	case protocol.OpList, protocol.OpReorder:
		list, err := protocol.DecodeComponents(msg.Data)
		if err != nil {
			return nil, err
		}
		return func(c *cache.Confirmed) {
			c.List = ordering.Renumber(ordering.Sort(list))
		}, nil

	case protocol.OpCreate:
		comp, hasOrder, err := protocol.DecodeComponent(msg.Data)
		if err != nil {
			return nil, err
		}
		if comp.ComponentID == "" {
			comp.ComponentID = messageID(msg)
		}
		if comp.ComponentID == "" {
			return nil, nil
		}
		at := -1
		if hasOrder {
			at = comp.Order
		}
		return func(c *cache.Confirmed) {
			confirmCreated(c, comp, at)
		}, nil

	case protocol.OpUpdate, protocol.OpReplace:
		comp, ok, err := replyCanonical(msg)
		if err != nil || !ok {
			return nil, err
		}
		move := op == protocol.OpReplace
		return func(c *cache.Confirmed) {
			confirmReplaced(c, comp, move)
		}, nil

	case protocol.OpDelete:
		id := messageID(msg)
		if id == "" && len(msg.Data) > 0 {
			if comp, _, err := protocol.DecodeComponent(msg.Data); err == nil {
				id = comp.ComponentID
			}
		}
		if id == "" {
			return nil, nil
		}
		return func(c *cache.Confirmed) {
			confirmDeleted(c, id)
		}, nil
	}
	return nil, nil
}
