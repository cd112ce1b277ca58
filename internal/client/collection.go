// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package client

import (
	"context"
	"fmt"

	"sitekit/internal/cache"
	"sitekit/internal/models"
	"sitekit/internal/ordering"
	"sitekit/internal/protocol"
)

// Collection is one cached, ordered list of entities of a single kind: the
// components of a page, or the site navbar or footer.
type Collection struct {
	client *Client
	kind   protocol.Kind
	key    cache.Key
	slug   string
	status models.DocumentStatus
}

// Key returns the cache key the collection lives under.
func (col *Collection) Key() cache.Key {
	return col.key
}

// Kind returns the entity kind of the collection.
func (col *Collection) Kind() protocol.Kind {
	return col.kind
}

// Items returns the visible list, optimistic changes included.
func (col *Collection) Items() []models.Component {
	list, _ := col.client.store.Get(col.key)
	if list == nil {
		return []models.Component{}
	}
	return list
}

// Load fetches the list from the server and stores it as confirmed state.
func (col *Collection) Load(ctx context.Context) ([]models.Component, error) {
	cmd := protocol.Command{
		Action:    col.kind.List,
		RequestID: protocol.NewRequestID(),
	}
	if col.kind.PerDocument {
		cmd.Slug = col.slug
		cmd.Status = col.status
	}
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	msg, err := col.client.conn.Request(ctx, cmd, col.kind.Listed)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", col.key, err)
	}
	list, err := protocol.DecodeComponents(msg.Data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", col.key, err)
	}
	col.client.store.Set(col.key, list)
	return col.Items(), nil
}

// Create adds a component of type typ. With a nil index it is appended,
// otherwise it is inserted in front of the first component whose order is
// >= *index. The component shows up as a draft right away and is returned
// with its client-generated id once the server confirmed it.
func (col *Collection) Create(ctx context.Context, typ models.ComponentType, data map[string]any, index *int) (models.Component, error) {
	draft := models.Component{
		ComponentID:   col.client.newID(),
		ComponentType: typ,
		Data:          data,
		Status:        models.ComponentStatusDraft,
	}

	// Position the optimistic apply gave the draft, reused on commit when
	// the server does not assign one.
	optimisticOrder := -1
	mutate := func(list []models.Component) []models.Component {
		// Server truth merged before the ack may already hold the component.
		if i := ordering.IndexOf(list, draft.ComponentID); i >= 0 {
			optimisticOrder = list[i].Order
			return list
		}
		at := -1
		if index != nil {
			at = *index
		}
		out := ordering.InsertAt(list, at, draft)
		optimisticOrder = out[ordering.IndexOf(out, draft.ComponentID)].Order
		return out
	}

	var created models.Component
	_, err := col.execute(ctx, command{
		op: protocol.OpCreate,
		cmd: protocol.Command{
			ComponentID:   draft.ComponentID,
			ComponentType: typ,
			Data:          data,
			Order:         index,
		},
		mutate: mutate,
		reconcile: func(msg protocol.Message) (func(*cache.Confirmed), error) {
			comp, hasOrder, err := replyComponent(msg, draft)
			if err != nil {
				return nil, err
			}
			if comp.ComponentID != draft.ComponentID {
				return nil, fmt.Errorf("create %s: server confirmed %q", draft.ComponentID, comp.ComponentID)
			}
			created = comp
			return func(c *cache.Confirmed) {
				at := optimisticOrder
				if hasOrder {
					at = comp.Order
				}
				created.Order = confirmCreated(c, comp, at)
			}, nil
		},
	})
	if err != nil {
		return models.Component{}, err
	}
	return created, nil
}

// Update shallow-merges patch into the component's data.
func (col *Collection) Update(ctx context.Context, id string, patch map[string]any) error {
	_, err := col.execute(ctx, command{
		op:  protocol.OpUpdate,
		cmd: protocol.Command{ComponentID: id, Data: patch},
		mutate: func(list []models.Component) []models.Component {
			return mergeInto(list, id, patch)
		},
		reconcile: func(msg protocol.Message) (func(*cache.Confirmed), error) {
			comp, ok, err := replyCanonical(msg)
			if err != nil {
				return nil, err
			}
			return func(c *cache.Confirmed) {
				if ok && comp.ComponentID == id {
					confirmReplaced(c, comp, false)
					return
				}
				c.List = mergeInto(c.List, id, patch)
			}, nil
		},
	})
	return err
}

// Delete removes the component and renumbers the rest.
func (col *Collection) Delete(ctx context.Context, id string) error {
	_, err := col.execute(ctx, command{
		op:  protocol.OpDelete,
		cmd: protocol.Command{ComponentID: id},
		mutate: func(list []models.Component) []models.Component {
			return ordering.Remove(list, id)
		},
		reconcile: func(protocol.Message) (func(*cache.Confirmed), error) {
			return func(c *cache.Confirmed) {
				confirmDeleted(c, id)
			}, nil
		},
	})
	return err
}

// Replace swaps the component's type and data, keeping its id. The order is
// kept unless order is non-nil.
func (col *Collection) Replace(ctx context.Context, id string, typ models.ComponentType, data map[string]any, order *int) error {
	next := models.Component{ComponentID: id, ComponentType: typ, Data: data}
	if order != nil {
		next.Order = *order
	}
	_, err := col.execute(ctx, command{
		op: protocol.OpReplace,
		cmd: protocol.Command{
			ComponentID:   id,
			ComponentType: typ,
			Data:          data,
			Order:         order,
		},
		mutate: func(list []models.Component) []models.Component {
			return replaceIn(list, next, order != nil)
		},
		reconcile: func(msg protocol.Message) (func(*cache.Confirmed), error) {
			comp, ok, err := replyCanonical(msg)
			if err != nil {
				return nil, err
			}
			return func(c *cache.Confirmed) {
				if ok && comp.ComponentID == id {
					confirmReplaced(c, comp, order != nil)
					return
				}
				c.List = replaceIn(c.List, next, order != nil)
			}, nil
		},
	})
	return err
}

// Reorder applies a bulk order change. Only component lists support it.
func (col *Collection) Reorder(ctx context.Context, updates []models.OrderUpdate) error {
	if !col.kind.CanReorder() {
		return fmt.Errorf("%w: %s cannot be reordered", protocol.ErrInvalidCommand, col.kind.Name)
	}
	_, err := col.execute(ctx, command{
		op:  protocol.OpReorder,
		cmd: protocol.Command{OrderUpdates: updates},
		mutate: func(list []models.Component) []models.Component {
			return ordering.BulkReorder(list, updates)
		},
		reconcile: func(msg protocol.Message) (func(*cache.Confirmed), error) {
			list, err := protocol.DecodeComponents(msg.Data)
			if err != nil {
				return nil, err
			}
			return func(c *cache.Confirmed) {
				if len(list) > 0 {
					c.List = ordering.Renumber(ordering.Sort(list))
					return
				}
				c.List = ordering.BulkReorder(c.List, updates)
			}, nil
		},
	})
	return err
}

// replyComponent decodes the component a create reply carries, falling back
// to the draft for fields the server left out.
func replyComponent(msg protocol.Message, draft models.Component) (models.Component, bool, error) {
	comp := draft
	comp.Status = models.ComponentStatusConfirmed
	hasOrder := false
	if len(msg.Data) > 0 && string(msg.Data) != "null" {
		decoded, ok, err := protocol.DecodeComponent(msg.Data)
		if err != nil {
			return models.Component{}, false, err
		}
		if decoded.ComponentID != "" {
			comp.ComponentID = decoded.ComponentID
		}
		if decoded.ComponentType != "" {
			comp.ComponentType = decoded.ComponentType
		}
		if decoded.Data != nil {
			comp.Data = decoded.Data
		}
		comp.Order = decoded.Order
		hasOrder = ok
	}
	if id := messageID(msg); comp.ComponentID == "" && id != "" {
		comp.ComponentID = id
	}
	return comp, hasOrder, nil
}

// replyCanonical decodes the full component an update or replace reply
// carries. ok is false when the reply had no usable component.
func replyCanonical(msg protocol.Message) (models.Component, bool, error) {
	if len(msg.Data) == 0 || string(msg.Data) == "null" {
		return models.Component{}, false, nil
	}
	comp, hasOrder, err := protocol.DecodeComponent(msg.Data)
	if err != nil {
		return models.Component{}, false, err
	}
	if comp.ComponentID == "" {
		comp.ComponentID = messageID(msg)
	}
	if comp.ComponentID == "" || comp.Data == nil {
		return models.Component{}, false, nil
	}
	if !hasOrder {
		comp.Order = -1
	}
	comp.Status = models.ComponentStatusConfirmed
	return comp, true, nil
}

func messageID(msg protocol.Message) string {
	if msg.ComponentID != "" {
		return msg.ComponentID
	}
	return msg.ID
}
