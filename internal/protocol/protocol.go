// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package protocol defines the JSON envelopes exchanged over the sync
// channel: outbound commands carrying an action, and inbound messages tagged
// with a type. Both carry a request id so a reply can be matched to the
// exact command that caused it.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/oklog/ulid/v2"

	"sitekit/internal/models"
)

// Actions accepted by the server.
const (
	ActionListComponents       = "list_components"
	ActionCreateComponent      = "create_component"
	ActionUpdateComponent      = "update_component"
	ActionDeleteComponent      = "delete_component"
	ActionReplaceComponent     = "replace_component"
	ActionUpdateComponentOrder = "update_component_order"

	ActionGetNavbar     = "get_navbar"
	ActionCreateNavbar  = "create_navbar"
	ActionUpdateNavbar  = "update_navbar"
	ActionDeleteNavbar  = "delete_navbar"
	ActionReplaceNavbar = "replace_navbar"

	ActionGetFooter     = "get_footer"
	ActionCreateFooter  = "create_footer"
	ActionUpdateFooter  = "update_footer"
	ActionDeleteFooter  = "delete_footer"
	ActionReplaceFooter = "replace_footer"
)

// Message types sent by the server.
const (
	TypeComponentsList        = "components_list"
	TypeComponentCreated      = "component_created"
	TypeComponentUpdated      = "component_updated"
	TypeComponentDeleted      = "component_deleted"
	TypeComponentReplaced     = "component_replaced"
	TypeComponentOrderUpdated = "component_order_updated"

	TypeNavbar         = "navbar"
	TypeNavbarCreated  = "navbar_created"
	TypeNavbarUpdated  = "navbar_updated"
	TypeNavbarDeleted  = "navbar_deleted"
	TypeNavbarReplaced = "navbar_replaced"

	TypeFooter         = "footer"
	TypeFooterCreated  = "footer_created"
	TypeFooterUpdated  = "footer_updated"
	TypeFooterDeleted  = "footer_deleted"
	TypeFooterReplaced = "footer_replaced"

	// TypeError reports a failed command. RequestID names the command.
	TypeError = "error"
)

// Command is the outbound envelope. Only the fields an action needs are set.
type Command struct {
	Action        string                `json:"action"`
	RequestID     string                `json:"request_id,omitempty"`
	Slug          string                `json:"slug,omitempty"`
	ComponentID   string                `json:"component_id,omitempty"`
	ComponentType models.ComponentType  `json:"component_type,omitempty"`
	Data          map[string]any        `json:"data,omitempty"`
	Order         *int                  `json:"order,omitempty"`
	Status        models.DocumentStatus `json:"status,omitempty"`
	OrderUpdates  []models.OrderUpdate  `json:"order_updates,omitempty"`
}

// Message is the inbound envelope. Data holds the action-specific payload:
// a component, a list of components, or nothing.
type Message struct {
	Type        string          `json:"type"`
	RequestID   string          `json:"request_id,omitempty"`
	Slug        string          `json:"slug,omitempty"`
	Status      string          `json:"status,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
	ID          string          `json:"id,omitempty"`
	ComponentID string          `json:"component_id,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// IsBroadcast reports whether the message was not addressed to a specific
// command, i.e. it was fanned out from another session's mutation.
func (m *Message) IsBroadcast() bool {
	return m.RequestID == ""
}

// NewRequestID returns a time-sortable unique request id.
func NewRequestID() string {
	return ulid.Make().String()
}

// Int returns a pointer to v, for the optional order field.
func Int(v int) *int {
	return &v
}

// wireComponent mirrors models.Component but keeps order optional so the
// client can tell whether the server assigned a position.
type wireComponent struct {
	ComponentID   string                 `json:"component_id"`
	ID            string                 `json:"id"`
	ComponentType models.ComponentType   `json:"component_type"`
	Data          map[string]any         `json:"data"`
	Order         *int                   `json:"order"`
	Status        models.ComponentStatus `json:"status"`
}

func (w wireComponent) component() models.Component {
	c := models.Component{
		ComponentID:   w.ComponentID,
		ComponentType: w.ComponentType,
		Data:          w.Data,
		Status:        w.Status,
	}
	if c.ComponentID == "" {
		c.ComponentID = w.ID
	}
	if w.Order != nil {
		c.Order = *w.Order
	}
	return c
}

// DecodeComponent parses a single component payload. hasOrder is false when
// the server left the position to the client.
func DecodeComponent(raw json.RawMessage) (c models.Component, hasOrder bool, err error) {
	var w wireComponent
	if err := json.Unmarshal(raw, &w); err != nil {
		return models.Component{}, false, fmt.Errorf("decode component: %w", err)
	}
	return w.component(), w.Order != nil, nil
}

// DecodeComponents parses a list payload. A null payload decodes to an
// empty list and a single object to a one-element list, which is how the
// site-wide navbar and footer are answered.
func DecodeComponents(raw json.RawMessage) ([]models.Component, error) {
	var ws []wireComponent
	trimmed := bytes.TrimSpace(raw)
	switch {
	case len(trimmed) == 0, bytes.Equal(trimmed, []byte("null")):
	case trimmed[0] == '{':
		var w wireComponent
		if err := json.Unmarshal(trimmed, &w); err != nil {
			return nil, fmt.Errorf("decode component: %w", err)
		}
		ws = append(ws, w)
	default:
		if err := json.Unmarshal(trimmed, &ws); err != nil {
			return nil, fmt.Errorf("decode components: %w", err)
		}
	}
	out := make([]models.Component, len(ws))
	for i, w := range ws {
		out[i] = w.component()
	}
	return out, nil
}

// EncodeData marshals a payload for Message.Data.
func EncodeData(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode data: %w", err)
	}
	return b, nil
}
