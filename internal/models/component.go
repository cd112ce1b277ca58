// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"maps"
	"sync"
)

// ComponentType tags a component and determines the shape of its data.
type ComponentType string

const (
	ComponentTypeHero       ComponentType = "hero"
	ComponentTypeAbout      ComponentType = "about"
	ComponentTypeProducts   ComponentType = "products"
	ComponentTypeBanner     ComponentType = "banner"
	ComponentTypeNewsletter ComponentType = "newsletter"
	ComponentTypeYoutube    ComponentType = "youtube"
	ComponentTypeFAQ        ComponentType = "faq"
	ComponentTypeNavbar     ComponentType = "navbar"
	ComponentTypeFooter     ComponentType = "footer"
	ComponentTypeCheckout   ComponentType = "checkout"
	ComponentTypeCTA        ComponentType = "cta"
	ComponentTypeOthers     ComponentType = "others"
)

var (
	typesMu    sync.RWMutex
	knownTypes = map[ComponentType]struct{}{
		ComponentTypeHero: {}, ComponentTypeAbout: {}, ComponentTypeProducts: {},
		ComponentTypeBanner: {}, ComponentTypeNewsletter: {}, ComponentTypeYoutube: {},
		ComponentTypeFAQ: {}, ComponentTypeNavbar: {}, ComponentTypeFooter: {},
		ComponentTypeCheckout: {}, ComponentTypeCTA: {}, ComponentTypeOthers: {},
	}
)

// RegisterComponentType adds a tag to the set accepted by KnownComponentType.
// Site templates ship new block types without a protocol change.
func RegisterComponentType(t ComponentType) {
	if t == "" {
		return
	}
	typesMu.Lock()
	knownTypes[t] = struct{}{}
	typesMu.Unlock()
}

// KnownComponentType reports whether t is a registered component tag.
func KnownComponentType(t ComponentType) bool {
	typesMu.RLock()
	defer typesMu.RUnlock()
	_, ok := knownTypes[t]
	return ok
}

// DocumentStatus is the lifecycle state of a page.
type DocumentStatus string

const (
	DocumentStatusPreview   DocumentStatus = "preview"
	DocumentStatusPublished DocumentStatus = "published"
)

// Valid reports whether s is one of the two document states.
func (s DocumentStatus) Valid() bool {
	return s == DocumentStatusPreview || s == DocumentStatusPublished
}

// ComponentStatus marks components that only exist optimistically.
// A confirmed component has an empty status.
type ComponentStatus string

const (
	ComponentStatusDraft     ComponentStatus = "draft"
	ComponentStatusConfirmed ComponentStatus = ""
)

// Component is one typed, ordered block of a page. ComponentID is generated
// by the client before the server has seen the component.
type Component struct {
	ComponentID   string          `json:"component_id"`
	ComponentType ComponentType   `json:"component_type"`
	Data          map[string]any  `json:"data"`
	Order         int             `json:"order"`
	Status        ComponentStatus `json:"status,omitempty"`
}

// IsDraft returns true while the component is only optimistically present.
func (c *Component) IsDraft() bool {
	return c.Status == ComponentStatusDraft
}

// Clone returns a copy whose Data map can be mutated independently.
func (c Component) Clone() Component {
	c.Data = cloneData(c.Data)
	return c
}

// CloneList deep-copies a component list. A nil list stays nil.
func CloneList(list []Component) []Component {
	if list == nil {
		return nil
	}
	out := make([]Component, len(list))
	for i, c := range list {
		out[i] = c.Clone()
	}
	return out
}

// MergeData shallow-merges patch into the component's data. Keys absent from
// patch keep their values.
func (c *Component) MergeData(patch map[string]any) {
	if c.Data == nil {
		c.Data = make(map[string]any, len(patch))
	}
	maps.Copy(c.Data, patch)
}

func cloneData(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return cloneData(x)
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = cloneValue(x[i])
		}
		return out
	default:
		return v
	}
}

// OrderUpdate assigns a new position to one component in a bulk reorder.
type OrderUpdate struct {
	ComponentID string `json:"component_id"`
	Order       int    `json:"order"`
}
