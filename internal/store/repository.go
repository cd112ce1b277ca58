// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package store persists component lists on the server. Every list is
// addressed by a Ref and kept densely ordered: after each structural change
// the orders are exactly 0..N-1.
package store

import (
	"context"
	"errors"
	"fmt"

	"sitekit/internal/models"
)

var (
	// ErrNotFound is returned when a component does not exist in the list.
	ErrNotFound = errors.New("component not found")

	// ErrExists is returned when inserting a component id that is taken.
	ErrExists = errors.New("component already exists")
)

// Ref addresses one ordered list: the components of a page in one state, or
// a site-wide list such as the navbar (Slug and Status empty).
type Ref struct {
	Scope  string                `json:"scope"`
	Slug   string                `json:"slug,omitempty"`
	Status models.DocumentStatus `json:"status,omitempty"`
}

// Scopes stored by the server.
const (
	ScopeComponents = "components"
	ScopeNavbar     = "navbar"
	ScopeFooter     = "footer"
)

// PageRef addresses the components of a page.
func PageRef(slug string, status models.DocumentStatus) Ref {
	if status == "" {
		status = models.DocumentStatusPreview
	}
	return Ref{Scope: ScopeComponents, Slug: slug, Status: status}
}

// SiteRef addresses a site-wide list.
func SiteRef(scope string) Ref {
	return Ref{Scope: scope}
}

func (r Ref) String() string {
	if r.Slug == "" {
		return r.Scope
	}
	return fmt.Sprintf("%s/%s/%s", r.Scope, r.Slug, r.Status)
}

// Repository is the persistence contract the sync hub works against.
type Repository interface {
	// List returns the components of ref sorted by order.
	List(ctx context.Context, ref Ref) ([]models.Component, error)

	// Get returns one component or ErrNotFound.
	Get(ctx context.Context, ref Ref, id string) (models.Component, error)

	// Insert places c in front of the first component whose order is >=
	// index, or appends it when index is negative or past the end, and
	// returns c as stored.
	Insert(ctx context.Context, ref Ref, c models.Component, index int) (models.Component, error)

	// UpdateData shallow-merges patch into the component's data.
	UpdateData(ctx context.Context, ref Ref, id string, patch map[string]any) (models.Component, error)

	// Replace swaps type and data of c.ComponentID. The order moves only
	// when order is non-nil.
	Replace(ctx context.Context, ref Ref, c models.Component, order *int) (models.Component, error)

	// Delete removes a component and renumbers the rest.
	Delete(ctx context.Context, ref Ref, id string) error

	// Reorder applies a bulk order change and returns the resulting list.
	Reorder(ctx context.Context, ref Ref, updates []models.OrderUpdate) ([]models.Component, error)
}
