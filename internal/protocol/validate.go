// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package protocol

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"sitekit/internal/models"
	"sitekit/internal/slug"
)

// ErrInvalidCommand is wrapped by every validation failure.
var ErrInvalidCommand = errors.New("invalid command")

// Validate checks a command before it touches the cache or the transport.
// The returned error wraps ErrInvalidCommand.
func (c *Command) Validate() error {
	kind, op, ok := Resolve(c.Action)
	if !ok {
		return invalid("unknown action %q", c.Action)
	}

	if kind.PerDocument {
		if c.Slug == "" {
			return invalid("%s requires a slug", c.Action)
		}
		if !slug.Valid(c.Slug) {
			return invalid("slug %q is not url-safe", c.Slug)
		}
		if c.Status != "" && !c.Status.Valid() {
			return invalid("unknown document status %q", c.Status)
		}
	}

	switch op {
	case OpCreate:
		if err := validateID(c.ComponentID); err != nil {
			return err
		}
		if !models.KnownComponentType(c.ComponentType) {
			return invalid("unknown component type %q", c.ComponentType)
		}
		if c.Order != nil && *c.Order < 0 {
			return invalid("order must not be negative")
		}
	case OpUpdate:
		if err := validateID(c.ComponentID); err != nil {
			return err
		}
		if len(c.Data) == 0 {
			return invalid("update requires data")
		}
	case OpDelete:
		if err := validateID(c.ComponentID); err != nil {
			return err
		}
	case OpReplace:
		if err := validateID(c.ComponentID); err != nil {
			return err
		}
		if !models.KnownComponentType(c.ComponentType) {
			return invalid("unknown component type %q", c.ComponentType)
		}
		if c.Order != nil && *c.Order < 0 {
			return invalid("order must not be negative")
		}
	case OpReorder:
		if len(c.OrderUpdates) == 0 {
			return invalid("reorder requires order_updates")
		}
		for _, u := range c.OrderUpdates {
			if err := validateID(u.ComponentID); err != nil {
				return err
			}
			if u.Order < 0 {
				return invalid("order must not be negative")
			}
		}
	}
	return nil
}

func validateID(id string) error {
	if id == "" {
		return invalid("component_id is required")
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return invalid("component_id %q is not a uuid", id)
	}
	// Ids are compared as strings everywhere, and Postgres hands back the
	// lowercase hyphenated form.
	if parsed.String() != id {
		return invalid("component_id %q is not in canonical form %q", id, parsed.String())
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidCommand, fmt.Sprintf(format, args...))
}
