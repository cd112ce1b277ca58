// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package ordering keeps the order field of a page's components a dense,
// zero-based permutation that matches their visual sequence.
//
// Every function returns a new slice and never mutates its input, so callers
// can keep the previous list as a rollback snapshot.
package ordering

import (
	"slices"

	"sitekit/internal/models"
)

// NextOrder returns the order for a component appended to list:
// one past the highest order, or 0 for an empty list.
func NextOrder(list []models.Component) int {
	if len(list) == 0 {
		return 0
	}
	highest := list[0].Order
	for _, c := range list[1:] {
		if c.Order > highest {
			highest = c.Order
		}
	}
	return highest + 1
}

// InsertAt splices c in front of the first component whose order is >= index
// (or appends it when none is) and renumbers the result.
// A negative index appends.
func InsertAt(list []models.Component, index int, c models.Component) []models.Component {
	out := models.CloneList(list)
	pos := len(out)
	if index >= 0 {
		for i, existing := range out {
			if existing.Order >= index {
				pos = i
				break
			}
		}
	}
	out = slices.Insert(out, pos, c.Clone())
	renumber(out)
	return out
}

// Append adds c at the end and renumbers.
func Append(list []models.Component, c models.Component) []models.Component {
	return InsertAt(list, -1, c)
}

// Remove drops the component with the given id and renumbers the rest.
// Removing an unknown id returns an unchanged copy.
func Remove(list []models.Component, id string) []models.Component {
	out := make([]models.Component, 0, len(list))
	for _, c := range list {
		if c.ComponentID != id {
			out = append(out, c.Clone())
		}
	}
	renumber(out)
	return out
}

// Move takes the component id out of the list and re-inserts it at index
// with InsertAt semantics. An unknown id returns an unchanged copy.
func Move(list []models.Component, id string, index int) []models.Component {
	i := IndexOf(list, id)
	if i < 0 {
		return models.CloneList(list)
	}
	moved := list[i]
	return InsertAt(Remove(list, id), index, moved)
}

// BulkReorder applies each update's order to the matching component, stable
// sorts by order and renumbers. Updates naming unknown ids are ignored; ties
// keep their previous relative position.
func BulkReorder(list []models.Component, updates []models.OrderUpdate) []models.Component {
	out := models.CloneList(list)
	if out == nil {
		out = []models.Component{}
	}
	index := make(map[string]int, len(out))
	for i, c := range out {
		index[c.ComponentID] = i
	}
	for _, u := range updates {
		if i, ok := index[u.ComponentID]; ok {
			out[i].Order = u.Order
		}
	}
	sortStable(out)
	renumber(out)
	return out
}

// Sort returns a copy stable-sorted by order without renumbering.
func Sort(list []models.Component) []models.Component {
	out := models.CloneList(list)
	sortStable(out)
	return out
}

// Renumber returns a copy whose orders equal the array positions.
func Renumber(list []models.Component) []models.Component {
	out := models.CloneList(list)
	renumber(out)
	return out
}

// IsDense reports whether the orders are exactly {0..N-1} with no ties.
func IsDense(list []models.Component) bool {
	seen := make([]bool, len(list))
	for _, c := range list {
		if c.Order < 0 || c.Order >= len(list) || seen[c.Order] {
			return false
		}
		seen[c.Order] = true
	}
	return true
}

// IndexOf returns the position of id in list, or -1.
func IndexOf(list []models.Component, id string) int {
	return slices.IndexFunc(list, func(c models.Component) bool {
		return c.ComponentID == id
	})
}

func sortStable(list []models.Component) {
	slices.SortStableFunc(list, func(a, b models.Component) int {
		return a.Order - b.Order
	})
}

func renumber(list []models.Component) {
	for i := range list {
		list[i].Order = i
	}
}
