// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package client

import (
	"sitekit/internal/cache"
	"sitekit/internal/models"
	"sitekit/internal/ordering"
)

// confirmCreated folds a server-confirmed create into c and returns the
// order the component ended up with, or -1 when it was dropped. A component
// that was deleted meanwhile or that is already present (a duplicate
// delivery) is not inserted again.
func confirmCreated(c *cache.Confirmed, comp models.Component, at int) int {
	if c.Deleted(comp.ComponentID) {
		return -1
	}
	if i := ordering.IndexOf(c.List, comp.ComponentID); i >= 0 {
		return c.List[i].Order
	}
	comp.Status = models.ComponentStatusConfirmed
	c.List = ordering.InsertAt(c.List, at, comp)
	return c.List[ordering.IndexOf(c.List, comp.ComponentID)].Order
}

// confirmReplaced swaps in the canonical type and data of comp. The order
// moves only when comp carries one (Order >= 0) and move is set.
func confirmReplaced(c *cache.Confirmed, comp models.Component, move bool) {
	i := ordering.IndexOf(c.List, comp.ComponentID)
	if i < 0 {
		return
	}
	list := models.CloneList(c.List)
	list[i].ComponentType = comp.ComponentType
	list[i].Data = comp.Data
	list[i].Status = models.ComponentStatusConfirmed
	if move && comp.Order >= 0 && comp.Order != list[i].Order {
		list = ordering.Move(list, comp.ComponentID, comp.Order)
	}
	c.List = list
}

// confirmDeleted removes id and tombstones it so a create of the same id
// that is still pending settles to nothing.
func confirmDeleted(c *cache.Confirmed, id string) {
	c.List = ordering.Remove(c.List, id)
	c.Tombstone(id)
}

// mergeInto returns list with patch shallow-merged into the data of id.
func mergeInto(list []models.Component, id string, patch map[string]any) []models.Component {
	out := models.CloneList(list)
	if i := ordering.IndexOf(out, id); i >= 0 {
		out[i].MergeData(models.Component{Data: patch}.Clone().Data)
	}
	return out
}

// replaceIn returns list with the type and data of next.ComponentID swapped
// for next's. With move set, the component is moved to next.Order.
func replaceIn(list []models.Component, next models.Component, move bool) []models.Component {
	out := models.CloneList(list)
	i := ordering.IndexOf(out, next.ComponentID)
	if i < 0 {
		return out
	}
	next = next.Clone()
	out[i].ComponentType = next.ComponentType
	out[i].Data = next.Data
	if move {
		out = ordering.Move(out, next.ComponentID, next.Order)
	}
	return out
}
