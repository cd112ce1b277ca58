// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package protocol

// Kind describes one entity family that shares the create/update/delete/
// replace command shape: the action names it sends, the message types it
// expects back, and whether entities live per page or site-wide.
type Kind struct {
	Name string

	// PerDocument kinds are addressed by slug and status; site-wide kinds
	// (navbar, footer) have a single list.
	PerDocument bool

	List, Create, Update, Delete, Replace, Reorder          string
	Listed, Created, Updated, Deleted, Replaced, Reordered string
}

var (
	Components = Kind{
		Name:        "component",
		PerDocument: true,
		List:        ActionListComponents,
		Create:      ActionCreateComponent,
		Update:      ActionUpdateComponent,
		Delete:      ActionDeleteComponent,
		Replace:     ActionReplaceComponent,
		Reorder:     ActionUpdateComponentOrder,
		Listed:      TypeComponentsList,
		Created:     TypeComponentCreated,
		Updated:     TypeComponentUpdated,
		Deleted:     TypeComponentDeleted,
		Replaced:    TypeComponentReplaced,
		Reordered:   TypeComponentOrderUpdated,
	}

	Navbar = Kind{
		Name:     "navbar",
		List:     ActionGetNavbar,
		Create:   ActionCreateNavbar,
		Update:   ActionUpdateNavbar,
		Delete:   ActionDeleteNavbar,
		Replace:  ActionReplaceNavbar,
		Listed:   TypeNavbar,
		Created:  TypeNavbarCreated,
		Updated:  TypeNavbarUpdated,
		Deleted:  TypeNavbarDeleted,
		Replaced: TypeNavbarReplaced,
	}

	Footer = Kind{
		Name:     "footer",
		List:     ActionGetFooter,
		Create:   ActionCreateFooter,
		Update:   ActionUpdateFooter,
		Delete:   ActionDeleteFooter,
		Replace:  ActionReplaceFooter,
		Listed:   TypeFooter,
		Created:  TypeFooterCreated,
		Updated:  TypeFooterUpdated,
		Deleted:  TypeFooterDeleted,
		Replaced: TypeFooterReplaced,
	}
)

// Kinds lists every entity family in a stable order.
var Kinds = []Kind{Components, Navbar, Footer}

// CanReorder reports whether the kind supports bulk reordering.
func (k Kind) CanReorder() bool {
	return k.Reorder != ""
}

// Op is the operation an action performs, independent of entity kind.
type Op string

const (
	OpList    Op = "list"
	OpCreate  Op = "create"
	OpUpdate  Op = "update"
	OpDelete  Op = "delete"
	OpReplace Op = "replace"
	OpReorder Op = "reorder"
)

// Resolve maps an action name to its kind and operation.
func Resolve(action string) (Kind, Op, bool) {
	for _, k := range Kinds {
		switch action {
		case k.List:
			return k, OpList, true
		case k.Create:
			return k, OpCreate, true
		case k.Update:
			return k, OpUpdate, true
		case k.Delete:
			return k, OpDelete, true
		case k.Replace:
			return k, OpReplace, true
		}
		if k.Reorder != "" && action == k.Reorder {
			return k, OpReorder, true
		}
	}
	return Kind{}, "", false
}

// ActionFor returns the action name that performs op for this kind, or ""
// when the kind does not support op.
func (k Kind) ActionFor(op Op) string {
	switch op {
	case OpList:
		return k.List
	case OpCreate:
		return k.Create
	case OpUpdate:
		return k.Update
	case OpDelete:
		return k.Delete
	case OpReplace:
		return k.Replace
	case OpReorder:
		return k.Reorder
	}
	return ""
}

// ReplyType returns the message type that answers op for this kind.
func (k Kind) ReplyType(op Op) string {
	switch op {
	case OpList:
		return k.Listed
	case OpCreate:
		return k.Created
	case OpUpdate:
		return k.Updated
	case OpDelete:
		return k.Deleted
	case OpReplace:
		return k.Replaced
	case OpReorder:
		return k.Reordered
	}
	return ""
}

// ResolveMessage maps an inbound message type to its kind and operation.
func ResolveMessage(msgType string) (Kind, Op, bool) {
	for _, k := range Kinds {
		for _, op := range []Op{OpList, OpCreate, OpUpdate, OpDelete, OpReplace, OpReorder} {
			if t := k.ReplyType(op); t != "" && t == msgType {
				return k, op, true
			}
		}
	}
	return Kind{}, "", false
}
