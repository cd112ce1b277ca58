// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package client

import (
	"log/slog"

	"sitekit/internal/cache"
)

// NotificationKind is the stage a command reached.
type NotificationKind string

const (
	NotifyPending NotificationKind = "pending"
	NotifySuccess NotificationKind = "success"
	NotifyError   NotificationKind = "error"
)

// Notification is the transient user-facing status of one command.
type Notification struct {
	Kind      NotificationKind
	Command   string // e.g. "create component"
	RequestID string
	Key       cache.Key
	Err       error
}

// Message returns a human-readable line for toasts and logs.
func (n Notification) Message() string {
	switch n.Kind {
	case NotifyPending:
		return n.Command + "..."
	case NotifySuccess:
		return n.Command + " saved"
	default:
		if n.Err != nil {
			return n.Command + " failed: " + n.Err.Error()
		}
		return n.Command + " failed"
	}
}

// Notifier receives command status notifications.
type Notifier interface {
	Notify(Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

// Notify calls f(n).
func (f NotifierFunc) Notify(n Notification) { f(n) }

// LogNotifier writes notifications to the default slog logger.
type LogNotifier struct{}

// Notify logs n at a level matching its kind.
func (LogNotifier) Notify(n Notification) {
	attrs := []any{"command", n.Command, "key", n.Key.String(), "request_id", n.RequestID}
	switch n.Kind {
	case NotifyError:
		slog.Warn(n.Message(), append(attrs, "error", n.Err)...)
	case NotifySuccess:
		slog.Info(n.Message(), attrs...)
	default:
		slog.Debug(n.Message(), attrs...)
	}
}
