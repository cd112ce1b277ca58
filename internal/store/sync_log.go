// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// sync_log.go records every applied mutation in the database for audit and
// debugging. Each entry captures which list changed, the action, the
// component and the request that caused it.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"sitekit/internal/models"
)

// SyncLogEntry represents a single applied mutation.
type SyncLogEntry struct {
	ID          int64     `json:"id"`
	Ref         Ref       `json:"ref"`
	Action      string    `json:"action"`
	ComponentID string    `json:"component_id,omitempty"`
	RequestID   string    `json:"request_id,omitempty"`
	LoggedAt    time.Time `json:"logged_at"`
}

// SyncLogStore handles sync log operations.
type SyncLogStore struct {
	db *sql.DB
}

// NewSyncLogStore creates a new SyncLogStore.
func NewSyncLogStore(db *sql.DB) *SyncLogStore {
	return &SyncLogStore{db: db}
}

// Log records an applied mutation. Failures are logged and otherwise
// ignored; the mutation itself already succeeded.
func (s *SyncLogStore) Log(ctx context.Context, ref Ref, action, componentID, requestID string) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_log (scope, slug, status, action, component_id, request_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, ref.Scope, ref.Slug, string(ref.Status), action, componentID, requestID)
	if err != nil {
		slog.Warn("failed to write sync log",
			"ref", ref.String(),
			"action", action,
			"component_id", componentID,
			"error", err,
		)
		return
	}
	slog.Debug("sync log written", "ref", ref.String(), "action", action, "component_id", componentID)
}

// RecentEntries returns the most recent mutations, newest first.
func (s *SyncLogStore) RecentEntries(ctx context.Context, limit int) ([]SyncLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, scope, slug, status, action, component_id, request_id, logged_at
		FROM sync_log
		ORDER BY logged_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sync log: %w", err)
	}
	defer rows.Close()

	var entries []SyncLogEntry
	for rows.Next() {
		var (
			e      SyncLogEntry
			status string
		)
		if err := rows.Scan(&e.ID, &e.Ref.Scope, &e.Ref.Slug, &status,
			&e.Action, &e.ComponentID, &e.RequestID, &e.LoggedAt); err != nil {
			return nil, fmt.Errorf("scan sync log: %w", err)
		}
		e.Ref.Status = models.DocumentStatus(status)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
