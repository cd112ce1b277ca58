// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"sitekit/internal/models"
	"sitekit/internal/ordering"
)

// ComponentStore is the PostgreSQL Repository. Structural changes run in a
// transaction that locks the list, computes the new order in Go and writes
// back only the rows whose position changed.
type ComponentStore struct {
	db *sql.DB
}

// NewComponentStore creates a new ComponentStore with the given database connection.
func NewComponentStore(db *sql.DB) *ComponentStore {
	return &ComponentStore{db: db}
}

const componentColumns = `component_id, component_type, data, sort_order`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanComponent(row rowScanner) (models.Component, error) {
	var (
		c   models.Component
		raw []byte
	)
	if err := row.Scan(&c.ComponentID, &c.ComponentType, &raw, &c.Order); err != nil {
		return models.Component{}, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &c.Data); err != nil {
			return models.Component{}, fmt.Errorf("decode component data: %w", err)
		}
	}
	return c, nil
}

func encodeData(data map[string]any) ([]byte, error) {
	if data == nil {
		data = map[string]any{}
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode component data: %w", err)
	}
	return b, nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func listComponents(ctx context.Context, q querier, ref Ref, forUpdate bool) ([]models.Component, error) {
	query := `
		SELECT ` + componentColumns + `
		FROM page_components
		WHERE scope = $1 AND slug = $2 AND status = $3
		ORDER BY sort_order, created_at`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	rows, err := q.QueryContext(ctx, query, ref.Scope, ref.Slug, string(ref.Status))
	if err != nil {
		return nil, fmt.Errorf("list components: %w", err)
	}
	defer rows.Close()

	list := []models.Component{}
	for rows.Next() {
		c, err := scanComponent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan component: %w", err)
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

// lockList serializes structural changes to ref and returns its current
// rows. Row locks alone do not cover rows inserted by a concurrent
// transaction, so every writer first takes a transaction-scoped advisory
// lock keyed by the list.
func lockList(ctx context.Context, tx *sql.Tx, ref Ref) ([]models.Component, error) {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, ref.String()); err != nil {
		return nil, fmt.Errorf("lock %s: %w", ref, err)
	}
	return listComponents(ctx, tx, ref, true)
}

// List returns the components of ref ordered by position.
func (s *ComponentStore) List(ctx context.Context, ref Ref) ([]models.Component, error) {
	return listComponents(ctx, s.db, ref, false)
}

// Get retrieves one component by id.
func (s *ComponentStore) Get(ctx context.Context, ref Ref, id string) (models.Component, error) {
	c, err := scanComponent(s.db.QueryRowContext(ctx, `
		SELECT `+componentColumns+`
		FROM page_components
		WHERE scope = $1 AND slug = $2 AND status = $3 AND component_id = $4
	`, ref.Scope, ref.Slug, string(ref.Status), id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Component{}, fmt.Errorf("get %s in %s: %w", id, ref, ErrNotFound)
	}
	if err != nil {
		return models.Component{}, fmt.Errorf("get component: %w", err)
	}
	return c, nil
}

// Insert adds c at index and renumbers the list in one transaction.
func (s *ComponentStore) Insert(ctx context.Context, ref Ref, c models.Component, index int) (models.Component, error) {
	data, err := encodeData(c.Data)
	if err != nil {
		return models.Component{}, err
	}

	var stored models.Component
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		list, err := lockList(ctx, tx, ref)
		if err != nil {
			return err
		}
		if ordering.IndexOf(list, c.ComponentID) >= 0 {
			return fmt.Errorf("insert %s in %s: %w", c.ComponentID, ref, ErrExists)
		}

		next := ordering.InsertAt(list, index, c)
		stored = next[ordering.IndexOf(next, c.ComponentID)]
		stored.Status = models.ComponentStatusConfirmed

		if err := writeOrders(ctx, tx, ref, list, next); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO page_components (scope, slug, status, component_id, component_type, data, sort_order)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, ref.Scope, ref.Slug, string(ref.Status), c.ComponentID, string(c.ComponentType), data, stored.Order)
		if err != nil {
			return fmt.Errorf("insert component: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.Component{}, err
	}
	return stored, nil
}

// UpdateData merges patch into the stored data with jsonb concatenation,
// which replaces top-level keys only.
func (s *ComponentStore) UpdateData(ctx context.Context, ref Ref, id string, patch map[string]any) (models.Component, error) {
	data, err := encodeData(patch)
	if err != nil {
		return models.Component{}, err
	}
	c, err := scanComponent(s.db.QueryRowContext(ctx, `
		UPDATE page_components SET data = data || $5::jsonb, updated_at = NOW()
		WHERE scope = $1 AND slug = $2 AND status = $3 AND component_id = $4
		RETURNING `+componentColumns,
		ref.Scope, ref.Slug, string(ref.Status), id, data))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Component{}, fmt.Errorf("update %s in %s: %w", id, ref, ErrNotFound)
	}
	if err != nil {
		return models.Component{}, fmt.Errorf("update component: %w", err)
	}
	return c, nil
}

// Replace swaps type and data and optionally moves the component.
func (s *ComponentStore) Replace(ctx context.Context, ref Ref, c models.Component, order *int) (models.Component, error) {
	data, err := encodeData(c.Data)
	if err != nil {
		return models.Component{}, err
	}

	var stored models.Component
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		list, err := lockList(ctx, tx, ref)
		if err != nil {
			return err
		}
		i := ordering.IndexOf(list, c.ComponentID)
		if i < 0 {
			return fmt.Errorf("replace %s in %s: %w", c.ComponentID, ref, ErrNotFound)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE page_components SET component_type = $5, data = $6, updated_at = NOW()
			WHERE scope = $1 AND slug = $2 AND status = $3 AND component_id = $4
		`, ref.Scope, ref.Slug, string(ref.Status), c.ComponentID, string(c.ComponentType), data)
		if err != nil {
			return fmt.Errorf("replace component: %w", err)
		}

		next := list
		if order != nil {
			next = ordering.Move(list, c.ComponentID, *order)
			if err := writeOrders(ctx, tx, ref, list, next); err != nil {
				return err
			}
		}
		stored = next[ordering.IndexOf(next, c.ComponentID)]
		stored.ComponentType = c.ComponentType
		stored.Data = c.Clone().Data
		return nil
	})
	if err != nil {
		return models.Component{}, err
	}
	return stored, nil
}

// Delete removes a component and closes the gap it leaves.
func (s *ComponentStore) Delete(ctx context.Context, ref Ref, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		list, err := lockList(ctx, tx, ref)
		if err != nil {
			return err
		}
		if ordering.IndexOf(list, id) < 0 {
			return fmt.Errorf("delete %s in %s: %w", id, ref, ErrNotFound)
		}
		_, err = tx.ExecContext(ctx, `
			DELETE FROM page_components
			WHERE scope = $1 AND slug = $2 AND status = $3 AND component_id = $4
		`, ref.Scope, ref.Slug, string(ref.Status), id)
		if err != nil {
			return fmt.Errorf("delete component: %w", err)
		}
		return writeOrders(ctx, tx, ref, list, ordering.Remove(list, id))
	})
}

// Reorder applies updates and stores the renumbered list.
func (s *ComponentStore) Reorder(ctx context.Context, ref Ref, updates []models.OrderUpdate) ([]models.Component, error) {
	var next []models.Component
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		list, err := lockList(ctx, tx, ref)
		if err != nil {
			return err
		}
		next = ordering.BulkReorder(list, updates)
		return writeOrders(ctx, tx, ref, list, next)
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

// writeOrders updates sort_order for every component whose order differs
// between before and after. Components missing from before are skipped.
func writeOrders(ctx context.Context, tx *sql.Tx, ref Ref, before, after []models.Component) error {
	old := make(map[string]int, len(before))
	for _, c := range before {
		old[c.ComponentID] = c.Order
	}
	for _, c := range after {
		prev, ok := old[c.ComponentID]
		if !ok || prev == c.Order {
			continue
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE page_components SET sort_order = $5, updated_at = NOW()
			WHERE scope = $1 AND slug = $2 AND status = $3 AND component_id = $4
		`, ref.Scope, ref.Slug, string(ref.Status), c.ComponentID, c.Order)
		if err != nil {
			return fmt.Errorf("renumber component %s: %w", c.ComponentID, err)
		}
	}
	return nil
}

func (s *ComponentStore) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
