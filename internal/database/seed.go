// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package database

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// SeedSlug is the page created by Seed.
const SeedSlug = "home"

type seedRow struct {
	scope, slug, status, componentType, data string
	order                                    int
}

var seedRows = []seedRow{
	{"navbar", "", "", "navbar", `{"logo":"SiteKit","links":[{"label":"Home","href":"/"}]}`, 0},
	{"footer", "", "", "footer", `{"copyright":"SiteKit"}`, 0},
	{"components", SeedSlug, "preview", "hero", `{"title":"Welcome","subtitle":"Edit me"}`, 0},
	{"components", SeedSlug, "preview", "about", `{"body":"About us"}`, 1},
	{"components", SeedSlug, "published", "hero", `{"title":"Welcome"}`, 0},
}

// Seed populates the database with a demo site: a navbar, a footer and a
// home page in both states. It does nothing when components already exist.
func Seed(db *sql.DB) error {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM page_components").Scan(&count); err != nil {
		return fmt.Errorf("seed check components: %w", err)
	}

	if count > 0 {
		slog.Info("database already seeded, skipping")
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("seed begin: %w", err)
	}
	defer tx.Rollback()

	for _, r := range seedRows {
		_, err := tx.Exec(`
			INSERT INTO page_components (scope, slug, status, component_id, component_type, data, sort_order)
			VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7)
		`, r.scope, r.slug, r.status, uuid.New(), r.componentType, r.data, r.order)
		if err != nil {
			return fmt.Errorf("seed insert %s: %w", r.componentType, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("seed commit: %w", err)
	}

	slog.Info("database seeded with demo site", "page", SeedSlug, "components", len(seedRows))
	return nil
}
