// Package db provides embedded database schema and seed fixtures.
package db

import _ "embed"

// Schema contains the DDL statements for all application tables.
//
//go:embed migrations/001_schema.sql
var Schema string

// Fixture is the default catalog used by cmd/seed-db.
//
//go:embed seed/fixture.json
var Fixture []byte
