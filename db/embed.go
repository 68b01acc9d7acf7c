// Package db provides the embedded database schema and seed data.
package db

import _ "embed"

// Schema contains the DDL statements for all application tables.
//
//go:embed migrations/001_schema.sql
var Schema string

// SeedMenu is the demo catalog: products, combos, promotions, customers
// and coupons.
//
//go:embed seed/menu.json
var SeedMenu []byte
