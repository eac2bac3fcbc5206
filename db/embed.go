// Package db embeds the database schema.
package db

import _ "embed"

// Schema holds the DDL for all waitroom tables.
//
//go:embed migrations/001_schema.sql
var Schema string
