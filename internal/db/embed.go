// Package db embeds the goose SQL migrations for the scheduler schema.
package db

import "embed"

//go:embed migrations/*.sql
var Migrations embed.FS
