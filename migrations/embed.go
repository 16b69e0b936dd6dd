// Package migrations embeds the goose SQL migrations.
package migrations

import "embed"

// FS holds every migration file at its root.
//
//go:embed *.sql
var FS embed.FS

// Dir is the directory goose reads from inside FS.
const Dir = "."
