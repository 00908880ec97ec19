package migrations

import "embed"

// FS contains embedded SQLite migrations for model weights.
//
//go:embed *.sql
var FS embed.FS
