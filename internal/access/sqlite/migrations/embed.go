package migrations

import "embed"

// FS contains embedded SQLite migrations for principal storage.
//
//go:embed *.sql
var FS embed.FS
