// Package migrations embeds the SQL migration files.
package migrations

import "embed"

// FS holds the embedded migration files, applied by internal/migrate.
//
//go:embed *.sql
var FS embed.FS
