// Package schema embeds the flip database migrations.
package schema

import "embed"

// Migrations holds the ordered *.sql files applied by tools/migrate.
//
//go:embed *.sql
var Migrations embed.FS
