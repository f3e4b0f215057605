// Package migrations embeds the Postgres schema so the binary can migrate
// without a migrations directory on disk.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
