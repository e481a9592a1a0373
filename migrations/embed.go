// Package migrations embeds the SQL schema migrations so the migrate binary
// and integration tests share a single source.
package migrations

import "embed"

// FS holds every *.sql migration, named for golang-migrate
// ({version}_{title}.up.sql / .down.sql).
//
//go:embed *.sql
var FS embed.FS
