// Package migrations embeds the SQL schema migrations so binaries and
// integration tests can apply them without a checkout on disk.
package migrations

import "embed"

// FS holds every *.up.sql and *.down.sql pair in this directory
//
//go:embed *.sql
var FS embed.FS
