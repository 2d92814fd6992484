// Package migrations embeds the SQL schema migrations for the convd store.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
