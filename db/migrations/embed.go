// Package migrations embeds the goose SQL migrations so the migrator and the
// integration tests run them regardless of working directory.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
