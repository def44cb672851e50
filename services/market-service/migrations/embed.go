// Package migrations embeds the goose SQL migrations of the market service.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
