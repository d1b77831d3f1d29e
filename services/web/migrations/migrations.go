// Package migrations embeds the web service schema for goose.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
