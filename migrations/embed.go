// Package migrations embeds the SQL schema of the products and sales
// collections, the outbox table and the change-notification triggers.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
