// Package migrations holds the salon-service schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
