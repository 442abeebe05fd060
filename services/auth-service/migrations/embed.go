// Package migrations holds the auth-service schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
