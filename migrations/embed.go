// Package migrations carries the postgres schema compiled into the binary.
package migrations

import "embed"

//go:embed *.up.sql
var FS embed.FS
