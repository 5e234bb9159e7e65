// Package migrations ships the schema files inside the binary so
// storage.RunMigrations needs no filesystem layout at deploy time.
package migrations

import "embed"

// FS holds every numbered .sql file in this directory, applied in
// lexicographic order.
//
//go:embed *.sql
var FS embed.FS
