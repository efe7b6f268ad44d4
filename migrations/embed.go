// Package migrations carries the schema SQL for both database drivers,
// compiled into the binary so the server can run from any working directory.
package migrations

import "embed"

//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS
