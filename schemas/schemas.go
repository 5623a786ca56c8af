// Package schemas embeds the JSON Schemas of every message the service
// accepts or produces on its transports.
package schemas

import "embed"

//go:embed commands events
var SchemasFS embed.FS
