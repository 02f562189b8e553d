// Package sql embeds the Postgres schema owned by the chat service.
package sql

import (
	"embed"
)

//go:embed schema/*.sql
var Content embed.FS
