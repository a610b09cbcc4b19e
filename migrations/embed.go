// Package migrations embeds the goose SQL migrations.
package migrations

import "embed"

// UsersTable is the directory table created by 00001_users.sql.
const UsersTable = "users"

// FS holds the migration files.
//
//go:embed *.sql
var FS embed.FS
