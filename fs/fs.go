// Package appfs embeds the files the binaries ship with: SQL migrations, email templates and assets.
package appfs

import "embed"

//go:embed migrations all:templates assets
var FS embed.FS

const (
	TemplatesDir       = "templates/email"
	CommonPasswordFile = "assets/common-passwords.txt"
)

// MigrationsDir returns the migrations directory of the given SQL dialect.
func MigrationsDir(dialect string) string {
	if dialect == "sqlite" || dialect == "sqlite3" {
		return "migrations/sqlite"
	}
	return "migrations/postgres"
}
