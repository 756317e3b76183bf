// Package migrations embeds the SQL schema scripts for the module audit and
// state history tables. Importing it registers them with the database
// package.
package migrations

import (
	"embed"

	"github.com/nerrad567/gray-logic-ua/internal/infrastructure/database"
)

//go:embed *.sql
var scripts embed.FS

func init() {
	database.Migrations = scripts
}
