/*
main.go - Migration CLI

PURPOSE:
  Applies, rolls back, or reports the embedded schema migrations against
  a database file, outside of server startup.

USAGE:
  migrate -db=./approvals.db up
  migrate -db=./approvals.db down
  migrate -db=./approvals.db status
*/
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"

	"github.com/atlaserp/approval-engine/store/sqlite"
)

func main() {
	dbPath := flag.String("db", "approvals.db", "SQLite database path")
	flag.Parse()

	command := flag.Arg(0)
	if command == "" {
		command = "up"
	}

	db, err := sql.Open("sqlite3", *dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()
	switch command {
	case "up":
		err = sqlite.Migrate(ctx, db)
	case "down":
		err = sqlite.MigrateDown(ctx, db)
	case "status":
		err = sqlite.MigrationStatus(ctx, db)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (expected up, down, status)\n", command)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "migration %s failed: %v\n", command, err)
		os.Exit(1)
	}
}
