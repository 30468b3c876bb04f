/*
main.go - Application entry point

PURPOSE:
  Command-line front of the batch stock service. Builds configuration,
  logger, store and engine, then runs one of the subcommands.

COMMANDS:
  serve      Start the HTTP API (graceful shutdown on SIGINT/SIGTERM)
  migrate    Create or update the database schema
  seed       Load a YAML fixture (embedded name or --file)
  rollback   Roll back one batch from the command line

GLOBAL FLAGS:
  --config      YAML config file (see package config)
  --db-driver   sqlite3 | mysql | memory
  --db-dsn      Database path or MySQL DSN
  --log-level   debug | info | warn | error
  Flags win over the file and the STOCK_* environment.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # SQLite file, demo data
  ./server seed school-meals --db-dsn=./data/stock.db
  ./server serve --db-dsn=./data/stock.db

  # MySQL
  STOCK_DB_DRIVER=mysql STOCK_DB_DSN='stock:secret@tcp(db:3306)/stock' ./server serve

  # Everything in memory, scenarios preloaded
  ./server serve --db-driver=memory --scenario=fifo-demo

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Configuration precedence
  - store/sqlstore/sqlstore.go: Database implementation
*/
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
