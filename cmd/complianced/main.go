/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the adherence engine: the HTTP API over the
  compliance store, plus a one-off duplicate sweep command.

COMMANDS:
  serve   Run the HTTP server and the scheduled sweep (default)
  sweep   Reconcile every duplicated key once and print the report

STARTUP SEQUENCE (serve):
  1. Load .env and environment (config package)
  2. Apply command-line overrides
  3. Open the SQL store and run migrations
  4. Connect the Redis history cache, or fall back to a local cache
  5. Build the API handler and router
  6. Start the sweep scheduler and the server with graceful shutdown

COMMAND-LINE FLAGS:
  --env     .env file to load (default: .env, missing is fine)
  --port    HTTP server port (overrides ADHERENCE_PORT)
  --db      Database path or DSN (overrides ADHERENCE_DB)
            Use ":memory:" for an in-memory SQLite database
  --driver  sqlite3 or postgres (overrides ADHERENCE_DB_DRIVER)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the sweep scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close cache and database connections

EXAMPLES:
  ./complianced serve --db ./data/compliance.db
  ./complianced serve --driver postgres --db "postgres://localhost/adherence?sslmode=disable"
  ./complianced sweep --db ./data/compliance.db

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - store/sqldb/sqldb.go: Database implementation
*/
package main

import (
	"os"

	"github.com/sirupsen/logrus"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		logrus.WithError(err).Error("complianced failed")
		os.Exit(1)
	}
}
