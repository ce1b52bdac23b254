// Package store executes compiled object queries against a relational
// database and assembles the streamed rows into nested results.
//
// # Backends
//
// Open selects the driver and dialect from the DSN:
//   - postgres:// and postgresql:// URLs use github.com/lib/pq
//   - mysql:// prefixed DSNs use github.com/go-sql-driver/mysql
//   - everything else is a SQLite path or URI (github.com/mattn/go-sqlite3)
//
// # Database Configuration (SQLite)
//
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//   - a single connection, so ":memory:" databases survive between calls
//
// Rows are fed to the assembler one at a time as they are scanned; the
// full result set is never buffered as flat rows.
package store
