package store

import (
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/nestql/internal/querysql"
)

const (
	driverSQLite   = "sqlite3"
	driverPostgres = "postgres"
	driverMySQL    = "mysql"
)

// Target is a resolved connection: the database/sql driver name, the
// driver-specific DSN and the dialect to compile for.
type Target struct {
	Driver  string
	DSN     string
	Dialect querysql.Dialect
}

// ParseDSN resolves a connection string.
//
//	postgres://user:pw@host/db?sslmode=disable   -> lib/pq
//	mysql://user:pw@tcp(host:3306)/db            -> go-sql-driver/mysql
//	sqlite://path/to.db, file:x.db, :memory:     -> go-sqlite3
func ParseDSN(dsn string) (Target, error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "":
		return Target{}, fmt.Errorf("empty database DSN")

	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		conn, err := pq.ParseURL(dsn)
		if err != nil {
			return Target{}, fmt.Errorf("invalid postgres DSN: %w", err)
		}
		return Target{Driver: driverPostgres, DSN: conn, Dialect: querysql.Postgres}, nil

	case strings.HasPrefix(dsn, "mysql://"):
		cfg, err := mysql.ParseDSN(strings.TrimPrefix(dsn, "mysql://"))
		if err != nil {
			return Target{}, fmt.Errorf("invalid mysql DSN: %w", err)
		}
		// utf8mb4 unless the DSN says otherwise.
		if cfg.Params == nil {
			cfg.Params = map[string]string{}
		}
		if _, ok := cfg.Params["charset"]; !ok {
			cfg.Params["charset"] = "utf8mb4"
		}
		return Target{Driver: driverMySQL, DSN: cfg.FormatDSN(), Dialect: querysql.MySQL}, nil

	case strings.HasPrefix(dsn, "sqlite://"):
		return Target{Driver: driverSQLite, DSN: strings.TrimPrefix(dsn, "sqlite://"), Dialect: querysql.SQLite}, nil

	case strings.HasPrefix(dsn, "sqlite3://"):
		return Target{Driver: driverSQLite, DSN: strings.TrimPrefix(dsn, "sqlite3://"), Dialect: querysql.SQLite}, nil

	default:
		return Target{Driver: driverSQLite, DSN: dsn, Dialect: querysql.SQLite}, nil
	}
}
