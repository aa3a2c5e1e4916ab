package db

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"runtime"

	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config is read with envconfig under the DB prefix (DB_DRIVER, DB_HOST, ...).
type Config struct {
	Driver   string `envconfig:"DRIVER" default:"postgres"`
	Host     string `envconfig:"HOST" default:"localhost"`
	Port     int    `envconfig:"PORT" default:"5432"`
	User     string `envconfig:"USER" default:"vakil"`
	Password string `envconfig:"PASSWORD" default:"password"`
	Database string `envconfig:"NAME" default:"vakil"`
	SSLMode  string `envconfig:"SSLMODE" default:"disable"`

	// Path is the SQLite database file (or DSN) when Driver is "sqlite".
	Path string `envconfig:"PATH" default:"vakil.db"`

	// Debug prints every query, parameters included.
	Debug bool `envconfig:"DEBUG" default:"false"`
}

func New(ctx context.Context, cfg Config) (*bun.DB, error) {
	var db *bun.DB

	switch cfg.Driver {
	case DriverPostgres, "":
		dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database, cfg.SSLMode)

		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
		db = bun.NewDB(sqldb, pgdialect.New())

		maxOpenConns := 4 * runtime.GOMAXPROCS(0)
		db.SetMaxOpenConns(maxOpenConns)
		db.SetMaxIdleConns(maxOpenConns)
	case DriverSQLite:
		sqldb, err := OpenSQLite(cfg.Path)
		if err != nil {
			return nil, err
		}
		db = bun.NewDB(sqldb, sqlitedialect.New())
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db.AddQueryHook(QueryHook(cfg.Debug, os.Stdout))

	// Verify connection
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// QueryHook prints queries to w when debug is set. Queries carry message
// text and emails, so it is off unless asked for. BUNDEBUG overrides
// debug either way (0 off, 1 failed queries only, 2 everything).
func QueryHook(debug bool, w io.Writer) *bundebug.QueryHook {
	return bundebug.NewQueryHook(
		bundebug.WithEnabled(debug),
		bundebug.WithVerbose(debug),
		bundebug.WithWriter(w),
		bundebug.FromEnv("BUNDEBUG"),
	)
}

// OpenSQLite opens a SQLite database with foreign keys enforced. SQLite
// allows a single writer, so the pool is pinned to one connection.
func OpenSQLite(path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite database path is not set")
	}
	sqldb, err := sql.Open("sqlite3", withForeignKeys(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	sqldb.SetMaxOpenConns(1)
	return sqldb, nil
}

func withForeignKeys(dsn string) string {
	sep := "?"
	for _, c := range dsn {
		if c == '?' {
			sep = "&"
			break
		}
	}
	return dsn + sep + "_foreign_keys=on"
}
