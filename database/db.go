package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/sirupsen/logrus"

	"github.com/autopost/autopost/config"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite3"
)

// Ensure the instance is not accessible outside the package.
var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn    *sql.DB
	Dialect string
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, dialect, errConn := ConnectDB(configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		instance = &Datasource{Conn: con, Dialect: dialect}
	})
	if err != nil {
		once = sync.Once{}
		return nil, err
	}
	return instance, nil
}

// ParseDSN maps a data source string onto a driver name and the driver's own DSN.
func ParseDSN(dns string) (dialect string, driverDSN string, err error) {
	switch {
	case strings.HasPrefix(dns, "postgres://"), strings.HasPrefix(dns, "postgresql://"):
		return DialectPostgres, dns, nil
	case strings.HasPrefix(dns, "sqlite://"):
		path := strings.TrimPrefix(dns, "sqlite://")
		if path == "" {
			return "", "", fmt.Errorf("sqlite data source needs a path: %q", dns)
		}
		return DialectSQLite, sqliteDSN("file:" + path), nil
	case strings.HasPrefix(dns, "file:"):
		return DialectSQLite, sqliteDSN(dns), nil
	default:
		return "", "", fmt.Errorf("unsupported data source %q", dns)
	}
}

func sqliteDSN(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	if !strings.Contains(dsn, "_busy_timeout") {
		dsn += sep + "_busy_timeout=5000"
		sep = "&"
	}
	if !strings.Contains(dsn, "_foreign_keys") {
		dsn += sep + "_foreign_keys=on"
	}
	return dsn
}

// ConnectDB opens the store behind dns and waits for it to answer a ping.
func ConnectDB(dns string) (*sql.DB, string, error) {
	dialect, driverDSN, err := ParseDSN(dns)
	if err != nil {
		return nil, "", err
	}
	db, err := sql.Open(dialect, driverDSN)
	if err != nil {
		return nil, "", err
	}
	if dialect == DialectSQLite {
		// one writer keeps sqlite from returning SQLITE_BUSY under concurrent history reads
		db.SetMaxOpenConns(1)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxElapsedTime = 10 * time.Second
	err = backoff.Retry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		pingErr := db.PingContext(ctx)
		if pingErr != nil {
			logrus.WithError(pingErr).Warn("database not reachable yet, retrying")
		}
		return pingErr
	}, policy)
	if err != nil {
		logrus.Errorf("database connection error ❌: %v", err)
		_ = db.Close()
		return nil, "", err
	}
	return db, dialect, nil
}

// Migrate applies (or rolls back) the embedded migrations for the dialect.
// Migration files live under sql/<dialect> in migrations.
func Migrate(db *sql.DB, dialect string, migrations embed.FS, direction migrate.MigrationDirection) (int, error) {
	root := "sql/postgres"
	if dialect == DialectSQLite {
		root = "sql/sqlite"
	}
	source := &migrate.EmbedFileSystemMigrationSource{
		FileSystem: migrations,
		Root:       root,
	}
	migrate.SetTable("autopost_migrations")
	return migrate.Exec(db, dialect, source, direction)
}

var placeholderPattern = regexp.MustCompile(`\$\d+`)

// rebind rewrites $n placeholders to ? for sqlite.
func (d Datasource) rebind(query string) string {
	if d.Dialect != DialectSQLite {
		return query
	}
	return placeholderPattern.ReplaceAllString(query, "?")
}
