package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/emailproof/internal/dbx"
	"github.com/dmitrijs2005/emailproof/internal/migrations"
	"github.com/dmitrijs2005/emailproof/internal/repositories/dkimkeys"
	"github.com/dmitrijs2005/emailproof/internal/repositories/requests"
	_ "modernc.org/sqlite"
)

// SQLiteRepositoryManager vends SQLite-backed repositories for local runs.
type SQLiteRepositoryManager struct{}

func (m *SQLiteRepositoryManager) Requests(db dbx.DBTX) requests.Repository {
	return requests.NewSQLiteRepository(db)
}

func (m *SQLiteRepositoryManager) DKIMKeys(db dbx.DBTX) dkimkeys.Repository {
	return dkimkeys.NewSQLiteRepository(db)
}

// RunMigrations applies the embedded SQLite migrations.
func (m *SQLiteRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	return migrate(ctx, db, migrations.SQLite, "sqlite3", migrations.SQLiteDir)
}

func NewSQLiteRepositoryManager(db *sql.DB) (RepositoryManager, error) {
	return &SQLiteRepositoryManager{}, nil
}

// Open opens the database selected by dsn: a PostgreSQL DSN when non-empty,
// otherwise the SQLite file at sqlitePath. The schema is migrated before
// returning.
func Open(ctx context.Context, dsn, sqlitePath string) (*sql.DB, RepositoryManager, error) {
	driver, source := "pgx", dsn
	if dsn == "" {
		driver, source = "sqlite", sqlitePath
	}

	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, nil, err
	}

	var m RepositoryManager
	if driver == "pgx" {
		m, err = NewPostgresRepositoryManager(db)
	} else {
		// SQLite allows a single writer; serialize through one connection.
		db.SetMaxOpenConns(1)
		m, err = NewSQLiteRepositoryManager(db)
	}
	if err == nil {
		err = m.RunMigrations(ctx, db)
	}
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return db, m, nil
}
