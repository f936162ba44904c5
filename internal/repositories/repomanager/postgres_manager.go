package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/emailproof/internal/dbx"
	"github.com/dmitrijs2005/emailproof/internal/migrations"
	"github.com/dmitrijs2005/emailproof/internal/repositories/dkimkeys"
	"github.com/dmitrijs2005/emailproof/internal/repositories/requests"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresRepositoryManager vends PostgreSQL-backed repository implementations
// and exposes a schema migration hook.
type PostgresRepositoryManager struct{}

// Requests returns a requests.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Requests(db dbx.DBTX) requests.Repository {
	return requests.NewPostgresRepository(db)
}

// DKIMKeys returns a dkimkeys.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) DKIMKeys(db dbx.DBTX) dkimkeys.Repository {
	return dkimkeys.NewPostgresRepository(db)
}

// RunMigrations applies the embedded PostgreSQL migrations.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	return migrate(ctx, db, migrations.Postgres, "pgx", migrations.PostgresDir)
}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager(db *sql.DB) (RepositoryManager, error) {
	return &PostgresRepositoryManager{}, nil
}
