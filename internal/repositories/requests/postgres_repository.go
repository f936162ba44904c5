package requests

import "github.com/dmitrijs2005/emailproof/internal/dbx"

// PostgresRepository stores requests in PostgreSQL over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	sqlRepository
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{sqlRepository{db: db, bind: noRebind, now: utcNow}}
}
