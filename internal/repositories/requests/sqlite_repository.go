package requests

import "github.com/dmitrijs2005/emailproof/internal/dbx"

// SQLiteRepository stores requests in a local SQLite database.
type SQLiteRepository struct {
	sqlRepository
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{sqlRepository{db: db, bind: dbx.QuestionMarks, now: utcNow}}
}
