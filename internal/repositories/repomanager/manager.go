// Package repomanager vends repository implementations for one database
// flavour and applies its embedded schema migrations with goose.
package repomanager

import (
	"context"
	"database/sql"
	"io/fs"

	"github.com/dmitrijs2005/emailproof/internal/dbx"
	"github.com/dmitrijs2005/emailproof/internal/repositories/dkimkeys"
	"github.com/dmitrijs2005/emailproof/internal/repositories/requests"
	"github.com/pressly/goose/v3"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Requests(db dbx.DBTX) requests.Repository
	DKIMKeys(db dbx.DBTX) dkimkeys.Repository
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

func migrate(ctx context.Context, db *sql.DB, fsys fs.FS, dialect, dir string) error {
	goose.SetBaseFS(fsys)
	if err := goose.SetDialect(dialect); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, dir)
}
