package dkimkeys

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/emailproof/internal/dbx"
	"github.com/dmitrijs2005/emailproof/internal/dkim"
	"github.com/dmitrijs2005/emailproof/internal/migrations"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

const (
	selectQ = `(?s)^\s*SELECT\s+key_type,\s*public_key,\s*expires_at,\s*revoked\s+FROM\s+dkim_keys\s+WHERE\s+domain\s*=\s*\$1\s+AND\s+selector\s*=\s*\$2\s*$`
	upsertQ = `(?s)^\s*INSERT\s+INTO\s+dkim_keys\b.*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5,\s*\$6\)\s+ON\s+CONFLICT.*$`
	revokeQ = `(?s)^\s*UPDATE\s+dkim_keys\s+SET\s+revoked\s*=\s*TRUE\s+WHERE\s+domain\s*=\s*\$1\s+AND\s+selector\s*=\s*\$2\s*$`
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func edKey(t *testing.T) ed25519.PublicKey {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return pub
}

func TestFetchKey_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	pub := edKey(t)
	expires := time.Now().Add(time.Hour).UTC()
	mock.ExpectQuery(selectQ).
		WithArgs("example.com", "sel").
		WillReturnRows(sqlmock.NewRows([]string{"key_type", "public_key", "expires_at", "revoked"}).
			AddRow("ed25519", []byte(pub), expires, false))

	rec, err := repo.FetchKey(context.Background(), "Example.COM", "sel")
	require.NoError(t, err)
	assert.Equal(t, "example.com", rec.Domain)
	assert.Equal(t, "ed25519", rec.KeyType)
	assert.Equal(t, pub, rec.PublicKey)
	assert.True(t, rec.ExpiresAt.Equal(expires))
	assert.False(t, rec.FetchedAt.IsZero())
	assert.True(t, rec.UsableAt(time.Now()))
}

func TestFetchKey_Revoked(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(selectQ).
		WillReturnRows(sqlmock.NewRows([]string{"key_type", "public_key", "expires_at", "revoked"}).
			AddRow("rsa", []byte{}, nil, true))

	rec, err := repo.FetchKey(context.Background(), "example.com", "sel")
	require.NoError(t, err)
	assert.True(t, rec.Revoked)
	assert.False(t, rec.UsableAt(time.Now()))
}

func TestFetchKey_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(selectQ).WillReturnError(sql.ErrNoRows)

	_, err := repo.FetchKey(context.Background(), "example.com", "sel")
	if !errors.Is(err, dkim.ErrKeyNotFound) {
		t.Fatalf("want dkim.ErrKeyNotFound, got %v", err)
	}
}

func TestFetchKey_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(selectQ).WillReturnError(errors.New("db err"))

	_, err := repo.FetchKey(context.Background(), "example.com", "sel")
	if err == nil || !regexp.MustCompile(`db error: .*db err`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
	assert.False(t, errors.Is(err, dkim.ErrKeyNotFound))
}

func TestFetchKey_BadMaterial(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(selectQ).
		WillReturnRows(sqlmock.NewRows([]string{"key_type", "public_key", "expires_at", "revoked"}).
			AddRow("ed25519", []byte{1, 2, 3}, nil, false))

	_, err := repo.FetchKey(context.Background(), "example.com", "sel")
	require.Error(t, err)
}

func TestUpsert_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	pub := edKey(t)
	rec, err := dkim.NewKeyRecord("Example.com", "sel", pub)
	require.NoError(t, err)

	mock.ExpectExec(upsertQ).
		WithArgs("example.com", "sel", "ed25519", []byte(pub), nil, false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Upsert(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsert_UnsupportedKey(t *testing.T) {
	repo, _, db := newRepoWithMock(t)
	defer db.Close()

	err := repo.Upsert(context.Background(), &dkim.KeyRecord{Domain: "d", Selector: "s", PublicKey: "nope"})
	require.Error(t, err)
}

func TestRevoke(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(revokeQ).
		WithArgs("example.com", "sel").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Revoke(context.Background(), "EXAMPLE.com", "sel"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	goose.SetBaseFS(migrations.SQLite)
	require.NoError(t, goose.SetDialect("sqlite3"))
	require.NoError(t, goose.Up(db, migrations.SQLiteDir))
	return db
}

func TestSQLite_ImportFetchRevoke(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()

	rsaKey, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	rsaRec, err := dkim.NewKeyRecord("example.com", "rsa1", &rsaKey.PublicKey)
	require.NoError(t, err)
	edRec, err := dkim.NewKeyRecord("example.com", "ed1", edKey(t))
	require.NoError(t, err)
	edRec.ExpiresAt = time.Now().Add(time.Hour).Truncate(time.Second)

	newRepo := func(db dbx.DBTX) Repository { return NewSQLiteRepository(db) }
	require.NoError(t, Import(ctx, db, newRepo, rsaRec, edRec))

	repo := NewSQLiteRepository(db)

	got, err := repo.FetchKey(ctx, "example.com", "rsa1")
	require.NoError(t, err)
	assert.Equal(t, rsaRec.Fingerprint, got.Fingerprint)
	assert.True(t, got.ExpiresAt.IsZero())

	got, err = repo.FetchKey(ctx, "example.com", "ed1")
	require.NoError(t, err)
	assert.Equal(t, edRec.Fingerprint, got.Fingerprint)
	assert.True(t, got.ExpiresAt.Equal(edRec.ExpiresAt))

	require.NoError(t, repo.Revoke(ctx, "example.com", "rsa1"))
	got, err = repo.FetchKey(ctx, "example.com", "rsa1")
	require.NoError(t, err)
	assert.True(t, got.Revoked)

	// Upsert replaces the revoked pin.
	require.NoError(t, repo.Upsert(ctx, rsaRec))
	got, err = repo.FetchKey(ctx, "example.com", "rsa1")
	require.NoError(t, err)
	assert.False(t, got.Revoked)
}

func TestSQLite_ImportRollsBackOnError(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()

	good, err := dkim.NewKeyRecord("example.com", "ok", edKey(t))
	require.NoError(t, err)
	bad := &dkim.KeyRecord{Domain: "example.com", Selector: "bad", PublicKey: 42}

	newRepo := func(db dbx.DBTX) Repository { return NewSQLiteRepository(db) }
	require.Error(t, Import(ctx, db, newRepo, good, bad))

	_, err = NewSQLiteRepository(db).FetchKey(ctx, "example.com", "ok")
	require.ErrorIs(t, err, dkim.ErrKeyNotFound)
}

func TestChainedBeforeStatic(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()

	pinned, err := dkim.NewKeyRecord("example.com", "sel", edKey(t))
	require.NoError(t, err)
	require.NoError(t, NewSQLiteRepository(db).Upsert(ctx, pinned))

	fallback, err := dkim.NewKeyRecord("example.com", "sel", edKey(t))
	require.NoError(t, err)

	chain := dkim.ChainKeySource{NewSQLiteRepository(db), dkim.NewStaticKeySource(fallback)}
	got, err := chain.FetchKey(ctx, "example.com", "sel")
	require.NoError(t, err)
	assert.Equal(t, pinned.Fingerprint, got.Fingerprint)

	got, err = chain.FetchKey(ctx, "example.com", "other")
	require.ErrorIs(t, err, dkim.ErrKeyNotFound)
	assert.Nil(t, got)
}
