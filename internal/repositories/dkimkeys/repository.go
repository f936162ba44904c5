// Package dkimkeys is a database-backed registry of trusted DKIM keys.
// It serves as a dkim.KeySource in front of DNS, so operators can pin or
// revoke keys without waiting for DNS changes.
package dkimkeys

import (
	"context"
	"crypto"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/emailproof/internal/dbx"
	"github.com/dmitrijs2005/emailproof/internal/dkim"
)

// Repository stores pinned keys and serves them to the verifier.
type Repository interface {
	dkim.KeySource

	// Upsert stores rec, replacing any key under the same domain and selector.
	Upsert(ctx context.Context, rec *dkim.KeyRecord) error

	// Revoke marks the key revoked. Revoking an unknown key is not an error.
	Revoke(ctx context.Context, domain, selector string) error
}

type sqlRepository struct {
	db   dbx.DBTX
	bind func(string) string
	now  func() time.Time
}

// PostgresRepository is the PostgreSQL key registry.
type PostgresRepository struct {
	sqlRepository
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{sqlRepository{db: db, bind: func(q string) string { return q }, now: time.Now}}
}

// SQLiteRepository is the SQLite key registry.
type SQLiteRepository struct {
	sqlRepository
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{sqlRepository{db: db, bind: dbx.QuestionMarks, now: time.Now}}
}

// FetchKey returns the registered key or dkim.ErrKeyNotFound.
func (r *sqlRepository) FetchKey(ctx context.Context, domain, selector string) (*dkim.KeyRecord, error) {
	query := r.bind(`
		SELECT key_type, public_key, expires_at, revoked
		FROM dkim_keys
		WHERE domain = $1 AND selector = $2
	`)

	var (
		keyType   string
		material  []byte
		expiresAt sql.NullTime
		revoked   bool
	)
	err := r.db.QueryRowContext(ctx, query, strings.ToLower(domain), selector).
		Scan(&keyType, &material, &expiresAt, &revoked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", dkim.KeyName(domain, selector), dkim.ErrKeyNotFound)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	var rec *dkim.KeyRecord
	if revoked || len(material) == 0 {
		rec = &dkim.KeyRecord{Domain: strings.ToLower(domain), Selector: selector, KeyType: keyType, Revoked: true}
	} else {
		pub, err := dkim.ParsePublicKey(keyType, material)
		if err != nil {
			return nil, fmt.Errorf("registry key %s: %w", dkim.KeyName(domain, selector), err)
		}
		if rec, err = dkim.NewKeyRecord(domain, selector, pub); err != nil {
			return nil, err
		}
	}
	rec.FetchedAt = r.now()
	if expiresAt.Valid {
		rec.ExpiresAt = expiresAt.Time
	}
	return rec, nil
}

func (r *sqlRepository) Upsert(ctx context.Context, rec *dkim.KeyRecord) error {
	material, err := keyMaterial(rec.PublicKey)
	if err != nil {
		return err
	}

	var expiresAt sql.NullTime
	if !rec.ExpiresAt.IsZero() {
		expiresAt = sql.NullTime{Time: rec.ExpiresAt.UTC(), Valid: true}
	}

	query := r.bind(`
		INSERT INTO dkim_keys (domain, selector, key_type, public_key, expires_at, revoked)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (domain, selector) DO UPDATE
		SET key_type = EXCLUDED.key_type,
			public_key = EXCLUDED.public_key,
			expires_at = EXCLUDED.expires_at,
			revoked = EXCLUDED.revoked
	`)
	_, err = r.db.ExecContext(ctx, query,
		strings.ToLower(rec.Domain), rec.Selector, rec.KeyType, material, expiresAt, rec.Revoked)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *sqlRepository) Revoke(ctx context.Context, domain, selector string) error {
	query := r.bind(`
		UPDATE dkim_keys
		SET revoked = TRUE
		WHERE domain = $1 AND selector = $2
	`)
	if _, err := r.db.ExecContext(ctx, query, strings.ToLower(domain), selector); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Import pins every record in one transaction.
func Import(ctx context.Context, db *sql.DB, newRepo func(dbx.DBTX) Repository, recs ...*dkim.KeyRecord) error {
	return dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := newRepo(tx)
		for _, rec := range recs {
			if err := repo.Upsert(ctx, rec); err != nil {
				return fmt.Errorf("import %s: %w", dkim.KeyName(rec.Domain, rec.Selector), err)
			}
		}
		return nil
	})
}

// keyMaterial encodes pub the way a p= tag carries it.
func keyMaterial(pub crypto.PublicKey) ([]byte, error) {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		return x509.MarshalPKIXPublicKey(k)
	case ed25519.PublicKey:
		return []byte(k), nil
	case nil:
		return []byte{}, nil
	default:
		return nil, fmt.Errorf("unsupported public key type %T", pub)
	}
}
