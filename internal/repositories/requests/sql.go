package requests

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/dmitrijs2005/emailproof/internal/common"
	"github.com/dmitrijs2005/emailproof/internal/dbx"
	"github.com/dmitrijs2005/emailproof/internal/models"
	"github.com/google/uuid"
)

// sqlRepository holds the queries shared by the PostgreSQL and SQLite
// repositories. Queries are written with $n placeholders; bind adapts them
// to the driver.
type sqlRepository struct {
	db   dbx.DBTX
	bind func(string) string
	now  func() time.Time
}

func (r *sqlRepository) Create(ctx context.Context, req *models.Request) error {
	query := r.bind(`
		INSERT INTO requests (id, subject, template_id, chain, dkim_contract_address, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`)
	if req.EmailTxAuth.TemplateID == nil {
		return fmt.Errorf("request %s has no template id", req.ID)
	}
	_, err := r.db.ExecContext(ctx, query,
		req.ID,
		req.Subject,
		req.EmailTxAuth.TemplateID.String(),
		req.EmailTxAuth.Chain,
		req.EmailTxAuth.DKIMContractAddress,
		req.Status,
		req.CreatedAt,
		req.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *sqlRepository) Get(ctx context.Context, id uuid.UUID) (*models.Request, error) {
	query := r.bind(`
		SELECT subject, template_id, chain, dkim_contract_address, status,
			failure_kind, failure_detail, failure_retryable, result, created_at, updated_at
		FROM requests
		WHERE id = $1
	`)

	var (
		req        = &models.Request{ID: id}
		templateID string
		kind       sql.NullString
		detail     sql.NullString
		retryable  bool
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&req.Subject,
		&templateID,
		&req.EmailTxAuth.Chain,
		&req.EmailTxAuth.DKIMContractAddress,
		&req.Status,
		&kind,
		&detail,
		&retryable,
		&req.Result,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	tid, ok := new(big.Int).SetString(templateID, 10)
	if !ok {
		return nil, fmt.Errorf("db error: bad template id %q", templateID)
	}
	req.EmailTxAuth.TemplateID = tid

	if kind.Valid {
		req.Failure = &models.Failure{Kind: kind.String, Detail: detail.String, Retryable: retryable}
	}
	return req, nil
}

func (r *sqlRepository) CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to models.Status) error {
	if err := checkTransition(from, to); err != nil {
		return err
	}

	query := `
		UPDATE requests
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`
	if to == models.StatusReceived {
		query = `
			UPDATE requests
			SET status = $1, updated_at = $2,
				failure_kind = NULL, failure_detail = NULL, failure_retryable = FALSE
			WHERE id = $3 AND status = $4
		`
	}
	return r.exec(ctx, query, to, r.now(), id, from)
}

func (r *sqlRepository) SetResult(ctx context.Context, id uuid.UUID, result []byte) error {
	query := `
		UPDATE requests
		SET status = $1, result = $2, updated_at = $3
		WHERE id = $4 AND status = $5
	`
	return r.exec(ctx, query, models.StatusProved, result, r.now(), id, models.StatusProving)
}

func (r *sqlRepository) RecordFailure(ctx context.Context, id uuid.UUID, from models.Status, f models.Failure) error {
	if err := checkTransition(from, models.StatusFailed); err != nil {
		return err
	}

	query := `
		UPDATE requests
		SET status = $1, failure_kind = $2, failure_detail = $3, failure_retryable = $4, updated_at = $5
		WHERE id = $6 AND status = $7
	`
	return r.exec(ctx, query, models.StatusFailed, f.Kind, f.Detail, f.Retryable, r.now(), id, from)
}

// exec runs a compare-and-set update and maps "no row changed" to
// common.ErrStatusConflict.
func (r *sqlRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, r.bind(query), args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrStatusConflict
	}
	return nil
}

func utcNow() time.Time { return time.Now().UTC() }

func noRebind(q string) string { return q }
