// Package requests stores proof requests and advances their lifecycle with
// compare-and-set status updates.
package requests

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/emailproof/internal/common"
	"github.com/dmitrijs2005/emailproof/internal/models"
	"github.com/google/uuid"
)

// Repository persists requests. Every status change is a compare-and-set
// against the status the caller last observed; a miss returns
// common.ErrStatusConflict and leaves the row untouched.
type Repository interface {
	// Create inserts a new request.
	Create(ctx context.Context, r *models.Request) error

	// Get returns a snapshot of the request or common.ErrorNotFound.
	Get(ctx context.Context, id uuid.UUID) (*models.Request, error)

	// CompareAndSetStatus moves the request from one status to another.
	// Moving back to Received clears the recorded failure.
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to models.Status) error

	// SetResult stores the encoded message and moves Proving -> Proved.
	SetResult(ctx context.Context, id uuid.UUID, result []byte) error

	// RecordFailure moves from -> Failed and stores the failure.
	RecordFailure(ctx context.Context, id uuid.UUID, from models.Status, f models.Failure) error
}

func checkTransition(from, to models.Status) error {
	if !models.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", common.ErrIllegalTransition, from, to)
	}
	return nil
}
