package requests

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/emailproof/internal/common"
	"github.com/dmitrijs2005/emailproof/internal/models"
	"github.com/google/uuid"
)

// MemoryRepository keeps requests in process memory. It is safe for
// concurrent use; all compare-and-set operations take one store-wide lock.
type MemoryRepository struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*models.Request
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rows: make(map[uuid.UUID]*models.Request)}
}

func (m *MemoryRepository) Create(_ context.Context, r *models.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rows[r.ID]; ok {
		return fmt.Errorf("request %s already exists", r.ID)
	}
	m.rows[r.ID] = r.Clone()
	return nil
}

func (m *MemoryRepository) Get(_ context.Context, id uuid.UUID) (*models.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rows[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return r.Clone(), nil
}

func (m *MemoryRepository) CompareAndSetStatus(_ context.Context, id uuid.UUID, from, to models.Status) error {
	if err := checkTransition(from, to); err != nil {
		return err
	}
	return m.update(id, from, func(r *models.Request) {
		r.Status = to
		if to == models.StatusReceived {
			r.Failure = nil
		}
	})
}

func (m *MemoryRepository) SetResult(_ context.Context, id uuid.UUID, result []byte) error {
	return m.update(id, models.StatusProving, func(r *models.Request) {
		r.Status = models.StatusProved
		r.Result = append([]byte(nil), result...)
	})
}

func (m *MemoryRepository) RecordFailure(_ context.Context, id uuid.UUID, from models.Status, f models.Failure) error {
	if err := checkTransition(from, models.StatusFailed); err != nil {
		return err
	}
	return m.update(id, from, func(r *models.Request) {
		r.Status = models.StatusFailed
		r.Failure = &f
	})
}

func (m *MemoryRepository) update(id uuid.UUID, from models.Status, fn func(*models.Request)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rows[id]
	if !ok || r.Status != from {
		return common.ErrStatusConflict
	}
	fn(r)
	r.UpdatedAt = time.Now().UTC()
	return nil
}
