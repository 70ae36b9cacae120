package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"custody-ledger/internal/domain/custody"
)

// custodyRepo guarda el ledger en memoria. Los slices de ids conservan
// el orden de inserción (append-only). Los records entran y salen copiados:
// nadie fuera del repo comparte sus maps.
type custodyRepo struct {
	mu sync.RWMutex

	custodyByID map[string]custody.CustodyRecord
	custodyIDs  []string

	transferByID map[string]custody.TransferRecord
	transferIDs  []string

	// batchID -> id del registro ACTIVE
	activeByBatch map[string]string
}

func NewCustodyRepo() custody.Repository {
	return &custodyRepo{
		custodyByID:   make(map[string]custody.CustodyRecord),
		transferByID:  make(map[string]custody.TransferRecord),
		activeByBatch: make(map[string]string),
	}
}

func (r *custodyRepo) FindActiveCustody(ctx context.Context, batchID string) (custody.CustodyRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.activeByBatch[batchID]
	if !ok {
		return custody.CustodyRecord{}, custody.ErrRecordNotFound
	}
	return r.custodyByID[id].Clone(), nil
}

func (r *custodyRepo) FindTransfer(ctx context.Context, transferID string) (custody.TransferRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.transferByID[transferID]
	if !ok {
		return custody.TransferRecord{}, custody.ErrRecordNotFound
	}
	return t.Clone(), nil
}

func (r *custodyRepo) FindTransferFor(ctx context.Context, transferID, custodian string, status custody.TransferStatus) (custody.TransferRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.transferByID[transferID]
	if !ok || t.ToCustodian != custodian || t.Status != status {
		return custody.TransferRecord{}, custody.ErrRecordNotFound
	}
	return t.Clone(), nil
}

func (r *custodyRepo) AppendCustody(ctx context.Context, rec custody.CustodyRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.appendCustodyLocked(rec)
}

func (r *custodyRepo) AppendTransfer(ctx context.Context, t custody.TransferRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t.ID == "" {
		return errors.New("transfer id required")
	}
	if _, exists := r.transferByID[t.ID]; exists {
		return errors.New("transfer already exists")
	}
	r.transferByID[t.ID] = t.Clone()
	r.transferIDs = append(r.transferIDs, t.ID)
	return nil
}

func (r *custodyRepo) ResolveTransfer(ctx context.Context, t custody.TransferRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkPendingLocked(t.ID); err != nil {
		return err
	}
	r.transferByID[t.ID] = t.Clone()
	return nil
}

// CompleteTransfer valida todo antes de escribir para que un fallo no deje
// el ledger a medias.
func (r *custodyRepo) CompleteTransfer(ctx context.Context, t custody.TransferRecord, superseded *custody.CustodyRecord, next custody.CustodyRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkPendingLocked(t.ID); err != nil {
		return err
	}
	if next.ID == "" {
		return errors.New("custody id required")
	}
	if _, exists := r.custodyByID[next.ID]; exists {
		return errors.New("custody record already exists")
	}

	activeID, hasActive := r.activeByBatch[next.BatchID]
	if superseded != nil {
		if _, ok := r.custodyByID[superseded.ID]; !ok {
			return custody.ErrRecordNotFound
		}
		if hasActive && activeID != superseded.ID {
			return custody.ErrActiveCustodyExists
		}
	} else if hasActive {
		return custody.ErrActiveCustodyExists
	}

	if superseded != nil {
		r.custodyByID[superseded.ID] = superseded.Clone()
		delete(r.activeByBatch, next.BatchID)
	}
	r.transferByID[t.ID] = t.Clone()
	return r.appendCustodyLocked(next)
}

func (r *custodyRepo) ListCustodyByBatch(ctx context.Context, batchID string) ([]custody.CustodyRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]custody.CustodyRecord, 0)
	for _, id := range r.custodyIDs {
		if c := r.custodyByID[id]; c.BatchID == batchID {
			out = append(out, c.Clone())
		}
	}
	return out, nil
}

func (r *custodyRepo) ListTransfersByBatch(ctx context.Context, batchID string) ([]custody.TransferRecord, error) {
	return r.listTransfers(func(t custody.TransferRecord) bool { return t.BatchID == batchID }), nil
}

func (r *custodyRepo) ListTransfersByRecipient(ctx context.Context, custodian string) ([]custody.TransferRecord, error) {
	return r.listTransfers(func(t custody.TransferRecord) bool { return t.ToCustodian == custodian }), nil
}

func (r *custodyRepo) ListStalePending(ctx context.Context, before time.Time) ([]custody.TransferRecord, error) {
	return r.listTransfers(func(t custody.TransferRecord) bool {
		return t.Status == custody.TransferStatusPending && t.ExpiresAt.Before(before)
	}), nil
}

func (r *custodyRepo) listTransfers(match func(custody.TransferRecord) bool) []custody.TransferRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]custody.TransferRecord, 0)
	for _, id := range r.transferIDs {
		if t := r.transferByID[id]; match(t) {
			out = append(out, t.Clone())
		}
	}
	return out
}

func (r *custodyRepo) appendCustodyLocked(rec custody.CustodyRecord) error {
	if rec.ID == "" {
		return errors.New("custody id required")
	}
	if _, exists := r.custodyByID[rec.ID]; exists {
		return errors.New("custody record already exists")
	}
	if rec.Status == custody.CustodyStatusActive {
		if _, exists := r.activeByBatch[rec.BatchID]; exists {
			return custody.ErrActiveCustodyExists
		}
		r.activeByBatch[rec.BatchID] = rec.ID
	}
	r.custodyByID[rec.ID] = rec.Clone()
	r.custodyIDs = append(r.custodyIDs, rec.ID)
	return nil
}

func (r *custodyRepo) checkPendingLocked(transferID string) error {
	cur, ok := r.transferByID[transferID]
	if !ok || cur.Status != custody.TransferStatusPending {
		return custody.ErrRecordNotFound
	}
	return nil
}
