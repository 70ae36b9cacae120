package custody

import (
	"context"
	"errors"
	"time"
)

var (
	ErrRecordNotFound      = errors.New("custody: record not found")
	ErrActiveCustodyExists = errors.New("custody: batch already has an active record")
)

// Repository es el ledger de custodia. Solo almacenamiento y lookups;
// las reglas viven en Service.
type Repository interface {
	FindActiveCustody(ctx context.Context, batchID string) (CustodyRecord, error)
	FindTransfer(ctx context.Context, transferID string) (TransferRecord, error)
	FindTransferFor(ctx context.Context, transferID, custodian string, status TransferStatus) (TransferRecord, error)

	// AppendCustody devuelve ErrActiveCustodyExists si rec es ACTIVE y el lote ya tiene uno.
	AppendCustody(ctx context.Context, rec CustodyRecord) error
	AppendTransfer(ctx context.Context, t TransferRecord) error

	// ResolveTransfer persiste el estado terminal de t solo si el transfer
	// almacenado sigue PENDING_ACCEPTANCE; si no, ErrRecordNotFound.
	ResolveTransfer(ctx context.Context, t TransferRecord) error

	// CompleteTransfer aplica en una sola unidad: superseded (si hay) pasa a
	// TRANSFERRED, next se agrega como ACTIVE y t se resuelve como COMPLETED.
	CompleteTransfer(ctx context.Context, t TransferRecord, superseded *CustodyRecord, next CustodyRecord) error

	ListCustodyByBatch(ctx context.Context, batchID string) ([]CustodyRecord, error)
	ListTransfersByBatch(ctx context.Context, batchID string) ([]TransferRecord, error)
	ListTransfersByRecipient(ctx context.Context, custodian string) ([]TransferRecord, error)

	// ListStalePending devuelve transfers PENDING_ACCEPTANCE con expiresAt < before.
	ListStalePending(ctx context.Context, before time.Time) ([]TransferRecord, error)
}

// BatchLocker serializa las escrituras sobre un mismo lote.
type BatchLocker interface {
	LockBatch(ctx context.Context, batchID string) (unlock func(), err error)
}
