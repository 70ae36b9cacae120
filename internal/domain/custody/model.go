package custody

import (
	"time"

	"custody-ledger/internal/ports/signing"
)

type CustodyStatus string

const (
	CustodyStatusActive      CustodyStatus = "ACTIVE"
	CustodyStatusTransferred CustodyStatus = "TRANSFERRED"
)

type TransferStatus string

const (
	TransferStatusPending   TransferStatus = "PENDING_ACCEPTANCE"
	TransferStatusCompleted TransferStatus = "COMPLETED"
	TransferStatusRejected  TransferStatus = "REJECTED"
	TransferStatusExpired   TransferStatus = "EXPIRED"
)

// Terminal indica si el transfer ya no admite transiciones.
func (s TransferStatus) Terminal() bool {
	switch s {
	case TransferStatusCompleted, TransferStatusRejected, TransferStatusExpired:
		return true
	default:
		return false
	}
}

// Tipos de evento firmados.
const (
	EventInitialCustody     = "INITIAL_CUSTODY"
	EventCustodyTransfer    = "CUSTODY_TRANSFER"
	EventTransferAcceptance = "TRANSFER_ACCEPTANCE"
)

const DefaultTransferTTL = 24 * time.Hour

// CustodyRecord es un tramo continuo de custodia de un lote por un actor.
type CustodyRecord struct {
	ID      string
	BatchID string

	CurrentCustodian  string
	PreviousCustodian string // vacío para el primer registro del lote

	Status    CustodyStatus
	StartedAt time.Time

	// Solo presentes una vez que Status = TRANSFERRED.
	TransferredAt *time.Time
	TransferredTo string

	// Transfer que originó este registro (vacío para la custodia inicial).
	TransferID string

	Location   string
	Conditions map[string]any

	SignedTransaction signing.Transaction
}

// TransferData es la metadata libre de un transfer.
type TransferData struct {
	TransferType  string
	Reason        string
	QualityChecks map[string]any
	Conditions    map[string]any
	Location      string
}

// TransferRecord es un movimiento propuesto de custodia entre dos actores.
type TransferRecord struct {
	ID      string
	BatchID string

	FromCustodian string
	ToCustodian   string

	Status TransferStatus

	InitiatedAt time.Time
	ExpiresAt   time.Time

	AcceptedAt            *time.Time
	AcceptanceTransaction *signing.Transaction

	RejectedAt      *time.Time
	RejectionReason string

	Data              TransferData
	SignedTransaction signing.Transaction
}

// Expired compara contra ExpiresAt de forma estricta (now > expiresAt).
func (t TransferRecord) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// CustodyData acompaña la creación de la custodia inicial.
type CustodyData struct {
	Location   string
	Conditions map[string]any
}

// AcceptanceData acompaña la aceptación de un transfer.
type AcceptanceData struct {
	Conditions          map[string]any
	QualityVerification map[string]any
	Location            string
}

// AcceptResult agrupa el transfer completado y el nuevo registro activo.
type AcceptResult struct {
	Transfer TransferRecord
	Custody  CustodyRecord
}

// Clone devuelve una copia que no comparte maps ni punteros con c.
func (c CustodyRecord) Clone() CustodyRecord {
	c.Conditions = signing.CloneMap(c.Conditions)
	c.SignedTransaction = c.SignedTransaction.Clone()
	if c.TransferredAt != nil {
		at := *c.TransferredAt
		c.TransferredAt = &at
	}
	return c
}

// Clone devuelve una copia que no comparte maps ni punteros con t.
func (t TransferRecord) Clone() TransferRecord {
	t.Data.QualityChecks = signing.CloneMap(t.Data.QualityChecks)
	t.Data.Conditions = signing.CloneMap(t.Data.Conditions)
	t.SignedTransaction = t.SignedTransaction.Clone()
	if t.AcceptanceTransaction != nil {
		acc := t.AcceptanceTransaction.Clone()
		t.AcceptanceTransaction = &acc
	}
	if t.AcceptedAt != nil {
		at := *t.AcceptedAt
		t.AcceptedAt = &at
	}
	if t.RejectedAt != nil {
		at := *t.RejectedAt
		t.RejectedAt = &at
	}
	return t
}
