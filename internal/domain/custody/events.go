package custody

import (
	"context"
	"time"
)

// Routing keys publicadas después de cada mutación exitosa.
const (
	RoutingCustodyInitialized = "custody.initialized"
	RoutingTransferInitiated  = "custody.transfer.initiated"
	RoutingTransferCompleted  = "custody.transfer.completed"
	RoutingTransferRejected   = "custody.transfer.rejected"
	RoutingTransferExpired    = "custody.transfer.expired"
)

// EventPublisher publica eventos de dominio. Es best-effort: un fallo
// se loguea pero no revierte la operación.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, body any) error
}

// Event es el cuerpo publicado.
type Event struct {
	Type          string    `json:"type"`
	BatchID       string    `json:"batch_id"`
	Custodian     string    `json:"custodian,omitempty"`
	FromCustodian string    `json:"from_custodian,omitempty"`
	ToCustodian   string    `json:"to_custodian,omitempty"`
	CustodyID     string    `json:"custody_id,omitempty"`
	TransferID    string    `json:"transfer_id,omitempty"`
	TransactionID string    `json:"transaction_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, any) error { return nil }
