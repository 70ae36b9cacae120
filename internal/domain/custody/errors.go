package custody

import (
	"errors"
	"strings"
)

// Kind clasifica los fallos de las operaciones de custodia.
type Kind string

const (
	KindMissingParameter Kind = "MissingParameterError"
	KindDuplicateCustody Kind = "DuplicateCustodyError"
	KindNotCustodian     Kind = "NotCustodianError"
	KindTransferNotFound Kind = "TransferNotFoundError"
	KindTransferExpired  Kind = "TransferExpiredError"
	KindTransferPending  Kind = "TransferPendingError"
	KindOperationFailed  Kind = "OperationFailedError"
)

// Error es el único tipo de error que sale de Service.
// Dos *Error son equivalentes para errors.Is si comparten Kind.
type Error struct {
	Kind          Kind
	Message       string
	MissingFields []string
	Err           error
}

func (e *Error) Error() string {
	msg := e.Message
	if len(e.MissingFields) > 0 {
		msg += ": " + strings.Join(e.MissingFields, ", ")
	}
	if e.Err != nil && e.Kind == KindOperationFailed {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrMissingParameter = &Error{Kind: KindMissingParameter, Message: "missing required parameters"}
	ErrDuplicateCustody = &Error{Kind: KindDuplicateCustody, Message: "batch already has an active custodian"}
	ErrNotCustodian     = &Error{Kind: KindNotCustodian, Message: "initiator does not hold active custody of the batch"}
	ErrTransferNotFound = &Error{Kind: KindTransferNotFound, Message: "pending transfer not found"}
	ErrTransferExpired  = &Error{Kind: KindTransferExpired, Message: "transfer has expired"}
	ErrTransferPending  = &Error{Kind: KindTransferPending, Message: "batch already has a pending transfer"}
	ErrOperationFailed  = &Error{Kind: KindOperationFailed, Message: "operation failed"}
)

// KindOf devuelve el Kind de err, u OperationFailed si no es un *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindOperationFailed
}

func missingParameters(fields []string) *Error {
	return &Error{
		Kind:          KindMissingParameter,
		Message:       ErrMissingParameter.Message,
		MissingFields: fields,
	}
}

func operationFailed(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindOperationFailed, Message: ErrOperationFailed.Message, Err: err}
}

// requireFields recibe pares (nombre, valor) y devuelve los nombres vacíos.
func requireFields(pairs ...string) []string {
	var missing []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			missing = append(missing, pairs[i])
		}
	}
	return missing
}
