package custody

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"custody-ledger/internal/platform/logger"
	"custody-ledger/internal/ports/credentials"
	"custody-ledger/internal/ports/signing"

	"github.com/google/uuid"
)

type Options struct {
	// Locker por defecto es un mutex por lote dentro del proceso.
	Locker      BatchLocker
	Publisher   EventPublisher
	Credentials credentials.Resolver
	Logger      logger.Logger

	// TransferTTL por defecto es DefaultTransferTTL (24h).
	TransferTTL time.Duration
}

type Service struct {
	repo        Repository
	signer      signing.Signer
	locker      BatchLocker
	publisher   EventPublisher
	credentials credentials.Resolver
	log         logger.Logger
	ttl         time.Duration
	now         func() time.Time
}

func NewService(repo Repository, signer signing.Signer, opts Options) *Service {
	s := &Service{
		repo:        repo,
		signer:      signer,
		locker:      opts.Locker,
		publisher:   opts.Publisher,
		credentials: opts.Credentials,
		log:         opts.Logger,
		ttl:         opts.TransferTTL,
		now:         time.Now,
	}
	if s.locker == nil {
		s.locker = newLocalLocker()
	}
	if s.publisher == nil {
		s.publisher = noopPublisher{}
	}
	if s.log == nil {
		s.log = logger.Discard()
	}
	if s.ttl <= 0 {
		s.ttl = DefaultTransferTTL
	}
	return s
}

// CreateInitialCustody registra al primer custodio de un lote.
func (s *Service) CreateInitialCustody(ctx context.Context, batchID, custodian, secret string, data CustodyData) (rec CustodyRecord, err error) {
	defer s.guard("create_initial_custody", &err)

	batchID = strings.TrimSpace(batchID)
	custodian = strings.TrimSpace(custodian)

	if missing := requireFields("batchId", batchID, "custodian", custodian, "secret", secret); len(missing) > 0 {
		return CustodyRecord{}, missingParameters(missing)
	}

	unlock, err := s.locker.LockBatch(ctx, batchID)
	if err != nil {
		return CustodyRecord{}, operationFailed(err)
	}
	defer unlock()

	_, err = s.repo.FindActiveCustody(ctx, batchID)
	switch {
	case err == nil:
		return CustodyRecord{}, ErrDuplicateCustody
	case !errors.Is(err, ErrRecordNotFound):
		return CustodyRecord{}, operationFailed(err)
	}

	location := strings.TrimSpace(data.Location)

	// el payload firmado lleva su propia copia de los maps
	now := s.now()
	tx, err := s.signer.Sign(ctx, custodian, secret, EventInitialCustody, map[string]any{
		"batchId":     batchID,
		"custodian":   custodian,
		"custodyType": EventInitialCustody,
		"location":    location,
		"conditions":  orEmpty(data.Conditions),
		"timestamp":   stamp(now),
	})
	if err != nil {
		return CustodyRecord{}, operationFailed(err)
	}

	rec = CustodyRecord{
		ID:                uuid.NewString(),
		BatchID:           batchID,
		CurrentCustodian:  custodian,
		Status:            CustodyStatusActive,
		StartedAt:         now,
		Location:          location,
		Conditions:        signing.CloneMap(data.Conditions),
		SignedTransaction: tx,
	}

	if err := s.repo.AppendCustody(ctx, rec); err != nil {
		if errors.Is(err, ErrActiveCustodyExists) {
			return CustodyRecord{}, ErrDuplicateCustody
		}
		return CustodyRecord{}, operationFailed(err)
	}

	s.publish(ctx, RoutingCustodyInitialized, Event{
		BatchID:       batchID,
		Custodian:     custodian,
		CustodyID:     rec.ID,
		TransactionID: tx.ID,
		OccurredAt:    now,
	})
	return rec, nil
}

// InitiateTransfer propone mover la custodia de fromCustodian a toCustodian.
// Solo el custodio activo puede iniciar, y solo un transfer pendiente por lote.
func (s *Service) InitiateTransfer(ctx context.Context, fromCustodian, toCustodian, batchID, secret string, data TransferData) (t TransferRecord, err error) {
	defer s.guard("initiate_transfer", &err)

	fromCustodian = strings.TrimSpace(fromCustodian)
	toCustodian = strings.TrimSpace(toCustodian)
	batchID = strings.TrimSpace(batchID)

	if missing := requireFields(
		"fromCustodian", fromCustodian,
		"toCustodian", toCustodian,
		"batchId", batchID,
		"secret", secret,
	); len(missing) > 0 {
		return TransferRecord{}, missingParameters(missing)
	}

	unlock, err := s.locker.LockBatch(ctx, batchID)
	if err != nil {
		return TransferRecord{}, operationFailed(err)
	}
	defer unlock()

	active, err := s.repo.FindActiveCustody(ctx, batchID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return TransferRecord{}, ErrNotCustodian
		}
		return TransferRecord{}, operationFailed(err)
	}
	if active.CurrentCustodian != fromCustodian {
		return TransferRecord{}, ErrNotCustodian
	}

	if err := s.ensureNoPendingTransfer(ctx, batchID); err != nil {
		return TransferRecord{}, err
	}

	data.Location = strings.TrimSpace(data.Location)

	now := s.now()
	tx, err := s.signer.Sign(ctx, fromCustodian, secret, EventCustodyTransfer, map[string]any{
		"batchId":        batchID,
		"fromCustodian":  fromCustodian,
		"toCustodian":    toCustodian,
		"transferType":   data.TransferType,
		"transferReason": data.Reason,
		"qualityChecks":  orEmpty(data.QualityChecks),
		"conditions":     orEmpty(data.Conditions),
		"location":       data.Location,
		"timestamp":      stamp(now),
	})
	if err != nil {
		return TransferRecord{}, operationFailed(err)
	}

	t = TransferRecord{
		ID:                uuid.NewString(),
		BatchID:           batchID,
		FromCustodian:     fromCustodian,
		ToCustodian:       toCustodian,
		Status:            TransferStatusPending,
		InitiatedAt:       now,
		ExpiresAt:         now.Add(s.ttl),
		Data: TransferData{
			TransferType:  data.TransferType,
			Reason:        data.Reason,
			QualityChecks: signing.CloneMap(data.QualityChecks),
			Conditions:    signing.CloneMap(data.Conditions),
			Location:      data.Location,
		},
		SignedTransaction: tx,
	}

	if err := s.repo.AppendTransfer(ctx, t); err != nil {
		return TransferRecord{}, operationFailed(err)
	}

	s.publish(ctx, RoutingTransferInitiated, Event{
		BatchID:       batchID,
		FromCustodian: fromCustodian,
		ToCustodian:   toCustodian,
		TransferID:    t.ID,
		TransactionID: tx.ID,
		OccurredAt:    now,
	})
	return t, nil
}

// AcceptTransfer completa un transfer pendiente dirigido a toCustodian.
// Si el transfer venció, queda EXPIRED y se devuelve ErrTransferExpired.
func (s *Service) AcceptTransfer(ctx context.Context, transferID, toCustodian, secret string, data AcceptanceData) (res AcceptResult, err error) {
	defer s.guard("accept_transfer", &err)

	transferID = strings.TrimSpace(transferID)
	toCustodian = strings.TrimSpace(toCustodian)

	if missing := requireFields("transferId", transferID, "toCustodian", toCustodian, "secret", secret); len(missing) > 0 {
		return AcceptResult{}, missingParameters(missing)
	}

	t, unlock, err := s.lockPendingTransfer(ctx, transferID, toCustodian)
	if err != nil {
		return AcceptResult{}, err
	}
	defer unlock()

	t, err = s.CheckAndExpire(ctx, t)
	if err != nil {
		return AcceptResult{}, err
	}
	if t.Status == TransferStatusExpired {
		return AcceptResult{}, ErrTransferExpired
	}

	location := strings.TrimSpace(data.Location)

	now := s.now()
	acc, err := s.signer.Sign(ctx, toCustodian, secret, EventTransferAcceptance, map[string]any{
		"transferId":           t.ID,
		"batchId":              t.BatchID,
		"fromCustodian":        t.FromCustodian,
		"toCustodian":          t.ToCustodian,
		"acceptanceTimestamp":  stamp(now),
		"acceptanceConditions": orEmpty(data.Conditions),
		"qualityVerification":  orEmpty(data.QualityVerification),
		"location":             location,
	})
	if err != nil {
		return AcceptResult{}, operationFailed(err)
	}

	var superseded *CustodyRecord
	active, err := s.repo.FindActiveCustody(ctx, t.BatchID)
	switch {
	case err == nil:
		active.Status = CustodyStatusTransferred
		active.TransferredAt = &now
		active.TransferredTo = toCustodian
		superseded = &active
	case !errors.Is(err, ErrRecordNotFound):
		return AcceptResult{}, operationFailed(err)
	}

	next := CustodyRecord{
		ID:                uuid.NewString(),
		BatchID:           t.BatchID,
		CurrentCustodian:  toCustodian,
		PreviousCustodian: t.FromCustodian,
		Status:            CustodyStatusActive,
		StartedAt:         now,
		TransferID:        t.ID,
		Location:          location,
		Conditions:        signing.CloneMap(data.Conditions),
		SignedTransaction: acc,
	}

	t.Status = TransferStatusCompleted
	t.AcceptedAt = &now
	t.AcceptanceTransaction = &acc

	if err := s.repo.CompleteTransfer(ctx, t, superseded, next); err != nil {
		switch {
		case errors.Is(err, ErrRecordNotFound):
			return AcceptResult{}, ErrTransferNotFound
		case errors.Is(err, ErrActiveCustodyExists):
			return AcceptResult{}, operationFailed(fmt.Errorf("batch %s: %w", t.BatchID, err))
		default:
			return AcceptResult{}, operationFailed(err)
		}
	}

	s.publish(ctx, RoutingTransferCompleted, Event{
		BatchID:       t.BatchID,
		FromCustodian: t.FromCustodian,
		ToCustodian:   toCustodian,
		CustodyID:     next.ID,
		TransferID:    t.ID,
		TransactionID: acc.ID,
		OccurredAt:    now,
	})
	return AcceptResult{Transfer: t, Custody: next}, nil
}

// RejectTransfer rechaza un transfer pendiente. No revisa vencimiento:
// un transfer vencido que nadie tocó todavía se puede rechazar.
func (s *Service) RejectTransfer(ctx context.Context, transferID, toCustodian, reason string) (t TransferRecord, err error) {
	defer s.guard("reject_transfer", &err)

	transferID = strings.TrimSpace(transferID)
	toCustodian = strings.TrimSpace(toCustodian)

	if missing := requireFields("transferId", transferID, "toCustodian", toCustodian); len(missing) > 0 {
		return TransferRecord{}, missingParameters(missing)
	}

	t, unlock, err := s.lockPendingTransfer(ctx, transferID, toCustodian)
	if err != nil {
		return TransferRecord{}, err
	}
	defer unlock()

	now := s.now()
	t.Status = TransferStatusRejected
	t.RejectedAt = &now
	t.RejectionReason = strings.TrimSpace(reason)

	if err := s.repo.ResolveTransfer(ctx, t); err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return TransferRecord{}, ErrTransferNotFound
		}
		return TransferRecord{}, operationFailed(err)
	}

	s.publish(ctx, RoutingTransferRejected, Event{
		BatchID:       t.BatchID,
		FromCustodian: t.FromCustodian,
		ToCustodian:   t.ToCustodian,
		TransferID:    t.ID,
		OccurredAt:    now,
	})
	return t, nil
}

// CheckAndExpire pasa t a EXPIRED si sigue pendiente y ya venció.
// Devuelve t sin cambios en cualquier otro caso. El caller debe tener
// tomado el lock del lote.
func (s *Service) CheckAndExpire(ctx context.Context, t TransferRecord) (TransferRecord, error) {
	now := s.now()
	if t.Status != TransferStatusPending || !t.Expired(now) {
		return t, nil
	}

	t.Status = TransferStatusExpired
	if err := s.repo.ResolveTransfer(ctx, t); err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return TransferRecord{}, ErrTransferNotFound
		}
		return TransferRecord{}, operationFailed(err)
	}

	s.log.Info("custody transfer expired", map[string]any{
		"transfer_id": t.ID,
		"batch_id":    t.BatchID,
		"expires_at":  t.ExpiresAt,
	})
	s.publish(ctx, RoutingTransferExpired, Event{
		BatchID:       t.BatchID,
		FromCustodian: t.FromCustodian,
		ToCustodian:   t.ToCustodian,
		TransferID:    t.ID,
		OccurredAt:    now,
	})
	return t, nil
}

// ExpireStaleTransfers corre CheckAndExpire sobre todos los transfers
// pendientes vencidos. Lo usa el sweep periódico.
func (s *Service) ExpireStaleTransfers(ctx context.Context) (expired int, err error) {
	defer s.guard("expire_stale_transfers", &err)

	stale, err := s.repo.ListStalePending(ctx, s.now())
	if err != nil {
		return 0, operationFailed(err)
	}

	for _, candidate := range stale {
		if err := ctx.Err(); err != nil {
			return expired, operationFailed(err)
		}

		ok, err := s.expireOne(ctx, candidate)
		if err != nil {
			s.log.Warn("expire transfer failed", map[string]any{
				"transfer_id": candidate.ID,
				"error":       err.Error(),
			})
			continue
		}
		if ok {
			expired++
		}
	}
	return expired, nil
}

func (s *Service) expireOne(ctx context.Context, candidate TransferRecord) (bool, error) {
	unlock, err := s.locker.LockBatch(ctx, candidate.BatchID)
	if err != nil {
		return false, err
	}
	defer unlock()

	t, err := s.repo.FindTransferFor(ctx, candidate.ID, candidate.ToCustodian, TransferStatusPending)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			// resuelto mientras tanto
			return false, nil
		}
		return false, err
	}

	t, err = s.CheckAndExpire(ctx, t)
	if err != nil {
		return false, err
	}
	return t.Status == TransferStatusExpired, nil
}

// GetTransfer devuelve un transfer por id, en cualquier estado.
func (s *Service) GetTransfer(ctx context.Context, transferID string) (t TransferRecord, err error) {
	defer s.guard("get_transfer", &err)

	transferID = strings.TrimSpace(transferID)
	if transferID == "" {
		return TransferRecord{}, missingParameters([]string{"transferId"})
	}

	t, err = s.repo.FindTransfer(ctx, transferID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return TransferRecord{}, &Error{Kind: KindTransferNotFound, Message: "transfer not found"}
		}
		return TransferRecord{}, operationFailed(err)
	}
	return t, nil
}

// ListIncomingTransfers lista los transfers dirigidos a custodian,
// opcionalmente filtrados por estado.
func (s *Service) ListIncomingTransfers(ctx context.Context, custodian string, statuses ...TransferStatus) (out []TransferRecord, err error) {
	defer s.guard("list_incoming_transfers", &err)

	custodian = strings.TrimSpace(custodian)
	if custodian == "" {
		return nil, missingParameters([]string{"custodian"})
	}

	items, err := s.repo.ListTransfersByRecipient(ctx, custodian)
	if err != nil {
		return nil, operationFailed(err)
	}
	if len(statuses) == 0 {
		sortTransfers(items)
		return items, nil
	}

	allowed := map[TransferStatus]struct{}{}
	for _, st := range statuses {
		allowed[st] = struct{}{}
	}
	out = make([]TransferRecord, 0, len(items))
	for _, t := range items {
		if _, ok := allowed[t.Status]; ok {
			out = append(out, t)
		}
	}
	sortTransfers(out)
	return out, nil
}

// SignatureCheck es el resultado de verificar las firmas de un transfer.
type SignatureCheck struct {
	TransferID        string
	InitiationValid   bool
	AcceptanceChecked bool
	AcceptanceValid   bool
}

// VerifyTransferSignatures valida las transacciones guardadas de un transfer
// contra las credenciales públicas de los actores que las firmaron.
func (s *Service) VerifyTransferSignatures(ctx context.Context, transferID string) (out SignatureCheck, err error) {
	defer s.guard("verify_transfer_signatures", &err)

	t, err := s.GetTransfer(ctx, transferID)
	if err != nil {
		return SignatureCheck{}, err
	}
	if s.credentials == nil {
		return SignatureCheck{}, operationFailed(errors.New("credential resolver not configured"))
	}

	out.TransferID = t.ID
	out.InitiationValid, err = s.verifyTransaction(ctx, t.SignedTransaction)
	if err != nil {
		return SignatureCheck{}, operationFailed(err)
	}

	if t.AcceptanceTransaction != nil {
		out.AcceptanceChecked = true
		out.AcceptanceValid, err = s.verifyTransaction(ctx, *t.AcceptanceTransaction)
		if err != nil {
			return SignatureCheck{}, operationFailed(err)
		}
	}
	return out, nil
}

func (s *Service) verifyTransaction(ctx context.Context, tx signing.Transaction) (bool, error) {
	cred, err := s.credentials.PublicCredential(ctx, tx.ActorID)
	if err != nil {
		return false, fmt.Errorf("resolve credential for %s: %w", tx.ActorID, err)
	}
	return s.signer.Verify(ctx, cred, tx)
}

// lockPendingTransfer busca el transfer pendiente, toma el lock de su lote
// y lo vuelve a leer bajo el lock.
func (s *Service) lockPendingTransfer(ctx context.Context, transferID, custodian string) (TransferRecord, func(), error) {
	t, err := s.repo.FindTransferFor(ctx, transferID, custodian, TransferStatusPending)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return TransferRecord{}, nil, ErrTransferNotFound
		}
		return TransferRecord{}, nil, operationFailed(err)
	}

	unlock, err := s.locker.LockBatch(ctx, t.BatchID)
	if err != nil {
		return TransferRecord{}, nil, operationFailed(err)
	}

	t, err = s.repo.FindTransferFor(ctx, transferID, custodian, TransferStatusPending)
	if err != nil {
		unlock()
		if errors.Is(err, ErrRecordNotFound) {
			return TransferRecord{}, nil, ErrTransferNotFound
		}
		return TransferRecord{}, nil, operationFailed(err)
	}
	return t, unlock, nil
}

func (s *Service) ensureNoPendingTransfer(ctx context.Context, batchID string) error {
	items, err := s.repo.ListTransfersByBatch(ctx, batchID)
	if err != nil {
		return operationFailed(err)
	}
	for _, t := range items {
		if t.Status != TransferStatusPending {
			continue
		}
		t, err = s.CheckAndExpire(ctx, t)
		if err != nil {
			return err
		}
		if t.Status == TransferStatusPending {
			return ErrTransferPending
		}
	}
	return nil
}

func (s *Service) publish(ctx context.Context, routingKey string, ev Event) {
	ev.Type = routingKey
	if err := s.publisher.Publish(ctx, routingKey, ev); err != nil {
		s.log.Warn("publish custody event failed", map[string]any{
			"routing_key": routingKey,
			"batch_id":    ev.BatchID,
			"error":       err.Error(),
		})
	}
}

// guard convierte panics en OperationFailed y normaliza cualquier error
// que no sea *Error.
func (s *Service) guard(op string, errp *error) {
	if r := recover(); r != nil {
		s.log.Error("custody operation panicked", map[string]any{"op": op, "panic": fmt.Sprint(r)})
		*errp = operationFailed(fmt.Errorf("%s: panic: %v", op, r))
		return
	}
	if *errp == nil {
		return
	}
	*errp = operationFailed(*errp)
	if KindOf(*errp) == KindOperationFailed {
		s.log.Error("custody operation failed", map[string]any{"op": op, "error": (*errp).Error()})
	}
}

func stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// orEmpty devuelve una copia de m, o un map vacío si es nil.
func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return signing.CloneMap(m)
}
