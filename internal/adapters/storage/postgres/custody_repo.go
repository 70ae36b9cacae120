package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"custody-ledger/internal/domain/custody"
	"custody-ledger/internal/ports/signing"
)

type CustodyRepo struct {
	db *sql.DB
}

func NewCustodyRepo(db *sql.DB) *CustodyRepo {
	return &CustodyRepo{db: db}
}

// execer lo cumplen *sql.DB y *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// scanner lo cumplen *sql.Row y *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// transferDataRow es la forma JSONB de custody.TransferData.
type transferDataRow struct {
	TransferType  string         `json:"transfer_type,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	QualityChecks map[string]any `json:"quality_checks,omitempty"`
	Conditions    map[string]any `json:"conditions,omitempty"`
	Location      string         `json:"location,omitempty"`
}

const custodyColumns = `
	id, batch_id,
	current_custodian, previous_custodian,
	status, started_at,
	transferred_at, transferred_to,
	transfer_id, location, conditions,
	signed_transaction`

const transferColumns = `
	id, batch_id,
	from_custodian, to_custodian,
	status, initiated_at, expires_at,
	accepted_at, acceptance_transaction,
	rejected_at, rejection_reason,
	data, signed_transaction`

func (r *CustodyRepo) FindActiveCustody(ctx context.Context, batchID string) (custody.CustodyRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+custodyColumns+`
		FROM custody_records
		WHERE batch_id = $1 AND status = 'ACTIVE'
	`, strings.TrimSpace(batchID))

	return scanCustody(row)
}

func (r *CustodyRepo) FindTransfer(ctx context.Context, transferID string) (custody.TransferRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+transferColumns+`
		FROM custody_transfers
		WHERE id = $1
	`, strings.TrimSpace(transferID))

	return scanTransfer(row)
}

func (r *CustodyRepo) FindTransferFor(ctx context.Context, transferID, custodian string, status custody.TransferStatus) (custody.TransferRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+transferColumns+`
		FROM custody_transfers
		WHERE id = $1 AND to_custodian = $2 AND status = $3
	`, strings.TrimSpace(transferID), custodian, string(status))

	return scanTransfer(row)
}

func (r *CustodyRepo) AppendCustody(ctx context.Context, rec custody.CustodyRecord) error {
	return insertCustody(ctx, r.db, rec)
}

func (r *CustodyRepo) AppendTransfer(ctx context.Context, t custody.TransferRecord) error {
	data, err := json.Marshal(transferDataRow(t.Data))
	if err != nil {
		return fmt.Errorf("marshal transfer data: %w", err)
	}
	tx, err := json.Marshal(t.SignedTransaction)
	if err != nil {
		return fmt.Errorf("marshal transaction: %w", err)
	}
	acc, err := marshalOptionalTx(t.AcceptanceTransaction)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO custody_transfers (
			id, batch_id,
			from_custodian, to_custodian,
			status, initiated_at, expires_at,
			accepted_at, acceptance_transaction,
			rejected_at, rejection_reason,
			data, signed_transaction
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`,
		t.ID,
		t.BatchID,
		t.FromCustodian,
		t.ToCustodian,
		string(t.Status),
		t.InitiatedAt,
		t.ExpiresAt,
		toNullTime(t.AcceptedAt),
		acc,
		toNullTime(t.RejectedAt),
		t.RejectionReason,
		data,
		tx,
	)
	return err
}

func (r *CustodyRepo) ResolveTransfer(ctx context.Context, t custody.TransferRecord) error {
	return resolveTransfer(ctx, r.db, t)
}

func (r *CustodyRepo) CompleteTransfer(ctx context.Context, t custody.TransferRecord, superseded *custody.CustodyRecord, next custody.CustodyRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := resolveTransfer(ctx, tx, t); err != nil {
		return err
	}

	if superseded != nil {
		res, err := tx.ExecContext(ctx, `
			UPDATE custody_records
			SET
				status = $2,
				transferred_at = $3,
				transferred_to = $4
			WHERE id = $1 AND status = 'ACTIVE'
		`,
			superseded.ID,
			string(superseded.Status),
			toNullTime(superseded.TransferredAt),
			superseded.TransferredTo,
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("custody record %s is no longer active", superseded.ID)
		}
	}

	if err := insertCustody(ctx, tx, next); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *CustodyRepo) ListCustodyByBatch(ctx context.Context, batchID string) ([]custody.CustodyRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+custodyColumns+`
		FROM custody_records
		WHERE batch_id = $1
		ORDER BY started_at ASC, seq ASC
	`, strings.TrimSpace(batchID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]custody.CustodyRecord, 0)
	for rows.Next() {
		c, err := scanCustody(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *CustodyRepo) ListTransfersByBatch(ctx context.Context, batchID string) ([]custody.TransferRecord, error) {
	return r.listTransfers(ctx, `WHERE batch_id = $1`, strings.TrimSpace(batchID))
}

func (r *CustodyRepo) ListTransfersByRecipient(ctx context.Context, custodian string) ([]custody.TransferRecord, error) {
	return r.listTransfers(ctx, `WHERE to_custodian = $1`, strings.TrimSpace(custodian))
}

func (r *CustodyRepo) ListStalePending(ctx context.Context, before time.Time) ([]custody.TransferRecord, error) {
	return r.listTransfers(ctx, `WHERE status = 'PENDING_ACCEPTANCE' AND expires_at < $1`, before)
}

func (r *CustodyRepo) listTransfers(ctx context.Context, where string, args ...any) ([]custody.TransferRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+transferColumns+`
		FROM custody_transfers
		`+where+`
		ORDER BY initiated_at ASC, seq ASC
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]custody.TransferRecord, 0)
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func insertCustody(ctx context.Context, db execer, rec custody.CustodyRecord) error {
	conditions, err := marshalOptionalMap(rec.Conditions)
	if err != nil {
		return err
	}
	tx, err := json.Marshal(rec.SignedTransaction)
	if err != nil {
		return fmt.Errorf("marshal transaction: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO custody_records (
			id, batch_id,
			current_custodian, previous_custodian,
			status, started_at,
			transferred_at, transferred_to,
			transfer_id, location, conditions,
			signed_transaction
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`,
		rec.ID,
		rec.BatchID,
		rec.CurrentCustodian,
		rec.PreviousCustodian,
		string(rec.Status),
		rec.StartedAt,
		toNullTime(rec.TransferredAt),
		rec.TransferredTo,
		rec.TransferID,
		rec.Location,
		conditions,
		tx,
	)
	if isUniqueViolation(err, "custody_records_one_active_idx") {
		return custody.ErrActiveCustodyExists
	}
	return err
}

// resolveTransfer solo toca transfers que siguen pendientes.
func resolveTransfer(ctx context.Context, db execer, t custody.TransferRecord) error {
	acc, err := marshalOptionalTx(t.AcceptanceTransaction)
	if err != nil {
		return err
	}

	res, err := db.ExecContext(ctx, `
		UPDATE custody_transfers
		SET
			status = $2,
			accepted_at = $3,
			acceptance_transaction = $4,
			rejected_at = $5,
			rejection_reason = $6
		WHERE id = $1 AND status = 'PENDING_ACCEPTANCE'
	`,
		t.ID,
		string(t.Status),
		toNullTime(t.AcceptedAt),
		acc,
		toNullTime(t.RejectedAt),
		t.RejectionReason,
	)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return custody.ErrRecordNotFound
	}
	return nil
}

func scanCustody(s scanner) (custody.CustodyRecord, error) {
	var (
		c             custody.CustodyRecord
		status        string
		transferredAt sql.NullTime
		conditions    []byte
		tx            []byte
	)

	if err := s.Scan(
		&c.ID,
		&c.BatchID,
		&c.CurrentCustodian,
		&c.PreviousCustodian,
		&status,
		&c.StartedAt,
		&transferredAt,
		&c.TransferredTo,
		&c.TransferID,
		&c.Location,
		&conditions,
		&tx,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return custody.CustodyRecord{}, custody.ErrRecordNotFound
		}
		return custody.CustodyRecord{}, err
	}

	c.Status = custody.CustodyStatus(status)
	c.TransferredAt = fromNullTime(transferredAt)
	if len(conditions) > 0 {
		if err := signing.Unmarshal(conditions, &c.Conditions); err != nil {
			return custody.CustodyRecord{}, fmt.Errorf("decode conditions: %w", err)
		}
	}
	if err := signing.Unmarshal(tx, &c.SignedTransaction); err != nil {
		return custody.CustodyRecord{}, fmt.Errorf("decode transaction: %w", err)
	}
	return c, nil
}

func scanTransfer(s scanner) (custody.TransferRecord, error) {
	var (
		t          custody.TransferRecord
		status     string
		acceptedAt sql.NullTime
		rejectedAt sql.NullTime
		acc        []byte
		data       []byte
		tx         []byte
	)

	if err := s.Scan(
		&t.ID,
		&t.BatchID,
		&t.FromCustodian,
		&t.ToCustodian,
		&status,
		&t.InitiatedAt,
		&t.ExpiresAt,
		&acceptedAt,
		&acc,
		&rejectedAt,
		&t.RejectionReason,
		&data,
		&tx,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return custody.TransferRecord{}, custody.ErrRecordNotFound
		}
		return custody.TransferRecord{}, err
	}

	t.Status = custody.TransferStatus(status)
	t.AcceptedAt = fromNullTime(acceptedAt)
	t.RejectedAt = fromNullTime(rejectedAt)

	var d transferDataRow
	if err := signing.Unmarshal(data, &d); err != nil {
		return custody.TransferRecord{}, fmt.Errorf("decode transfer data: %w", err)
	}
	t.Data = custody.TransferData(d)

	if err := signing.Unmarshal(tx, &t.SignedTransaction); err != nil {
		return custody.TransferRecord{}, fmt.Errorf("decode transaction: %w", err)
	}
	if len(acc) > 0 {
		var a signing.Transaction
		if err := signing.Unmarshal(acc, &a); err != nil {
			return custody.TransferRecord{}, fmt.Errorf("decode acceptance: %w", err)
		}
		t.AcceptanceTransaction = &a
	}
	return t, nil
}

// marshalOptionalMap devuelve nil (NULL) para un map nil.
func marshalOptionalMap(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal map: %w", err)
	}
	return b, nil
}

func marshalOptionalTx(tx *signing.Transaction) ([]byte, error) {
	if tx == nil {
		return nil, nil
	}
	b, err := json.Marshal(tx)
	if err != nil {
		return nil, fmt.Errorf("marshal transaction: %w", err)
	}
	return b, nil
}
