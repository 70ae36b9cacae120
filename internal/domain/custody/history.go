package custody

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Pesos del integrity score.
const (
	gapPenalty        = 20
	incompletePenalty = 10
	maxIntegrityScore = 100
)

type CustodyHistory struct {
	BatchID          string
	CustodyRecords   []CustodyRecord
	TransferHistory  []TransferRecord
	CurrentCustodian string // vacío si el lote nunca tuvo custodia
	TotalCustodians  int
	TotalTransfers   int
}

type IssueType string

const (
	IssueCustodyGap         IssueType = "CUSTODY_GAP"
	IssueIncompleteTransfer IssueType = "INCOMPLETE_TRANSFER"
	IssueRejectedTransfer   IssueType = "REJECTED_TRANSFER"
)

type ChainIssue struct {
	Type        IssueType
	Description string
	CustodyID   string
	TransferID  string
}

// ChainLink es la proyección simplificada de un CustodyRecord.
type ChainLink struct {
	Custodian string
	StartDate time.Time
	Status    CustodyStatus
}

type ChainVerification struct {
	BatchID             string
	IsChainIntact       bool
	IntegrityScore      int
	Gaps                int
	IncompleteTransfers int
	RejectedTransfers   int
	Issues              []ChainIssue
	CustodyChain        []ChainLink
}

// GetCustodyHistory reconstruye la historia de custodia de un lote.
// Es una lectura sin lock: puede ver un estado intermedio de un accept
// concurrente.
func (s *Service) GetCustodyHistory(ctx context.Context, batchID string) (h CustodyHistory, err error) {
	defer s.guard("get_custody_history", &err)

	batchID = strings.TrimSpace(batchID)
	if batchID == "" {
		return CustodyHistory{}, missingParameters([]string{"batchId"})
	}

	records, transfers, err := s.loadBatch(ctx, batchID)
	if err != nil {
		return CustodyHistory{}, err
	}

	h = CustodyHistory{
		BatchID:         batchID,
		CustodyRecords:  records,
		TransferHistory: transfers,
		TotalCustodians: len(records),
		TotalTransfers:  len(transfers),
	}
	for _, r := range records {
		if r.Status == CustodyStatusActive {
			h.CurrentCustodian = r.CurrentCustodian
			break
		}
	}
	return h, nil
}

// VerifyCustodyChain revisa continuidad de la cadena y transfers colgados.
// No muta el ledger.
func (s *Service) VerifyCustodyChain(ctx context.Context, batchID string) (v ChainVerification, err error) {
	defer s.guard("verify_custody_chain", &err)

	batchID = strings.TrimSpace(batchID)
	if batchID == "" {
		return ChainVerification{}, missingParameters([]string{"batchId"})
	}

	records, transfers, err := s.loadBatch(ctx, batchID)
	if err != nil {
		return ChainVerification{}, err
	}

	return verifyChain(batchID, records, transfers, s.now()), nil
}

// verifyChain asume records y transfers ya ordenados.
func verifyChain(batchID string, records []CustodyRecord, transfers []TransferRecord, now time.Time) ChainVerification {
	v := ChainVerification{
		BatchID:      batchID,
		Issues:       []ChainIssue{},
		CustodyChain: make([]ChainLink, 0, len(records)),
	}

	for i, curr := range records {
		v.CustodyChain = append(v.CustodyChain, ChainLink{
			Custodian: curr.CurrentCustodian,
			StartDate: curr.StartedAt,
			Status:    curr.Status,
		})
		if i == 0 {
			continue
		}
		prev := records[i-1]
		if prev.TransferredTo != curr.CurrentCustodian {
			v.Gaps++
			v.Issues = append(v.Issues, ChainIssue{
				Type:        IssueCustodyGap,
				Description: fmt.Sprintf("custody gap between %s and %s", displayActor(prev.TransferredTo), curr.CurrentCustodian),
				CustodyID:   curr.ID,
			})
		}
	}

	for _, t := range transfers {
		switch {
		case t.Status == TransferStatusPending && t.Expired(now):
			v.IncompleteTransfers++
			v.Issues = append(v.Issues, ChainIssue{
				Type:        IssueIncompleteTransfer,
				Description: fmt.Sprintf("transfer from %s to %s expired without resolution", t.FromCustodian, t.ToCustodian),
				TransferID:  t.ID,
			})
		case t.Status == TransferStatusRejected:
			v.RejectedTransfers++
			v.Issues = append(v.Issues, ChainIssue{
				Type:        IssueRejectedTransfer,
				Description: fmt.Sprintf("transfer from %s to %s was rejected", t.FromCustodian, t.ToCustodian),
				TransferID:  t.ID,
			})
		}
	}

	v.IsChainIntact = v.Gaps == 0 && v.IncompleteTransfers == 0
	v.IntegrityScore = IntegrityScore(v.Gaps, v.IncompleteTransfers)
	return v
}

// IntegrityScore = max(0, 100 - 20*gaps - 10*incomplete).
func IntegrityScore(gaps, incomplete int) int {
	score := maxIntegrityScore - gapPenalty*gaps - incompletePenalty*incomplete
	if score < 0 {
		return 0
	}
	return score
}

func (s *Service) loadBatch(ctx context.Context, batchID string) ([]CustodyRecord, []TransferRecord, error) {
	records, err := s.repo.ListCustodyByBatch(ctx, batchID)
	if err != nil {
		return nil, nil, operationFailed(err)
	}
	transfers, err := s.repo.ListTransfersByBatch(ctx, batchID)
	if err != nil {
		return nil, nil, operationFailed(err)
	}
	sortCustody(records)
	sortTransfers(transfers)
	return records, transfers, nil
}

func sortCustody(items []CustodyRecord) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].StartedAt.Before(items[j].StartedAt)
	})
}

func sortTransfers(items []TransferRecord) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].InitiatedAt.Before(items[j].InitiatedAt)
	})
}

func displayActor(id string) string {
	if id == "" {
		return "(none)"
	}
	return id
}
