package custody

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestHistory_ThreeCustodianChain(t *testing.T) {
	f := newFixture(t)
	f.mustCreate(t, "B1", "A")

	f.advance(time.Hour)
	t1 := f.mustInitiate(t, "A", "B", "B1")
	f.advance(time.Hour)
	f.mustAccept(t, t1.ID, "B")

	f.advance(time.Hour)
	t2 := f.mustInitiate(t, "B", "C", "B1")
	f.advance(time.Hour)
	f.mustAccept(t, t2.ID, "C")

	h, err := f.svc.GetCustodyHistory(context.Background(), "B1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if h.TotalCustodians != 3 || h.TotalTransfers != 2 || h.CurrentCustodian != "C" {
		t.Fatalf("unexpected history: custodians=%d transfers=%d current=%q", h.TotalCustodians, h.TotalTransfers, h.CurrentCustodian)
	}
	for i, want := range []string{"A", "B", "C"} {
		if h.CustodyRecords[i].CurrentCustodian != want {
			t.Fatalf("record %d: expected %s, got %s", i, want, h.CustodyRecords[i].CurrentCustodian)
		}
	}

	v, err := f.svc.VerifyCustodyChain(context.Background(), "B1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !v.IsChainIntact || v.IntegrityScore != 100 || v.Gaps != 0 || len(v.Issues) != 0 {
		t.Fatalf("expected intact chain, got %+v", v)
	}
	if len(v.CustodyChain) != 3 || v.CustodyChain[2].Status != CustodyStatusActive {
		t.Fatalf("unexpected chain links: %+v", v.CustodyChain)
	}
}

func TestHistory_UnknownBatchIsEmpty(t *testing.T) {
	f := newFixture(t)

	h, err := f.svc.GetCustodyHistory(context.Background(), "nope")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if h.CurrentCustodian != "" || h.TotalCustodians != 0 || h.TotalTransfers != 0 {
		t.Fatalf("expected empty history, got %+v", h)
	}

	v, err := f.svc.VerifyCustodyChain(context.Background(), "nope")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !v.IsChainIntact || v.IntegrityScore != 100 {
		t.Fatalf("empty batch must verify as intact, got %+v", v)
	}
}

func TestHistory_MissingBatchID(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetCustodyHistory(context.Background(), "  ")
	assertKind(t, err, KindMissingParameter)

	_, err = f.svc.VerifyCustodyChain(context.Background(), "")
	assertKind(t, err, KindMissingParameter)
}

func TestHistory_ExpiredPendingCountsAsIncomplete(t *testing.T) {
	f := newFixture(t)
	f.mustCreate(t, "B1", "A")
	tr := f.mustInitiate(t, "A", "B", "B1")

	f.advance(25 * time.Hour)

	v, err := f.svc.VerifyCustodyChain(context.Background(), "B1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if v.IsChainIntact || v.IncompleteTransfers != 1 || v.IntegrityScore != 90 {
		t.Fatalf("expected 1 incomplete and score 90, got %+v", v)
	}
	if len(v.Issues) != 1 || v.Issues[0].Type != IssueIncompleteTransfer || v.Issues[0].TransferID != tr.ID {
		t.Fatalf("unexpected issues: %+v", v.Issues)
	}

	// la verificación no muta el ledger
	stored, _ := f.repo.FindTransfer(context.Background(), tr.ID)
	if stored.Status != TransferStatusPending {
		t.Fatalf("verify must not change status, got %s", stored.Status)
	}
}

func TestHistory_RejectedIsReportedButIntact(t *testing.T) {
	f := newFixture(t)
	f.mustCreate(t, "B1", "A")
	tr := f.mustInitiate(t, "A", "B", "B1")
	if _, err := f.svc.RejectTransfer(context.Background(), tr.ID, "B", "no"); err != nil {
		t.Fatalf("reject: %v", err)
	}

	v, err := f.svc.VerifyCustodyChain(context.Background(), "B1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !v.IsChainIntact || v.IntegrityScore != 100 || v.RejectedTransfers != 1 {
		t.Fatalf("expected intact chain with 1 rejected, got %+v", v)
	}
	if len(v.Issues) != 1 || v.Issues[0].Type != IssueRejectedTransfer {
		t.Fatalf("unexpected issues: %+v", v.Issues)
	}
}

func TestVerifyChain_DetectsGap(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	transferred := start.Add(time.Hour)

	records := []CustodyRecord{
		{ID: "c1", CurrentCustodian: "A", Status: CustodyStatusTransferred, StartedAt: start, TransferredAt: &transferred, TransferredTo: "B"},
		{ID: "c2", CurrentCustodian: "X", Status: CustodyStatusActive, StartedAt: transferred},
	}

	v := verifyChain("B1", records, nil, start.Add(2*time.Hour))

	if v.IsChainIntact || v.Gaps != 1 || v.IntegrityScore != 80 {
		t.Fatalf("expected 1 gap and score 80, got %+v", v)
	}
	if v.Issues[0].Type != IssueCustodyGap || v.Issues[0].CustodyID != "c2" {
		t.Fatalf("unexpected issue: %+v", v.Issues[0])
	}
}

func TestVerifyChain_ActivePredecessorIsAGap(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	// dos registros sin transferencia entre ellos
	records := []CustodyRecord{
		{ID: "c1", CurrentCustodian: "A", Status: CustodyStatusActive, StartedAt: start},
		{ID: "c2", CurrentCustodian: "B", Status: CustodyStatusActive, StartedAt: start.Add(time.Minute)},
	}

	v := verifyChain("B1", records, nil, start)
	if v.Gaps != 1 {
		t.Fatalf("expected 1 gap, got %d", v.Gaps)
	}
}

func TestVerifyChain_ScoreGrid(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	now := start.Add(72 * time.Hour)

	for gaps := 0; gaps <= 5; gaps++ {
		for incomplete := 0; incomplete <= 5; incomplete++ {
			records, transfers := syntheticChain(start, gaps, incomplete)

			v := verifyChain("B1", records, transfers, now)

			want := 100 - 20*gaps - 10*incomplete
			if want < 0 {
				want = 0
			}
			if v.Gaps != gaps || v.IncompleteTransfers != incomplete {
				t.Fatalf("gaps=%d incomplete=%d: counted gaps=%d incomplete=%d", gaps, incomplete, v.Gaps, v.IncompleteTransfers)
			}
			if v.IntegrityScore != want {
				t.Fatalf("gaps=%d incomplete=%d: score %d, want %d", gaps, incomplete, v.IntegrityScore, want)
			}
			if v.IsChainIntact != (gaps == 0 && incomplete == 0) {
				t.Fatalf("gaps=%d incomplete=%d: intact=%v", gaps, incomplete, v.IsChainIntact)
			}
			if v.RejectedTransfers != 2 {
				t.Fatalf("gaps=%d incomplete=%d: rejected=%d, want 2", gaps, incomplete, v.RejectedTransfers)
			}
			if len(v.Issues) != gaps+incomplete+2 {
				t.Fatalf("gaps=%d incomplete=%d: %d issues", gaps, incomplete, len(v.Issues))
			}
			if IntegrityScore(gaps, incomplete) != want {
				t.Fatalf("IntegrityScore(%d,%d) disagrees with verifyChain", gaps, incomplete)
			}
		}
	}
}

// syntheticChain arma seis registros con los primeros `gaps` eslabones rotos
// y `incomplete` transfers pendientes vencidos, más dos rechazados, uno
// completado y uno pendiente vigente que no deben contar.
func syntheticChain(start time.Time, gaps, incomplete int) ([]CustodyRecord, []TransferRecord) {
	const n = 6
	custodian := func(i int) string { return fmt.Sprintf("actor-%d", i) }

	records := make([]CustodyRecord, 0, n)
	for i := 0; i < n; i++ {
		rec := CustodyRecord{
			ID:               fmt.Sprintf("c%d", i),
			BatchID:          "B1",
			CurrentCustodian: custodian(i),
			Status:           CustodyStatusActive,
			StartedAt:        start.Add(time.Duration(i) * time.Hour),
		}
		if i < n-1 {
			at := rec.StartedAt.Add(time.Hour)
			rec.Status = CustodyStatusTransferred
			rec.TransferredAt = &at
			rec.TransferredTo = custodian(i + 1)
			if i < gaps {
				rec.TransferredTo = "somebody-else"
			}
		}
		records = append(records, rec)
	}

	transfers := make([]TransferRecord, 0, incomplete+4)
	add := func(id string, status TransferStatus, expires time.Time) {
		transfers = append(transfers, TransferRecord{
			ID:            id,
			BatchID:       "B1",
			FromCustodian: custodian(n - 1),
			ToCustodian:   "next",
			Status:        status,
			InitiatedAt:   start,
			ExpiresAt:     expires,
		})
	}
	for i := 0; i < incomplete; i++ {
		add(fmt.Sprintf("stale-%d", i), TransferStatusPending, start.Add(24*time.Hour))
	}
	add("rejected-1", TransferStatusRejected, start.Add(24*time.Hour))
	add("rejected-2", TransferStatusRejected, start.Add(24*time.Hour))
	add("completed", TransferStatusCompleted, start.Add(24*time.Hour))
	add("fresh", TransferStatusPending, start.Add(100*time.Hour))

	return records, transfers
}

func TestSortCustody_StableOnTies(t *testing.T) {
	ts := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	items := []CustodyRecord{
		{ID: "late", StartedAt: ts.Add(time.Hour)},
		{ID: "first", StartedAt: ts},
		{ID: "second", StartedAt: ts},
	}

	sortCustody(items)

	got := []string{items[0].ID, items[1].ID, items[2].ID}
	want := []string{"first", "second", "late"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected order %v", got)
		}
	}
}
