package custody

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"custody-ledger/internal/middleware"
	"custody-ledger/internal/ports/credentials"
	"custody-ledger/internal/ports/signing"

	"github.com/go-chi/chi/v5"
)

func RegisterRoutes(r chi.Router, svc *Service, creds credentials.Store) {
	r.Route("/batches/{batchID}", func(br chi.Router) {
		br.Post("/custody", createCustodyHandler(svc))
		br.Get("/custody/history", custodyHistoryHandler(svc))
		br.Get("/custody/verify", verifyChainHandler(svc))
		br.Post("/transfers", initiateTransferHandler(svc))
	})

	r.Route("/transfers/{transferID}", func(tr chi.Router) {
		tr.Get("/", getTransferHandler(svc))
		tr.Post("/accept", acceptTransferHandler(svc))
		tr.Post("/reject", rejectTransferHandler(svc))
		tr.Get("/verify", verifySignaturesHandler(svc))
	})

	// Bandeja del custodio: transfers dirigidos a mí
	r.Get("/me/transfers", listMyTransfersHandler(svc))
	r.Put("/me/credential", registerCredentialHandler(creds))
}

// envelope es el formato común {success, data, error}.
type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Kind          Kind     `json:"kind"`
	Message       string   `json:"message"`
	MissingFields []string `json:"missing_fields,omitempty"`
}

type createCustodyRequest struct {
	Secret     string         `json:"secret"`
	Location   string         `json:"location"`
	Conditions map[string]any `json:"conditions"`
}

type initiateTransferRequest struct {
	ToCustodian   string         `json:"to_custodian"`
	Secret        string         `json:"secret"`
	TransferType  string         `json:"transfer_type"`
	Reason        string         `json:"reason"`
	QualityChecks map[string]any `json:"quality_checks"`
	Conditions    map[string]any `json:"conditions"`
	Location      string         `json:"location"`
}

type acceptTransferRequest struct {
	Secret              string         `json:"secret"`
	Conditions          map[string]any `json:"conditions"`
	QualityVerification map[string]any `json:"quality_verification"`
	Location            string         `json:"location"`
}

type rejectTransferRequest struct {
	Reason string `json:"reason"`
}

type registerCredentialRequest struct {
	Credential string `json:"credential"`
}

type custodyResponse struct {
	ID                string              `json:"id"`
	BatchID           string              `json:"batch_id"`
	CurrentCustodian  string              `json:"current_custodian"`
	PreviousCustodian string              `json:"previous_custodian,omitempty"`
	Status            CustodyStatus       `json:"status"`
	CustodyStartDate  time.Time           `json:"custody_start_date"`
	TransferredAt     *time.Time          `json:"transferred_at,omitempty"`
	TransferredTo     string              `json:"transferred_to,omitempty"`
	TransferID        string              `json:"transfer_id,omitempty"`
	Location          string              `json:"location,omitempty"`
	Conditions        map[string]any      `json:"conditions,omitempty"`
	TransactionID     string              `json:"transaction_id"`
	SignedTransaction signing.Transaction `json:"signed_transaction"`
}

type transferResponse struct {
	ID                    string               `json:"id"`
	BatchID               string               `json:"batch_id"`
	FromCustodian         string               `json:"from_custodian"`
	ToCustodian           string               `json:"to_custodian"`
	Status                TransferStatus       `json:"status"`
	InitiatedAt           time.Time            `json:"initiated_at"`
	ExpiresAt             time.Time            `json:"expires_at"`
	AcceptedAt            *time.Time           `json:"accepted_at,omitempty"`
	RejectedAt            *time.Time           `json:"rejected_at,omitempty"`
	RejectionReason       string               `json:"rejection_reason,omitempty"`
	TransferType          string               `json:"transfer_type,omitempty"`
	Reason                string               `json:"reason,omitempty"`
	QualityChecks         map[string]any       `json:"quality_checks,omitempty"`
	Conditions            map[string]any       `json:"conditions,omitempty"`
	Location              string               `json:"location,omitempty"`
	TransactionID         string               `json:"transaction_id"`
	SignedTransaction     signing.Transaction  `json:"signed_transaction"`
	AcceptanceTransaction *signing.Transaction `json:"acceptance_transaction,omitempty"`
}

type acceptResponse struct {
	TransferID   string           `json:"transfer_id"`
	BatchID      string           `json:"batch_id"`
	NewCustodian string           `json:"new_custodian"`
	CustodyID    string           `json:"custody_id"`
	Status       TransferStatus   `json:"status"`
	Transfer     transferResponse `json:"transfer"`
}

type historyResponse struct {
	BatchID          string             `json:"batch_id"`
	CustodyRecords   []custodyResponse  `json:"custody_records"`
	TransferHistory  []transferResponse `json:"transfer_history"`
	CurrentCustodian *string            `json:"current_custodian"`
	TotalCustodians  int                `json:"total_custodians"`
	TotalTransfers   int                `json:"total_transfers"`
}

type chainLinkResponse struct {
	Custodian string        `json:"custodian"`
	StartDate time.Time     `json:"start_date"`
	Status    CustodyStatus `json:"status"`
}

type chainIssueResponse struct {
	Type        IssueType `json:"type"`
	Description string    `json:"description"`
	CustodyID   string    `json:"custody_id,omitempty"`
	TransferID  string    `json:"transfer_id,omitempty"`
}

type verificationResponse struct {
	BatchID             string               `json:"batch_id"`
	IsChainIntact       bool                 `json:"is_chain_intact"`
	IntegrityScore      int                  `json:"integrity_score"`
	Gaps                int                  `json:"gaps"`
	IncompleteTransfers int                  `json:"incomplete_transfers"`
	RejectedTransfers   int                  `json:"rejected_transfers"`
	Issues              []chainIssueResponse `json:"issues"`
	CustodyChain        []chainLinkResponse  `json:"custody_chain"`
}

type signatureCheckResponse struct {
	TransferID        string `json:"transfer_id"`
	InitiationValid   bool   `json:"initiation_valid"`
	AcceptanceChecked bool   `json:"acceptance_checked"`
	AcceptanceValid   bool   `json:"acceptance_valid"`
}

// createCustodyHandler godoc
// @Summary Crear custodia inicial
// @Description Registra al actor autenticado como primer custodio del lote. Falla con DuplicateCustodyError si el lote ya tiene un custodio activo.
// @Tags custody
// @Accept json
// @Produce json
// @Param X-Debug-Actor-ID header string false "Solo en modo dev, ID del actor"
// @Param Authorization header string false "Bearer token en producción"
// @Param batchID path string true "ID del lote"
// @Param payload body createCustodyRequest true "Secreto de firma y datos de custodia"
// @Success 201 {object} envelope
// @Failure 400 {object} envelope
// @Failure 401 {object} envelope
// @Router /batches/{batchID}/custody [post]
func createCustodyHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, ok := actorFrom(w, r)
		if !ok {
			return
		}

		var req createCustodyRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		rec, err := svc.CreateInitialCustody(r.Context(), chi.URLParam(r, "batchID"), actorID, req.Secret, CustodyData{
			Location:   req.Location,
			Conditions: req.Conditions,
		})
		if err != nil {
			writeError(w, err)
			return
		}

		writeData(w, http.StatusCreated, toCustodyResponse(rec))
	}
}

// initiateTransferHandler godoc
// @Summary Iniciar transferencia de custodia
// @Description El custodio activo propone transferir el lote a otro actor. El transfer vence a las 24h si no se acepta.
// @Tags custody
// @Accept json
// @Produce json
// @Param X-Debug-Actor-ID header string false "Solo en modo dev, ID del actor"
// @Param Authorization header string false "Bearer token en producción"
// @Param batchID path string true "ID del lote"
// @Param payload body initiateTransferRequest true "Destinatario, secreto y metadata del transfer"
// @Success 201 {object} envelope
// @Failure 400 {object} envelope
// @Failure 401 {object} envelope
// @Router /batches/{batchID}/transfers [post]
func initiateTransferHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, ok := actorFrom(w, r)
		if !ok {
			return
		}

		var req initiateTransferRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		t, err := svc.InitiateTransfer(r.Context(), actorID, req.ToCustodian, chi.URLParam(r, "batchID"), req.Secret, TransferData{
			TransferType:  strings.TrimSpace(req.TransferType),
			Reason:        strings.TrimSpace(req.Reason),
			QualityChecks: req.QualityChecks,
			Conditions:    req.Conditions,
			Location:      strings.TrimSpace(req.Location),
		})
		if err != nil {
			writeError(w, err)
			return
		}

		writeData(w, http.StatusCreated, toTransferResponse(t))
	}
}

// acceptTransferHandler godoc
// @Summary Aceptar transferencia
// @Description El destinatario acepta un transfer pendiente. Si venció, el transfer queda EXPIRED y se responde TransferExpiredError.
// @Tags custody
// @Accept json
// @Produce json
// @Param X-Debug-Actor-ID header string false "Solo en modo dev, ID del actor"
// @Param Authorization header string false "Bearer token en producción"
// @Param transferID path string true "ID del transfer"
// @Param payload body acceptTransferRequest true "Secreto y datos de recepción"
// @Success 200 {object} envelope
// @Failure 400 {object} envelope
// @Failure 401 {object} envelope
// @Router /transfers/{transferID}/accept [post]
func acceptTransferHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, ok := actorFrom(w, r)
		if !ok {
			return
		}

		var req acceptTransferRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		res, err := svc.AcceptTransfer(r.Context(), chi.URLParam(r, "transferID"), actorID, req.Secret, AcceptanceData{
			Conditions:          req.Conditions,
			QualityVerification: req.QualityVerification,
			Location:            req.Location,
		})
		if err != nil {
			writeError(w, err)
			return
		}

		writeData(w, http.StatusOK, acceptResponse{
			TransferID:   res.Transfer.ID,
			BatchID:      res.Transfer.BatchID,
			NewCustodian: res.Custody.CurrentCustodian,
			CustodyID:    res.Custody.ID,
			Status:       res.Transfer.Status,
			Transfer:     toTransferResponse(res.Transfer),
		})
	}
}

// rejectTransferHandler godoc
// @Summary Rechazar transferencia
// @Description El destinatario rechaza un transfer pendiente. La custodia queda con el remitente.
// @Tags custody
// @Accept json
// @Produce json
// @Param X-Debug-Actor-ID header string false "Solo en modo dev, ID del actor"
// @Param Authorization header string false "Bearer token en producción"
// @Param transferID path string true "ID del transfer"
// @Param payload body rejectTransferRequest false "Motivo del rechazo"
// @Success 200 {object} envelope
// @Failure 400 {object} envelope
// @Failure 401 {object} envelope
// @Router /transfers/{transferID}/reject [post]
func rejectTransferHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, ok := actorFrom(w, r)
		if !ok {
			return
		}

		// body opcional: vacío (aun chunked) equivale a sin motivo
		var req rejectTransferRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusBadRequest, envelope{
				Success: false,
				Error:   &errorBody{Kind: "InvalidJSON", Message: "invalid json"},
			})
			return
		}

		t, err := svc.RejectTransfer(r.Context(), chi.URLParam(r, "transferID"), actorID, req.Reason)
		if err != nil {
			writeError(w, err)
			return
		}

		writeData(w, http.StatusOK, toTransferResponse(t))
	}
}

// getTransferHandler godoc
// @Summary Obtener transferencia
// @Tags custody
// @Produce json
// @Param transferID path string true "ID del transfer"
// @Success 200 {object} envelope
// @Failure 400 {object} envelope
// @Router /transfers/{transferID} [get]
func getTransferHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := actorFrom(w, r); !ok {
			return
		}

		t, err := svc.GetTransfer(r.Context(), chi.URLParam(r, "transferID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeData(w, http.StatusOK, toTransferResponse(t))
	}
}

// custodyHistoryHandler godoc
// @Summary Historia de custodia de un lote
// @Tags custody
// @Produce json
// @Param batchID path string true "ID del lote"
// @Success 200 {object} envelope
// @Failure 400 {object} envelope
// @Router /batches/{batchID}/custody/history [get]
func custodyHistoryHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := actorFrom(w, r); !ok {
			return
		}

		h, err := svc.GetCustodyHistory(r.Context(), chi.URLParam(r, "batchID"))
		if err != nil {
			writeError(w, err)
			return
		}

		out := historyResponse{
			BatchID:         h.BatchID,
			CustodyRecords:  make([]custodyResponse, 0, len(h.CustodyRecords)),
			TransferHistory: make([]transferResponse, 0, len(h.TransferHistory)),
			TotalCustodians: h.TotalCustodians,
			TotalTransfers:  h.TotalTransfers,
		}
		if h.CurrentCustodian != "" {
			cc := h.CurrentCustodian
			out.CurrentCustodian = &cc
		}
		for _, rec := range h.CustodyRecords {
			out.CustodyRecords = append(out.CustodyRecords, toCustodyResponse(rec))
		}
		for _, t := range h.TransferHistory {
			out.TransferHistory = append(out.TransferHistory, toTransferResponse(t))
		}
		writeData(w, http.StatusOK, out)
	}
}

// verifyChainHandler godoc
// @Summary Verificar cadena de custodia
// @Description Detecta huecos en la cadena y transfers vencidos sin resolver. integrity_score = max(0, 100 - 20*gaps - 10*incompletos).
// @Tags custody
// @Produce json
// @Param batchID path string true "ID del lote"
// @Success 200 {object} envelope
// @Failure 400 {object} envelope
// @Router /batches/{batchID}/custody/verify [get]
func verifyChainHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := actorFrom(w, r); !ok {
			return
		}

		v, err := svc.VerifyCustodyChain(r.Context(), chi.URLParam(r, "batchID"))
		if err != nil {
			writeError(w, err)
			return
		}

		out := verificationResponse{
			BatchID:             v.BatchID,
			IsChainIntact:       v.IsChainIntact,
			IntegrityScore:      v.IntegrityScore,
			Gaps:                v.Gaps,
			IncompleteTransfers: v.IncompleteTransfers,
			RejectedTransfers:   v.RejectedTransfers,
			Issues:              make([]chainIssueResponse, 0, len(v.Issues)),
			CustodyChain:        make([]chainLinkResponse, 0, len(v.CustodyChain)),
		}
		for _, is := range v.Issues {
			out.Issues = append(out.Issues, chainIssueResponse(is))
		}
		for _, l := range v.CustodyChain {
			out.CustodyChain = append(out.CustodyChain, chainLinkResponse(l))
		}
		writeData(w, http.StatusOK, out)
	}
}

// verifySignaturesHandler godoc
// @Summary Verificar firmas de un transfer
// @Description Verifica la transacción de inicio (y la de aceptación, si existe) contra las credenciales públicas registradas.
// @Tags custody
// @Produce json
// @Param transferID path string true "ID del transfer"
// @Success 200 {object} envelope
// @Failure 400 {object} envelope
// @Failure 500 {object} envelope
// @Router /transfers/{transferID}/verify [get]
func verifySignaturesHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := actorFrom(w, r); !ok {
			return
		}

		c, err := svc.VerifyTransferSignatures(r.Context(), chi.URLParam(r, "transferID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeData(w, http.StatusOK, signatureCheckResponse(c))
	}
}

// listMyTransfersHandler godoc
// @Summary Transfers dirigidos a mí
// @Tags custody
// @Produce json
// @Param status query string false "CSV de estados (ej: PENDING_ACCEPTANCE,EXPIRED)"
// @Success 200 {object} envelope
// @Failure 401 {object} envelope
// @Router /me/transfers [get]
func listMyTransfersHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, ok := actorFrom(w, r)
		if !ok {
			return
		}

		items, err := svc.ListIncomingTransfers(r.Context(), actorID, parseStatusFilter(r.URL.Query().Get("status"))...)
		if err != nil {
			writeError(w, err)
			return
		}

		out := make([]transferResponse, 0, len(items))
		for _, t := range items {
			out = append(out, toTransferResponse(t))
		}
		writeData(w, http.StatusOK, out)
	}
}

// registerCredentialHandler godoc
// @Summary Registrar credencial pública
// @Description Registra la credencial pública con la que se verifican las transacciones del actor (para ed25519, la public_key hex que devuelve cualquier firma).
// @Tags credentials
// @Accept json
// @Produce json
// @Param payload body registerCredentialRequest true "Credencial pública"
// @Success 200 {object} envelope
// @Failure 400 {object} envelope
// @Router /me/credential [put]
func registerCredentialHandler(creds credentials.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, ok := actorFrom(w, r)
		if !ok {
			return
		}

		var req registerCredentialRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		cred := strings.TrimSpace(req.Credential)
		if cred == "" {
			writeError(w, missingParameters([]string{"credential"}))
			return
		}

		if err := creds.Register(r.Context(), actorID, cred); err != nil {
			writeError(w, operationFailed(err))
			return
		}
		writeData(w, http.StatusOK, map[string]string{"actor_id": actorID, "credential": cred})
	}
}

func toCustodyResponse(c CustodyRecord) custodyResponse {
	return custodyResponse{
		ID:                c.ID,
		BatchID:           c.BatchID,
		CurrentCustodian:  c.CurrentCustodian,
		PreviousCustodian: c.PreviousCustodian,
		Status:            c.Status,
		CustodyStartDate:  c.StartedAt,
		TransferredAt:     c.TransferredAt,
		TransferredTo:     c.TransferredTo,
		TransferID:        c.TransferID,
		Location:          c.Location,
		Conditions:        c.Conditions,
		TransactionID:     c.SignedTransaction.ID,
		SignedTransaction: c.SignedTransaction,
	}
}

func toTransferResponse(t TransferRecord) transferResponse {
	return transferResponse{
		ID:                    t.ID,
		BatchID:               t.BatchID,
		FromCustodian:         t.FromCustodian,
		ToCustodian:           t.ToCustodian,
		Status:                t.Status,
		InitiatedAt:           t.InitiatedAt,
		ExpiresAt:             t.ExpiresAt,
		AcceptedAt:            t.AcceptedAt,
		RejectedAt:            t.RejectedAt,
		RejectionReason:       t.RejectionReason,
		TransferType:          t.Data.TransferType,
		Reason:                t.Data.Reason,
		QualityChecks:         t.Data.QualityChecks,
		Conditions:            t.Data.Conditions,
		Location:              t.Data.Location,
		TransactionID:         t.SignedTransaction.ID,
		SignedTransaction:     t.SignedTransaction,
		AcceptanceTransaction: t.AcceptanceTransaction,
	}
}

func parseStatusFilter(raw string) []TransferStatus {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	out := make([]TransferStatus, 0)
	for _, p := range strings.Split(raw, ",") {
		s := TransferStatus(strings.ToUpper(strings.TrimSpace(p)))
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

func actorFrom(w http.ResponseWriter, r *http.Request) (string, bool) {
	claims, ok := middleware.GetClaims(r.Context())
	if !ok || strings.TrimSpace(claims.ActorID) == "" {
		writeJSON(w, http.StatusUnauthorized, envelope{
			Success: false,
			Error:   &errorBody{Kind: "Unauthorized", Message: "unauthorized"},
		})
		return "", false
	}
	return claims.ActorID, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{
			Success: false,
			Error:   &errorBody{Kind: "InvalidJSON", Message: "invalid json"},
		})
		return false
	}
	return true
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

// writeError mapea el Kind a status: 400 para reglas de negocio,
// 500 para OperationFailed.
func writeError(w http.ResponseWriter, err error) {
	var e *Error
	if !errors.As(err, &e) {
		e = operationFailed(err)
	}

	status := http.StatusBadRequest
	body := &errorBody{Kind: e.Kind, Message: e.Message, MissingFields: e.MissingFields}
	if e.Kind == KindOperationFailed {
		status = http.StatusInternalServerError
		body.Message = e.Error()
	}
	writeJSON(w, status, envelope{Success: false, Error: body})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
