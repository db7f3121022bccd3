package handlers

import (
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"procurahub/db"
	"procurahub/internal/apperror"
	"procurahub/internal/notify"
	"procurahub/internal/rules"
)

type submitQuotationInput struct {
	Amount    decimal.Decimal  `json:"amount" validate:"required"`
	Currency  string           `json:"currency" validate:"required,len=3"`
	TaxType   *string          `json:"taxType"`
	TaxAmount *decimal.Decimal `json:"taxAmount"`
	Notes     *string          `json:"notes"`
}

// SubmitQuotationHandler обрабатывает POST /api/rfqs/{rfqID}/quotations.
// Подать котировку может только приглашённый поставщик; повторная подача
// заменяет прежнюю и возвращает статус в submitted.
func (h *Handler) SubmitQuotationHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	rfqID, err := urlID(chi.URLParam(r, "rfqID"))
	if err != nil {
		writeError(w, err)
		return
	}
	var input submitQuotationInput
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, err)
		return
	}
	if !input.Amount.IsPositive() {
		writeError(w, apperror.Validation("amount must be positive"))
		return
	}

	h.sweepExpiredRFQs(r)
	rfq, err := h.Store.GetRFQ(r.Context(), rfqID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := rules.CanSubmitQuotation(identity.Role, rfq.Status, rfq.Deadline, time.Now()); err != nil {
		writeError(w, err)
		return
	}

	profile, err := h.Store.GetSupplierByUserID(r.Context(), identity.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := h.Store.GetInvitation(r.Context(), rfq.ID, profile.ID); err != nil {
		if apperror.KindOf(err) == apperror.KindNotFound {
			writeError(w, apperror.Forbidden("supplier is not invited to this RFQ"))
			return
		}
		writeError(w, err)
		return
	}

	quotation := db.Quotation{
		RFQID:          rfq.ID,
		SupplierID:     profile.ID,
		SupplierUserID: identity.UserID,
		Amount:         input.Amount,
		Currency:       input.Currency,
		TaxType:        input.TaxType,
		Notes:          input.Notes,
	}
	if input.TaxAmount != nil {
		quotation.TaxAmount = decimal.NewNullDecimal(*input.TaxAmount)
	}
	if err := h.Store.UpsertQuotation(r.Context(), &quotation); err != nil {
		writeError(w, err)
		return
	}

	staff, err := h.Store.ListUsersByRoles(r.Context(), []rules.Role{rules.RoleProcurement, rules.RoleAdmin})
	if err == nil {
		for _, u := range staff {
			subject, body := notify.QuotationSubmitted(u.FullName, profile.CompanyName, rfq.Title)
			h.Notifier.Send(u.Email, subject, body)
		}
	}

	writeJSON(w, http.StatusCreated, quotation)
}

// UploadQuotationDocumentHandler обрабатывает POST
// /api/rfqs/{rfqID}/quotations/{quotationID}/document: поставщик
// прикладывает файл к собственной котировке
func (h *Handler) UploadQuotationDocumentHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	rfqID, err := urlID(chi.URLParam(r, "rfqID"))
	if err != nil {
		writeError(w, err)
		return
	}
	quotationID, err := urlID(chi.URLParam(r, "quotationID"))
	if err != nil {
		writeError(w, err)
		return
	}
	filename := r.URL.Query().Get("filename")
	if filename == "" {
		writeError(w, apperror.Validation("filename query parameter is required"))
		return
	}

	quotation, err := h.Store.GetQuotation(r.Context(), rfqID, quotationID)
	if err != nil {
		writeError(w, err)
		return
	}
	if quotation.SupplierUserID != identity.UserID {
		writeError(w, apperror.Forbidden("only the submitting supplier may attach a document"))
		return
	}
	if quotation.Status != rules.QuotationSubmitted {
		writeError(w, apperror.InvalidState("documents can only be attached while the quotation is submitted"))
		return
	}

	content, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 10<<20))
	if err != nil {
		writeError(w, apperror.Validation("document exceeds the 10 MB limit"))
		return
	}
	if len(content) == 0 {
		writeError(w, apperror.Validation("document body is empty"))
		return
	}
	ref, err := h.Docs.Save("quotations", filename, content)
	if err != nil {
		writeError(w, err)
		return
	}

	quotation.DocumentRef = &ref
	quotation.DocumentName = &filename
	if err := h.Store.UpsertQuotation(r.Context(), quotation); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quotation)
}

// ListQuotationsForRFQHandler возвращает котировки RFQ (персонал закупок)
func (h *Handler) ListQuotationsForRFQHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	rfqID, err := urlID(chi.URLParam(r, "rfqID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if !roleCanSeeQuotations(identity.Role) {
		writeError(w, apperror.Forbidden("quotations are visible to procurement staff only"))
		return
	}
	if _, err := h.Store.GetRFQ(r.Context(), rfqID); err != nil {
		writeError(w, err)
		return
	}
	quotations, err := h.Store.ListQuotationsForRFQ(r.Context(), rfqID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quotations)
}

type approveQuotationInput struct {
	Justification string `json:"justification"`
}

// ApproveQuotationHandler обрабатывает POST
// /api/rfqs/{rfqID}/quotations/{quotationID}/approve. Котировка в рамках
// бюджета присуждается сразу; сверхбюджетная с обоснованием уходит на
// финансовое согласование. Финальное одобрение атомарно присуждает RFQ:
// соперники отклоняются, заявка-источник завершается, сумма контракта
// зачисляется поставщику.
func (h *Handler) ApproveQuotationHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	rfqID, err := urlID(chi.URLParam(r, "rfqID"))
	if err != nil {
		writeError(w, err)
		return
	}
	quotationID, err := urlID(chi.URLParam(r, "quotationID"))
	if err != nil {
		writeError(w, err)
		return
	}
	var input approveQuotationInput
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, err)
		return
	}

	h.sweepExpiredRFQs(r)
	rfq, err := h.Store.GetRFQ(r.Context(), rfqID)
	if err != nil {
		writeError(w, err)
		return
	}
	quotation, err := h.Store.GetQuotation(r.Context(), rfqID, quotationID)
	if err != nil {
		writeError(w, err)
		return
	}

	var budget *decimal.Decimal
	if rfq.Budget.Valid {
		budget = &rfq.Budget.Decimal
	}
	justification := input.Justification
	if justification == "" && quotation.BudgetOverrideJustification != nil {
		justification = *quotation.BudgetOverrideJustification
	}
	outcome, err := rules.ApproveQuotation(identity.Role, quotation.Status, quotation.Amount, budget, justification)
	if err != nil {
		writeError(w, err)
		return
	}

	if !outcome.Final {
		if err := h.Store.SetQuotationPendingFinance(r.Context(), quotation.ID, identity.UserID, justification); err != nil {
			writeError(w, err)
			return
		}
		quotation, err = h.Store.GetQuotation(r.Context(), rfqID, quotationID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, quotation)
		return
	}

	addToTotal := h.awardValue(quotation.Amount, quotation.Currency)
	result, err := h.Store.AwardQuotation(r.Context(), rfqID, quotation.ID, identity.UserID, addToTotal)
	if err != nil {
		writeError(w, err)
		return
	}

	h.notifyAwarded(r, rfq, quotation, result)

	quotation, err = h.Store.GetQuotation(r.Context(), rfqID, quotationID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quotation)
}

// notifyAwarded рассылает письма победителю, проигравшим и заявителю
func (h *Handler) notifyAwarded(r *http.Request, rfq *db.RFQ, quotation *db.Quotation, result *db.AwardResult) {
	subject, body := notify.QuotationApproved(result.Winner.CompanyName, rfq.Title, quotation.Amount, quotation.Currency)
	h.Notifier.Send(result.Winner.ContactEmail, subject, body)
	for _, loser := range result.Losers {
		subject, body := notify.QuotationRejected(loser.CompanyName, rfq.Title)
		h.Notifier.Send(loser.ContactEmail, subject, body)
	}
	if result.RequestID == nil {
		return
	}
	request, err := h.Store.GetRequest(r.Context(), *result.RequestID)
	if err != nil {
		log.Printf("loading awarded request %d failed: %v", *result.RequestID, err)
		return
	}
	requester, err := h.Store.GetUser(r.Context(), request.RequesterID)
	if err != nil {
		return
	}
	subject, body = notify.SupplierAwarded(requester.FullName, rfq.Title, result.Winner.CompanyName)
	h.Notifier.Send(requester.Email, subject, body)
}

// RejectQuotationHandler обрабатывает POST
// /api/rfqs/{rfqID}/quotations/{quotationID}/reject
func (h *Handler) RejectQuotationHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	rfqID, err := urlID(chi.URLParam(r, "rfqID"))
	if err != nil {
		writeError(w, err)
		return
	}
	quotationID, err := urlID(chi.URLParam(r, "quotationID"))
	if err != nil {
		writeError(w, err)
		return
	}

	rfq, err := h.Store.GetRFQ(r.Context(), rfqID)
	if err != nil {
		writeError(w, err)
		return
	}
	quotation, err := h.Store.GetQuotation(r.Context(), rfqID, quotationID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := rules.CanRejectQuotation(identity.Role, quotation.Status); err != nil {
		writeError(w, err)
		return
	}
	if err := h.Store.RejectQuotation(r.Context(), quotation.ID); err != nil {
		writeError(w, err)
		return
	}

	if profile, err := h.Store.GetSupplier(r.Context(), quotation.SupplierID); err == nil {
		subject, body := notify.QuotationRejected(profile.CompanyName, rfq.Title)
		h.Notifier.Send(profile.ContactEmail, subject, body)
	}

	quotation, err = h.Store.GetQuotation(r.Context(), rfqID, quotationID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quotation)
}

// MarkDeliveredHandler обрабатывает POST
// /api/rfqs/{rfqID}/quotations/{quotationID}/deliver: тело запроса —
// необязательная накладная, имя файла в query ?filename=
func (h *Handler) MarkDeliveredHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	rfqID, err := urlID(chi.URLParam(r, "rfqID"))
	if err != nil {
		writeError(w, err)
		return
	}
	quotationID, err := urlID(chi.URLParam(r, "quotationID"))
	if err != nil {
		writeError(w, err)
		return
	}

	quotation, err := h.Store.GetQuotation(r.Context(), rfqID, quotationID)
	if err != nil {
		writeError(w, err)
		return
	}
	deliveryStatus := ""
	if quotation.DeliveryStatus != nil {
		deliveryStatus = *quotation.DeliveryStatus
	}
	if err := rules.CanMarkDelivered(identity.Role, quotation.Status, deliveryStatus); err != nil {
		writeError(w, err)
		return
	}

	var noteRef, noteName *string
	filename := r.URL.Query().Get("filename")
	if filename != "" {
		content, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 10<<20))
		if err != nil {
			writeError(w, apperror.Validation("delivery note exceeds the 10 MB limit"))
			return
		}
		if len(content) > 0 {
			ref, err := h.Docs.Save("delivery-notes", filename, content)
			if err != nil {
				writeError(w, err)
				return
			}
			noteRef = &ref
			noteName = &filename
		}
	}

	if err := h.Store.MarkQuotationDelivered(r.Context(), quotation.ID, identity.UserID, noteRef, noteName); err != nil {
		writeError(w, err)
		return
	}
	quotation, err = h.Store.GetQuotation(r.Context(), rfqID, quotationID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quotation)
}
