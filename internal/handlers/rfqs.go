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

// sweepExpiredRFQs лениво закрывает просроченные RFQ перед чтением.
// Вызывается на каждом чтении RFQ, повторные вызовы безвредны.
func (h *Handler) sweepExpiredRFQs(r *http.Request) {
	if n, err := h.Store.CloseExpiredRFQs(r.Context(), time.Now()); err != nil {
		log.Printf("closing expired RFQs failed: %v", err)
	} else if n > 0 {
		log.Printf("closed %d expired RFQs", n)
	}
}

type createRFQInput struct {
	Title       string           `json:"title" validate:"required,max=255"`
	Description string           `json:"description" validate:"required"`
	Category    string           `json:"category" validate:"required,max=100"`
	Budget      *decimal.Decimal `json:"budget"`
	Currency    string           `json:"currency" validate:"required,len=3"`
	Deadline    time.Time        `json:"deadline" validate:"required"`
}

// CreateRFQHandler обрабатывает POST /api/rfqs/new запрос: офицер закупок
// получает черновик, закупки и админ — сразу открытый RFQ с рассылкой
// приглашений
func (h *Handler) CreateRFQHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	var input createRFQInput
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, err)
		return
	}
	status, err := rules.RFQCreateStatus(identity.Role)
	if err != nil {
		writeError(w, err)
		return
	}
	if !input.Deadline.After(time.Now()) {
		writeError(w, apperror.Validation("deadline must be in the future"))
		return
	}
	if input.Budget != nil && !input.Budget.IsPositive() {
		writeError(w, apperror.Validation("budget must be positive"))
		return
	}
	if _, err := h.Store.GetCategoryByName(r.Context(), input.Category); err != nil {
		writeError(w, apperror.Validation("unknown category "+input.Category))
		return
	}

	rfq := db.RFQ{
		Title:       input.Title,
		Description: input.Description,
		Category:    input.Category,
		Currency:    input.Currency,
		Deadline:    input.Deadline,
		Status:      status,
		CreatedByID: identity.UserID,
	}
	if input.Budget != nil {
		rfq.Budget = decimal.NewNullDecimal(*input.Budget)
	}
	if err := h.Store.CreateRFQ(r.Context(), &rfq); err != nil {
		writeError(w, err)
		return
	}

	if rfq.Status == rules.RFQOpen {
		if _, err := h.sched.Invite(r.Context(), &rfq, time.Now()); err != nil {
			log.Printf("supplier invitation for RFQ %s failed: %v", rfq.RFQNumber, err)
		}
	}

	writeJSON(w, http.StatusCreated, rfq)
}

// ApproveDraftRFQHandler обрабатывает POST /api/rfqs/{rfqID}/approve:
// черновик открывается и приглашения рассылаются
func (h *Handler) ApproveDraftRFQHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	id, err := urlID(chi.URLParam(r, "rfqID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if !rules.CanApproveDraftRFQ(identity.Role) {
		writeError(w, apperror.Forbidden("only Procurement or Admin may approve draft RFQs"))
		return
	}

	rfq, err := h.Store.GetRFQ(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if rfq.Status != rules.RFQDraft {
		writeError(w, apperror.InvalidState("only draft RFQs can be approved"))
		return
	}
	if !rfq.Deadline.After(time.Now()) {
		writeError(w, apperror.InvalidState("RFQ deadline has already passed"))
		return
	}
	if err := h.Store.UpdateRFQStatus(r.Context(), rfq.ID, rules.RFQOpen); err != nil {
		writeError(w, err)
		return
	}
	rfq.Status = rules.RFQOpen

	if _, err := h.sched.Invite(r.Context(), rfq, time.Now()); err != nil {
		log.Printf("supplier invitation for RFQ %s failed: %v", rfq.RFQNumber, err)
	}

	writeJSON(w, http.StatusOK, rfq)
}

// ListRFQsHandler возвращает список RFQ по роли: поставщик видит только
// те, куда приглашён, закупки и админ — все вместе с черновиками
func (h *Handler) ListRFQsHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	h.sweepExpiredRFQs(r)
	params := parsePaginationParams(r)

	if identity.Role == rules.RoleSupplier {
		profile, err := h.Store.GetSupplierByUserID(r.Context(), identity.UserID)
		if err != nil {
			writeError(w, err)
			return
		}
		rfqs, err := h.Store.ListRFQsForSupplier(r.Context(), profile.ID, params.Limit, params.Offset)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rfqs)
		return
	}

	includeDrafts := identity.Role == rules.RoleProcurement || identity.Role == rules.RoleAdmin
	rfqs, err := h.Store.ListRFQs(r.Context(), includeDrafts, params.Limit, params.Offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rfqs)
}

// rfqResponse — карточка RFQ с вложениями
type rfqResponse struct {
	*db.RFQ
	Invitations []db.RFQInvitation `json:"invitations,omitempty"`
	Quotations  []db.Quotation     `json:"quotations,omitempty"`
	Documents   []db.RFQDocument   `json:"documents"`
}

// GetRFQHandler возвращает карточку RFQ. Черновики видны закупкам и
// автору, котировки — только персоналу закупок
func (h *Handler) GetRFQHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	id, err := urlID(chi.URLParam(r, "rfqID"))
	if err != nil {
		writeError(w, err)
		return
	}
	h.sweepExpiredRFQs(r)

	rfq, err := h.Store.GetRFQ(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if rfq.Status == rules.RFQDraft && !rules.CanSeeDraftRFQ(identity.Role, identity.UserID, rfq.CreatedByID) {
		writeError(w, apperror.NotFound("RFQ not found"))
		return
	}

	resp := rfqResponse{RFQ: rfq}
	resp.Documents, err = h.Store.ListRFQDocuments(r.Context(), rfq.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	if roleCanSeeQuotations(identity.Role) {
		resp.Invitations, err = h.Store.ListInvitationsForRFQ(r.Context(), rfq.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		resp.Quotations, err = h.Store.ListQuotationsForRFQ(r.Context(), rfq.ID)
		if err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Поставщики не видят чужие котировки до присуждения
func roleCanSeeQuotations(role rules.Role) bool {
	switch role {
	case rules.RoleProcurement, rules.RoleProcurementOfficer, rules.RoleAdmin, rules.RoleFinance:
		return true
	}
	return false
}

type inviteSuppliersInput struct {
	SupplierIDs []int `json:"supplierIds"`
}

// InviteSuppliersHandler обрабатывает POST /api/rfqs/{rfqID}/invite:
// ручная добивка приглашений поверх автоматической ротации. Уже
// приглашённые поставщики пропускаются.
func (h *Handler) InviteSuppliersHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	id, err := urlID(chi.URLParam(r, "rfqID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if !rules.CanInviteSuppliers(identity.Role) {
		writeError(w, apperror.Forbidden("only Procurement or Admin may invite suppliers"))
		return
	}
	// Запрос без тела равнозначен пустому списку: круг ротации
	var input inviteSuppliersInput
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &input); err != nil {
			writeError(w, err)
			return
		}
	}

	h.sweepExpiredRFQs(r)
	rfq, err := h.Store.GetRFQ(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if rfq.Status != rules.RFQOpen {
		writeError(w, apperror.InvalidState("suppliers can only be invited to an open RFQ"))
		return
	}

	now := time.Now()
	if len(input.SupplierIDs) == 0 {
		// Без явного списка — очередной круг ротации
		invited, err := h.sched.Invite(r.Context(), rfq, now)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"invited": len(invited)})
		return
	}

	for _, supplierID := range input.SupplierIDs {
		if _, err := h.Store.GetSupplier(r.Context(), supplierID); err != nil {
			writeError(w, err)
			return
		}
	}
	invitedIDs, err := h.Store.CreateInvitations(r.Context(), rfq.ID, input.SupplierIDs, now)
	if err != nil {
		writeError(w, err)
		return
	}
	for _, supplierID := range invitedIDs {
		profile, err := h.Store.GetSupplier(r.Context(), supplierID)
		if err != nil {
			continue
		}
		subject, body := notify.RFQInvitation(profile.CompanyName, rfq.Title, rfq.Category, rfq.Deadline)
		h.Notifier.Send(profile.ContactEmail, subject, body)
	}
	writeJSON(w, http.StatusOK, map[string]int{"invited": len(invitedIDs)})
}

// UploadRFQDocumentHandler обрабатывает POST /api/rfqs/{rfqID}/documents:
// тело запроса — содержимое файла, имя передаётся в query ?filename=
func (h *Handler) UploadRFQDocumentHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	id, err := urlID(chi.URLParam(r, "rfqID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if !rules.CanInviteSuppliers(identity.Role) && identity.Role != rules.RoleProcurementOfficer {
		writeError(w, apperror.Forbidden("only procurement staff may attach RFQ documents"))
		return
	}
	filename := r.URL.Query().Get("filename")
	if filename == "" {
		writeError(w, apperror.Validation("filename query parameter is required"))
		return
	}

	rfq, err := h.Store.GetRFQ(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if rfq.Status == rules.RFQAwarded {
		writeError(w, apperror.InvalidState("documents cannot be added to an awarded RFQ"))
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

	ref, err := h.Docs.Save("rfq", filename, content)
	if err != nil {
		writeError(w, err)
		return
	}
	doc := db.RFQDocument{
		RFQID:            rfq.ID,
		FileRef:          ref,
		OriginalFilename: filename,
	}
	if err := h.Store.AddRFQDocument(r.Context(), &doc); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

// DownloadRFQDocumentHandler обрабатывает GET
// /api/rfqs/{rfqID}/documents/{documentID}: отдаёт содержимое файла
func (h *Handler) DownloadRFQDocumentHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	rfqID, err := urlID(chi.URLParam(r, "rfqID"))
	if err != nil {
		writeError(w, err)
		return
	}
	docID, err := urlID(chi.URLParam(r, "documentID"))
	if err != nil {
		writeError(w, err)
		return
	}

	rfq, err := h.Store.GetRFQ(r.Context(), rfqID)
	if err != nil {
		writeError(w, err)
		return
	}
	if rfq.Status == rules.RFQDraft && !rules.CanSeeDraftRFQ(identity.Role, identity.UserID, rfq.CreatedByID) {
		writeError(w, apperror.NotFound("RFQ not found"))
		return
	}

	docs, err := h.Store.ListRFQDocuments(r.Context(), rfq.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	for _, doc := range docs {
		if doc.ID != docID {
			continue
		}
		content, err := h.Docs.Open(doc.FileRef)
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", `attachment; filename="`+doc.OriginalFilename+`"`)
		w.Write(content)
		return
	}
	writeError(w, apperror.NotFound("document not found"))
}
