package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"procurahub/db"
	"procurahub/internal/apperror"
	"procurahub/internal/auth"
	"procurahub/internal/notify"
	"procurahub/internal/rules"
)

type createRequestInput struct {
	Title         string    `json:"title" validate:"required,max=255"`
	Description   string    `json:"description" validate:"required"`
	Justification string    `json:"justification" validate:"required"`
	Category      string    `json:"category" validate:"required,max=100"`
	DepartmentID  int       `json:"departmentId" validate:"required,gt=0"`
	NeededBy      time.Time `json:"neededBy" validate:"required"`
}

// CreateRequestHandler обрабатывает POST /api/requests/new запрос.
// Новая заявка сразу попадает на согласование руководителю департамента.
func (h *Handler) CreateRequestHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	if !rules.CanCreateRequest(identity.Role) {
		writeError(w, apperror.Forbidden("only Requester or Admin may create purchase requests"))
		return
	}

	var input createRequestInput
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, err)
		return
	}
	if !input.NeededBy.After(time.Now()) {
		writeError(w, apperror.Validation("neededBy must be in the future"))
		return
	}
	if _, err := h.Store.GetCategoryByName(r.Context(), input.Category); err != nil {
		writeError(w, apperror.Validation("unknown category "+input.Category))
		return
	}
	department, err := h.Store.GetDepartment(r.Context(), input.DepartmentID)
	if err != nil {
		writeError(w, err)
		return
	}

	request := db.PurchaseRequest{
		Title:         input.Title,
		Description:   input.Description,
		Justification: input.Justification,
		Category:      input.Category,
		DepartmentID:  department.ID,
		RequesterID:   identity.UserID,
		NeededBy:      input.NeededBy,
		Status:        rules.RequestPendingHOD,
	}
	if err := h.Store.CreateRequest(r.Context(), &request); err != nil {
		writeError(w, err)
		return
	}

	requester, err := h.Store.GetUser(r.Context(), identity.UserID)
	if err == nil {
		subject, body := notify.RequestSubmitted(requester.FullName, request.Title, request.Category)
		h.Notifier.Send(requester.Email, subject, body)
		if department.HeadOfDepartmentID != nil {
			if head, err := h.Store.GetUser(r.Context(), *department.HeadOfDepartmentID); err == nil {
				subject, body := notify.RequestAwaitsHOD(head.FullName, request.Title, requester.FullName, department.Name)
				h.Notifier.Send(head.Email, subject, body)
			}
		}
	}

	writeJSON(w, http.StatusCreated, request)
}

// ListRequestsHandler возвращает заявки по роли: руководитель видит свой
// департамент, закупки и админ — все
func (h *Handler) ListRequestsHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	params := parsePaginationParams(r)

	switch identity.Role {
	case rules.RoleAdmin, rules.RoleProcurement, rules.RoleProcurementOfficer, rules.RoleFinance:
		requests, err := h.Store.ListRequests(r.Context(), nil, params.Limit, params.Offset)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, requests)
	case rules.RoleHeadOfDepartment:
		departmentID, err := h.departmentHeadedBy(r, identity.UserID)
		if err != nil {
			writeError(w, err)
			return
		}
		requests, err := h.Store.ListRequests(r.Context(), &departmentID, params.Limit, params.Offset)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, requests)
	default:
		writeError(w, apperror.Forbidden("use /api/requests/my to see your own requests"))
	}
}

// departmentHeadedBy находит департамент, которым руководит пользователь
func (h *Handler) departmentHeadedBy(r *http.Request, userID int) (int, error) {
	departments, err := h.Store.ListDepartments(r.Context())
	if err != nil {
		return 0, err
	}
	for _, d := range departments {
		if d.HeadOfDepartmentID != nil && *d.HeadOfDepartmentID == userID {
			return d.ID, nil
		}
	}
	return 0, apperror.Forbidden("user does not head any department")
}

// ListMyRequestsHandler возвращает заявки текущего пользователя
func (h *Handler) ListMyRequestsHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	params := parsePaginationParams(r)
	requests, err := h.Store.ListRequestsByRequester(r.Context(), identity.UserID, params.Limit, params.Offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, requests)
}

// GetRequestHandler возвращает одну заявку с проверкой видимости
func (h *Handler) GetRequestHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	id, err := urlID(chi.URLParam(r, "requestID"))
	if err != nil {
		writeError(w, err)
		return
	}
	request, err := h.Store.GetRequest(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.canSeeRequest(r, identity, request); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, request)
}

func (h *Handler) canSeeRequest(r *http.Request, identity auth.Identity, request *db.PurchaseRequest) error {
	switch identity.Role {
	case rules.RoleAdmin, rules.RoleProcurement, rules.RoleProcurementOfficer, rules.RoleFinance:
		return nil
	case rules.RoleHeadOfDepartment:
		department, err := h.Store.GetDepartment(r.Context(), request.DepartmentID)
		if err != nil {
			return err
		}
		if rules.CanReviewAsHOD(identity.Role, identity.UserID, department.HeadOfDepartmentID) {
			return nil
		}
	}
	if request.RequesterID == identity.UserID {
		return nil
	}
	return apperror.Forbidden("no access to this purchase request")
}

type hodReviewInput struct {
	Notes  *string `json:"notes"`
	Reason string  `json:"reason"`
}

// HODApproveHandler обрабатывает POST /api/requests/{requestID}/hod-approve
func (h *Handler) HODApproveHandler(w http.ResponseWriter, r *http.Request) {
	h.hodReview(w, r, rules.RequestHODApprove)
}

// HODRejectHandler обрабатывает POST /api/requests/{requestID}/hod-reject.
// Причина отказа обязательна.
func (h *Handler) HODRejectHandler(w http.ResponseWriter, r *http.Request) {
	h.hodReview(w, r, rules.RequestHODReject)
}

func (h *Handler) hodReview(w http.ResponseWriter, r *http.Request, action rules.RequestAction) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	id, err := urlID(chi.URLParam(r, "requestID"))
	if err != nil {
		writeError(w, err)
		return
	}
	var input hodReviewInput
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, err)
		return
	}
	if action == rules.RequestHODReject && input.Reason == "" {
		writeError(w, apperror.Validation("rejection reason is required"))
		return
	}

	request, err := h.Store.GetRequest(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	next, err := rules.RequestTransitionTo(action, identity.Role, request.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	department, err := h.Store.GetDepartment(r.Context(), request.DepartmentID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !rules.CanReviewAsHOD(identity.Role, identity.UserID, department.HeadOfDepartmentID) {
		writeError(w, apperror.Forbidden("only the head of the requesting department may review this request"))
		return
	}

	now := time.Now()
	request.Status = next
	request.HODNotes = input.Notes
	request.HODReviewerID = &identity.UserID
	request.HODReviewedAt = &now
	if action == rules.RequestHODReject {
		request.HODRejectionReason = &input.Reason
	}
	if err := h.Store.UpdateRequest(r.Context(), request); err != nil {
		writeError(w, err)
		return
	}

	h.notifyRequestReviewed(r, request, identity.UserID, action == rules.RequestHODApprove, "head of department", input.Reason)
	writeJSON(w, http.StatusOK, request)
}

// notifyRequestReviewed рассылает письма после решения по заявке
func (h *Handler) notifyRequestReviewed(r *http.Request, request *db.PurchaseRequest, reviewerID int, approved bool, stage, reason string) {
	requester, err := h.Store.GetUser(r.Context(), request.RequesterID)
	if err != nil {
		return
	}
	reviewer, err := h.Store.GetUser(r.Context(), reviewerID)
	if err != nil {
		return
	}
	if !approved {
		subject, body := notify.RequestRejected(requester.FullName, request.Title, stage, reason)
		h.Notifier.Send(requester.Email, subject, body)
		return
	}
	if stage == "head of department" {
		subject, body := notify.RequestHODApproved(requester.FullName, request.Title, reviewer.FullName)
		h.Notifier.Send(requester.Email, subject, body)
		// Закупщики узнают о новой заявке в своей очереди
		staff, err := h.Store.ListUsersByRoles(r.Context(), []rules.Role{rules.RoleProcurement, rules.RoleAdmin})
		if err != nil {
			return
		}
		for _, u := range staff {
			subject, body := notify.RequestAwaitsProcurement(request.Title, requester.FullName)
			h.Notifier.Send(u.Email, subject, body)
		}
		return
	}
	subject, body := notify.RequestApproved(requester.FullName, request.Title, reviewer.FullName)
	h.Notifier.Send(requester.Email, subject, body)
}

type procurementApproveInput struct {
	Notes        *string         `json:"notes"`
	BudgetAmount decimal.Decimal `json:"budgetAmount" validate:"required"`
	Currency     string          `json:"currency" validate:"required,len=3"`
	RFQDeadline  time.Time       `json:"rfqDeadline" validate:"required"`
}

// ProcurementApproveHandler обрабатывает POST
// /api/requests/{requestID}/procurement-approve: в одной транзакции
// создаётся открытый RFQ и заявка переходит в rfq_issued, после чего
// планировщик рассылает приглашения
func (h *Handler) ProcurementApproveHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	id, err := urlID(chi.URLParam(r, "requestID"))
	if err != nil {
		writeError(w, err)
		return
	}
	var input procurementApproveInput
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, err)
		return
	}
	if !input.BudgetAmount.IsPositive() {
		writeError(w, apperror.Validation("budgetAmount must be positive"))
		return
	}
	if !input.RFQDeadline.After(time.Now()) {
		writeError(w, apperror.Validation("rfqDeadline must be in the future"))
		return
	}

	request, err := h.Store.GetRequest(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	next, err := rules.RequestTransitionTo(rules.RequestProcurementApprove, identity.Role, request.Status)
	if err != nil {
		writeError(w, err)
		return
	}

	now := time.Now()
	request.Status = next
	request.ProcurementNotes = input.Notes
	request.ProcurementReviewerID = &identity.UserID
	request.ProcurementReviewedAt = &now
	request.BudgetAmount = decimal.NewNullDecimal(input.BudgetAmount)
	request.BudgetCurrency = &input.Currency

	rfq := db.RFQ{
		Title:       request.Title,
		Description: request.Description,
		Category:    request.Category,
		Budget:      decimal.NewNullDecimal(input.BudgetAmount),
		Currency:    input.Currency,
		Deadline:    input.RFQDeadline,
		Status:      rules.RFQOpen,
		CreatedByID: identity.UserID,
	}
	if err := h.Store.IssueRFQForRequest(r.Context(), request, &rfq); err != nil {
		writeError(w, err)
		return
	}

	if _, err := h.sched.Invite(r.Context(), &rfq, now); err != nil {
		log.Printf("supplier invitation for RFQ %s failed: %v", rfq.RFQNumber, err)
	}

	h.notifyRequestReviewed(r, request, identity.UserID, true, "procurement", "")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"request": request,
		"rfq":     rfq,
	})
}

type procurementRejectInput struct {
	Notes  *string `json:"notes"`
	Reason string  `json:"reason" validate:"required"`
}

// ProcurementRejectHandler обрабатывает POST /api/requests/{requestID}/procurement-reject
func (h *Handler) ProcurementRejectHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	id, err := urlID(chi.URLParam(r, "requestID"))
	if err != nil {
		writeError(w, err)
		return
	}
	var input procurementRejectInput
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, err)
		return
	}

	request, err := h.Store.GetRequest(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	next, err := rules.RequestTransitionTo(rules.RequestProcurementReject, identity.Role, request.Status)
	if err != nil {
		writeError(w, err)
		return
	}

	now := time.Now()
	request.Status = next
	request.ProcurementNotes = input.Notes
	request.ProcurementRejectionReason = &input.Reason
	request.ProcurementReviewerID = &identity.UserID
	request.ProcurementReviewedAt = &now
	if err := h.Store.UpdateRequest(r.Context(), request); err != nil {
		writeError(w, err)
		return
	}

	h.notifyRequestReviewed(r, request, identity.UserID, false, "procurement", input.Reason)
	writeJSON(w, http.StatusOK, request)
}
