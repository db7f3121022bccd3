package rules

import (
	"fmt"

	"procurahub/internal/apperror"
)

// RequestStatus — статус заявки на закупку
type RequestStatus string

const (
	RequestPendingHOD            RequestStatus = "pending_hod"
	RequestRejectedByHOD         RequestStatus = "rejected_by_hod"
	RequestPendingProcurement    RequestStatus = "pending_procurement"
	RequestRejectedByProcurement RequestStatus = "rejected_by_procurement"
	RequestRFQIssued             RequestStatus = "rfq_issued"
	RequestCompleted             RequestStatus = "completed"

	// Deprecated: статусы старого трёхэтапного согласования. Остаются в БД
	// ради старых записей, переходы в них и из них не определены.
	RequestPendingFinance    RequestStatus = "pending_finance_approval"
	RequestRejectedByFinance RequestStatus = "rejected_by_finance"
	RequestFinanceApproved   RequestStatus = "finance_approved"
)

// RequestAction — действие над заявкой в таблице переходов
type RequestAction string

const (
	RequestHODApprove         RequestAction = "hod_approve"
	RequestHODReject          RequestAction = "hod_reject"
	RequestProcurementApprove RequestAction = "procurement_approve"
	RequestProcurementReject  RequestAction = "procurement_reject"
	// RequestComplete выполняется системой при закрытии связанного RFQ
	RequestComplete RequestAction = "complete"
)

type requestTransition struct {
	from  RequestStatus
	to    RequestStatus
	roles []Role // nil — системный переход, роль не проверяется
}

// requestTransitions — единая таблица переходов конвейера заявок.
// Пути, не указанные здесь, запрещены.
var requestTransitions = map[RequestAction]requestTransition{
	RequestHODApprove: {
		from:  RequestPendingHOD,
		to:    RequestPendingProcurement,
		roles: []Role{RoleHeadOfDepartment, RoleAdmin},
	},
	RequestHODReject: {
		from:  RequestPendingHOD,
		to:    RequestRejectedByHOD,
		roles: []Role{RoleHeadOfDepartment, RoleAdmin},
	},
	RequestProcurementApprove: {
		from:  RequestPendingProcurement,
		to:    RequestRFQIssued,
		roles: []Role{RoleProcurement, RoleAdmin},
	},
	RequestProcurementReject: {
		from:  RequestPendingProcurement,
		to:    RequestRejectedByProcurement,
		roles: []Role{RoleProcurement, RoleAdmin},
	},
	RequestComplete: {
		from: RequestRFQIssued,
		to:   RequestCompleted,
	},
}

// IsTerminalRequestStatus — из этих статусов заявка уже не меняется
func IsTerminalRequestStatus(s RequestStatus) bool {
	switch s {
	case RequestCompleted, RequestRejectedByHOD, RequestRejectedByProcurement, RequestRejectedByFinance:
		return true
	}
	return false
}

// RequestTransitionTo проверяет действие над заявкой в текущем статусе и
// возвращает новый статус. Недопустимый статус — invalid_state,
// неподходящая роль — forbidden.
func RequestTransitionTo(action RequestAction, role Role, current RequestStatus) (RequestStatus, error) {
	tr, ok := requestTransitions[action]
	if !ok {
		return "", apperror.Validation(fmt.Sprintf("unknown request action %q", action))
	}
	if IsTerminalRequestStatus(current) {
		return "", apperror.InvalidState(fmt.Sprintf("request in status %q can no longer be modified", current))
	}
	if current != tr.from {
		return "", apperror.InvalidState(fmt.Sprintf("action %q is not allowed from status %q", action, current))
	}
	if tr.roles != nil && !roleIn(role, tr.roles...) {
		return "", apperror.Forbidden(fmt.Sprintf("role %q may not perform %q", role, action))
	}
	return tr.to, nil
}
