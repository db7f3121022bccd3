package rules

import (
	"time"

	"procurahub/internal/apperror"
)

// RFQStatus — статус запроса котировок
type RFQStatus string

const (
	RFQDraft   RFQStatus = "draft"
	RFQOpen    RFQStatus = "open"
	RFQClosed  RFQStatus = "closed"
	RFQAwarded RFQStatus = "awarded"
)

// RFQCreateStatus — начальный статус RFQ по роли создателя:
// офицер закупок создаёт черновик, закупки/админ — сразу открытый
func RFQCreateStatus(role Role) (RFQStatus, error) {
	switch role {
	case RoleProcurementOfficer:
		return RFQDraft, nil
	case RoleProcurement, RoleAdmin:
		return RFQOpen, nil
	default:
		return "", apperror.Forbidden("only procurement staff may create RFQs")
	}
}

// CanApproveDraftRFQ — утверждение черновика RFQ
func CanApproveDraftRFQ(role Role) bool {
	return roleIn(role, RoleProcurement, RoleAdmin)
}

// CanSeeDraftRFQ — черновики видны только закупкам, админу и автору
func CanSeeDraftRFQ(role Role, userID, creatorID int) bool {
	if roleIn(role, RoleProcurement, RoleAdmin) {
		return true
	}
	return userID == creatorID
}

// CanInviteSuppliers — ручная рассылка приглашений
func CanInviteSuppliers(role Role) bool {
	return roleIn(role, RoleProcurement, RoleAdmin)
}

// ShouldCloseRFQ — решение ленивого закрытия: чистая функция от
// (статус, дедлайн, сейчас), безопасна при повторных вызовах
func ShouldCloseRFQ(status RFQStatus, deadline, now time.Time) bool {
	return status == RFQOpen && !deadline.After(now)
}

// CanAwardFromRFQStatus — присудить RFQ можно из open и closed
func CanAwardFromRFQStatus(status RFQStatus) bool {
	return status == RFQOpen || status == RFQClosed
}
