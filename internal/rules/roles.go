package rules

import (
	"fmt"

	"procurahub/internal/apperror"
)

// Role — закрытый перечень ролей пользователей
type Role string

const (
	RoleAdmin              Role = "Admin"
	RoleProcurement        Role = "Procurement"
	RoleProcurementOfficer Role = "ProcurementOfficer"
	RoleHeadOfDepartment   Role = "HeadOfDepartment"
	RoleRequester          Role = "Requester"
	RoleSupplier           Role = "Supplier"

	// Deprecated: роль оставлена для совместимости со старым трёхэтапным
	// согласованием; новые пользователи с ней не создаются
	RoleFinance Role = "Finance"
)

var allRoles = map[Role]bool{
	RoleAdmin:              true,
	RoleProcurement:        true,
	RoleProcurementOfficer: true,
	RoleHeadOfDepartment:   true,
	RoleRequester:          true,
	RoleSupplier:           true,
	RoleFinance:            true,
}

func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !allRoles[r] {
		return "", apperror.Validation(fmt.Sprintf("unknown role %q", s))
	}
	return r, nil
}

func roleIn(role Role, allowed ...Role) bool {
	for _, a := range allowed {
		if role == a {
			return true
		}
	}
	return false
}

// CanManageUsers — создание пользователей, департаментов и категорий
func CanManageUsers(role Role) bool {
	return role == RoleAdmin
}

// CanCreateRequest — подача заявки на закупку
func CanCreateRequest(role Role) bool {
	return roleIn(role, RoleRequester, RoleAdmin)
}

// CanReviewAsHOD — ревью заявки на этапе pending_hod: только назначенный
// руководитель департамента либо админ
func CanReviewAsHOD(role Role, userID int, headOfDepartmentID *int) bool {
	if role == RoleAdmin {
		return true
	}
	if role != RoleHeadOfDepartment {
		return false
	}
	return headOfDepartmentID != nil && *headOfDepartmentID == userID
}

// CanReviewAsProcurement — ревью заявки на этапе pending_procurement
func CanReviewAsProcurement(role Role) bool {
	return roleIn(role, RoleProcurement, RoleAdmin)
}
