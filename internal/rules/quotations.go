package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"procurahub/internal/apperror"
)

// QuotationStatus — статус котировки поставщика
type QuotationStatus string

const (
	QuotationSubmitted      QuotationStatus = "submitted"
	QuotationPendingFinance QuotationStatus = "pending_finance_approval"
	QuotationApproved       QuotationStatus = "approved"
	QuotationRejected       QuotationStatus = "rejected"
)

// InvitationStatus — статус приглашения поставщика на RFQ
type InvitationStatus string

const (
	InvitationInvited     InvitationStatus = "invited"
	InvitationResponded   InvitationStatus = "responded"
	InvitationAwarded     InvitationStatus = "awarded"
	InvitationNotSelected InvitationStatus = "not_selected"
)

// CanSubmitQuotation проверяет подачу котировки: поставщик, открытый RFQ,
// незакончившийся дедлайн
func CanSubmitQuotation(role Role, rfqStatus RFQStatus, deadline, now time.Time) error {
	if role != RoleSupplier {
		return apperror.Forbidden("only suppliers may submit quotations")
	}
	if rfqStatus != RFQOpen {
		return apperror.InvalidState(fmt.Sprintf("RFQ in status %q is not open for quotations", rfqStatus))
	}
	if !deadline.After(now) {
		return apperror.InvalidState("RFQ deadline has passed")
	}
	return nil
}

// ApprovalOutcome — результат решения по одобрению котировки
type ApprovalOutcome struct {
	Status QuotationStatus
	// Final — true, когда котировка окончательно одобрена и RFQ присуждается
	Final bool
}

// ApproveQuotation решает судьбу одобрения: сверхбюджетная котировка из
// submitted уходит на финансовое согласование с обязательным обоснованием,
// из pending_finance_approval одобрять могут только Finance и Admin
func ApproveQuotation(role Role, status QuotationStatus, amount decimal.Decimal, budget *decimal.Decimal, justification string) (ApprovalOutcome, error) {
	if !roleIn(role, RoleProcurement, RoleAdmin, RoleFinance) {
		return ApprovalOutcome{}, apperror.Forbidden(fmt.Sprintf("role %q may not approve quotations", role))
	}

	switch status {
	case QuotationSubmitted:
		if budget != nil && amount.GreaterThan(*budget) {
			if strings.TrimSpace(justification) == "" {
				return ApprovalOutcome{}, apperror.Validation("budget override justification is required for quotations above the RFQ budget")
			}
			return ApprovalOutcome{Status: QuotationPendingFinance}, nil
		}
		return ApprovalOutcome{Status: QuotationApproved, Final: true}, nil

	case QuotationPendingFinance:
		if !roleIn(role, RoleFinance, RoleAdmin) {
			return ApprovalOutcome{}, apperror.Forbidden("quotation is pending finance approval; only Finance or Admin may approve it")
		}
		return ApprovalOutcome{Status: QuotationApproved, Final: true}, nil

	case QuotationApproved:
		return ApprovalOutcome{}, apperror.InvalidState("quotation is already approved")
	default:
		return ApprovalOutcome{}, apperror.InvalidState(fmt.Sprintf("quotation in status %q cannot be approved", status))
	}
}

// CanRejectQuotation — отклонение котировки, обоснование не требуется
func CanRejectQuotation(role Role, status QuotationStatus) error {
	if !roleIn(role, RoleProcurement, RoleAdmin, RoleFinance) {
		return apperror.Forbidden(fmt.Sprintf("role %q may not reject quotations", role))
	}
	switch status {
	case QuotationSubmitted:
		return nil
	case QuotationPendingFinance:
		if !roleIn(role, RoleFinance, RoleAdmin) {
			return apperror.Forbidden("quotation is pending finance approval; only Finance or Admin may reject it")
		}
		return nil
	default:
		return apperror.InvalidState(fmt.Sprintf("quotation in status %q cannot be rejected", status))
	}
}

// CanMarkDelivered — отметка о доставке по присуждённой котировке
func CanMarkDelivered(role Role, status QuotationStatus, deliveryStatus string) error {
	if !roleIn(role, RoleProcurement, RoleAdmin) {
		return apperror.Forbidden("only Procurement or Admin may mark deliveries")
	}
	if status != QuotationApproved {
		return apperror.InvalidState("only the awarded quotation can be marked delivered")
	}
	if deliveryStatus == "delivered" {
		return apperror.InvalidState("quotation is already marked delivered")
	}
	return nil
}
