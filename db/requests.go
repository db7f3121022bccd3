package db

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"procurahub/internal/rules"
)

// PurchaseRequest (Заявка на закупку)
type PurchaseRequest struct {
	ID            int                 `db:"id" json:"id"`
	Title         string              `db:"title" json:"title"`
	Description   string              `db:"description" json:"description"`
	Justification string              `db:"justification" json:"justification"`
	Category      string              `db:"category" json:"category"`
	DepartmentID  int                 `db:"department_id" json:"departmentId"`
	RequesterID   int                 `db:"requester_id" json:"requesterId"`
	NeededBy      time.Time           `db:"needed_by" json:"neededBy"`
	Status        rules.RequestStatus `db:"status" json:"status"`

	HODNotes           *string    `db:"hod_notes" json:"hodNotes,omitempty"`
	HODRejectionReason *string    `db:"hod_rejection_reason" json:"hodRejectionReason,omitempty"`
	HODReviewerID      *int       `db:"hod_reviewer_id" json:"hodReviewerId,omitempty"`
	HODReviewedAt      *time.Time `db:"hod_reviewed_at" json:"hodReviewedAt,omitempty"`

	ProcurementNotes           *string    `db:"procurement_notes" json:"procurementNotes,omitempty"`
	ProcurementRejectionReason *string    `db:"procurement_rejection_reason" json:"procurementRejectionReason,omitempty"`
	ProcurementReviewerID      *int       `db:"procurement_reviewer_id" json:"procurementReviewerId,omitempty"`
	ProcurementReviewedAt      *time.Time `db:"procurement_reviewed_at" json:"procurementReviewedAt,omitempty"`

	BudgetAmount   decimal.NullDecimal `db:"budget_amount" json:"budgetAmount,omitempty"`
	BudgetCurrency *string             `db:"budget_currency" json:"budgetCurrency,omitempty"`

	RFQID *int `db:"rfq_id" json:"rfqId,omitempty"`

	// Deprecated: колонки старого трёхэтапного согласования, не заполняются
	FinanceReviewerID      *int       `db:"finance_reviewer_id" json:"-"`
	FinanceReviewedAt      *time.Time `db:"finance_reviewed_at" json:"-"`
	FinanceRejectionReason *string    `db:"finance_rejection_reason" json:"-"`

	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt *time.Time `db:"updated_at" json:"-"`
}

func (s *Storage) CreateRequest(ctx context.Context, r *PurchaseRequest) error {
	query := `
        INSERT INTO purchase_requests
            (title, description, justification, category, department_id, requester_id, needed_by, status)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id, created_at`
	return s.db.QueryRowContext(ctx, query,
		r.Title, r.Description, r.Justification, r.Category,
		r.DepartmentID, r.RequesterID, r.NeededBy, r.Status).
		Scan(&r.ID, &r.CreatedAt)
}

func (s *Storage) GetRequest(ctx context.Context, id int) (*PurchaseRequest, error) {
	r := &PurchaseRequest{}
	query := `SELECT * FROM purchase_requests WHERE id=$1`
	err := s.db.GetContext(ctx, r, query, id)
	return r, notFoundOr(err, "purchase request not found")
}

// UpdateRequest записывает изменяемые поля заявки после ревью
func (s *Storage) UpdateRequest(ctx context.Context, r *PurchaseRequest) error {
	query := `
        UPDATE purchase_requests
        SET status=$1,
            hod_notes=$2, hod_rejection_reason=$3, hod_reviewer_id=$4, hod_reviewed_at=$5,
            procurement_notes=$6, procurement_rejection_reason=$7,
            procurement_reviewer_id=$8, procurement_reviewed_at=$9,
            budget_amount=$10, budget_currency=$11, rfq_id=$12,
            updated_at=NOW()
        WHERE id=$13`
	_, err := s.db.ExecContext(ctx, query,
		r.Status,
		r.HODNotes, r.HODRejectionReason, r.HODReviewerID, r.HODReviewedAt,
		r.ProcurementNotes, r.ProcurementRejectionReason,
		r.ProcurementReviewerID, r.ProcurementReviewedAt,
		r.BudgetAmount, r.BudgetCurrency, r.RFQID,
		r.ID)
	return err
}

func (s *Storage) ListRequestsByRequester(ctx context.Context, requesterID, limit, offset int) ([]PurchaseRequest, error) {
	query := `
        SELECT * FROM purchase_requests
        WHERE requester_id = $1
        ORDER BY created_at DESC
        LIMIT $2 OFFSET $3`
	requests := []PurchaseRequest{}
	err := s.db.SelectContext(ctx, &requests, query, requesterID, limit, offset)
	return requests, err
}

// ListRequests возвращает заявки, опционально ограниченные департаментом
// (руководитель видит только свой департамент)
func (s *Storage) ListRequests(ctx context.Context, departmentID *int, limit, offset int) ([]PurchaseRequest, error) {
	requests := []PurchaseRequest{}
	if departmentID != nil {
		query := `
            SELECT * FROM purchase_requests
            WHERE department_id = $1
            ORDER BY created_at DESC
            LIMIT $2 OFFSET $3`
		err := s.db.SelectContext(ctx, &requests, query, *departmentID, limit, offset)
		return requests, err
	}
	query := `
        SELECT * FROM purchase_requests
        ORDER BY created_at DESC
        LIMIT $1 OFFSET $2`
	err := s.db.SelectContext(ctx, &requests, query, limit, offset)
	return requests, err
}
