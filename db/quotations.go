package db

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"procurahub/internal/apperror"
	"procurahub/internal/rules"
)

// Quotation (Котировка поставщика)
type Quotation struct {
	ID             int                   `db:"id" json:"id"`
	RFQID          int                   `db:"rfq_id" json:"rfqId"`
	SupplierID     int                   `db:"supplier_id" json:"supplierId"`
	SupplierUserID int                   `db:"supplier_user_id" json:"supplierUserId"`
	Amount         decimal.Decimal       `db:"amount" json:"amount"`
	Currency       string                `db:"currency" json:"currency"`
	TaxType        *string               `db:"tax_type" json:"taxType,omitempty"`
	TaxAmount      decimal.NullDecimal   `db:"tax_amount" json:"taxAmount,omitempty"`
	Notes          *string               `db:"notes" json:"notes,omitempty"`
	DocumentRef    *string               `db:"document_ref" json:"documentRef,omitempty"`
	DocumentName   *string               `db:"document_name" json:"documentName,omitempty"`
	Status         rules.QuotationStatus `db:"status" json:"status"`

	SubmittedAt  time.Time  `db:"submitted_at" json:"submittedAt"`
	ApprovedAt   *time.Time `db:"approved_at" json:"approvedAt,omitempty"`
	ApprovedByID *int       `db:"approved_by_id" json:"approvedById,omitempty"`

	BudgetOverrideJustification *string    `db:"budget_override_justification" json:"budgetOverrideJustification,omitempty"`
	FinanceRequestedAt          *time.Time `db:"finance_requested_at" json:"financeRequestedAt,omitempty"`
	FinanceRequestedByID        *int       `db:"finance_requested_by_id" json:"financeRequestedById,omitempty"`

	DeliveryStatus      *string    `db:"delivery_status" json:"deliveryStatus,omitempty"`
	DeliveredAt         *time.Time `db:"delivered_at" json:"deliveredAt,omitempty"`
	DeliveryNoteRef     *string    `db:"delivery_note_ref" json:"deliveryNoteRef,omitempty"`
	DeliveryNoteName    *string    `db:"delivery_note_name" json:"deliveryNoteName,omitempty"`
	MarkedDeliveredByID *int       `db:"marked_delivered_by_id" json:"markedDeliveredById,omitempty"`
}

// UpsertQuotation сохраняет котировку; повторная подача того же поставщика
// перезаписывает прежнюю строку и возвращает статус в submitted.
// Приглашение помечается отвеченным в той же транзакции.
func (s *Storage) UpsertQuotation(ctx context.Context, q *Quotation) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
        INSERT INTO rfq_quotations
            (rfq_id, supplier_id, supplier_user_id, amount, currency,
             tax_type, tax_amount, notes, document_ref, document_name, status, submitted_at)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 'submitted', NOW())
        ON CONFLICT (rfq_id, supplier_id) DO UPDATE SET
            supplier_user_id = EXCLUDED.supplier_user_id,
            amount = EXCLUDED.amount,
            currency = EXCLUDED.currency,
            tax_type = EXCLUDED.tax_type,
            tax_amount = EXCLUDED.tax_amount,
            notes = EXCLUDED.notes,
            document_ref = COALESCE(EXCLUDED.document_ref, rfq_quotations.document_ref),
            document_name = COALESCE(EXCLUDED.document_name, rfq_quotations.document_name),
            status = 'submitted',
            submitted_at = NOW(),
            approved_at = NULL,
            approved_by_id = NULL,
            budget_override_justification = NULL,
            finance_requested_at = NULL,
            finance_requested_by_id = NULL
        RETURNING id, status, submitted_at`
	err = tx.QueryRowContext(ctx, query,
		q.RFQID, q.SupplierID, q.SupplierUserID, q.Amount, q.Currency,
		q.TaxType, q.TaxAmount, q.Notes, q.DocumentRef, q.DocumentName).
		Scan(&q.ID, &q.Status, &q.SubmittedAt)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
        UPDATE rfq_invitations
        SET status='responded', responded_at=NOW()
        WHERE rfq_id=$1 AND supplier_id=$2`, q.RFQID, q.SupplierID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Storage) GetQuotation(ctx context.Context, rfqID, quotationID int) (*Quotation, error) {
	q := &Quotation{}
	query := `SELECT * FROM rfq_quotations WHERE id=$1 AND rfq_id=$2`
	err := s.db.GetContext(ctx, q, query, quotationID, rfqID)
	return q, notFoundOr(err, "quotation not found")
}

func (s *Storage) ListQuotationsForRFQ(ctx context.Context, rfqID int) ([]Quotation, error) {
	quotations := []Quotation{}
	query := `SELECT * FROM rfq_quotations WHERE rfq_id=$1 ORDER BY submitted_at ASC`
	err := s.db.SelectContext(ctx, &quotations, query, rfqID)
	return quotations, err
}

// SetQuotationPendingFinance переводит сверхбюджетную котировку на
// финансовое согласование с обоснованием
func (s *Storage) SetQuotationPendingFinance(ctx context.Context, quotationID, requestedByID int, justification string) error {
	query := `
        UPDATE rfq_quotations
        SET status='pending_finance_approval',
            budget_override_justification=$1,
            finance_requested_at=NOW(),
            finance_requested_by_id=$2
        WHERE id=$3`
	res, err := s.db.ExecContext(ctx, query, justification, requestedByID, quotationID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("quotation not found")
	}
	return nil
}

func (s *Storage) RejectQuotation(ctx context.Context, quotationID int) error {
	query := `UPDATE rfq_quotations SET status='rejected', approved_at=NULL, approved_by_id=NULL WHERE id=$1`
	res, err := s.db.ExecContext(ctx, query, quotationID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("quotation not found")
	}
	return nil
}

// AwardResult — данные для пост-коммитных уведомлений о награждении
type AwardResult struct {
	Winner    SupplierProfile
	Losers    []SupplierProfile
	RequestID *int
}

// AwardQuotation финально одобряет котировку и присуждает RFQ одной
// транзакцией: строка RFQ блокируется, проигравшие котировки отклоняются,
// статусы приглашений раскладываются, сумма наград поставщика растёт,
// исходная заявка закрывается. Параллельное награждение того же RFQ
// сериализуется на блокировке; проигравший вызов получает conflict.
func (s *Storage) AwardQuotation(ctx context.Context, rfqID, quotationID, approverID int, addToTotal decimal.Decimal) (*AwardResult, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rfq := &RFQ{}
	err = tx.GetContext(ctx, rfq, `SELECT * FROM rfqs WHERE id=$1 FOR UPDATE`, rfqID)
	if err != nil {
		return nil, notFoundOr(err, "RFQ not found")
	}
	if rfq.Status == rules.RFQAwarded {
		return nil, apperror.Conflict("RFQ has already been awarded")
	}
	if !rules.CanAwardFromRFQStatus(rfq.Status) {
		return nil, apperror.InvalidState("RFQ cannot be awarded from its current status")
	}

	q := &Quotation{}
	err = tx.GetContext(ctx, q, `SELECT * FROM rfq_quotations WHERE id=$1 AND rfq_id=$2`, quotationID, rfqID)
	if err != nil {
		return nil, notFoundOr(err, "quotation not found")
	}
	if q.Status != rules.QuotationSubmitted && q.Status != rules.QuotationPendingFinance {
		return nil, apperror.InvalidState("quotation is no longer awaiting approval")
	}

	_, err = tx.ExecContext(ctx, `
        UPDATE rfq_quotations
        SET status='approved', approved_at=NOW(), approved_by_id=$1
        WHERE id=$2`, approverID, quotationID)
	if err != nil {
		return nil, err
	}

	// RFQ присуждается ровно одному поставщику: остальные котировки
	// неявно отклоняются
	_, err = tx.ExecContext(ctx, `
        UPDATE rfq_quotations
        SET status='rejected', approved_at=NULL, approved_by_id=NULL
        WHERE rfq_id=$1 AND id<>$2 AND status<>'rejected'`, rfqID, quotationID)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
        UPDATE rfq_invitations
        SET status='awarded', responded_at=COALESCE(responded_at, NOW())
        WHERE rfq_id=$1 AND supplier_id=$2`, rfqID, q.SupplierID)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
        UPDATE rfq_invitations
        SET status='not_selected'
        WHERE rfq_id=$1 AND supplier_id<>$2`, rfqID, q.SupplierID)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `UPDATE rfqs SET status='awarded', updated_at=NOW() WHERE id=$1`, rfqID)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
        UPDATE supplier_profiles
        SET total_awarded_value = total_awarded_value + $1, updated_at=NOW()
        WHERE id=$2`, addToTotal, q.SupplierID)
	if err != nil {
		return nil, err
	}

	var requestID *int
	err = tx.QueryRowContext(ctx, `
        UPDATE purchase_requests
        SET status='completed', updated_at=NOW()
        WHERE rfq_id=$1 AND status='rfq_issued'
        RETURNING id`, rfqID).Scan(&requestID)
	if err != nil && !isNoRows(err) {
		return nil, err
	}

	result := &AwardResult{RequestID: requestID}
	err = tx.GetContext(ctx, &result.Winner, `SELECT * FROM supplier_profiles WHERE id=$1`, q.SupplierID)
	if err != nil {
		return nil, err
	}
	err = tx.SelectContext(ctx, &result.Losers, `
        SELECT sp.* FROM supplier_profiles sp
        JOIN rfq_quotations q ON q.supplier_id = sp.id
        WHERE q.rfq_id=$1 AND q.id<>$2`, rfqID, quotationID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return result, nil
}

// MarkQuotationDelivered фиксирует доставку по присуждённой котировке
func (s *Storage) MarkQuotationDelivered(ctx context.Context, quotationID, markedByID int, noteRef, noteName *string) error {
	query := `
        UPDATE rfq_quotations
        SET delivery_status='delivered', delivered_at=NOW(),
            delivery_note_ref=$1, delivery_note_name=$2, marked_delivered_by_id=$3
        WHERE id=$4`
	res, err := s.db.ExecContext(ctx, query, noteRef, noteName, markedByID, quotationID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("quotation not found")
	}
	return nil
}
