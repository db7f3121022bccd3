package db

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"procurahub/internal/apperror"
	"procurahub/internal/rules"
)

// RFQ (Запрос котировок)
type RFQ struct {
	ID          int                 `db:"id" json:"id"`
	RFQNumber   string              `db:"rfq_number" json:"rfqNumber"`
	Title       string              `db:"title" json:"title"`
	Description string              `db:"description" json:"description"`
	Category    string              `db:"category" json:"category"`
	Budget      decimal.NullDecimal `db:"budget" json:"budget,omitempty"`
	Currency    string              `db:"currency" json:"currency"`
	Deadline    time.Time           `db:"deadline" json:"deadline"`
	Status      rules.RFQStatus     `db:"status" json:"status"`
	CreatedByID int                 `db:"created_by_id" json:"createdById"`
	CreatedAt   time.Time           `db:"created_at" json:"createdAt"`
	UpdatedAt   *time.Time          `db:"updated_at" json:"-"`
}

// GenerateRFQNumber форматирует номер вида RFQ007_082026
func GenerateRFQNumber(rfqID int, moment time.Time) string {
	return fmt.Sprintf("RFQ%03d_%s", rfqID, moment.Format("012006"))
}

// CreateRFQ вставляет RFQ и сразу присваивает номер по выданному id
func (s *Storage) CreateRFQ(ctx context.Context, r *RFQ) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
        INSERT INTO rfqs
            (rfq_number, title, description, category, budget, currency, deadline, status, created_by_id)
        VALUES
            ('', $1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id, created_at`
	err = tx.QueryRowContext(ctx, query,
		r.Title, r.Description, r.Category, r.Budget, r.Currency,
		r.Deadline, r.Status, r.CreatedByID).
		Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		return err
	}

	r.RFQNumber = GenerateRFQNumber(r.ID, r.CreatedAt)
	_, err = tx.ExecContext(ctx, `UPDATE rfqs SET rfq_number=$1 WHERE id=$2`, r.RFQNumber, r.ID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// IssueRFQForRequest создаёт RFQ и переводит заявку в rfq_issued одной
// транзакцией: одобрение закупками не должно наблюдаться наполовину
func (s *Storage) IssueRFQForRequest(ctx context.Context, r *PurchaseRequest, rfq *RFQ) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
        INSERT INTO rfqs
            (rfq_number, title, description, category, budget, currency, deadline, status, created_by_id)
        VALUES
            ('', $1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id, created_at`
	err = tx.QueryRowContext(ctx, query,
		rfq.Title, rfq.Description, rfq.Category, rfq.Budget, rfq.Currency,
		rfq.Deadline, rfq.Status, rfq.CreatedByID).
		Scan(&rfq.ID, &rfq.CreatedAt)
	if err != nil {
		return err
	}
	rfq.RFQNumber = GenerateRFQNumber(rfq.ID, rfq.CreatedAt)
	if _, err = tx.ExecContext(ctx, `UPDATE rfqs SET rfq_number=$1 WHERE id=$2`, rfq.RFQNumber, rfq.ID); err != nil {
		return err
	}

	r.RFQID = &rfq.ID
	_, err = tx.ExecContext(ctx, `
        UPDATE purchase_requests
        SET status=$1,
            procurement_notes=$2, procurement_rejection_reason=NULL,
            procurement_reviewer_id=$3, procurement_reviewed_at=$4,
            budget_amount=$5, budget_currency=$6, rfq_id=$7,
            updated_at=NOW()
        WHERE id=$8`,
		r.Status, r.ProcurementNotes, r.ProcurementReviewerID, r.ProcurementReviewedAt,
		r.BudgetAmount, r.BudgetCurrency, r.RFQID, r.ID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Storage) GetRFQ(ctx context.Context, id int) (*RFQ, error) {
	r := &RFQ{}
	query := `SELECT * FROM rfqs WHERE id=$1`
	err := s.db.GetContext(ctx, r, query, id)
	return r, notFoundOr(err, "RFQ not found")
}

func (s *Storage) UpdateRFQStatus(ctx context.Context, id int, status rules.RFQStatus) error {
	query := `UPDATE rfqs SET status=$1, updated_at=NOW() WHERE id=$2`
	res, err := s.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("RFQ not found")
	}
	return nil
}

// ListRFQs возвращает страницу RFQ; черновики отдаются только когда
// includeDrafts выставлен (закупки/админ)
func (s *Storage) ListRFQs(ctx context.Context, includeDrafts bool, limit, offset int) ([]RFQ, error) {
	rfqs := []RFQ{}
	if includeDrafts {
		query := `SELECT * FROM rfqs ORDER BY created_at DESC LIMIT $1 OFFSET $2`
		err := s.db.SelectContext(ctx, &rfqs, query, limit, offset)
		return rfqs, err
	}
	query := `SELECT * FROM rfqs WHERE status <> 'draft' ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	err := s.db.SelectContext(ctx, &rfqs, query, limit, offset)
	return rfqs, err
}

// ListRFQsForSupplier — RFQ, на которые поставщик приглашён
func (s *Storage) ListRFQsForSupplier(ctx context.Context, supplierID, limit, offset int) ([]RFQ, error) {
	rfqs := []RFQ{}
	query := `
        SELECT r.* FROM rfqs r
        JOIN rfq_invitations i ON i.rfq_id = r.id
        WHERE i.supplier_id = $1 AND r.status <> 'draft'
        ORDER BY r.created_at DESC
        LIMIT $2 OFFSET $3`
	err := s.db.SelectContext(ctx, &rfqs, query, supplierID, limit, offset)
	return rfqs, err
}

// CloseExpiredRFQs — ленивое закрытие просроченных открытых RFQ.
// Идемпотентно, вызывается в начале любого обработчика, трогающего RFQ.
func (s *Storage) CloseExpiredRFQs(ctx context.Context, now time.Time) (int, error) {
	query := `UPDATE rfqs SET status='closed', updated_at=NOW() WHERE status='open' AND deadline <= $1`
	res, err := s.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// RFQInvitation (Приглашение поставщика)
type RFQInvitation struct {
	ID          int                    `db:"id" json:"id"`
	RFQID       int                    `db:"rfq_id" json:"rfqId"`
	SupplierID  int                    `db:"supplier_id" json:"supplierId"`
	InvitedAt   time.Time              `db:"invited_at" json:"invitedAt"`
	RespondedAt *time.Time             `db:"responded_at" json:"respondedAt,omitempty"`
	Status      rules.InvitationStatus `db:"status" json:"status"`
}

func (s *Storage) GetInvitation(ctx context.Context, rfqID, supplierID int) (*RFQInvitation, error) {
	inv := &RFQInvitation{}
	query := `SELECT * FROM rfq_invitations WHERE rfq_id=$1 AND supplier_id=$2`
	err := s.db.GetContext(ctx, inv, query, rfqID, supplierID)
	return inv, notFoundOr(err, "invitation not found")
}

func (s *Storage) ListInvitationsForRFQ(ctx context.Context, rfqID int) ([]RFQInvitation, error) {
	invitations := []RFQInvitation{}
	query := `SELECT * FROM rfq_invitations WHERE rfq_id=$1 ORDER BY invited_at ASC`
	err := s.db.SelectContext(ctx, &invitations, query, rfqID)
	return invitations, err
}

// ListInvitedSupplierIDs — кто уже приглашён на RFQ (для идемпотентного повтора)
func (s *Storage) ListInvitedSupplierIDs(ctx context.Context, rfqID int) (map[int]bool, error) {
	ids := []int{}
	query := `SELECT supplier_id FROM rfq_invitations WHERE rfq_id=$1`
	if err := s.db.SelectContext(ctx, &ids, query, rfqID); err != nil {
		return nil, err
	}
	invited := make(map[int]bool, len(ids))
	for _, id := range ids {
		invited[id] = true
	}
	return invited, nil
}

// CreateInvitations атомарно создаёт приглашения и двигает счётчики ротации:
// вставка и инкремент на поставщика в одной транзакции, чтобы сбой посреди
// пачки не задвоил счётчик. Уже приглашённые молча пропускаются.
func (s *Storage) CreateInvitations(ctx context.Context, rfqID int, supplierIDs []int, now time.Time) ([]int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	invited := make([]int, 0, len(supplierIDs))
	for _, supplierID := range supplierIDs {
		res, err := tx.ExecContext(ctx, `
            INSERT INTO rfq_invitations (rfq_id, supplier_id, invited_at, status)
            VALUES ($1, $2, $3, 'invited')
            ON CONFLICT (rfq_id, supplier_id) DO NOTHING`, rfqID, supplierID, now)
		if err != nil {
			return nil, err
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			continue
		}
		_, err = tx.ExecContext(ctx, `
            UPDATE supplier_profiles
            SET invitations_sent = invitations_sent + 1, last_invited_at = $1, updated_at = NOW()
            WHERE id = $2`, now, supplierID)
		if err != nil {
			return nil, err
		}
		invited = append(invited, supplierID)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return invited, nil
}

// RFQDocument (Документ RFQ) — RFQ монопольно владеет своими документами,
// хранится только ссылка на файл
type RFQDocument struct {
	ID               int       `db:"id" json:"id"`
	RFQID            int       `db:"rfq_id" json:"rfqId"`
	FileRef          string    `db:"file_ref" json:"fileRef"`
	OriginalFilename string    `db:"original_filename" json:"originalFilename"`
	UploadedAt       time.Time `db:"uploaded_at" json:"uploadedAt"`
}

func (s *Storage) AddRFQDocument(ctx context.Context, d *RFQDocument) error {
	query := `
        INSERT INTO rfq_documents (rfq_id, file_ref, original_filename)
        VALUES ($1, $2, $3)
        RETURNING id, uploaded_at`
	return s.db.QueryRowContext(ctx, query, d.RFQID, d.FileRef, d.OriginalFilename).
		Scan(&d.ID, &d.UploadedAt)
}

func (s *Storage) ListRFQDocuments(ctx context.Context, rfqID int) ([]RFQDocument, error) {
	documents := []RFQDocument{}
	query := `SELECT * FROM rfq_documents WHERE rfq_id=$1 ORDER BY uploaded_at ASC`
	err := s.db.SelectContext(ctx, &documents, query, rfqID)
	return documents, err
}
