package db

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SupplierProfile (Профиль поставщика)
type SupplierProfile struct {
	ID             int     `db:"id" json:"id"`
	UserID         int     `db:"user_id" json:"userId"`
	SupplierNumber string  `db:"supplier_number" json:"supplierNumber"`
	CompanyName    string  `db:"company_name" json:"companyName"`
	ContactEmail   string  `db:"contact_email" json:"contactEmail"`
	ContactPhone   *string `db:"contact_phone" json:"contactPhone,omitempty"`
	Address        *string `db:"address" json:"address,omitempty"`

	// Счётчики ротации, меняются только планировщиком приглашений
	InvitationsSent int        `db:"invitations_sent" json:"invitationsSent"`
	LastInvitedAt   *time.Time `db:"last_invited_at" json:"lastInvitedAt,omitempty"`
	// Сумма присуждённых контрактов, меняется только при награждении
	TotalAwardedValue decimal.Decimal `db:"total_awarded_value" json:"totalAwardedValue"`

	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt *time.Time `db:"updated_at" json:"-"`
}

// NextSupplierNumber выдаёт следующий номер поставщика SUP-YYYYMMDD-NNNN
func (s *Storage) NextSupplierNumber(ctx context.Context, now time.Time) (string, error) {
	prefix := fmt.Sprintf("SUP-%s", now.Format("20060102"))
	var latest string
	query := `
        SELECT supplier_number FROM supplier_profiles
        WHERE supplier_number LIKE $1
        ORDER BY supplier_number DESC
        LIMIT 1`
	err := s.db.GetContext(ctx, &latest, query, prefix+"%")
	if err != nil && !isNoRows(err) {
		return "", err
	}
	next := 1
	if err == nil {
		next = nextSupplierSerial(latest)
	}
	return fmt.Sprintf("%s-%04d", prefix, next), nil
}

// nextSupplierSerial извлекает порядковый номер из последнего выданного
// номера дня и возвращает следующий
func nextSupplierSerial(latest string) int {
	parts := strings.Split(latest, "-")
	if n, err := strconv.Atoi(parts[len(parts)-1]); err == nil {
		return n + 1
	}
	return 1
}

// CreateSupplier сохраняет профиль вместе с тегами категорий
func (s *Storage) CreateSupplier(ctx context.Context, p *SupplierProfile, categories []string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
        INSERT INTO supplier_profiles
            (user_id, supplier_number, company_name, contact_email, contact_phone, address)
        VALUES
            ($1, $2, $3, $4, $5, $6)
        RETURNING id, created_at`
	err = tx.QueryRowContext(ctx, query,
		p.UserID, p.SupplierNumber, p.CompanyName, p.ContactEmail, p.ContactPhone, p.Address).
		Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return err
	}

	for _, name := range categories {
		_, err = tx.ExecContext(ctx, `
            INSERT INTO supplier_categories (supplier_id, name)
            VALUES ($1, $2)
            ON CONFLICT (supplier_id, name) DO NOTHING`, p.ID, name)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *Storage) GetSupplier(ctx context.Context, id int) (*SupplierProfile, error) {
	p := &SupplierProfile{}
	query := `SELECT * FROM supplier_profiles WHERE id=$1`
	err := s.db.GetContext(ctx, p, query, id)
	return p, notFoundOr(err, "supplier not found")
}

func (s *Storage) GetSupplierByUserID(ctx context.Context, userID int) (*SupplierProfile, error) {
	p := &SupplierProfile{}
	query := `SELECT * FROM supplier_profiles WHERE user_id=$1`
	err := s.db.GetContext(ctx, p, query, userID)
	return p, notFoundOr(err, "supplier profile not found")
}

func (s *Storage) ListSuppliers(ctx context.Context) ([]SupplierProfile, error) {
	suppliers := []SupplierProfile{}
	query := `SELECT * FROM supplier_profiles ORDER BY company_name ASC`
	err := s.db.SelectContext(ctx, &suppliers, query)
	return suppliers, err
}

// ListSuppliersByCategory — кандидаты планировщика: поставщики, чьи теги
// пересекаются с категорией RFQ
func (s *Storage) ListSuppliersByCategory(ctx context.Context, category string) ([]SupplierProfile, error) {
	suppliers := []SupplierProfile{}
	query := `
        SELECT sp.* FROM supplier_profiles sp
        JOIN supplier_categories sc ON sc.supplier_id = sp.id
        WHERE sc.name = $1
        ORDER BY sp.id ASC`
	err := s.db.SelectContext(ctx, &suppliers, query, category)
	return suppliers, err
}

func (s *Storage) GetSupplierCategories(ctx context.Context, supplierID int) ([]string, error) {
	names := []string{}
	query := `SELECT name FROM supplier_categories WHERE supplier_id=$1 ORDER BY name ASC`
	err := s.db.SelectContext(ctx, &names, query, supplierID)
	return names, err
}
