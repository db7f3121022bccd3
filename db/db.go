package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"procurahub/internal/apperror"
	"procurahub/internal/rules"
)

type Storage struct {
	db *sqlx.DB
}

func NewStorage(db *sqlx.DB) *Storage {
	return &Storage{db: db}
}

// notFoundOr переводит отсутствие строки в бизнес-ошибку not_found
func notFoundOr(err error, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperror.NotFound(message)
	}
	return err
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// User (Пользователь)
type User struct {
	ID             int        `db:"id" json:"id"`
	Email          string     `db:"email" json:"email"`
	HashedPassword string     `db:"hashed_password" json:"-"`
	FullName       string     `db:"full_name" json:"fullName"`
	Role           rules.Role `db:"role" json:"role"`
	IsActive       bool       `db:"is_active" json:"isActive"`
	CreatedAt      time.Time  `db:"created_at" json:"createdAt"`
}

func (s *Storage) CreateUser(ctx context.Context, u *User) error {
	query := `
        INSERT INTO users (email, hashed_password, full_name, role, is_active)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, created_at`
	return s.db.QueryRowContext(ctx, query,
		u.Email, u.HashedPassword, u.FullName, u.Role, u.IsActive).
		Scan(&u.ID, &u.CreatedAt)
}

func (s *Storage) GetUser(ctx context.Context, id int) (*User, error) {
	u := &User{}
	query := `SELECT * FROM users WHERE id=$1`
	err := s.db.GetContext(ctx, u, query, id)
	return u, notFoundOr(err, "user not found")
}

func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	u := &User{}
	query := `SELECT * FROM users WHERE email=$1`
	err := s.db.GetContext(ctx, u, query, email)
	return u, notFoundOr(err, "user not found")
}

// CountUsers — всего пользователей в системе; ноль означает, что база
// ещё не инициализирована
func (s *Storage) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM users`)
	return n, err
}

// ListUsersByRoles возвращает активных пользователей указанных ролей,
// используется для рассылки уведомлений команде закупок
func (s *Storage) ListUsersByRoles(ctx context.Context, roles []rules.Role) ([]User, error) {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	query, args, err := sqlx.In(
		`SELECT * FROM users WHERE role IN (?) AND is_active ORDER BY id ASC`, names)
	if err != nil {
		return nil, err
	}
	users := []User{}
	err = s.db.SelectContext(ctx, &users, s.db.Rebind(query), args...)
	return users, err
}

// Department (Департамент)
type Department struct {
	ID                 int        `db:"id" json:"id"`
	Name               string     `db:"name" json:"name"`
	Description        *string    `db:"description" json:"description,omitempty"`
	HeadOfDepartmentID *int       `db:"head_of_department_id" json:"headOfDepartmentId,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt          *time.Time `db:"updated_at" json:"-"`
}

func (s *Storage) CreateDepartment(ctx context.Context, d *Department) error {
	query := `
        INSERT INTO departments (name, description, head_of_department_id)
        VALUES ($1, $2, $3)
        RETURNING id, created_at`
	return s.db.QueryRowContext(ctx, query, d.Name, d.Description, d.HeadOfDepartmentID).
		Scan(&d.ID, &d.CreatedAt)
}

func (s *Storage) GetDepartment(ctx context.Context, id int) (*Department, error) {
	d := &Department{}
	query := `SELECT * FROM departments WHERE id=$1`
	err := s.db.GetContext(ctx, d, query, id)
	return d, notFoundOr(err, "department not found")
}

func (s *Storage) ListDepartments(ctx context.Context) ([]Department, error) {
	departments := []Department{}
	query := `SELECT * FROM departments ORDER BY name ASC`
	err := s.db.SelectContext(ctx, &departments, query)
	return departments, err
}

func (s *Storage) SetDepartmentHead(ctx context.Context, departmentID int, headID *int) error {
	query := `UPDATE departments SET head_of_department_id=$1, updated_at=NOW() WHERE id=$2`
	res, err := s.db.ExecContext(ctx, query, headID, departmentID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("department not found")
	}
	return nil
}

// ProcurementCategory (Категория закупок)
type ProcurementCategory struct {
	ID          int       `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

func (s *Storage) CreateCategory(ctx context.Context, c *ProcurementCategory) error {
	query := `
        INSERT INTO procurement_categories (name, description)
        VALUES ($1, $2)
        RETURNING id, created_at`
	return s.db.QueryRowContext(ctx, query, c.Name, c.Description).
		Scan(&c.ID, &c.CreatedAt)
}

func (s *Storage) GetCategoryByName(ctx context.Context, name string) (*ProcurementCategory, error) {
	c := &ProcurementCategory{}
	query := `SELECT * FROM procurement_categories WHERE name=$1`
	err := s.db.GetContext(ctx, c, query, name)
	return c, notFoundOr(err, "category not found")
}

func (s *Storage) ListCategories(ctx context.Context) ([]ProcurementCategory, error) {
	categories := []ProcurementCategory{}
	query := `SELECT * FROM procurement_categories ORDER BY name ASC`
	err := s.db.SelectContext(ctx, &categories, query)
	return categories, err
}
