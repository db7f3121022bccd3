package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"procurahub/db"
	"procurahub/internal/apperror"
	"procurahub/internal/auth"
	"procurahub/internal/rules"
)

type createUserRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	FullName string `json:"fullName" validate:"required,max=255"`
	Role     string `json:"role" validate:"required"`
}

// CreateUserHandler обрабатывает POST /api/users/new запрос (только админ).
// Роль пользователя неизменна: для смены роли пользователь создаётся заново.
func (h *Handler) CreateUserHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	if !rules.CanManageUsers(identity.Role) {
		writeError(w, apperror.Forbidden("only Admin may create users"))
		return
	}

	var input createUserRequest
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, err)
		return
	}

	role, err := rules.ParseRole(input.Role)
	if err != nil {
		writeError(w, err)
		return
	}
	if role == rules.RoleFinance {
		writeError(w, apperror.Validation("role Finance is deprecated; new users must not be created with it"))
		return
	}

	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	user := db.User{
		Email:          input.Email,
		HashedPassword: hash,
		FullName:       input.FullName,
		Role:           role,
		IsActive:       true,
	}
	if err := h.Store.CreateUser(r.Context(), &user); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

type createDepartmentRequest struct {
	Name               string  `json:"name" validate:"required,max=255"`
	Description        *string `json:"description"`
	HeadOfDepartmentID *int    `json:"headOfDepartmentId"`
}

// CreateDepartmentHandler обрабатывает POST /api/departments/new запрос
func (h *Handler) CreateDepartmentHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	if !rules.CanManageUsers(identity.Role) {
		writeError(w, apperror.Forbidden("only Admin may create departments"))
		return
	}

	var input createDepartmentRequest
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, err)
		return
	}

	if input.HeadOfDepartmentID != nil {
		head, err := h.Store.GetUser(r.Context(), *input.HeadOfDepartmentID)
		if err != nil {
			writeError(w, err)
			return
		}
		if head.Role != rules.RoleHeadOfDepartment && head.Role != rules.RoleAdmin {
			writeError(w, apperror.Validation("department head must hold the HeadOfDepartment role"))
			return
		}
	}

	department := db.Department{
		Name:               input.Name,
		Description:        input.Description,
		HeadOfDepartmentID: input.HeadOfDepartmentID,
	}
	if err := h.Store.CreateDepartment(r.Context(), &department); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, department)
}

type setDepartmentHeadRequest struct {
	HeadOfDepartmentID *int `json:"headOfDepartmentId"`
}

// SetDepartmentHeadHandler обрабатывает PUT /api/departments/{departmentID}/head.
// nil снимает руководителя: заявки такого департамента ждут решения админа.
func (h *Handler) SetDepartmentHeadHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	if !rules.CanManageUsers(identity.Role) {
		writeError(w, apperror.Forbidden("only Admin may assign department heads"))
		return
	}
	id, err := urlID(chi.URLParam(r, "departmentID"))
	if err != nil {
		writeError(w, err)
		return
	}
	var input setDepartmentHeadRequest
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, err)
		return
	}
	if input.HeadOfDepartmentID != nil {
		head, err := h.Store.GetUser(r.Context(), *input.HeadOfDepartmentID)
		if err != nil {
			writeError(w, err)
			return
		}
		if head.Role != rules.RoleHeadOfDepartment && head.Role != rules.RoleAdmin {
			writeError(w, apperror.Validation("department head must hold the HeadOfDepartment role"))
			return
		}
	}
	if err := h.Store.SetDepartmentHead(r.Context(), id, input.HeadOfDepartmentID); err != nil {
		writeError(w, err)
		return
	}
	department, err := h.Store.GetDepartment(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, department)
}

// ListDepartmentsHandler возвращает справочник департаментов
func (h *Handler) ListDepartmentsHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.identity(w, r); !ok {
		return
	}
	departments, err := h.Store.ListDepartments(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, departments)
}

type createCategoryRequest struct {
	Name        string  `json:"name" validate:"required,max=100"`
	Description *string `json:"description"`
}

// CreateCategoryHandler обрабатывает POST /api/categories/new запрос
func (h *Handler) CreateCategoryHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	if !rules.CanManageUsers(identity.Role) {
		writeError(w, apperror.Forbidden("only Admin may create categories"))
		return
	}

	var input createCategoryRequest
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, err)
		return
	}

	category := db.ProcurementCategory{Name: input.Name, Description: input.Description}
	if err := h.Store.CreateCategory(r.Context(), &category); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, category)
}

// ListCategoriesHandler возвращает справочник категорий закупок
func (h *Handler) ListCategoriesHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.identity(w, r); !ok {
		return
	}
	categories, err := h.Store.ListCategories(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

type createSupplierRequest struct {
	Email        string   `json:"email" validate:"required,email"`
	Password     string   `json:"password" validate:"required,min=8"`
	FullName     string   `json:"fullName" validate:"required,max=255"`
	CompanyName  string   `json:"companyName" validate:"required,max=255"`
	ContactEmail string   `json:"contactEmail" validate:"required,email"`
	ContactPhone *string  `json:"contactPhone"`
	Address      *string  `json:"address"`
	Categories   []string `json:"categories" validate:"required,min=1,dive,required,max=100"`
}

// CreateSupplierHandler регистрирует поставщика: пользователь с ролью
// Supplier плюс профиль с тегами категорий
func (h *Handler) CreateSupplierHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	if !rules.CanManageUsers(identity.Role) && identity.Role != rules.RoleProcurement {
		writeError(w, apperror.Forbidden("only Admin or Procurement may register suppliers"))
		return
	}

	var input createSupplierRequest
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, err)
		return
	}

	for _, name := range input.Categories {
		if _, err := h.Store.GetCategoryByName(r.Context(), name); err != nil {
			writeError(w, apperror.Validation("unknown category "+name))
			return
		}
	}

	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	user := db.User{
		Email:          input.Email,
		HashedPassword: hash,
		FullName:       input.FullName,
		Role:           rules.RoleSupplier,
		IsActive:       true,
	}
	if err := h.Store.CreateUser(r.Context(), &user); err != nil {
		writeError(w, err)
		return
	}

	number, err := h.Store.NextSupplierNumber(r.Context(), time.Now())
	if err != nil {
		writeError(w, err)
		return
	}
	profile := db.SupplierProfile{
		UserID:         user.ID,
		SupplierNumber: number,
		CompanyName:    input.CompanyName,
		ContactEmail:   input.ContactEmail,
		ContactPhone:   input.ContactPhone,
		Address:        input.Address,
	}
	if err := h.Store.CreateSupplier(r.Context(), &profile, input.Categories); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, profile)
}

// ListSuppliersHandler возвращает профили поставщиков (закупки/админ)
func (h *Handler) ListSuppliersHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	if !rules.CanInviteSuppliers(identity.Role) {
		writeError(w, apperror.Forbidden("only Procurement or Admin may list suppliers"))
		return
	}

	suppliers, err := h.Store.ListSuppliers(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, suppliers)
}

// supplierResponse — профиль с тегами категорий
type supplierResponse struct {
	*db.SupplierProfile
	Categories []string `json:"categories"`
}

// GetSupplierHandler возвращает профиль поставщика. Поставщик видит
// только собственный профиль.
func (h *Handler) GetSupplierHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	id, err := urlID(chi.URLParam(r, "supplierID"))
	if err != nil {
		writeError(w, err)
		return
	}
	profile, err := h.Store.GetSupplier(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !rules.CanInviteSuppliers(identity.Role) && profile.UserID != identity.UserID {
		writeError(w, apperror.Forbidden("no access to this supplier profile"))
		return
	}
	categories, err := h.Store.GetSupplierCategories(r.Context(), profile.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, supplierResponse{SupplierProfile: profile, Categories: categories})
}
