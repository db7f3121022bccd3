package handlers

import (
	"crypto/subtle"
	"net/http"

	"procurahub/db"
	"procurahub/internal/apperror"
	"procurahub/internal/auth"
	"procurahub/internal/rules"
)

type initializeInput struct {
	AdminEmail    string `json:"adminEmail" validate:"required,email"`
	AdminPassword string `json:"adminPassword" validate:"required,min=8"`
	SecretToken   string `json:"secretToken" validate:"required"`
}

// InitializeHandler обрабатывает POST /api/setup/initialize: одноразовое
// создание первого администратора в пустой базе. Эндпоинт публичный,
// защищён секретом развёртывания и отключается после первого вызова.
func (h *Handler) InitializeHandler(w http.ResponseWriter, r *http.Request) {
	var input initializeInput
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, err)
		return
	}
	if subtle.ConstantTimeCompare([]byte(input.SecretToken), []byte(h.setupToken)) != 1 {
		writeError(w, apperror.Forbidden("invalid setup token"))
		return
	}

	count, err := h.Store.CountUsers(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if count > 0 {
		writeError(w, apperror.InvalidState("database is already initialized"))
		return
	}

	hash, err := auth.HashPassword(input.AdminPassword)
	if err != nil {
		writeError(w, err)
		return
	}
	admin := db.User{
		Email:          input.AdminEmail,
		HashedPassword: hash,
		FullName:       "Super Administrator",
		Role:           rules.RoleAdmin,
		IsActive:       true,
	}
	if err := h.Store.CreateUser(r.Context(), &admin); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, admin)
}

type setupStatusResponse struct {
	Initialized     bool `json:"initialized"`
	UserCount       int  `json:"userCount"`
	DepartmentCount int  `json:"departmentCount"`
}

// SetupStatusHandler обрабатывает GET /api/setup/status
func (h *Handler) SetupStatusHandler(w http.ResponseWriter, r *http.Request) {
	users, err := h.Store.CountUsers(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	departments, err := h.Store.ListDepartments(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, setupStatusResponse{
		Initialized:     users > 0,
		UserCount:       users,
		DepartmentCount: len(departments),
	})
}
