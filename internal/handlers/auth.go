package handlers

import (
	"net/http"
	"time"

	"procurahub/internal/apperror"
	"procurahub/internal/auth"
)

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token    string `json:"token"`
	UserID   int    `json:"userId"`
	Role     string `json:"role"`
	FullName string `json:"fullName"`
}

// LoginHandler обрабатывает POST /api/login запрос
func (h *Handler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var input loginRequest
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.Store.GetUserByEmail(r.Context(), input.Email)
	if err != nil || !user.IsActive || !auth.VerifyPassword(input.Password, user.HashedPassword) {
		// Не различаем неизвестный email и неверный пароль
		writeError(w, apperror.Forbidden("invalid credentials"))
		return
	}

	token, err := h.Tokens.Issue(auth.Identity{UserID: user.ID, Role: user.Role}, time.Now())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:    token,
		UserID:   user.ID,
		Role:     string(user.Role),
		FullName: user.FullName,
	})
}
