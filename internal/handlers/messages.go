package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"procurahub/db"
	"procurahub/internal/apperror"
	"procurahub/internal/notify"
	"procurahub/internal/rules"
)

type sendMessageInput struct {
	RecipientID int    `json:"recipientId" validate:"required"`
	SupplierID  int    `json:"supplierId" validate:"required"`
	Subject     string `json:"subject" validate:"required,max=255"`
	Content     string `json:"content" validate:"required"`
}

// messageListResponse — список сообщений со счётчиком непрочитанных
type messageListResponse struct {
	Messages    []db.Message `json:"messages"`
	TotalCount  int          `json:"totalCount"`
	UnreadCount int          `json:"unreadCount"`
}

// SendMessageHandler обрабатывает POST /api/messages: переписка персонала
// закупок с поставщиком. Поставщик может писать только от имени
// собственного профиля, ответ идёт тем же эндпоинтом.
func (h *Handler) SendMessageHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	var input sendMessageInput
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, err)
		return
	}

	supplier, err := h.Store.GetSupplier(r.Context(), input.SupplierID)
	if err != nil {
		writeError(w, err)
		return
	}
	if identity.Role == rules.RoleSupplier {
		if supplier.UserID != identity.UserID {
			writeError(w, apperror.Forbidden("suppliers may only message about their own profile"))
			return
		}
	} else if !rules.CanMessageSuppliers(identity.Role) {
		writeError(w, apperror.Forbidden("no access to supplier messaging"))
		return
	}

	recipient, err := h.Store.GetUser(r.Context(), input.RecipientID)
	if err != nil {
		writeError(w, err)
		return
	}
	sender, err := h.Store.GetUser(r.Context(), identity.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	message := db.Message{
		SenderID:    identity.UserID,
		RecipientID: recipient.ID,
		SupplierID:  supplier.ID,
		Subject:     input.Subject,
		Content:     input.Content,
		Status:      rules.MessageSent,
	}
	if err := h.Store.CreateMessage(r.Context(), &message); err != nil {
		writeError(w, err)
		return
	}
	message.SenderName = sender.FullName
	message.RecipientName = recipient.FullName
	message.SupplierName = supplier.CompanyName

	subject, body := notify.NewMessage(recipient.FullName, sender.FullName, supplier.CompanyName, message.Subject, message.Content)
	h.Notifier.Send(recipient.Email, subject, body)

	writeJSON(w, http.StatusCreated, message)
}

// ListReceivedMessagesHandler обрабатывает GET /api/messages/received
func (h *Handler) ListReceivedMessagesHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	messages, err := h.Store.ListReceivedMessages(r.Context(), identity.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageListResponse{
		Messages:    messages,
		TotalCount:  len(messages),
		UnreadCount: countUnread(messages, identity.UserID),
	})
}

// ListSentMessagesHandler обрабатывает GET /api/messages/sent
func (h *Handler) ListSentMessagesHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	messages, err := h.Store.ListSentMessages(r.Context(), identity.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageListResponse{Messages: messages, TotalCount: len(messages)})
}

// SupplierConversationHandler обрабатывает GET
// /api/messages/conversation/{supplierID}: вся переписка по поставщику,
// в которой участвует текущий пользователь
func (h *Handler) SupplierConversationHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	supplierID, err := urlID(chi.URLParam(r, "supplierID"))
	if err != nil {
		writeError(w, err)
		return
	}
	supplier, err := h.Store.GetSupplier(r.Context(), supplierID)
	if err != nil {
		writeError(w, err)
		return
	}
	if identity.Role == rules.RoleSupplier && supplier.UserID != identity.UserID {
		writeError(w, apperror.Forbidden("no access to this conversation"))
		return
	}

	messages, err := h.Store.ListSupplierConversation(r.Context(), supplier.ID, identity.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageListResponse{
		Messages:    messages,
		TotalCount:  len(messages),
		UnreadCount: countUnread(messages, identity.UserID),
	})
}

// MarkMessageReadHandler обрабатывает PUT /api/messages/{messageID}/read.
// Чужое сообщение для получателя не существует.
func (h *Handler) MarkMessageReadHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	id, err := urlID(chi.URLParam(r, "messageID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.Store.MarkMessageRead(r.Context(), id, identity.UserID, time.Now()); err != nil {
		writeError(w, err)
		return
	}
	message, err := h.Store.GetMessage(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, message)
}

func countUnread(messages []db.Message, userID int) int {
	n := 0
	for _, m := range messages {
		if m.RecipientID == userID && m.Status == rules.MessageSent {
			n++
		}
	}
	return n
}
