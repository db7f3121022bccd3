package db

import (
	"context"
	"time"

	"procurahub/internal/apperror"
	"procurahub/internal/rules"
)

// Message (Сообщение) — переписка персонала закупок с поставщиком.
// Переписка всегда привязана к профилю поставщика.
type Message struct {
	ID          int                 `db:"id" json:"id"`
	SenderID    int                 `db:"sender_id" json:"senderId"`
	RecipientID int                 `db:"recipient_id" json:"recipientId"`
	SupplierID  int                 `db:"supplier_id" json:"supplierId"`
	Subject     string              `db:"subject" json:"subject"`
	Content     string              `db:"content" json:"content"`
	Status      rules.MessageStatus `db:"status" json:"status"`
	CreatedAt   time.Time           `db:"created_at" json:"createdAt"`
	ReadAt      *time.Time          `db:"read_at" json:"readAt,omitempty"`

	// Имена заполняются JOIN-ом при чтении
	SenderName    string `db:"sender_name" json:"senderName"`
	RecipientName string `db:"recipient_name" json:"recipientName"`
	SupplierName  string `db:"supplier_name" json:"supplierName"`
}

const messageSelect = `
    SELECT m.*,
           snd.full_name   AS sender_name,
           rcp.full_name   AS recipient_name,
           sp.company_name AS supplier_name
    FROM messages m
    JOIN users snd ON snd.id = m.sender_id
    JOIN users rcp ON rcp.id = m.recipient_id
    JOIN supplier_profiles sp ON sp.id = m.supplier_id`

func (s *Storage) CreateMessage(ctx context.Context, m *Message) error {
	query := `
        INSERT INTO messages (sender_id, recipient_id, supplier_id, subject, content, status)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id, created_at`
	return s.db.QueryRowContext(ctx, query,
		m.SenderID, m.RecipientID, m.SupplierID, m.Subject, m.Content, m.Status).
		Scan(&m.ID, &m.CreatedAt)
}

func (s *Storage) GetMessage(ctx context.Context, id int) (*Message, error) {
	m := &Message{}
	err := s.db.GetContext(ctx, m, messageSelect+` WHERE m.id=$1`, id)
	return m, notFoundOr(err, "message not found")
}

func (s *Storage) ListReceivedMessages(ctx context.Context, recipientID int) ([]Message, error) {
	messages := []Message{}
	query := messageSelect + ` WHERE m.recipient_id=$1 ORDER BY m.created_at DESC`
	err := s.db.SelectContext(ctx, &messages, query, recipientID)
	return messages, err
}

func (s *Storage) ListSentMessages(ctx context.Context, senderID int) ([]Message, error) {
	messages := []Message{}
	query := messageSelect + ` WHERE m.sender_id=$1 ORDER BY m.created_at DESC`
	err := s.db.SelectContext(ctx, &messages, query, senderID)
	return messages, err
}

// ListSupplierConversation возвращает переписку по поставщику, в которой
// участвует пользователь, в хронологическом порядке
func (s *Storage) ListSupplierConversation(ctx context.Context, supplierID, userID int) ([]Message, error) {
	messages := []Message{}
	query := messageSelect + `
        WHERE m.supplier_id=$1 AND (m.sender_id=$2 OR m.recipient_id=$2)
        ORDER BY m.created_at ASC`
	err := s.db.SelectContext(ctx, &messages, query, supplierID, userID)
	return messages, err
}

// MarkMessageRead помечает сообщение прочитанным. Отметить может только
// получатель, повторная отметка ничего не меняет.
func (s *Storage) MarkMessageRead(ctx context.Context, messageID, recipientID int, now time.Time) error {
	query := `
        UPDATE messages SET status=$1, read_at=COALESCE(read_at, $2)
        WHERE id=$3 AND recipient_id=$4`
	res, err := s.db.ExecContext(ctx, query, rules.MessageRead, now, messageID, recipientID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("message not found")
	}
	return nil
}
