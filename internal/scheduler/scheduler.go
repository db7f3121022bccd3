package scheduler

import (
	"context"
	"sort"
	"time"

	"procurahub/db"
	"procurahub/internal/notify"
)

// Storage — срез хранилища, нужный планировщику приглашений
type Storage interface {
	ListSuppliersByCategory(ctx context.Context, category string) ([]db.SupplierProfile, error)
	ListSuppliers(ctx context.Context) ([]db.SupplierProfile, error)
	ListInvitedSupplierIDs(ctx context.Context, rfqID int) (map[int]bool, error)
	CreateInvitations(ctx context.Context, rfqID int, supplierIDs []int, now time.Time) ([]int, error)
}

// Scheduler раздаёт приглашения на RFQ справедливой ротацией:
// приоритет у реже и давнее всего приглашавшихся поставщиков
type Scheduler struct {
	store     Storage
	notifier  notify.Notifier
	batchSize int
}

func New(store Storage, notifier notify.Notifier, batchSize int) *Scheduler {
	return &Scheduler{store: store, notifier: notifier, batchSize: batchSize}
}

// Invite выбирает и приглашает пачку поставщиков для RFQ. Повторный вызов
// для того же RFQ идемпотентен: уже приглашённые не рассматриваются.
// Уведомления уходят после записи приглашений и не откатывают её.
func (s *Scheduler) Invite(ctx context.Context, rfq *db.RFQ, now time.Time) ([]db.SupplierProfile, error) {
	candidates, err := s.store.ListSuppliersByCategory(ctx, rfq.Category)
	if err != nil {
		return nil, err
	}
	// Пустая категория — деградация до полного пула, не ошибка
	if len(candidates) == 0 {
		candidates, err = s.store.ListSuppliers(ctx)
		if err != nil {
			return nil, err
		}
	}

	invited, err := s.store.ListInvitedSupplierIDs(ctx, rfq.ID)
	if err != nil {
		return nil, err
	}

	batch := SelectBatch(candidates, invited, s.batchSize)
	if len(batch) == 0 {
		return nil, nil
	}

	ids := make([]int, len(batch))
	byID := make(map[int]db.SupplierProfile, len(batch))
	for i, supplier := range batch {
		ids[i] = supplier.ID
		byID[supplier.ID] = supplier
	}

	createdIDs, err := s.store.CreateInvitations(ctx, rfq.ID, ids, now)
	if err != nil {
		return nil, err
	}

	result := make([]db.SupplierProfile, 0, len(createdIDs))
	for _, id := range createdIDs {
		supplier := byID[id]
		result = append(result, supplier)
		subject, body := notify.RFQInvitation(supplier.CompanyName, rfq.Title, rfq.Category, rfq.Deadline)
		s.notifier.Send(supplier.ContactEmail, subject, body)
	}
	return result, nil
}

// SelectBatch сортирует кандидатов по (invitations_sent, last_invited_at)
// по возрастанию, NULL-даты первыми, и берёт первые limit ещё не
// приглашённых. Хвостовой разрез по id ради детерминизма.
func SelectBatch(candidates []db.SupplierProfile, alreadyInvited map[int]bool, limit int) []db.SupplierProfile {
	eligible := make([]db.SupplierProfile, 0, len(candidates))
	for _, c := range candidates {
		if !alreadyInvited[c.ID] {
			eligible = append(eligible, c)
		}
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if a.InvitationsSent != b.InvitationsSent {
			return a.InvitationsSent < b.InvitationsSent
		}
		switch {
		case a.LastInvitedAt == nil && b.LastInvitedAt != nil:
			return true
		case a.LastInvitedAt != nil && b.LastInvitedAt == nil:
			return false
		case a.LastInvitedAt != nil && b.LastInvitedAt != nil && !a.LastInvitedAt.Equal(*b.LastInvitedAt):
			return a.LastInvitedAt.Before(*b.LastInvitedAt)
		}
		return a.ID < b.ID
	})

	if limit > 0 && len(eligible) > limit {
		eligible = eligible[:limit]
	}
	return eligible
}
