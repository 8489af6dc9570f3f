package repository

import (
	"context"
	"time"

	"github.com/gigmarket/gigauth/internal/domain/entity"
)

// OTPRepository: постоянное хранилище выданных кодов.
// Естественный ключ записи: пара (subject, purpose).
type OTPRepository interface {
	// GetBySubjectPurpose возвращает apperrors.ErrNotFound, если код не выдавался
	GetBySubjectPurpose(ctx context.Context, subject, purpose string) (*entity.OTPRecord, error)

	// Upsert записывает новый код, затирая предыдущую запись для той же пары
	Upsert(ctx context.Context, record *entity.OTPRecord) error

	// CompareAndSwap сохраняет attempts_used/state/consumed_at одним условным UPDATE
	// по id и ожидаемой версии. false: запись успели изменить параллельно.
	CompareAndSwap(ctx context.Context, record *entity.OTPRecord, expectedVersion int64) (bool, error)

	// CountRetiredByPurpose считает записи, которые удалит PurgeRetired
	CountRetiredByPurpose(ctx context.Context, before time.Time) (map[string]int64, error)

	// PurgeRetired физически удаляет погашенные и истекшие записи старше before
	PurgeRetired(ctx context.Context, before time.Time) (int64, error)
}
