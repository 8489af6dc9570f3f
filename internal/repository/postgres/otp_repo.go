package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/gigmarket/gigauth/internal/domain/entity"
)

// retiredCondition отбирает погашенные записи, не менявшиеся с before, и все истекшие до before
const retiredCondition = "(state <> ? AND updated_at < ?) OR expires_at < ?"

// OTPRepo реализует repository.OTPRepository
type OTPRepo struct {
	db *gorm.DB
}

// NewOTPRepo создает новый репозиторий одноразовых кодов
func NewOTPRepo(db *gorm.DB) *OTPRepo {
	return &OTPRepo{db: db}
}

// GetBySubjectPurpose возвращает запись пары или ErrNotFound
func (r *OTPRepo) GetBySubjectPurpose(ctx context.Context, subject, purpose string) (*entity.OTPRecord, error) {
	var record entity.OTPRecord
	err := r.db.WithContext(ctx).
		Where("subject = ? AND purpose = ?", subject, purpose).
		First(&record).Error
	if err != nil {
		return nil, translateError(err, "get otp record")
	}
	return &record, nil
}

// Upsert вставляет запись или перезаписывает существующую для той же пары:
// счетчик попыток обнуляется, состояние возвращается в issued, версия растет.
// id и version после вызова соответствуют строке в БД.
func (r *OTPRepo) Upsert(ctx context.Context, record *entity.OTPRecord) error {
	record.Version = 1
	record.ConsumedAt = nil

	err := r.db.WithContext(ctx).
		Clauses(
			clause.OnConflict{
				Columns: []clause.Column{{Name: "subject"}, {Name: "purpose"}},
				DoUpdates: clause.Assignments(map[string]interface{}{
					"code_hash":     gorm.Expr("EXCLUDED.code_hash"),
					"code_salt":     gorm.Expr("EXCLUDED.code_salt"),
					"issued_at":     gorm.Expr("EXCLUDED.issued_at"),
					"expires_at":    gorm.Expr("EXCLUDED.expires_at"),
					"max_attempts":  gorm.Expr("EXCLUDED.max_attempts"),
					"updated_at":    gorm.Expr("EXCLUDED.updated_at"),
					"attempts_used": 0,
					"state":         entity.OTPStateIssued,
					"consumed_at":   nil,
					"version":       gorm.Expr("otp_records.version + 1"),
				}),
			},
			clause.Returning{},
		).
		Create(record).Error
	return translateError(err, "upsert otp record")
}

// CompareAndSwap сохраняет изменяемые поля, только если версия строки не изменилась
func (r *OTPRepo) CompareAndSwap(ctx context.Context, record *entity.OTPRecord, expectedVersion int64) (bool, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&entity.OTPRecord{}).
		Where("id = ? AND version = ?", record.ID, expectedVersion).
		UpdateColumns(map[string]interface{}{
			"attempts_used": record.AttemptsUsed,
			"state":         record.State,
			"consumed_at":   record.ConsumedAt,
			"version":       expectedVersion + 1,
			"updated_at":    now,
		})
	if result.Error != nil {
		return false, translateError(result.Error, "compare and swap otp record")
	}
	if result.RowsAffected != 1 {
		return false, nil
	}
	record.Version = expectedVersion + 1
	record.UpdatedAt = now
	return true, nil
}

// CountRetiredByPurpose считает записи к удалению по назначениям (для отчета job'а очистки)
func (r *OTPRepo) CountRetiredByPurpose(ctx context.Context, before time.Time) (map[string]int64, error) {
	var rows []struct {
		Purpose string
		Total   int64
	}
	err := r.db.WithContext(ctx).Model(&entity.OTPRecord{}).
		Select("purpose, COUNT(*) AS total").
		Where(retiredCondition, entity.OTPStateIssued, before, before).
		Group("purpose").
		Scan(&rows).Error
	if err != nil {
		return nil, translateError(err, "count retired otp records")
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Purpose] = row.Total
	}
	return counts, nil
}

// PurgeRetired удаляет погашенные и истекшие записи старше before
func (r *OTPRepo) PurgeRetired(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where(retiredCondition, entity.OTPStateIssued, before, before).
		Delete(&entity.OTPRecord{})
	if result.Error != nil {
		return 0, translateError(result.Error, "purge retired otp records")
	}
	return result.RowsAffected, nil
}
