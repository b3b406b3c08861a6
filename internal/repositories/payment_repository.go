package repositories

import (
	"errors"
	"time"

	"agenda_backend/internal/models"

	"gorm.io/gorm"
)

var (
	ErrPaymentNotFound = errors.New("payment record not found")
)

// Scope ограничивает выборку pending-записей: одно бронирование, один
// аккаунт владельца или вся база (оба поля пустые).
type Scope struct {
	BookingID string
	OwnerID   string
}

// PaymentRepository — единственный компонент, которому разрешено писать
// статус PaymentRecord. Все переходы статуса идут через TryTransition:
// условный UPDATE по status='pending' служит точкой сериализации для
// конкурирующих путей сверки.
type PaymentRepository interface {
	CreatePending(db *gorm.DB, bookingID string, amount float64, percentage int, ttl time.Duration) (*models.PaymentRecord, error)
	FindByID(db *gorm.DB, id string) (*models.PaymentRecord, error)

	// LatestForBooking возвращает самую свежую запись платежа бронирования
	// независимо от статуса (локальная проверка триггеров).
	LatestForBooking(db *gorm.DB, bookingID string) (*models.PaymentRecord, error)

	// TryTransition — compare-and-set: переводит запись из pending в to и
	// возвращает true; если запись уже не pending — no-op и false.
	TryTransition(db *gorm.DB, id string, to models.PaymentStatus, processorRef *string) (bool, error)

	// ListPendingFor возвращает pending-записи скоупа, не истекшие,
	// от самых свежих к старым.
	ListPendingFor(db *gorm.DB, scope Scope) ([]models.PaymentRecord, error)

	// MarkExpired переводит pending-запись в expired; для уже конечной
	// записи — no-op.
	MarkExpired(db *gorm.DB, id string) (bool, error)

	// SetCode сохраняет текстовый платежный код записи. Код — не статус,
	// поэтому условный UPDATE здесь не нужен.
	SetCode(db *gorm.DB, id, code string) error

	// CreatePaidAudit создает сразу-конечную "paid" запись для участника
	// пакета: аудиторский паритет с индивидуально оплаченными бронированиями.
	CreatePaidAudit(db *gorm.DB, bookingID string, amount float64, percentage int, processorRef *string) (*models.PaymentRecord, error)
}

type PaymentRepositoryImpl struct{}

func NewPaymentRepository() PaymentRepository {
	return &PaymentRepositoryImpl{}
}

func (r *PaymentRepositoryImpl) CreatePending(db *gorm.DB, bookingID string, amount float64, percentage int, ttl time.Duration) (*models.PaymentRecord, error) {
	record := &models.PaymentRecord{
		BookingID:  bookingID,
		Amount:     amount,
		Percentage: percentage,
		Status:     models.PaymentStatusPending,
		ExpiresAt:  time.Now().Add(ttl),
	}
	if err := db.Create(record).Error; err != nil {
		return nil, err
	}
	return record, nil
}

func (r *PaymentRepositoryImpl) FindByID(db *gorm.DB, id string) (*models.PaymentRecord, error) {
	var record models.PaymentRecord
	err := db.First(&record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *PaymentRepositoryImpl) LatestForBooking(db *gorm.DB, bookingID string) (*models.PaymentRecord, error) {
	var record models.PaymentRecord
	err := db.Where("booking_id = ?", bookingID).
		Order("created_at DESC").
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *PaymentRepositoryImpl) TryTransition(db *gorm.DB, id string, to models.PaymentStatus, processorRef *string) (bool, error) {
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now(),
	}
	if to == models.PaymentStatusPaid {
		now := time.Now()
		updates["paid_at"] = &now
	}
	if processorRef != nil {
		updates["processor_ref"] = processorRef
	}

	// Условный UPDATE: строка обновится только если она все еще pending.
	result := db.Model(&models.PaymentRecord{}).
		Where("id = ? AND status = ?", id, models.PaymentStatusPending).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *PaymentRepositoryImpl) ListPendingFor(db *gorm.DB, scope Scope) ([]models.PaymentRecord, error) {
	q := db.Model(&models.PaymentRecord{}).
		Where("payment_records.status = ?", models.PaymentStatusPending).
		Where("payment_records.expires_at > ?", time.Now())

	switch {
	case scope.BookingID != "":
		q = q.Where("payment_records.booking_id = ?", scope.BookingID)
	case scope.OwnerID != "":
		q = q.Joins("JOIN bookings ON bookings.id = payment_records.booking_id").
			Where("bookings.owner_id = ?", scope.OwnerID)
	}

	var records []models.PaymentRecord
	if err := q.Order("payment_records.created_at DESC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *PaymentRepositoryImpl) MarkExpired(db *gorm.DB, id string) (bool, error) {
	return r.TryTransition(db, id, models.PaymentStatusExpired, nil)
}

func (r *PaymentRepositoryImpl) SetCode(db *gorm.DB, id, code string) error {
	return db.Model(&models.PaymentRecord{}).Where("id = ?", id).Update("code", code).Error
}

func (r *PaymentRepositoryImpl) CreatePaidAudit(db *gorm.DB, bookingID string, amount float64, percentage int, processorRef *string) (*models.PaymentRecord, error) {
	now := time.Now()
	record := &models.PaymentRecord{
		BookingID:    bookingID,
		Amount:       amount,
		Percentage:   percentage,
		Status:       models.PaymentStatusPaid,
		ProcessorRef: processorRef,
		ExpiresAt:    now,
		PaidAt:       &now,
	}
	if err := db.Create(record).Error; err != nil {
		return nil, err
	}
	return record, nil
}
