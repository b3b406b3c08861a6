package payments

import (
	"context"
	"math"

	"agenda_backend/internal/logger"
	"agenda_backend/internal/models"
	"agenda_backend/internal/repositories"

	"gorm.io/gorm"
)

// Cascade применяет эффект подтвержденного платежа: переводит запись в paid,
// подтверждает бронирование (или весь пакет) и рассылает событие.
//
// Гарантия exactly-once держится на одном примитиве: TryTransition.
// Какой бы из четырех путей сверки ни пришел первым, остальные получат
// false и не тронут побочные эффекты. Сами обновления строк пакета не
// атомарны между собой: повторное применение выставляет те же значения,
// поэтому частичное применение безопасно доигрывается ретраем.
type Cascade struct {
	payments repositories.PaymentRepository
	bookings repositories.BookingRepository
	notifier Notifier
}

func NewCascade(payments repositories.PaymentRepository, bookings repositories.BookingRepository, notifier Notifier) *Cascade {
	return &Cascade{payments: payments, bookings: bookings, notifier: notifier}
}

// Confirm проводит подтверждение платежа. Возврат nil при уже-конечной
// записи — ожидаемый исход гонки триггеров, не ошибка.
func (c *Cascade) Confirm(ctx context.Context, db *gorm.DB, record *models.PaymentRecord, confirmedAmount float64, processorRef *string) error {
	ok, err := c.payments.TryTransition(db, record.ID, models.PaymentStatusPaid, processorRef)
	if err != nil {
		return err
	}
	if !ok {
		// Другой триггер успел первым.
		logger.CtxDebug(ctx, "cascade: payment already terminal, skipping", "payment_id", record.ID)
		return nil
	}

	booking, err := c.bookings.FindByID(db, record.BookingID)
	if err != nil {
		// Платеж-сирота: деньги подтверждены, бронирования нет. Требует
		// ручной сверки, но поток не валим — запись уже помечена paid.
		logger.CtxWarn(ctx, "cascade: orphaned payment, booking not found",
			"payment_id", record.ID,
			"booking_id", record.BookingID,
			"error", err.Error(),
		)
		return nil
	}

	siblings, err := c.resolveSiblings(ctx, db, booking)
	if err != nil {
		return err
	}

	if siblings == nil {
		// Обычное одиночное бронирование.
		if err := c.bookings.Confirm(db, booking.ID, confirmedAmount); err != nil {
			return err
		}
		c.emit(ctx, booking, confirmedAmount)
		return nil
	}

	if len(siblings) == 0 {
		logger.CtxWarn(ctx, "cascade: orphaned package payment, no siblings found",
			"payment_id", record.ID,
			"booking_id", booking.ID,
		)
		return nil
	}

	// Фан-аут по пакету: сумма делится поровну, каждый участник получает
	// confirmed + свою долю; не-посевные участники — аудиторскую запись.
	share := math.Round(confirmedAmount/float64(len(siblings))*100) / 100
	for i := range siblings {
		s := &siblings[i]
		if err := c.bookings.Confirm(db, s.ID, share); err != nil {
			logger.CtxWithError(ctx, "cascade: failed to confirm package sibling", err,
				"booking_id", s.ID)
			continue
		}
		if s.ID != record.BookingID {
			if _, err := c.payments.CreatePaidAudit(db, s.ID, share, record.Percentage, processorRef); err != nil {
				logger.CtxWithError(ctx, "cascade: failed to create audit record", err,
					"booking_id", s.ID)
			}
		}
		c.emit(ctx, s, share)
	}
	return nil
}

// resolveSiblings возвращает участников пакета бронирования.
// nil — бронирование не пакетное; пустой срез — пакет заявлен, но
// участники не нашлись (сирота).
func (c *Cascade) resolveSiblings(ctx context.Context, db *gorm.DB, booking *models.Booking) ([]models.Booking, error) {
	if booking.PackageGroupID != nil {
		return c.bookings.FindSiblingsByGroup(db, *booking.PackageGroupID)
	}

	// Легаси-путь: токен пакета зашит в свободный текст заметки.
	token := booking.PackageToken()
	if token == "" {
		return nil, nil
	}
	return c.bookings.FindSiblingsByToken(db, token, booking.OwnerID, booking.ProfessionalID)
}

func (c *Cascade) emit(ctx context.Context, booking *models.Booking, paidAmount float64) {
	evt := StatusEvent{
		BookingID:  booking.ID,
		OwnerID:    booking.OwnerID,
		Status:     models.PaymentStatusPaid,
		PaidAmount: paidAmount,
	}
	// Fire-and-forget: доставка уведомлений не задерживает сверку.
	go c.notifier.PaymentStatusChanged(context.WithoutCancel(ctx), evt)
}
