package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"agenda_backend/internal/config"
	"agenda_backend/internal/logger"
	"agenda_backend/internal/models"
	"agenda_backend/internal/paycode"
	"agenda_backend/internal/repositories"
	"agenda_backend/pkg/apperrors"

	"gorm.io/gorm"
)

// PaymentService — фасад платежной сверки: чекаут, статус для UI и три
// пути подтверждения (вебхук, опрос процессинга, локальная проверка).
type PaymentService struct {
	cfg       *config.Config
	payments  repositories.PaymentRepository
	bookings  repositories.BookingRepository
	webhooks  repositories.WebhookEventRepository
	processor ProcessorClient
	matcher   *Matcher
	cascade   *Cascade
	notifier  Notifier
}

func NewPaymentService(
	cfg *config.Config,
	payments repositories.PaymentRepository,
	bookings repositories.BookingRepository,
	webhooks repositories.WebhookEventRepository,
	processor ProcessorClient,
	notifier Notifier,
) *PaymentService {
	return &PaymentService{
		cfg:       cfg,
		payments:  payments,
		bookings:  bookings,
		webhooks:  webhooks,
		processor: processor,
		matcher:   NewMatcher(payments),
		cascade:   NewCascade(payments, bookings, notifier),
		notifier:  notifier,
	}
}

// CheckoutResult — ответ на создание предоплаты.
type CheckoutResult struct {
	Record *models.PaymentRecord `json:"record"`
	Code   string                `json:"code"`
}

// Checkout создает pending-запись предоплаты для бронирования и его
// платежный код. Повторный чекаут возвращает уже существующую
// неистекшую запись.
func (s *PaymentService) Checkout(ctx context.Context, db *gorm.DB, bookingID string) (*CheckoutResult, error) {
	booking, err := s.bookings.FindByID(db, bookingID)
	if err != nil {
		return nil, apperrors.ErrBookingNotFound
	}
	if booking.Status != models.BookingStatusPending {
		return nil, apperrors.ErrBookingNotPending
	}

	if existing, err := s.payments.LatestForBooking(db, bookingID); err == nil &&
		existing.Status == models.PaymentStatusPending && !existing.Expired(time.Now()) {
		code := ""
		if existing.Code != nil {
			code = *existing.Code
		}
		return &CheckoutResult{Record: existing, Code: code}, nil
	}

	amount, err := s.prepayAmount(db, booking)
	if err != nil {
		return nil, err
	}

	code, err := paycode.Encode(paycode.EncodeParams{
		MerchantName:  s.cfg.Payments.MerchantName,
		MerchantCity:  s.cfg.Payments.MerchantCity,
		Amount:        amount,
		TransactionID: booking.ID,
		PayeeKey:      s.cfg.Payments.PayeeKey,
	})
	if err != nil {
		return nil, apperrors.ErrInvalidPaymentCode(err)
	}

	record, err := s.payments.CreatePending(db, booking.ID, amount, s.cfg.Payments.PrepayPercentage, s.cfg.PendingTTL())
	if err != nil {
		return nil, err
	}
	if err := s.payments.SetCode(db, record.ID, code); err != nil {
		return nil, err
	}
	record.Code = &code

	if booking.PackageGroupID != nil {
		if err := s.bookings.SetGroupSeedPayment(db, *booking.PackageGroupID, record.ID); err != nil {
			logger.CtxWithError(ctx, "checkout: failed to set group seed payment", err,
				"group_id", *booking.PackageGroupID)
		}
	}

	logger.CtxInfo(ctx, "checkout: pending payment created",
		"booking_id", booking.ID,
		"payment_id", record.ID,
		"amount", amount,
	)
	return &CheckoutResult{Record: record, Code: code}, nil
}

// prepayAmount считает сумму предоплаты: доля от цены услуги, для пакета —
// от суммарной цены всех его участников.
func (s *PaymentService) prepayAmount(db *gorm.DB, booking *models.Booking) (float64, error) {
	total := booking.ServicePrice
	if booking.PackageGroupID != nil {
		siblings, err := s.bookings.FindSiblingsByGroup(db, *booking.PackageGroupID)
		if err != nil {
			return 0, err
		}
		total = 0
		for _, sb := range siblings {
			total += sb.ServicePrice
		}
	}
	amount := total * float64(s.cfg.Payments.PrepayPercentage) / 100
	return math.Round(amount*100) / 100, nil
}

// BookingPaymentStatus — статус платежа для экрана оплаты. UI видит только
// итоговые статусы, без деталей сверки и ошибок процессинга.
type BookingPaymentStatus struct {
	BookingID     string               `json:"booking_id"`
	BookingStatus models.BookingStatus `json:"booking_status"`
	PaymentStatus models.PaymentStatus `json:"payment_status"`
	PaidAmount    *float64             `json:"paid_amount,omitempty"`
	ExpiresAt     *time.Time           `json:"expires_at,omitempty"`
}

// Status возвращает состояние оплаты бронирования.
func (s *PaymentService) Status(ctx context.Context, db *gorm.DB, bookingID string) (*BookingPaymentStatus, error) {
	booking, err := s.bookings.FindByID(db, bookingID)
	if err != nil {
		return nil, apperrors.ErrBookingNotFound
	}

	status := &BookingPaymentStatus{
		BookingID:     booking.ID,
		BookingStatus: booking.Status,
		PaymentStatus: models.PaymentStatusPending,
		PaidAmount:    booking.PaidAmount,
	}

	record, err := s.payments.LatestForBooking(db, bookingID)
	if errors.Is(err, repositories.ErrPaymentNotFound) {
		return status, nil
	}
	if err != nil {
		return nil, err
	}

	status.PaymentStatus = record.Status
	status.ExpiresAt = &record.ExpiresAt
	return status, nil
}

// CheckLocal — дешевый путь сверки: только локальное хранилище, без
// обращения к процессингу. Попутно наблюдает истечение срока записи.
// Возвращает true, когда запись в конечном статусе и мониторинг
// бронирования можно останавливать.
func (s *PaymentService) CheckLocal(ctx context.Context, db *gorm.DB, bookingID string) (bool, error) {
	record, err := s.payments.LatestForBooking(db, bookingID)
	if errors.Is(err, repositories.ErrPaymentNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if record.Status == models.PaymentStatusPending && record.Expired(time.Now()) {
		ok, err := s.payments.MarkExpired(db, record.ID)
		if err != nil {
			return false, err
		}
		if ok {
			booking, berr := s.bookings.FindByID(db, bookingID)
			if berr == nil {
				go s.notifier.PaymentStatusChanged(context.WithoutCancel(ctx), StatusEvent{
					BookingID: bookingID,
					OwnerID:   booking.OwnerID,
					Status:    models.PaymentStatusExpired,
				})
			}
			logger.CtxInfo(ctx, "payment record expired", "payment_id", record.ID)
		}
		return true, nil
	}

	return record.Status.IsTerminal(), nil
}

// searchWindow — окно поиска: ограниченный взгляд назад плюс небольшой
// сдвиг вперед, поглощающий расхождение часов с процессингом.
func (s *PaymentService) searchWindow(now time.Time) (time.Time, time.Time) {
	from := now.Add(-time.Duration(s.cfg.Payments.LookbackMinutes) * time.Minute)
	to := now.Add(time.Duration(s.cfg.Payments.ForwardSkewSeconds) * time.Second)
	return from, to
}

// SearchAndReconcile опрашивает процессинг и прогоняет найденные
// подтвержденные транзакции через Matcher и Cascade в пределах скоупа.
func (s *PaymentService) SearchAndReconcile(ctx context.Context, db *gorm.DB, scope repositories.Scope) error {
	from, to := s.searchWindow(time.Now())
	txs, err := s.processor.SearchApproved(ctx, from, to, s.cfg.Payments.SearchPageLimit)
	if err != nil {
		// Транзиентно: следующий цикл повторит.
		logger.CtxWarn(ctx, "processor search failed, will retry next cycle", "error", err.Error())
		return err
	}

	for _, tx := range txs {
		if !tx.Approved() {
			continue
		}
		record, err := s.matcher.Match(ctx, db, tx, scope)
		if errors.Is(err, ErrNoMatch) {
			continue
		}
		if err != nil {
			return err
		}
		txID := tx.ID
		if err := s.cascade.Confirm(ctx, db, record, tx.Amount, &txID); err != nil {
			return err
		}
	}
	return nil
}

// ReconcileBooking — один цикл скоупового поллера: сначала локальная
// проверка, потом поиск на стороне процессинга. Возвращает true, когда
// платеж достиг конечного статуса.
func (s *PaymentService) ReconcileBooking(ctx context.Context, db *gorm.DB, bookingID string) (bool, error) {
	terminal, err := s.CheckLocal(ctx, db, bookingID)
	if err != nil || terminal {
		return terminal, err
	}

	if err := s.SearchAndReconcile(ctx, db, repositories.Scope{BookingID: bookingID}); err != nil {
		return false, err
	}

	return s.CheckLocal(ctx, db, bookingID)
}

// ReconcileAccount — фоновый проход по аккаунту: подтверждение должно
// всплыть, даже если пользователь ушел с экрана оплаты.
func (s *PaymentService) ReconcileAccount(ctx context.Context, db *gorm.DB, ownerID string) error {
	pending, err := s.payments.ListPendingFor(db, repositories.Scope{OwnerID: ownerID})
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}
	return s.SearchAndReconcile(ctx, db, repositories.Scope{OwnerID: ownerID})
}

// HandleWebhook обрабатывает входящее уведомление процессинга.
// Событие сначала пишется в журнал, затем: подтверждение идет только по
// референсу (ярусы по сумме вебхуку запрещены), отказ переводит запись в
// rejected. Ошибки не пробрасываются дальше журнала — процессингу всегда
// отвечают 200, его повторы после записи события только шум.
func (s *PaymentService) HandleWebhook(ctx context.Context, db *gorm.DB, raw []byte) {
	var tx ProcessorTransaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		logger.CtxWarn(ctx, "webhook: malformed payload", "error", err.Error())
		return
	}

	event, err := s.webhooks.Create(db, tx.ID, tx.Status, raw)
	if err != nil {
		logger.CtxWithError(ctx, "webhook: failed to log event", err, "tx_id", tx.ID)
		return
	}

	procErr := s.applyWebhook(ctx, db, tx)
	if procErr != nil {
		logger.CtxWarn(ctx, "webhook: left unprocessed for manual reconciliation",
			"tx_id", tx.ID, "reason", procErr.Error())
	}
	if err := s.webhooks.MarkProcessed(db, event.ID, procErr); err != nil {
		logger.CtxWithError(ctx, "webhook: failed to mark event", err, "event_id", event.ID)
	}
}

func (s *PaymentService) applyWebhook(ctx context.Context, db *gorm.DB, tx ProcessorTransaction) error {
	ref := referenceOf(tx)
	if ref == "" {
		return fmt.Errorf("webhook transaction %s has no reference", tx.ID)
	}

	candidates, err := s.payments.ListPendingFor(db, repositories.Scope{BookingID: ref})
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		// Либо запись уже конечная (гонка с другим триггером — норма),
		// либо платеж пришел после истечения срока: тогда событие остается
		// в журнале для ручной сверки.
		return fmt.Errorf("no pending payment record for booking %s", ref)
	}
	record := &candidates[0]
	txID := tx.ID

	switch tx.Status {
	case StatusApproved:
		return s.cascade.Confirm(ctx, db, record, tx.Amount, &txID)
	case "rejected", "cancelled":
		ok, err := s.payments.TryTransition(db, record.ID, models.PaymentStatusRejected, &txID)
		if err != nil {
			return err
		}
		if ok {
			booking, berr := s.bookings.FindByID(db, record.BookingID)
			if berr == nil {
				go s.notifier.PaymentStatusChanged(context.WithoutCancel(ctx), StatusEvent{
					BookingID: record.BookingID,
					OwnerID:   booking.OwnerID,
					Status:    models.PaymentStatusRejected,
				})
			}
		}
		return nil
	default:
		logger.CtxDebug(ctx, "webhook: ignoring non-final status", "tx_id", tx.ID, "status", tx.Status)
		return nil
	}
}
