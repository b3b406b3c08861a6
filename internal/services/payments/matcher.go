package payments

import (
	"context"
	"errors"
	"math"

	"agenda_backend/internal/logger"
	"agenda_backend/internal/models"
	"agenda_backend/internal/repositories"

	"gorm.io/gorm"
)

// ErrNoMatch — валидный исход, а не сбой: в скоупе нет подходящей
// pending-записи, опрос продолжается.
var ErrNoMatch = errors.New("no matching pending payment record")

const (
	// exactTolerance — допуск точного совпадения суммы.
	exactTolerance = 0.01
	// approxTolerance — допуск приблизительного совпадения. Сознательно
	// широкий: поисковый API процессинга не всегда отдает референс.
	approxTolerance = 5.00
)

// Matcher сопоставляет транзакцию процессинга с локальной pending-записью.
// Ярусы строго упорядочены, остановка на первом совпадении:
//  1. референс (booking id в external_reference или метаданных);
//  2. точное совпадение суммы;
//  3. приблизительное совпадение суммы;
//  4. самая свежая pending-запись скоупа.
type Matcher struct {
	payments repositories.PaymentRepository
}

func NewMatcher(payments repositories.PaymentRepository) *Matcher {
	return &Matcher{payments: payments}
}

func (m *Matcher) Match(ctx context.Context, db *gorm.DB, tx ProcessorTransaction, scope repositories.Scope) (*models.PaymentRecord, error) {
	candidates, err := m.payments.ListPendingFor(db, scope)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, ErrNoMatch
	}

	// Ярус 1: референс авторитетен, если он есть.
	if ref := referenceOf(tx); ref != "" {
		for i := range candidates {
			if candidates[i].BookingID == ref {
				return &candidates[i], nil
			}
		}
	}

	// Ярус 2: точное совпадение суммы среди самых свежих.
	for i := range candidates {
		if math.Abs(candidates[i].Amount-tx.Amount) < exactTolerance {
			return &candidates[i], nil
		}
	}

	// Ярус 3: ближайшая сумма в пределах допуска.
	best := -1
	bestDiff := math.MaxFloat64
	for i := range candidates {
		diff := math.Abs(candidates[i].Amount - tx.Amount)
		if diff <= approxTolerance && diff < bestDiff {
			best, bestDiff = i, diff
		}
	}
	if best >= 0 {
		logger.CtxWarn(ctx, "matcher: approximate amount match",
			"payment_id", candidates[best].ID,
			"record_amount", candidates[best].Amount,
			"tx_amount", tx.Amount,
			"tx_id", tx.ID,
		)
		return &candidates[best], nil
	}

	// Ярус 4: запасной вариант — самая свежая pending-запись.
	logger.CtxWarn(ctx, "matcher: most-recent-pending fallback",
		"payment_id", candidates[0].ID,
		"tx_id", tx.ID,
	)
	return &candidates[0], nil
}

// referenceOf достает booking id из референса транзакции.
func referenceOf(tx ProcessorTransaction) string {
	if tx.ExternalRef != "" {
		return tx.ExternalRef
	}
	if tx.Metadata != nil {
		return tx.Metadata["booking_id"]
	}
	return ""
}
