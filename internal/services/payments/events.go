package payments

import (
	"context"

	"agenda_backend/internal/logger"
	"agenda_backend/internal/models"
)

// StatusEvent — событие смены статуса платежа для коллабораторов
// (UI через websocket, почтовые уведомления). Доставка — fire-and-forget,
// на корректность состояния не влияет.
type StatusEvent struct {
	BookingID  string               `json:"booking_id"`
	OwnerID    string               `json:"owner_id"`
	Status     models.PaymentStatus `json:"status"`
	PaidAmount float64              `json:"paid_amount,omitempty"`
}

type Notifier interface {
	PaymentStatusChanged(ctx context.Context, evt StatusEvent)
}

// MultiNotifier рассылает событие всем подписчикам.
type MultiNotifier []Notifier

func (m MultiNotifier) PaymentStatusChanged(ctx context.Context, evt StatusEvent) {
	for _, n := range m {
		n.PaymentStatusChanged(ctx, evt)
	}
}

// LogNotifier — минимальный подписчик: пишет событие в лог.
type LogNotifier struct{}

func (LogNotifier) PaymentStatusChanged(ctx context.Context, evt StatusEvent) {
	logger.CtxInfo(ctx, "payment status changed",
		"booking_id", evt.BookingID,
		"status", evt.Status,
		"paid_amount", evt.PaidAmount,
	)
}
