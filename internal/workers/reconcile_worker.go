package workers

import (
	"context"
	"time"

	"agenda_backend/internal/logger"
	"agenda_backend/internal/services/payments"

	"gorm.io/gorm"
)

// ReconcileWorker — фоновые задачи сверки, не привязанные к открытым
// экранам: глобальный монитор по аккаунтам и пометка истекших записей.
type ReconcileWorker struct {
	db       *gorm.DB
	svc      *payments.PaymentService
	interval time.Duration
}

func NewReconcileWorker(db *gorm.DB, svc *payments.PaymentService, interval time.Duration) *ReconcileWorker {
	return &ReconcileWorker{db: db, svc: svc, interval: interval}
}

// Start запускает фоновые задачи сверки
func (w *ReconcileWorker) Start(ctx context.Context) {
	go w.sweepExpired(ctx)
	go w.sweepAccounts(ctx)
}

// sweepExpired помечает истекшие pending-записи. Массовый UPDATE
// сохраняет семантику compare-and-set: условие по status='pending'.
func (w *ReconcileWorker) sweepExpired(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Reconcile worker (expiry) stopped")
			return
		case <-ticker.C:
			// События статуса отсюда не рассылаются: открытые экраны
			// замечают истечение сами через CheckLocal, массовая пометка
			// нужна для записей без наблюдателя.
			result := w.db.Exec(`
				UPDATE payment_records
				SET status = 'expired', updated_at = NOW()
				WHERE status = 'pending'
				AND expires_at < NOW()
			`)
			if result.Error != nil {
				logger.WorkerLog("reconcile", "sweep_expired", result.Error)
			} else if result.RowsAffected > 0 {
				logger.Info("Marked expired payment records", "count", result.RowsAffected)
			}
		}
	}
}

// sweepAccounts — глобальный монитор: по каждому аккаунту с pending-платежами
// прогоняет сверку, чтобы подтверждение всплыло и без открытого экрана.
func (w *ReconcileWorker) sweepAccounts(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Reconcile worker (accounts) stopped")
			return
		case <-ticker.C:
			var owners []string
			err := w.db.Raw(`
				SELECT DISTINCT b.owner_id
				FROM payment_records p
				JOIN bookings b ON b.id = p.booking_id
				WHERE p.status = 'pending'
				AND p.expires_at > NOW()
			`).Scan(&owners).Error
			if err != nil {
				logger.WorkerLog("reconcile", "list_accounts", err)
				continue
			}

			for _, ownerID := range owners {
				if err := w.svc.ReconcileAccount(ctx, w.db, ownerID); err != nil {
					// Транзиентные ошибки процессинга: следующий проход повторит.
					logger.WorkerLog("reconcile", "account "+ownerID, err)
				}
			}
		}
	}
}
