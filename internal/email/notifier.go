package email

import (
	"context"
	"fmt"

	"agenda_backend/internal/config"
	"agenda_backend/internal/logger"
	"agenda_backend/internal/models"
	"agenda_backend/internal/services/payments"

	"gopkg.in/gomail.v2"
	"gorm.io/gorm"
)

// Notifier отправляет письмо владельцу бронирования при смене статуса
// платежа. Доставка — best effort: ошибка SMTP логируется и не влияет
// на сверку.
type Notifier struct {
	cfg *config.Config
	db  *gorm.DB
}

func NewNotifier(cfg *config.Config, db *gorm.DB) *Notifier {
	return &Notifier{cfg: cfg, db: db}
}

func (n *Notifier) PaymentStatusChanged(ctx context.Context, evt payments.StatusEvent) {
	if !n.cfg.Email.Enabled {
		return
	}

	var user models.User
	if err := n.db.First(&user, "id = ?", evt.OwnerID).Error; err != nil {
		logger.CtxWarn(ctx, "email: owner not found, skipping notification", "owner_id", evt.OwnerID)
		return
	}

	subject, body := n.render(evt)

	m := gomail.NewMessage()
	m.SetAddressHeader("From", n.cfg.Email.FromEmail, n.cfg.Email.FromName)
	m.SetHeader("To", user.Email)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	d := gomail.NewDialer(n.cfg.Email.SMTPHost, n.cfg.Email.SMTPPort, n.cfg.Email.SMTPUsername, n.cfg.Email.SMTPPassword)
	if err := d.DialAndSend(m); err != nil {
		logger.CtxWithError(ctx, "email: failed to send payment notification", err, "to", user.Email)
	}
}

func (n *Notifier) render(evt payments.StatusEvent) (string, string) {
	switch evt.Status {
	case models.PaymentStatusPaid:
		return "Payment received",
			fmt.Sprintf("Your prepayment of %.2f was received and booking %s is confirmed.", evt.PaidAmount, evt.BookingID)
	case models.PaymentStatusExpired:
		return "Payment expired",
			fmt.Sprintf("The prepayment window for booking %s has expired. Please start a new checkout.", evt.BookingID)
	default:
		return "Payment status changed",
			fmt.Sprintf("Payment status for booking %s is now: %s.", evt.BookingID, evt.Status)
	}
}
