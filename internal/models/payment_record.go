package models

import (
	"time"
)

// PaymentRecord — локальная запись предоплаты за бронирование.
// Для пакета запись создаётся на "посевное" бронирование, остальные
// участники пакета получают аудиторские записи при подтверждении.
type PaymentRecord struct {
	BaseModel
	BookingID  string        `gorm:"type:uuid;index" json:"booking_id"`
	Amount     float64       `json:"amount"`
	Percentage int           `json:"percentage"` // доля от полной цены услуги, %
	Status     PaymentStatus `gorm:"type:varchar(20);default:'pending';index" json:"status"`

	// ProcessorRef — идентификатор транзакции на стороне процессинга,
	// заполняется при подтверждении.
	ProcessorRef *string `gorm:"index" json:"processor_ref,omitempty"`

	// Code — текстовый код мгновенного платежа (только для переводов).
	Code *string `json:"code,omitempty"`

	ExpiresAt time.Time  `gorm:"index" json:"expires_at"`
	PaidAt    *time.Time `json:"paid_at,omitempty"`
}

// Expired сообщает, истекла ли запись относительно переданного момента.
func (p *PaymentRecord) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}
