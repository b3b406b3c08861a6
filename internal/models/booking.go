package models

import (
	"regexp"
	"time"
)

// PackageTokenPattern — токен пакета, встречающийся в свободном тексте заметки
// (легаси-формат: "PKG" + цифры внутри прозы).
var PackageTokenPattern = regexp.MustCompile(`PKG\d+`)

type Booking struct {
	BaseModel
	OwnerID        string        `gorm:"type:uuid;index" json:"owner_id"`
	ProfessionalID string        `gorm:"type:uuid;index" json:"professional_id"`
	Status         BookingStatus `gorm:"type:varchar(20);default:'pending';index" json:"status"`
	ScheduledAt    time.Time     `json:"scheduled_at"`
	ServicePrice   float64       `json:"service_price"`
	PaidAmount     *float64      `json:"paid_amount,omitempty"`

	// Notes — свободный текст. В легаси-записях сюда вписан токен пакета.
	Notes string `json:"notes"`

	// PackageGroupID — явная принадлежность к пакету (новый формат).
	PackageGroupID *string `gorm:"type:uuid;index" json:"package_group_id,omitempty"`
}

// PackageToken возвращает токен пакета из заметки, либо "".
func (b *Booking) PackageToken() string {
	return PackageTokenPattern.FindString(b.Notes)
}
