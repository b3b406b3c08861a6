package models

// PackageSize — количество бронирований в месячном пакете.
const PackageSize = 4

// PackageGroup — явная сущность пакета бронирований, оплачиваемых одним
// платежом. Раньше принадлежность к пакету восстанавливалась парсингом
// токена из заметки бронирования; токен сохранён для совместимости.
type PackageGroup struct {
	BaseModel
	Token          string  `gorm:"uniqueIndex" json:"token"` // "PKG<digits>"
	OwnerID        string  `gorm:"type:uuid;index" json:"owner_id"`
	ProfessionalID string  `gorm:"type:uuid;index" json:"professional_id"`
	SeedPaymentID  *string `gorm:"type:uuid" json:"seed_payment_id,omitempty"`
}
