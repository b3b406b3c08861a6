package models

// User — минимальная учётная запись. Аутентификация и привязка аккаунтов
// выполняются внешним сервисом, здесь пользователь нужен для скоупинга
// фонового монитора и адресации уведомлений.
type User struct {
	BaseModel
	Name  string   `json:"name"`
	Email string   `gorm:"uniqueIndex" json:"email"`
	Role  UserRole `gorm:"type:varchar(20);default:'client'" json:"role"`
}
