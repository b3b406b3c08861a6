package models

import (
	"gorm.io/datatypes"
)

// WebhookEvent — журнал входящих уведомлений процессинга. Запись создаётся
// до любой обработки: процессингу всегда отвечаем 200, а необработанные
// события остаются в журнале для ручной сверки.
type WebhookEvent struct {
	BaseModel
	TransactionID string         `gorm:"index" json:"transaction_id"`
	Status        string         `json:"status"`
	Payload       datatypes.JSON `json:"payload"`
	Processed     bool           `gorm:"default:false;index" json:"processed"`
	Error         string         `json:"error,omitempty"`
}
