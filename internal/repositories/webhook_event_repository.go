package repositories

import (
	"time"

	"agenda_backend/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// WebhookEventRepository — журнал входящих уведомлений процессинга.
// Запись создается до обработки: даже если сверка упала, событие
// сохранено и доступно для ручного разбора.
type WebhookEventRepository interface {
	Create(db *gorm.DB, transactionID, status string, payload []byte) (*models.WebhookEvent, error)
	MarkProcessed(db *gorm.DB, id string, procErr error) error
	ListUnprocessed(db *gorm.DB, limit int) ([]models.WebhookEvent, error)
}

type WebhookEventRepositoryImpl struct{}

func NewWebhookEventRepository() WebhookEventRepository {
	return &WebhookEventRepositoryImpl{}
}

func (r *WebhookEventRepositoryImpl) Create(db *gorm.DB, transactionID, status string, payload []byte) (*models.WebhookEvent, error) {
	event := &models.WebhookEvent{
		TransactionID: transactionID,
		Status:        status,
		Payload:       datatypes.JSON(payload),
	}
	if err := db.Create(event).Error; err != nil {
		return nil, err
	}
	return event, nil
}

func (r *WebhookEventRepositoryImpl) MarkProcessed(db *gorm.DB, id string, procErr error) error {
	updates := map[string]interface{}{
		"processed":  procErr == nil,
		"updated_at": time.Now(),
	}
	if procErr != nil {
		updates["error"] = procErr.Error()
	}
	return db.Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

func (r *WebhookEventRepositoryImpl) ListUnprocessed(db *gorm.DB, limit int) ([]models.WebhookEvent, error) {
	var events []models.WebhookEvent
	err := db.Where("processed = ?", false).
		Order("created_at ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}
