package repositories

import (
	"errors"
	"fmt"
	"time"

	"agenda_backend/internal/models"

	"gorm.io/gorm"
)

var (
	ErrBookingNotFound = errors.New("booking not found")
	ErrGroupNotFound   = errors.New("package group not found")
)

type BookingRepository interface {
	Create(db *gorm.DB, booking *models.Booking) error
	FindByID(db *gorm.DB, id string) (*models.Booking, error)

	// CreatePackage создает группу пакета и все ее бронирования одной
	// транзакцией. Токен вписывается и в заметку каждого бронирования —
	// легаси-потребители до сих пор читают его оттуда.
	CreatePackage(db *gorm.DB, group *models.PackageGroup, bookings []*models.Booking) error

	FindGroupByID(db *gorm.DB, id string) (*models.PackageGroup, error)
	FindGroupByToken(db *gorm.DB, token string) (*models.PackageGroup, error)
	SetGroupSeedPayment(db *gorm.DB, groupID, paymentID string) error

	// FindSiblingsByGroup возвращает активных участников пакета.
	FindSiblingsByGroup(db *gorm.DB, groupID string) ([]models.Booking, error)

	// FindSiblingsByToken — легаси-путь: участники пакета находятся по
	// токену в заметке, в пределах той же пары владелец+специалист.
	FindSiblingsByToken(db *gorm.DB, token, ownerID, professionalID string) ([]models.Booking, error)

	// Confirm переводит бронирование в confirmed и проставляет paid_amount.
	// Повторный вызов с теми же значениями — безопасный no-op.
	Confirm(db *gorm.DB, bookingID string, paidAmount float64) error
}

type BookingRepositoryImpl struct{}

func NewBookingRepository() BookingRepository {
	return &BookingRepositoryImpl{}
}

func (r *BookingRepositoryImpl) Create(db *gorm.DB, booking *models.Booking) error {
	return db.Create(booking).Error
}

func (r *BookingRepositoryImpl) FindByID(db *gorm.DB, id string) (*models.Booking, error) {
	var booking models.Booking
	err := db.First(&booking, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

func (r *BookingRepositoryImpl) CreatePackage(db *gorm.DB, group *models.PackageGroup, bookings []*models.Booking) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(group).Error; err != nil {
			return err
		}
		for _, b := range bookings {
			b.PackageGroupID = &group.ID
			if b.Notes == "" {
				b.Notes = fmt.Sprintf("Пакет занятий %s", group.Token)
			}
			if err := tx.Create(b).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *BookingRepositoryImpl) FindGroupByID(db *gorm.DB, id string) (*models.PackageGroup, error) {
	var group models.PackageGroup
	err := db.First(&group, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrGroupNotFound
	}
	if err != nil {
		return nil, err
	}
	return &group, nil
}

func (r *BookingRepositoryImpl) FindGroupByToken(db *gorm.DB, token string) (*models.PackageGroup, error) {
	var group models.PackageGroup
	err := db.First(&group, "token = ?", token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrGroupNotFound
	}
	if err != nil {
		return nil, err
	}
	return &group, nil
}

func (r *BookingRepositoryImpl) SetGroupSeedPayment(db *gorm.DB, groupID, paymentID string) error {
	return db.Model(&models.PackageGroup{}).
		Where("id = ?", groupID).
		Update("seed_payment_id", paymentID).Error
}

func (r *BookingRepositoryImpl) FindSiblingsByGroup(db *gorm.DB, groupID string) ([]models.Booking, error) {
	var bookings []models.Booking
	err := db.Where("package_group_id = ?", groupID).
		Where("status NOT IN ?", []models.BookingStatus{models.BookingStatusCancelled, models.BookingStatusCompleted}).
		Order("scheduled_at ASC").
		Find(&bookings).Error
	return bookings, err
}

func (r *BookingRepositoryImpl) FindSiblingsByToken(db *gorm.DB, token, ownerID, professionalID string) ([]models.Booking, error) {
	var bookings []models.Booking
	err := db.Where("notes LIKE ?", "%"+token+"%").
		Where("owner_id = ? AND professional_id = ?", ownerID, professionalID).
		Where("status NOT IN ?", []models.BookingStatus{models.BookingStatusCancelled, models.BookingStatusCompleted}).
		Order("scheduled_at ASC").
		Find(&bookings).Error
	return bookings, err
}

func (r *BookingRepositoryImpl) Confirm(db *gorm.DB, bookingID string, paidAmount float64) error {
	result := db.Model(&models.Booking{}).
		Where("id = ?", bookingID).
		Updates(map[string]interface{}{
			"status":      models.BookingStatusConfirmed,
			"paid_amount": paidAmount,
			"updated_at":  time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrBookingNotFound
	}
	return nil
}
