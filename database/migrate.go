package database

import (
	"fmt"
	"log"

	"agenda_backend/internal/config"
	"agenda_backend/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var gormDB *gorm.DB

// ConnectGorm инициализирует GORM с URL из config.yaml
func ConnectGorm() (*gorm.DB, error) {
	if gormDB != nil {
		return gormDB, nil
	}

	cfg := config.GetConfig()
	dsn := cfg.Database.DSN

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to GORM: %w", err)
	}

	gormDB = db
	return db, nil
}

// AutoMigrate выполняет миграцию всех моделей и создает триггеры фида
// изменений (LISTEN/NOTIFY).
func AutoMigrate() error {
	db, err := ConnectGorm()
	if err != nil {
		return err
	}

	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`).Error; err != nil {
		return fmt.Errorf("failed to create uuid-ossp extension: %w", err)
	}

	err = db.AutoMigrate(
		&models.User{},
		&models.Booking{},
		&models.PackageGroup{},
		&models.PaymentRecord{},
		&models.WebhookEvent{},
	)
	if err != nil {
		log.Fatalf("❌ AutoMigrate ошибка: %v", err)
	}

	if err := createChangeFeedTriggers(db); err != nil {
		return err
	}

	log.Println("✅ AutoMigrate успешно завершен.")
	return nil
}

// createChangeFeedTriggers создает NOTIFY-триггеры, которыми питается
// payments.ChangeFeed: каждая запись/обновление шлет id бронирования в
// свой канал.
func createChangeFeedTriggers(db *gorm.DB) error {
	statements := []string{
		`CREATE OR REPLACE FUNCTION notify_payment_record_changed() RETURNS trigger AS $$
		BEGIN
			PERFORM pg_notify('payment_records_changed', NEW.booking_id::text);
			RETURN NEW;
		END;
		$$ LANGUAGE plpgsql`,

		`CREATE OR REPLACE FUNCTION notify_booking_changed() RETURNS trigger AS $$
		BEGIN
			PERFORM pg_notify('bookings_changed', NEW.id::text);
			RETURN NEW;
		END;
		$$ LANGUAGE plpgsql`,

		`DROP TRIGGER IF EXISTS payment_records_notify ON payment_records`,
		`CREATE TRIGGER payment_records_notify
			AFTER INSERT OR UPDATE ON payment_records
			FOR EACH ROW EXECUTE FUNCTION notify_payment_record_changed()`,

		`DROP TRIGGER IF EXISTS bookings_notify ON bookings`,
		`CREATE TRIGGER bookings_notify
			AFTER INSERT OR UPDATE ON bookings
			FOR EACH ROW EXECUTE FUNCTION notify_booking_changed()`,
	}

	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create change feed trigger: %w", err)
		}
	}
	return nil
}
