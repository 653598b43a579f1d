package database

import (
	"fmt"

	config "github.com/anjiri1684/course_market/configs"
	"github.com/anjiri1684/course_market/models"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

func ConnectDB(settings config.Settings) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch settings.DatabaseDriver {
	case "sqlite":
		dialector = sqlite.Open(settings.DatabaseURL)
	default:
		dialector = postgres.Open(settings.DatabaseURL)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		PrepareStmt:                              false,
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", settings.DatabaseDriver, err)
	}
	if settings.DatabaseDriver == "sqlite" {
		if err := singleConnection(db); err != nil {
			return nil, err
		}
	}

	DB = db
	fmt.Println("✅ Database connected successfully")
	return db, nil
}

// OpenInMemory returns a migrated private SQLite database.
func OpenInMemory() (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := singleConnection(db); err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// SQLite serializes writers; one pooled connection keeps concurrent
// transactions from failing with SQLITE_BUSY.
func singleConnection(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(1)
	return nil
}

func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.Course{},
		&models.Bundle{},
		&models.SubscriptionPlan{},
		&models.Order{},
		&models.OrderItem{},
		&models.Payment{},
		&models.Voucher{},
		&models.VoucherCourse{},
		&models.VoucherUsage{},
		&models.InstructorBalance{},
		&models.InstructorTransaction{},
		&models.WithdrawalRequest{},
		&models.PayoutAccount{},
		&models.Enrollment{},
		&models.Invoice{},
	)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
