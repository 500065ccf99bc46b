package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/jobalert/notifier/internal/repository"
	"gorm.io/gorm"
)

func createDeliveryStatusesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_delivery_statuses",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.StatusModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_delivery_statuses_status_type ON delivery_statuses (status, type)`,
				`CREATE INDEX IF NOT EXISTS idx_delivery_statuses_updated_at ON delivery_statuses (updated_at)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.StatusModel{})
		},
	}
}
