package rls

import (
	"fmt"

	"gorm.io/gorm"
)

// WithCabinet pins the row-level-security tenant for the current transaction.
// It is a no-op outside postgres.
func WithCabinet(tx *gorm.DB, cabinetID int64) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec(
		"SELECT set_config('app.current_cabinet_id', ?, true)",
		fmt.Sprintf("%d", cabinetID),
	).Error
}
