package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// referralConstraints installs the uniqueness boundaries the referral core
// relies on under contention: a referred user may have at most one active
// relationship pointing at them, and an assigned referral code belongs to at
// most one user. Both are partial so soft-deleted rows and users without a
// code yet do not collide. The in-process checks in the services are
// optimizations; these indexes are the guard.
var referralConstraints = &gormigrate.Migration{
	ID: "000001_referral_constraints",
	Migrate: func(tx *gorm.DB) error {
		if err := tx.Exec(`
			CREATE UNIQUE INDEX IF NOT EXISTS idx_one_active_parent
			ON referral_relationships (referred_user_id)
			WHERE status = 'active' AND deleted_at IS NULL
		`).Error; err != nil {
			return err
		}
		return tx.Exec(`
			CREATE UNIQUE INDEX IF NOT EXISTS idx_users_referral_code
			ON users (referral_code)
			WHERE referral_code <> ''
		`).Error
	},
	Rollback: func(tx *gorm.DB) error {
		if err := tx.Exec(`DROP INDEX IF EXISTS idx_users_referral_code`).Error; err != nil {
			return err
		}
		return tx.Exec(`DROP INDEX IF EXISTS idx_one_active_parent`).Error
	},
}
