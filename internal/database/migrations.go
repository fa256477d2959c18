package database

import (
	"github.com/homerent/homerent-backend/internal/models"
	"gorm.io/gorm"
)

func RunMigrations(db *gorm.DB) error {
	// Create tables if they don't exist
	err := db.AutoMigrate(
		&models.User{},
		&models.Property{},
		&models.Booking{},
		&models.Payment{},
	)
	if err != nil {
		return err
	}

	// Update users table
	if db.Migrator().HasTable(&models.User{}) {
		if err := db.Exec(`ALTER TABLE users ADD COLUMN IF NOT EXISTS user_type text DEFAULT 'renter'`).Error; err != nil {
			return err
		}

		// Update constraint
		db.Exec(`ALTER TABLE users DROP CONSTRAINT IF EXISTS users_user_type_check`)
		db.Exec(`ALTER TABLE users ADD CONSTRAINT users_user_type_check CHECK (user_type IN ('renter', 'owner'))`)
	}

	// Status check constraints so a bad write can never invent a status
	db.Exec(`ALTER TABLE bookings DROP CONSTRAINT IF EXISTS bookings_status_check`)
	if err := db.Exec(`ALTER TABLE bookings ADD CONSTRAINT bookings_status_check CHECK (status IN ('pending', 'confirmed', 'ongoing', 'completed', 'cancelled'))`).Error; err != nil {
		return err
	}

	db.Exec(`ALTER TABLE payments DROP CONSTRAINT IF EXISTS payments_status_check`)
	if err := db.Exec(`ALTER TABLE payments ADD CONSTRAINT payments_status_check CHECK (status IN ('pending', 'completed', 'failed', 'refunded'))`).Error; err != nil {
		return err
	}

	return applyOverlapConstraint(db)
}

// applyOverlapConstraint installs the database-level backstop: two
// confirmed/ongoing bookings on the same property must never hold overlapping
// [check_in, check_out) ranges. btree_gist is needed for the equality part of
// the exclusion constraint; check_in/check_out migrate as timestamptz, so the
// range type must be tstzrange.
func applyOverlapConstraint(db *gorm.DB) error {
	db.Exec(`CREATE EXTENSION IF NOT EXISTS btree_gist`)
	db.Exec(`ALTER TABLE bookings DROP CONSTRAINT IF EXISTS bookings_no_overlap`)
	return db.Exec(`ALTER TABLE bookings ADD CONSTRAINT bookings_no_overlap
		EXCLUDE USING gist (
			property_id WITH =,
			tstzrange(check_in, check_out, '[)') WITH &&
		) WHERE (status IN ('confirmed', 'ongoing') AND deleted_at IS NULL)`).Error
}
