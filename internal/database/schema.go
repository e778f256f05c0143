package database

import (
	"context"
	"database/sql"
	"fmt"
)

// tables is applied in order; later tables reference earlier ones.
var tables = []struct {
	name string
	ddl  string
}{
	{"spectacles", `
CREATE TABLE IF NOT EXISTS spectacles (
	id          BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
	title       VARCHAR(255) NOT NULL,
	description TEXT NULL,
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`},
	{"sessions", `
CREATE TABLE IF NOT EXISTS sessions (
	id                     BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
	spectacle_id           BIGINT UNSIGNED NOT NULL,
	starts_at              DATETIME NOT NULL,
	venue                  VARCHAR(255) NOT NULL,
	city                   VARCHAR(120) NOT NULL,
	total_capacity         INT NOT NULL,
	b2c_capacity           INT NOT NULL DEFAULT 0,
	partner_quota          INT NOT NULL DEFAULT 0,
	session_type           VARCHAR(32) NOT NULL,
	status                 VARCHAR(16) NOT NULL DEFAULT 'draft',
	individual_price_cents INT UNSIGNED NOT NULL DEFAULT 0,
	student_price_cents    INT UNSIGNED NOT NULL DEFAULT 0,
	created_at             DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at             DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	KEY idx_sessions_starts (status, starts_at),
	CONSTRAINT fk_sessions_spectacle FOREIGN KEY (spectacle_id) REFERENCES spectacles(id),
	CONSTRAINT chk_sessions_capacity CHECK (b2c_capacity <= total_capacity AND partner_quota <= total_capacity)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`},
	{"organizations", `
CREATE TABLE IF NOT EXISTS organizations (
	id                  BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
	kind                VARCHAR(32) NOT NULL,
	name                VARCHAR(255) NOT NULL,
	verification_status VARCHAR(16) NOT NULL DEFAULT 'pending',
	max_free_tickets    INT NOT NULL DEFAULT 0,
	verified_at         DATETIME NULL,
	created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`},
	{"users", `
CREATE TABLE IF NOT EXISTS users (
	id              BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
	email           VARCHAR(255) NOT NULL UNIQUE,
	password_hash   VARCHAR(255) NOT NULL,
	full_name       VARCHAR(255) NOT NULL DEFAULT '',
	phone           VARCHAR(40) NOT NULL DEFAULT '',
	role            VARCHAR(32) NOT NULL,
	profile_type    VARCHAR(32) NULL,
	organization_id BIGINT UNSIGNED NULL,
	is_active       TINYINT(1) NOT NULL DEFAULT 1,
	created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	CONSTRAINT fk_users_org FOREIGN KEY (organization_id) REFERENCES organizations(id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`},
	{"refresh_tokens", `
CREATE TABLE IF NOT EXISTS refresh_tokens (
	id         BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
	user_id    BIGINT UNSIGNED NOT NULL,
	token_hash CHAR(64) NOT NULL UNIQUE,
	expires_at DATETIME NOT NULL,
	revoked_at DATETIME NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	CONSTRAINT fk_refresh_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`},
	{"bookings", `
CREATE TABLE IF NOT EXISTS bookings (
	id                 BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
	session_id         BIGINT UNSIGNED NOT NULL,
	user_id            BIGINT UNSIGNED NOT NULL DEFAULT 0,
	organization_id    BIGINT UNSIGNED NULL,
	booking_type       VARCHAR(32) NOT NULL,
	category           VARCHAR(16) NOT NULL,
	number_of_tickets  INT NOT NULL DEFAULT 0,
	students_count     INT NOT NULL DEFAULT 0,
	accompanists_count INT NOT NULL DEFAULT 0,
	seats              INT NOT NULL,
	status             VARCHAR(32) NOT NULL,
	payment_status     VARCHAR(16) NOT NULL DEFAULT 'pending',
	payment_method     VARCHAR(16) NULL,
	total_amount_cents INT UNSIGNED NOT NULL DEFAULT 0,
	payment_reference  VARCHAR(40) NOT NULL,
	contact_name       VARCHAR(255) NOT NULL,
	contact_email      VARCHAR(255) NOT NULL,
	contact_phone      VARCHAR(40) NOT NULL,
	quote_url          VARCHAR(512) NULL,
	confirmed_at       DATETIME NULL,
	confirmed_by       BIGINT UNSIGNED NULL,
	created_at         DATETIME NOT NULL,
	updated_at         DATETIME NOT NULL,
	KEY idx_bookings_session (session_id, category, status),
	KEY idx_bookings_user (user_id),
	KEY idx_bookings_org (organization_id, status),
	CONSTRAINT fk_bookings_session FOREIGN KEY (session_id) REFERENCES sessions(id),
	CONSTRAINT fk_bookings_org FOREIGN KEY (organization_id) REFERENCES organizations(id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`},
	{"tickets", `
CREATE TABLE IF NOT EXISTS tickets (
	id          BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
	booking_id  BIGINT UNSIGNED NOT NULL,
	qr_code     VARCHAR(64) NOT NULL UNIQUE,
	seat_number VARCHAR(16) NULL,
	status      VARCHAR(16) NOT NULL DEFAULT 'active',
	holder_name VARCHAR(255) NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	KEY idx_tickets_booking (booking_id, status),
	CONSTRAINT fk_tickets_booking FOREIGN KEY (booking_id) REFERENCES bookings(id) ON DELETE CASCADE
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`},
}

// Migrate creates every table that does not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, t := range tables {
		if _, err := db.ExecContext(ctx, t.ddl); err != nil {
			return fmt.Errorf("failed to create %s table: %w", t.name, err)
		}
	}
	return nil
}
