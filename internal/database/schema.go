package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema creates the two reservation tables.  waitlist_entries rows are owned
// by their slot: deleting a slot (grid purge) must take its entries with it,
// hence ON DELETE CASCADE.  UNIQUE(slot_id, position) makes a duplicated
// queue position impossible to commit.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS slots (
		id           BIGINT UNSIGNED  NOT NULL AUTO_INCREMENT,
		room         SMALLINT UNSIGNED NOT NULL,
		slot_date    DATE             NOT NULL,
		hour         TINYINT UNSIGNED NOT NULL,
		booked       BOOLEAN          NOT NULL DEFAULT FALSE,
		queue_length SMALLINT UNSIGNED NOT NULL DEFAULT 0,
		holder       VARCHAR(64)      NULL,
		created_at   DATETIME         NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at   DATETIME         NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		PRIMARY KEY (id),
		UNIQUE KEY uq_slots_cell (room, slot_date, hour),
		KEY idx_slots_date (slot_date)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS waitlist_entries (
		id           BIGINT UNSIGNED  NOT NULL AUTO_INCREMENT,
		slot_id      BIGINT UNSIGNED  NOT NULL,
		holder_name  VARCHAR(64)      NOT NULL,
		holder_phone CHAR(10)         NOT NULL,
		holder_email VARCHAR(64)      NOT NULL,
		passkey_hash VARCHAR(72)      NOT NULL,
		position     SMALLINT UNSIGNED NOT NULL,
		created_at   DATETIME         NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (id),
		UNIQUE KEY uq_waitlist_position (slot_id, position),
		KEY idx_waitlist_email (holder_email),
		KEY idx_waitlist_phone (holder_phone),
		CONSTRAINT fk_waitlist_slot FOREIGN KEY (slot_id) REFERENCES slots (id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// EnsureSchema creates missing tables.  It is safe to run on every start.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}
