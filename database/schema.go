// database/schema.go
package database

import (
	"context"
	"database/sql"
	"fmt"
)

// code_active is NULL for soft-deleted rows, so the unique key only binds live codes
// and ON DUPLICATE KEY never fires against a deleted row.
const createAreaTableSQL = "CREATE TABLE IF NOT EXISTS `%s` (" + `
	id          BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
	pid         BIGINT UNSIGNED NOT NULL DEFAULT 0,
	code        VARCHAR(32)     NOT NULL,
	name        VARCHAR(128)    NOT NULL,
	level       TINYINT UNSIGNED NOT NULL DEFAULT 0,
	sort        INT UNSIGNED    NOT NULL DEFAULT 0,
	create_time INT UNSIGNED    NOT NULL DEFAULT 0,
	update_time INT UNSIGNED    NOT NULL DEFAULT 0,
	delete_time INT UNSIGNED    NULL DEFAULT NULL,
	code_active VARCHAR(32) GENERATED ALWAYS AS (IF(delete_time IS NULL, code, NULL)) STORED,
	PRIMARY KEY (id),
	UNIQUE KEY uk_code_active (code_active),
	KEY idx_pid (pid),
	KEY idx_code (code)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`

// EnsureSchema creates the area table when it does not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB, table string) error {
	if _, err := db.ExecContext(ctx, fmt.Sprintf(createAreaTableSQL, table)); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}
	return nil
}
