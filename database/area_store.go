// database/area_store.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gewnthar/areasync/models"
)

// AreaStore persists hierarchy rows in one MySQL table.
// Every query filters on delete_time IS NULL; soft-deleted rows are invisible.
type AreaStore struct {
	db    *sql.DB
	table string
	now   func() time.Time
}

// NewAreaStore expects table to be a validated plain identifier.
func NewAreaStore(db *sql.DB, table string) *AreaStore {
	return &AreaStore{db: db, table: table, now: time.Now}
}

// SaveResult maps every saved code to its row id.
type SaveResult struct {
	IDs      map[string]int64
	Inserted []string // codes that went through the insert statement
	Existing int      // codes answered by the existence probe
}

// Ping checks the connection.
func (s *AreaStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// LoadActiveCodes returns every live code in the table.
func (s *AreaStore) LoadActiveCodes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT code FROM `%s` WHERE delete_time IS NULL", s.table))
	if err != nil {
		return nil, fmt.Errorf("failed to query existing codes: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("failed to scan code row: %w", err)
		}
		codes = append(codes, code)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating code rows: %w", err)
	}
	return codes, nil
}

// SaveChildren upserts items under parent pid inside one transaction.
// Codes that already exist keep their name and sort; a conflicting insert only
// moves the row to pid. Sort is the item's sibling position, or its 1-based
// position in items when none is set.
// Any failure rolls back the whole batch.
func (s *AreaStore) SaveChildren(ctx context.Context, items []models.AreaItem, pid int64, level int) (*SaveResult, error) {
	result := &SaveResult{IDs: make(map[string]int64, len(items))}
	if len(items) == 0 {
		return result, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction for %d areas: %w", len(items), err)
	}
	defer tx.Rollback()

	existing, err := s.findIDsByCodes(ctx, tx, items)
	if err != nil {
		return nil, err
	}

	var (
		values []string
		args   []any
		ts     = s.now().Unix()
	)
	for i, item := range items {
		if id, ok := existing[item.ID]; ok {
			result.IDs[item.ID] = id
			result.Existing++
			continue
		}
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, NULL)")
		args = append(args, pid, item.ID, item.DisplayName(), level, item.SortIn(i), ts, ts)
		result.Inserted = append(result.Inserted, item.ID)
	}

	if len(values) > 0 {
		query := fmt.Sprintf(
			"INSERT INTO `%s` (pid, code, name, level, sort, create_time, update_time, delete_time) VALUES %s ON DUPLICATE KEY UPDATE pid = VALUES(pid)",
			s.table, strings.Join(values, ", "),
		)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return nil, fmt.Errorf("failed to insert %d areas under pid %d: %w", len(values), pid, err)
		}

		lookup := fmt.Sprintf("SELECT id FROM `%s` WHERE code = ? AND delete_time IS NULL LIMIT 1", s.table)
		for _, code := range result.Inserted {
			if _, ok := result.IDs[code]; ok {
				continue
			}
			var id int64
			if err := tx.QueryRowContext(ctx, lookup, code).Scan(&id); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return nil, fmt.Errorf("area %s not found after insert", code)
				}
				return nil, fmt.Errorf("failed to resolve id for area %s: %w", code, err)
			}
			result.IDs[code] = id
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit %d areas under pid %d: %w", len(items), pid, err)
	}
	return result, nil
}

func (s *AreaStore) findIDsByCodes(ctx context.Context, tx *sql.Tx, items []models.AreaItem) (map[string]int64, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(items)), ", ")
	args := make([]any, len(items))
	for i, item := range items {
		args[i] = item.ID
	}

	query := fmt.Sprintf("SELECT id, code FROM `%s` WHERE delete_time IS NULL AND code IN (%s)", s.table, placeholders)
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query existing areas: %w", err)
	}
	defer rows.Close()

	found := make(map[string]int64, len(items))
	for rows.Next() {
		var (
			id   int64
			code string
		)
		if err := rows.Scan(&id, &code); err != nil {
			return nil, fmt.Errorf("failed to scan existing area row: %w", err)
		}
		found[code] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating existing area rows: %w", err)
	}
	return found, nil
}

// EachArea streams live rows ordered by level, parent and sort.
func (s *AreaStore) EachArea(ctx context.Context, fn func(models.AreaNode) error) error {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, pid, code, name, level, sort, create_time, update_time
		FROM `+"`%s`"+`
		WHERE delete_time IS NULL
		ORDER BY level, pid, sort, id`, s.table))
	if err != nil {
		return fmt.Errorf("failed to query areas: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			n                models.AreaNode
			created, updated int64
		)
		if err := rows.Scan(&n.ID, &n.ParentID, &n.Code, &n.Name, &n.Level, &n.Sort, &created, &updated); err != nil {
			return fmt.Errorf("failed to scan area row: %w", err)
		}
		n.CreateTime = time.Unix(created, 0)
		n.UpdateTime = time.Unix(updated, 0)
		if err := fn(n); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating area rows: %w", err)
	}
	return nil
}
