// services/batch_service.go
package services

import (
	"context"
	"fmt"

	"github.com/gewnthar/areasync/database"
	"github.com/gewnthar/areasync/models"
	"github.com/sirupsen/logrus"
)

// AreaRepository is the slice of the store the batch layer needs.
type AreaRepository interface {
	CodeLoader
	SaveChildren(ctx context.Context, items []models.AreaItem, pid int64, level int) (*database.SaveResult, error)
}

// BatchWriter saves one parent's children and returns code -> row id.
type BatchWriter interface {
	SaveBatch(ctx context.Context, items []models.AreaItem, pid int64, level int) (map[string]int64, error)
}

// BatchSaver wraps the store with the code index and the memory guard.
type BatchSaver struct {
	repo  AreaRepository
	index *CodeIndex
	guard ResourceChecker
	log   logrus.FieldLogger

	inserted int64
	existing int64
}

func NewBatchSaver(repo AreaRepository, index *CodeIndex, guard ResourceChecker, log logrus.FieldLogger) *BatchSaver {
	return &BatchSaver{repo: repo, index: index, guard: guard, log: log}
}

// SaveBatch persists items under pid. A failed batch is rolled back entirely and
// the error is returned for the caller to abandon that branch.
func (b *BatchSaver) SaveBatch(ctx context.Context, items []models.AreaItem, pid int64, level int) (map[string]int64, error) {
	if len(items) == 0 {
		return map[string]int64{}, nil
	}
	b.guard.Check()

	known := 0
	for _, item := range items {
		if b.index.Contains(item.ID) {
			known++
		}
	}

	res, err := b.repo.SaveChildren(ctx, items, pid, level)
	if err != nil {
		return nil, fmt.Errorf("failed to save %d areas under pid %d: %w", len(items), pid, err)
	}
	for _, code := range res.Inserted {
		b.index.MarkPresent(code)
	}
	b.inserted += int64(len(res.Inserted))
	b.existing += int64(res.Existing)

	b.log.WithFields(logrus.Fields{
		"pid":      pid,
		"level":    level,
		"items":    len(items),
		"known":    known,
		"inserted": len(res.Inserted),
	}).Debug("Saved area batch")
	return res.IDs, nil
}

// Counts reports rows sent through insert and rows found by the existence probe.
func (b *BatchSaver) Counts() (inserted, existing int64) {
	return b.inserted, b.existing
}
