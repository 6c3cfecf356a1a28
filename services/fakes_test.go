package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/gewnthar/areasync/database"
	"github.com/gewnthar/areasync/models"
)

// memRepo mimics the area table: probe, insert-or-reparent, all-or-nothing.
type memRepo struct {
	rows   map[string]*models.AreaNode
	nextID int64
	fail   map[string]error
	saves  int
}

func newMemRepo() *memRepo {
	return &memRepo{rows: make(map[string]*models.AreaNode), nextID: 1, fail: map[string]error{}}
}

func (r *memRepo) LoadActiveCodes(ctx context.Context) ([]string, error) {
	codes := make([]string, 0, len(r.rows))
	for c := range r.rows {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes, nil
}

func (r *memRepo) SaveChildren(ctx context.Context, items []models.AreaItem, pid int64, level int) (*database.SaveResult, error) {
	r.saves++
	for _, item := range items {
		if err, ok := r.fail[item.ID]; ok {
			return nil, fmt.Errorf("tx rolled back: %w", err)
		}
	}

	res := &database.SaveResult{IDs: map[string]int64{}}
	for i, item := range items {
		if row, ok := r.rows[item.ID]; ok {
			res.IDs[item.ID] = row.ID
			res.Existing++
			continue
		}
		r.rows[item.ID] = &models.AreaNode{
			ID:       r.nextID,
			ParentID: pid,
			Code:     item.ID,
			Name:     item.DisplayName(),
			Level:    level,
			Sort:     item.SortIn(i),
		}
		res.IDs[item.ID] = r.nextID
		res.Inserted = append(res.Inserted, item.ID)
		r.nextID++
	}
	return res, nil
}

func (r *memRepo) EachArea(ctx context.Context, fn func(models.AreaNode) error) error {
	nodes := r.snapshot()
	for _, n := range nodes {
		if err := fn(n); err != nil {
			return err
		}
	}
	return nil
}

// snapshot returns copies ordered by id.
func (r *memRepo) snapshot() []models.AreaNode {
	out := make([]models.AreaNode, 0, len(r.rows))
	for _, n := range r.rows {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// treeFetcher serves a fixed tree keyed by parent id ("" is the root).
type treeFetcher struct {
	tree  map[string][]models.AreaItem
	fail  map[string]error
	calls []string
}

func (f *treeFetcher) FetchChildren(ctx context.Context, parentID string) ([]models.AreaItem, error) {
	f.calls = append(f.calls, parentID)
	if err, ok := f.fail[parentID]; ok {
		return nil, err
	}
	return f.tree[parentID], nil
}

// memCheckpoints records every save.
type memCheckpoints struct {
	current *models.ProgressCheckpoint
	saved   []string
	loadErr error
}

func (c *memCheckpoints) Save(level int, lastID, path string) error {
	c.current = &models.ProgressCheckpoint{Level: level, LastID: lastID, Path: path, Timestamp: 1}
	c.saved = append(c.saved, lastID)
	return nil
}

func (c *memCheckpoints) Load() (*models.ProgressCheckpoint, error) {
	if c.loadErr != nil {
		return nil, c.loadErr
	}
	if c.current == nil {
		return nil, nil
	}
	cp := *c.current
	return &cp, nil
}

func (c *memCheckpoints) Clear() error {
	c.current = nil
	return nil
}

type countingGuard struct{ checks int }

func (g *countingGuard) Check() bool {
	g.checks++
	return false
}

var errDeadlock = errors.New("deadlock found")

func item(id, name string) models.AreaItem {
	return models.AreaItem{ID: id, FullName: name}
}
