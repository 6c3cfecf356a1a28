// services/traversal_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gewnthar/areasync/models"
	"github.com/gewnthar/areasync/scraper"
	"github.com/gewnthar/areasync/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// memoryCheckInterval is how many processed nodes pass between memory checks.
const memoryCheckInterval = 50

// ChildFetcher returns the children of a node in source order.
type ChildFetcher interface {
	FetchChildren(ctx context.Context, parentID string) ([]models.AreaItem, error)
}

// CheckpointStore holds the single resume record.
type CheckpointStore interface {
	Save(level int, lastID, path string) error
	Load() (*models.ProgressCheckpoint, error)
	Clear() error
}

// EngineOptions tune the traversal.
type EngineOptions struct {
	// Delay is slept before every child fetch.
	Delay time.Duration
	// Municipalities are level-1 display names that get a synthetic level-2 tier.
	Municipalities          []string
	MunicipalDistrictName   string
	MunicipalDistrictSuffix string
}

// Engine walks the district tree depth first and persists it.
type Engine struct {
	fetcher     ChildFetcher
	batches     BatchWriter
	checkpoints CheckpointStore
	guard       ResourceChecker
	log         logrus.FieldLogger
	opts        EngineOptions

	municipalities map[string]bool
	progress       *Progress

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

func NewEngine(fetcher ChildFetcher, batches BatchWriter, checkpoints CheckpointStore, guard ResourceChecker, log logrus.FieldLogger, opts EngineOptions) *Engine {
	return &Engine{
		fetcher:        fetcher,
		batches:        batches,
		checkpoints:    checkpoints,
		guard:          guard,
		log:            log,
		opts:           opts,
		municipalities: utils.NameSet(opts.Municipalities),
		progress:       NewProgress(),
		sleep:          scraper.SleepContext,
		now:            time.Now,
	}
}

// Progress exposes the live counters of the current run.
func (e *Engine) Progress() *Progress {
	return e.progress
}

type resumeState int

const (
	stateActive resumeState = iota
	stateSkipping
)

// run is the mutable state of one traversal. It is owned by a single goroutine.
type run struct {
	id        string
	log       logrus.FieldLogger
	startedAt time.Time

	state        resumeState
	resumeLevel  int
	resumeID     string
	processed    int64
	skipped      int64
	failures     int64
	lastMemCheck int64
}

// resume implements the skip machine: while skipping, only the node whose
// (level, id) equals the checkpoint is let through, and it flips the run active.
func (r *run) resume(level int, id string) (skip, matched bool) {
	if r.state != stateSkipping {
		return false, false
	}
	if level == r.resumeLevel && id == r.resumeID {
		r.state = stateActive
		return false, true
	}
	return true, false
}

// IsFatal reports whether err must abort the whole run instead of one branch.
func IsFatal(err error) bool {
	return errors.Is(err, scraper.ErrRetriesExhausted) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Run fetches the top level and walks every branch. It returns an error only
// for fatal conditions; the checkpoint is left in place in that case.
func (e *Engine) Run(ctx context.Context) (*models.RunSummary, error) {
	r := &run{id: uuid.NewString(), startedAt: e.now(), lastMemCheck: -memoryCheckInterval}
	r.log = e.log.WithField("run", r.id)
	e.progress.start(r.id, r.startedAt)
	defer e.progress.finish()

	provinces, err := e.fetcher.FetchChildren(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch top-level areas: %w", err)
	}
	if len(provinces) == 0 {
		r.log.Info("Top-level fetch returned nothing, nothing to do")
		return e.summary(r), nil
	}

	r.log.Infof("Starting, %d top-level areas", len(provinces))
	if err := e.processLevel(ctx, r, provinces, models.RootParentID, models.LevelProvince, nil); err != nil {
		return nil, err
	}

	summary := e.summary(r)
	ReportSummary(r.log, summary)

	if err := e.checkpoints.Clear(); err != nil {
		r.log.WithError(err).Warn("Failed to remove checkpoint")
	} else {
		r.log.Info("Checkpoint cleared")
	}
	return summary, nil
}

func (e *Engine) summary(r *run) *models.RunSummary {
	s := &models.RunSummary{
		RunID:          r.id,
		StartedAt:      r.startedAt,
		Elapsed:        e.now().Sub(r.startedAt),
		TotalProcessed: r.processed,
		Skipped:        r.skipped,
		BranchFailures: r.failures,
	}
	if c, ok := e.batches.(batchCounter); ok {
		s.Inserted, s.Existing = c.Counts()
	}
	return s
}

type batchCounter interface {
	Counts() (inserted, existing int64)
}

func (e *Engine) count(r *run, n int64) {
	r.processed += n
	e.progress.add(n)
}

// checkMemoryPeriodically checks once on the first node and then after every
// memoryCheckInterval processed nodes. Skipped nodes do not advance it.
func (e *Engine) checkMemoryPeriodically(r *run) {
	if r.processed-r.lastMemCheck >= memoryCheckInterval {
		r.lastMemCheck = r.processed
		e.guard.Check()
	}
}

// processLevel handles one sibling list. path is the breadcrumb of the parent
// and is never mutated; each child gets its own copy.
func (e *Engine) processLevel(ctx context.Context, r *run, items []models.AreaItem, pid int64, level int, path []string) error {
	if len(items) == 0 {
		return nil
	}
	e.guard.Check()

	if level == models.LevelProvince {
		e.loadCheckpoint(r)
	}

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.checkMemoryPeriodically(r)
		item.Position = i + 1

		crumbs := make([]string, len(path), len(path)+1)
		copy(crumbs, path)
		crumbs = append(crumbs, item.DisplayName())
		pathStr := strings.Join(crumbs, " > ")

		skip, matched := r.resume(level, item.ID)
		if skip {
			r.skipped++
			r.log.Infof("Skipping: %s", pathStr)
			continue
		}
		if matched {
			r.log.Infof("Reached checkpoint at %s, resuming", pathStr)
		}

		r.log.WithFields(logrus.Fields{"id": item.ID, "level": level}).Infof("Processing: %s", pathStr)

		if level == models.LevelProvince {
			if err := e.checkpoints.Save(level, item.ID, pathStr); err != nil {
				r.log.WithError(err).Warn("Failed to save checkpoint")
			}
		}

		var err error
		if level == models.LevelProvince && e.municipalities[utils.NormalizeName(item.DisplayName())] {
			err = e.expandMunicipality(ctx, r, item, crumbs)
		} else {
			err = e.processNode(ctx, r, item, pid, level, crumbs)
		}
		if err != nil {
			if IsFatal(err) {
				return err
			}
			r.failures++
			r.log.WithError(err).Errorf("Abandoning branch %s", pathStr)
		}

		e.count(r, 1)
	}

	if level == models.LevelProvince && r.state == stateSkipping {
		r.log.WithFields(logrus.Fields{"level": r.resumeLevel, "id": r.resumeID}).
			Warn("Checkpoint node was not found among top-level areas; nothing was resumed")
	}
	return nil
}

func (e *Engine) loadCheckpoint(r *run) {
	p, err := e.checkpoints.Load()
	if err != nil {
		r.log.WithError(err).Warn("Ignoring unreadable checkpoint, starting from the beginning")
		return
	}
	if p == nil {
		return
	}
	r.state = stateSkipping
	r.resumeLevel = p.Level
	r.resumeID = p.LastID
	r.log.Infof("Found checkpoint, resuming from %s (saved %s)", p.Path, p.SavedAt().Format("2006-01-02 15:04:05"))
}

// processNode persists one node and descends into its children.
func (e *Engine) processNode(ctx context.Context, r *run, item models.AreaItem, pid int64, level int, crumbs []string) error {
	ids, err := e.batches.SaveBatch(ctx, []models.AreaItem{item}, pid, level)
	if err != nil {
		return err
	}
	id, ok := ids[item.ID]
	if !ok || level >= models.MaxLevel {
		return nil
	}

	children, err := e.fetchChildren(ctx, item.ID)
	if err != nil {
		return fmt.Errorf("failed to fetch children of %s: %w", strings.Join(crumbs, " > "), err)
	}
	return e.processLevel(ctx, r, children, id, level+1, crumbs)
}

func (e *Engine) fetchChildren(ctx context.Context, parentID string) ([]models.AreaItem, error) {
	if err := e.sleep(ctx, e.opts.Delay); err != nil {
		return nil, err
	}
	return e.fetcher.FetchChildren(ctx, parentID)
}

// expandMunicipality stores a municipality as province -> synthetic municipal
// district -> real districts (level 3) -> streets (level 4).
func (e *Engine) expandMunicipality(ctx context.Context, r *run, item models.AreaItem, crumbs []string) error {
	ids, err := e.batches.SaveBatch(ctx, []models.AreaItem{item}, models.RootParentID, models.LevelProvince)
	if err != nil {
		return err
	}
	provinceID, ok := ids[item.ID]
	if !ok {
		return nil
	}

	synthetic := models.AreaItem{
		ID:       item.ID + e.opts.MunicipalDistrictSuffix,
		FullName: e.opts.MunicipalDistrictName,
	}
	ids, err = e.batches.SaveBatch(ctx, []models.AreaItem{synthetic}, provinceID, models.LevelCity)
	if err != nil {
		return err
	}
	cityID, ok := ids[synthetic.ID]
	if !ok {
		return nil
	}
	e.count(r, 1)

	districts, err := e.fetchChildren(ctx, item.ID)
	if err != nil {
		return fmt.Errorf("failed to fetch districts of %s: %w", item.DisplayName(), err)
	}
	districtIDs, err := e.batches.SaveBatch(ctx, districts, cityID, models.LevelDistrict)
	if err != nil {
		return err
	}

	for _, district := range districts {
		districtID, ok := districtIDs[district.ID]
		if !ok {
			continue
		}
		e.count(r, 1)
		e.checkMemoryPeriodically(r)
		r.log.WithFields(logrus.Fields{"id": district.ID, "level": models.LevelDistrict}).
			Infof("Processing: %s > %s > %s", strings.Join(crumbs, " > "), synthetic.FullName, district.DisplayName())

		streets, err := e.fetchChildren(ctx, district.ID)
		if err != nil {
			return fmt.Errorf("failed to fetch streets of %s: %w", district.DisplayName(), err)
		}
		if _, err := e.batches.SaveBatch(ctx, streets, districtID, models.LevelStreet); err != nil {
			return err
		}
		e.count(r, int64(len(streets)))
	}
	return nil
}
