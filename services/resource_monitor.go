// services/resource_monitor.go
package services

import (
	"runtime"

	"github.com/dustin/go-humanize"
	"github.com/gewnthar/areasync/logging"
	"github.com/sirupsen/logrus"
)

// pressureRatio of the ceiling triggers a relief pass.
const pressureRatio = 0.8

// ResourceChecker is consulted before each batch save and every few nodes.
type ResourceChecker interface {
	Check() bool
}

// MemoryGuard samples memory use and, above 80% of the ceiling, forces a GC
// and trims the code index.
type MemoryGuard struct {
	Limit   uint64
	Usage   func() uint64
	Collect func()

	index  *CodeIndex
	log    logrus.FieldLogger
	relief int
}

func NewMemoryGuard(limit uint64, index *CodeIndex, log logrus.FieldLogger) *MemoryGuard {
	return &MemoryGuard{
		Limit:   limit,
		Usage:   logging.HeapInUse,
		Collect: runtime.GC,
		index:   index,
		log:     log,
	}
}

// Check returns true when a relief pass ran. It never interrupts the caller.
func (g *MemoryGuard) Check() bool {
	used := g.Usage()
	if float64(used) <= float64(g.Limit)*pressureRatio {
		return false
	}

	g.relief++
	g.log.WithFields(logrus.Fields{
		"used":  humanize.IBytes(used),
		"limit": humanize.IBytes(g.Limit),
	}).Warn("Memory usage above 80% of limit, running garbage collection")

	g.Collect()
	trimmed := 0
	if g.index != nil {
		trimmed = g.index.Trim()
	}
	g.log.WithFields(logrus.Fields{
		"trimmed":    trimmed,
		"index_size": g.indexLen(),
		"after":      humanize.IBytes(g.Usage()),
	}).Info("Memory relief pass finished")
	return true
}

// Reliefs reports how many relief passes have run.
func (g *MemoryGuard) Reliefs() int {
	return g.relief
}

func (g *MemoryGuard) indexLen() int {
	if g.index == nil {
		return 0
	}
	return g.index.Len()
}
