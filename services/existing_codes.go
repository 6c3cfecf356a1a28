// services/existing_codes.go
package services

import (
	"context"
	"fmt"
)

// CodeLoader lists the codes already persisted.
type CodeLoader interface {
	LoadActiveCodes(ctx context.Context) ([]string, error)
}

// CodeIndex is the in-memory set of codes known to be persisted.
// It is filled once at startup and only grows during a run.
type CodeIndex struct {
	codes map[string]bool
}

func NewCodeIndex() *CodeIndex {
	return &CodeIndex{codes: make(map[string]bool)}
}

// Preload fills the index from the store and returns how many codes it holds.
func (i *CodeIndex) Preload(ctx context.Context, loader CodeLoader) (int, error) {
	codes, err := loader.LoadActiveCodes(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to preload existing codes: %w", err)
	}
	for _, c := range codes {
		i.codes[c] = true
	}
	return len(i.codes), nil
}

func (i *CodeIndex) Contains(code string) bool {
	return i.codes[code]
}

func (i *CodeIndex) MarkPresent(code string) {
	i.codes[code] = true
}

func (i *CodeIndex) Len() int {
	return len(i.codes)
}

// Trim drops entries whose flag is false and returns how many were removed.
// Only true flags are ever stored, so under memory pressure this evicts nothing.
func (i *CodeIndex) Trim() int {
	removed := 0
	for code, present := range i.codes {
		if !present {
			delete(i.codes, code)
			removed++
		}
	}
	return removed
}
