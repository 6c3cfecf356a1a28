// services/export_service.go
package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/gewnthar/areasync/models"
	"github.com/jszwec/csvutil"
)

// AreaLister streams every live row.
type AreaLister interface {
	EachArea(ctx context.Context, fn func(models.AreaNode) error) error
}

// ExportCSV writes all live rows to w with a header line and returns the row count.
func ExportCSV(ctx context.Context, lister AreaLister, w io.Writer) (int, error) {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	if err := enc.EncodeHeader(models.AreaNode{}); err != nil {
		return 0, fmt.Errorf("failed to write CSV header: %w", err)
	}

	n := 0
	err := lister.EachArea(ctx, func(node models.AreaNode) error {
		if err := enc.Encode(node); err != nil {
			return fmt.Errorf("failed to encode area %s: %w", node.Code, err)
		}
		n++
		return nil
	})
	cw.Flush()
	if err != nil {
		return n, err
	}
	if err := cw.Error(); err != nil {
		return n, fmt.Errorf("failed to flush CSV: %w", err)
	}
	return n, nil
}
