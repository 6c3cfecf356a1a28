// services/summary.go
package services

import (
	"fmt"
	"time"

	"github.com/gewnthar/areasync/models"
	"github.com/sirupsen/logrus"
)

// FormatElapsed renders d as HH:MM:SS; hours are not capped at 24.
func FormatElapsed(d time.Duration) string {
	secs := int64(d.Round(time.Second) / time.Second)
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
}

// ReportSummary logs the end-of-run totals.
func ReportSummary(log logrus.FieldLogger, s *models.RunSummary) {
	log.WithFields(logrus.Fields{
		"inserted":        s.Inserted,
		"existing":        s.Existing,
		"skipped":         s.Skipped,
		"branch_failures": s.BranchFailures,
	}).Infof("Processing complete! Total processed: %d, elapsed: %s", s.TotalProcessed, FormatElapsed(s.Elapsed))
}
