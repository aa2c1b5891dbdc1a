package utils

import (
	"calreview/config"
	"calreview/database"
	"calreview/models"
	"calreview/phoenix"
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// logCoverage logs coverage scheduler events with timestamp
func logCoverage(message string) {
	log.Printf("[COVERAGE-SCHEDULER %s] %s", time.Now().Format(time.RFC3339), message)
}

// snapshotCoverage fetches the Phoenix certificate list and logs how much of
// it has a local evaluation. Dashboard metric; failures are logged only.
func snapshotCoverage(client *phoenix.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	certs, err := client.GetAllCertificates(ctx)
	if err != nil {
		logCoverage("Failed to fetch Phoenix certificate list: " + err.Error())
		return
	}

	var localCertNos []string
	if err := database.Database.Db.Model(&models.EvaluationRecord{}).
		Distinct("cert_no").
		Pluck("cert_no", &localCertNos).Error; err != nil {
		logCoverage("Failed to fetch evaluated cert numbers: " + err.Error())
		return
	}

	coverage := phoenix.CalculateProcessingCoverage(certs, localCertNos)
	log.Printf("[COVERAGE-SCHEDULER] %d/%d certificates evaluated (%.1f%%), %d missing, %d orphaned",
		coverage.TotalProcessed, coverage.TotalExternal, coverage.CoveragePct,
		len(coverage.Missing), len(coverage.OrphanedLocal))
}

// InitializeCoverageScheduler starts the periodic coverage snapshot job
func InitializeCoverageScheduler(client *phoenix.Client) *cron.Cron {
	c := cron.New(cron.WithSeconds())

	spec := config.AppConfig.CoverageSyncCron
	if _, err := c.AddFunc(spec, func() { snapshotCoverage(client) }); err != nil {
		log.Printf("Invalid COVERAGE_SYNC_CRON %q: %v. Coverage snapshots disabled.", spec, err)
		return c
	}

	c.Start()
	logCoverage("Coverage scheduler started with spec " + spec)
	return c
}
