package handlers

import (
	"context"
	"database/sql"
	"time"

	"nautilus/api_compliance/pkg/logging"
)

// JobManager handles background compliance jobs
type JobManager struct {
	db     *sql.DB
	logger logging.Logger
	stopCh chan struct{}
}

// NewJobManager creates a new job manager
func NewJobManager(database *sql.DB, log logging.Logger) *JobManager {
	return &JobManager{
		db:     database,
		logger: log,
		stopCh: make(chan struct{}),
	}
}

// Start begins all background jobs
func (jm *JobManager) Start(ctx context.Context) {
	jm.logger.Info("Starting compliance job manager")

	go jm.runBalanceIntegritySweep(ctx)
	go jm.runVerificationRateRefresh(ctx)
}

// Stop stops all background jobs
func (jm *JobManager) Stop() {
	jm.logger.Info("Stopping compliance job manager")
	close(jm.stopCh)
}

// runBalanceIntegritySweep periodically audits the balance ledger
func (jm *JobManager) runBalanceIntegritySweep(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	jm.logger.Info("Starting balance integrity sweep job")

	for {
		select {
		case <-ctx.Done():
			return
		case <-jm.stopCh:
			return
		case <-ticker.C:
			jm.sweepBalanceIntegrity()
		}
	}
}

// sweepBalanceIntegrity flags balance rows where balance != banked - borrowed.
// The handlers keep the identity on every write, so a hit here means manual
// database edits or a bug and needs operator attention.
func (jm *JobManager) sweepBalanceIntegrity() {
	rows, err := jm.db.Query(`
		SELECT company_id, period_year, balance_gco2e, banked_gco2e, borrowed_gco2e
		FROM fueleu_balances
		WHERE balance_gco2e != banked_gco2e - borrowed_gco2e
	`)
	if err != nil {
		jm.logger.WithError(err).Error("Failed to sweep balance integrity")
		return
	}
	defer rows.Close()

	var violations int
	for rows.Next() {
		var companyID string
		var periodYear int
		var balance, banked, borrowed int64

		if err := rows.Scan(&companyID, &periodYear, &balance, &banked, &borrowed); err != nil {
			continue
		}

		violations++
		jm.logger.WithFields(logging.Fields{
			"company_id":  companyID,
			"period_year": periodYear,
			"balance":     balance,
			"banked":      banked,
			"borrowed":    borrowed,
		}).Error("Balance invariant violated")
	}

	if metrics != nil && metrics.InvariantViolations != nil {
		metrics.InvariantViolations.WithLabelValues().Set(float64(violations))
	}

	if violations > 0 {
		jm.logger.WithFields(logging.Fields{
			"violations": violations,
		}).Error("Balance integrity sweep found violations")
	}
}

// runVerificationRateRefresh keeps the fleet-wide verification gauge current
func (jm *JobManager) runVerificationRateRefresh(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Minute)
	defer ticker.Stop()

	jm.logger.Info("Starting verification rate refresh job")

	for {
		select {
		case <-ctx.Done():
			return
		case <-jm.stopCh:
			return
		case <-ticker.C:
			jm.refreshVerificationRate()
		}
	}
}

func (jm *JobManager) refreshVerificationRate() {
	var total, verified int64
	err := jm.db.QueryRow(`
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE EXISTS(
				SELECT 1 FROM verification_records vr
				WHERE vr.emission_record_id = e.id AND vr.verification_status = 'VERIFIED'
			))
		FROM emission_records e
	`).Scan(&total, &verified)
	if err != nil {
		jm.logger.WithError(err).Error("Failed to refresh verification rate")
		return
	}

	var rate float64
	if total > 0 {
		rate = float64(verified) / float64(total)
	}

	if metrics != nil && metrics.VerificationRate != nil {
		metrics.VerificationRate.WithLabelValues().Set(rate)
	}

	jm.logger.WithFields(logging.Fields{
		"total_records":    total,
		"verified_records": verified,
		"rate":             rate,
	}).Debug("Verification rate refreshed")
}
