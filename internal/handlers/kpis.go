package handlers

import (
	"database/sql"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"nautilus/api_compliance/internal/ledgererr"
	api "nautilus/api_compliance/pkg/api/harbormaster"
	"nautilus/api_compliance/pkg/middleware"
	"nautilus/api_compliance/pkg/models"
)

// GetComplianceKPIs summarizes a company's compliance position for a period
func GetComplianceKPIs(c middleware.Context) {
	companyID := c.Query("company_id")
	if _, err := uuid.Parse(companyID); err != nil {
		respondError(c, ledgererr.Validationf("invalid company ID"))
		return
	}
	periodYear, err := strconv.Atoi(c.Query("period_year"))
	if err != nil {
		respondError(c, ledgererr.Validationf("invalid period year"))
		return
	}
	if err := validatePeriodYear(periodYear); err != nil {
		respondError(c, err)
		return
	}

	kpis, err := complianceKPIs(companyID, periodYear)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, api.Success("Compliance KPIs calculated", kpis))
}

// complianceKPIs pulls each module's aggregate for one company and period.
// Emission scope runs through voyage -> vessel -> company ownership.
func complianceKPIs(companyID string, periodYear int) (*models.ComplianceKPIs, error) {
	kpis := models.ComplianceKPIs{
		CompanyID:  companyID,
		PeriodYear: periodYear,
	}

	var verifiedCount, emissionCount int64
	err := db.QueryRow(`
		SELECT
			COALESCE(SUM(e.co2_tonnes), 0),
			COUNT(e.id),
			COUNT(e.id) FILTER (WHERE EXISTS(
				SELECT 1 FROM verification_records vr
				WHERE vr.emission_record_id = e.id AND vr.verification_status = 'VERIFIED'
			))
		FROM emission_records e
		JOIN voyages v ON v.id = e.voyage_id
		JOIN vessels vs ON vs.id = v.vessel_id
		WHERE vs.company_id = $1 AND e.period_year = $2
	`, companyID, periodYear).Scan(&kpis.TotalEmissionsTonnes, &emissionCount, &verifiedCount)
	if err != nil {
		return nil, err
	}
	if emissionCount > 0 {
		kpis.VerificationRate = float64(verifiedCount) / float64(emissionCount)
	}

	balance, err := getBalance(companyID, periodYear)
	if err != nil {
		return nil, err
	}
	kpis.FuelEUBalanceGco2e = balance.BalanceGco2e

	start, end := periodWindow(periodYear)
	err = db.QueryRow(`
		SELECT euas_count FROM eua_operations
		WHERE company_id = $1 AND operation_type = 'FORECAST'
		  AND executed_at >= $2 AND executed_at < $3
		ORDER BY executed_at ASC
		LIMIT 1
	`, companyID, start, end).Scan(&kpis.ForecastedEuas)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}

	err = db.QueryRow(`
		SELECT COALESCE(SUM(euas_count), 0) FROM eua_operations
		WHERE company_id = $1 AND operation_type = 'SURRENDER'
		  AND executed_at >= $2 AND executed_at < $3
	`, companyID, start, end).Scan(&kpis.SurrenderedEuas)
	if err != nil {
		return nil, err
	}

	// A company's fleet participates in at most one pool per period, so
	// any allocation row identifies the pool to aggregate.
	var poolID string
	err = db.QueryRow(`
		SELECT pool_id FROM pool_allocations
		WHERE company_id = $1 AND period_year = $2
		LIMIT 1
	`, companyID, periodYear).Scan(&poolID)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	if poolID != "" {
		performance, err := getPoolPerformance(poolID, periodYear)
		if err != nil {
			return nil, err
		}
		kpis.PoolPerformance = *performance
	} else {
		kpis.PoolPerformance = models.PoolPerformance{PeriodYear: periodYear}
	}

	return &kpis, nil
}
