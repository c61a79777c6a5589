package handlers

import (
	"database/sql"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"nautilus/api_compliance/internal/ledgererr"
	api "nautilus/api_compliance/pkg/api/harbormaster"
	"nautilus/api_compliance/pkg/logging"
	"nautilus/api_compliance/pkg/middleware"
	"nautilus/api_compliance/pkg/models"
)

// AllocatePool assigns a vessel to a compliance pool for one period
func AllocatePool(c middleware.Context) {
	var req api.AllocatePoolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	allocation, err := allocatePool(req)
	if err != nil {
		metrics.countPoolOp(req.AllocationType, "failed")
		respondError(c, err)
		return
	}

	metrics.countPoolOp(req.AllocationType, "created")
	logger.WithFields(logging.Fields{
		"allocation_id": allocation.ID,
		"vessel_id":     allocation.VesselID,
		"pool_id":       allocation.PoolID,
		"period_year":   allocation.PeriodYear,
		"type":          allocation.AllocationType,
	}).Info("Pool allocation created")

	c.JSON(http.StatusCreated, api.Success("Pool allocation created", allocation))
}

// allocatePool records a pool allocation. OUTFLOW amounts are stored as
// negative gCO2e; the allocation itself never mutates the company balance.
func allocatePool(req api.AllocatePoolRequest) (*models.PoolAllocation, error) {
	if err := validatePeriodYear(req.PeriodYear); err != nil {
		return nil, err
	}
	if req.AllocationType == models.AllocationOutflow && req.AmountGco2e >= 0 {
		return nil, ledgererr.Validationf("OUTFLOW amount must be negative")
	}
	if req.AllocationType == models.AllocationInflow && req.AmountGco2e <= 0 {
		return nil, ledgererr.Validationf("INFLOW amount must be positive")
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck // rollback is best-effort

	var exists bool
	err = tx.QueryRow(`
		SELECT EXISTS(
			SELECT 1 FROM pool_allocations
			WHERE vessel_id = $1 AND period_year = $2
		)
	`, req.VesselID, req.PeriodYear).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ledgererr.Conflictf("vessel already has pool allocation for this period")
	}

	// An OUTFLOW drains compliance surplus out of the company, so the
	// current period balance must cover it. A missing row is a zero
	// position and covers nothing.
	if req.AllocationType == models.AllocationOutflow {
		var balance int64
		err = tx.QueryRow(`
			SELECT balance_gco2e FROM fueleu_balances
			WHERE company_id = $1 AND period_year = $2
		`, req.CompanyID, req.PeriodYear).Scan(&balance)
		if err != nil && err != sql.ErrNoRows {
			return nil, err
		}
		if balance < -req.AmountGco2e {
			return nil, ledgererr.Conflictf("insufficient balance for OUTFLOW")
		}
	}

	allocation := models.PoolAllocation{
		CompanyID:      req.CompanyID,
		VesselID:       req.VesselID,
		PeriodYear:     req.PeriodYear,
		PoolID:         req.PoolID,
		AmountGco2e:    req.AmountGco2e,
		AllocationType: req.AllocationType,
	}
	err = tx.QueryRow(`
		INSERT INTO pool_allocations (company_id, vessel_id, period_year, pool_id, amount_gco2e, allocation_type)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, effective_from, created_at
	`, req.CompanyID, req.VesselID, req.PeriodYear, req.PoolID, req.AmountGco2e, req.AllocationType).
		Scan(&allocation.ID, &allocation.EffectiveFrom, &allocation.CreatedAt)
	if err != nil {
		// The unique index backstops the existence check under
		// concurrent allocation attempts for the same vessel.
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil, ledgererr.Conflictf("vessel already has pool allocation for this period")
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &allocation, nil
}

// GetPoolAllocation returns a vessel's allocation for a period
func GetPoolAllocation(c middleware.Context) {
	vesselID := c.Query("vessel_id")
	if _, err := uuid.Parse(vesselID); err != nil {
		respondError(c, ledgererr.Validationf("invalid vessel ID"))
		return
	}
	periodYear, err := strconv.Atoi(c.Query("period_year"))
	if err != nil {
		respondError(c, ledgererr.Validationf("invalid period year"))
		return
	}

	allocation, err := getPoolAllocation(vesselID, periodYear)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, api.Success("Pool allocation retrieved", allocation))
}

func getPoolAllocation(vesselID string, periodYear int) (*models.PoolAllocation, error) {
	var allocation models.PoolAllocation
	err := db.QueryRow(`
		SELECT id, company_id, vessel_id, period_year, pool_id, amount_gco2e, allocation_type, effective_from, created_at
		FROM pool_allocations
		WHERE vessel_id = $1 AND period_year = $2
	`, vesselID, periodYear).Scan(
		&allocation.ID, &allocation.CompanyID, &allocation.VesselID,
		&allocation.PeriodYear, &allocation.PoolID, &allocation.AmountGco2e,
		&allocation.AllocationType, &allocation.EffectiveFrom, &allocation.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ledgererr.NotFoundf("pool allocation not found")
	}
	if err != nil {
		return nil, err
	}

	return &allocation, nil
}

// GetPoolPerformance aggregates a pool's flows for a period
func GetPoolPerformance(c middleware.Context) {
	poolID := c.Param("poolId")
	if _, err := uuid.Parse(poolID); err != nil {
		respondError(c, ledgererr.Validationf("invalid pool ID"))
		return
	}
	periodYear, err := strconv.Atoi(c.Param("periodYear"))
	if err != nil {
		respondError(c, ledgererr.Validationf("invalid period year"))
		return
	}

	performance, err := getPoolPerformance(poolID, periodYear)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, api.Success("Pool performance calculated", performance))
}

// getPoolPerformance sums flows by sign. Outflows are stored negative, so
// net compliance is a plain sum of both.
func getPoolPerformance(poolID string, periodYear int) (*models.PoolPerformance, error) {
	performance := models.PoolPerformance{
		PoolID:     poolID,
		PeriodYear: periodYear,
	}
	err := db.QueryRow(`
		SELECT
			COALESCE(SUM(CASE WHEN allocation_type = 'INFLOW' THEN amount_gco2e ELSE 0 END), 0) AS total_inflow,
			COALESCE(SUM(CASE WHEN allocation_type = 'OUTFLOW' THEN amount_gco2e ELSE 0 END), 0) AS total_outflow,
			COUNT(DISTINCT vessel_id) AS vessels_participating
		FROM pool_allocations
		WHERE pool_id = $1 AND period_year = $2
	`, poolID, periodYear).Scan(
		&performance.TotalInflowGco2e, &performance.TotalOutflowGco2e, &performance.VesselsParticipating)
	if err != nil {
		return nil, err
	}
	performance.NetBenefitGco2e = performance.TotalInflowGco2e + performance.TotalOutflowGco2e

	return &performance, nil
}
