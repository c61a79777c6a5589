package handlers

import (
	"database/sql"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"nautilus/api_compliance/internal/ledgererr"
	api "nautilus/api_compliance/pkg/api/harbormaster"
	"nautilus/api_compliance/pkg/logging"
	"nautilus/api_compliance/pkg/middleware"
	"nautilus/api_compliance/pkg/models"
)

// EUA Operation Ledger Endpoints
//
// The ledger is append-only. Corrections are new offsetting entries, never
// updates, so every query aggregates over the full history of a calendar
// period. Period membership is decided by executed_at falling inside
// [Jan 1 Y, Jan 1 Y+1) UTC.

// surrenderTolerance is the allowed relative gap between surrendered EUAs
// and the CO2 recorded on the referenced voyages.
const surrenderTolerance = 0.01

func periodWindow(periodYear int) (time.Time, time.Time) {
	start := time.Date(periodYear, time.January, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(1, 0, 0)
}

func insertEUAOperation(op *models.EUAOperation) error {
	var price sql.NullFloat64
	if op.PricePerEua != nil {
		price = sql.NullFloat64{Float64: *op.PricePerEua, Valid: true}
	}
	if op.ReferenceVoyageIDs == nil {
		op.ReferenceVoyageIDs = []string{}
	}
	return db.QueryRow(`
		INSERT INTO eua_operations (company_id, operation_type, euas_count, price_per_eua, reference_voyage_ids, executed_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, executed_at, created_at
	`, op.CompanyID, op.OperationType, op.EuasCount, price, pq.Array(op.ReferenceVoyageIDs)).
		Scan(&op.ID, &op.ExecutedAt, &op.CreatedAt)
}

// ForecastEUA records forecasted EUA requirements for a period
func ForecastEUA(c middleware.Context) {
	var req api.ForecastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	operation, err := forecastEUA(req)
	if err != nil {
		metrics.countEUAOp(models.EUAOpForecast, "failed")
		respondError(c, err)
		return
	}

	metrics.countEUAOp(models.EUAOpForecast, "created")
	logger.WithFields(logging.Fields{
		"operation_id": operation.ID,
		"company_id":   operation.CompanyID,
		"euas_count":   operation.EuasCount,
	}).Info("EUA forecast created")

	c.JSON(http.StatusCreated, api.Success("EUA forecast created", operation))
}

func forecastEUA(req api.ForecastRequest) (*models.EUAOperation, error) {
	if err := validatePeriodYear(req.PeriodYear); err != nil {
		return nil, err
	}
	if req.EuasCount <= 0 {
		return nil, ledgererr.Validationf("EUA count must be positive")
	}

	operation := models.EUAOperation{
		CompanyID:     req.CompanyID,
		OperationType: models.EUAOpForecast,
		EuasCount:     req.EuasCount,
	}
	if err := insertEUAOperation(&operation); err != nil {
		return nil, err
	}

	return &operation, nil
}

// SurrenderEUA surrenders EUAs against recorded voyage emissions
func SurrenderEUA(c middleware.Context) {
	var req api.SurrenderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	operation, err := surrenderEUA(req)
	if err != nil {
		metrics.countEUAOp(models.EUAOpSurrender, "failed")
		respondError(c, err)
		return
	}

	metrics.countEUAOp(models.EUAOpSurrender, "created")
	logger.WithFields(logging.Fields{
		"operation_id": operation.ID,
		"company_id":   operation.CompanyID,
		"euas_count":   operation.EuasCount,
		"voyage_count": len(operation.ReferenceVoyageIDs),
	}).Info("EUAs surrendered")

	c.JSON(http.StatusCreated, api.Success("EUAs surrendered", operation))
}

// surrenderEUA checks the surrendered amount against the CO2 recorded on
// the referenced voyages before appending the entry.
func surrenderEUA(req api.SurrenderRequest) (*models.EUAOperation, error) {
	if req.EuasCount <= 0 {
		return nil, ledgererr.Validationf("EUA count must be positive")
	}

	var emissionCount int
	var totalCo2 float64
	err := db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(co2_tonnes), 0)
		FROM emission_records
		WHERE voyage_id = ANY($1)
	`, pq.Array(req.VoyageIDs)).Scan(&emissionCount, &totalCo2)
	if err != nil {
		return nil, err
	}
	if emissionCount == 0 {
		return nil, ledgererr.Conflictf("no emissions found for surrender")
	}
	if math.Abs(req.EuasCount-totalCo2) > totalCo2*surrenderTolerance {
		return nil, ledgererr.Conflictf("surrendered EUAs do not match emissions")
	}

	operation := models.EUAOperation{
		CompanyID:          req.CompanyID,
		OperationType:      models.EUAOpSurrender,
		EuasCount:          req.EuasCount,
		ReferenceVoyageIDs: req.VoyageIDs,
	}
	if err := insertEUAOperation(&operation); err != nil {
		return nil, err
	}

	return &operation, nil
}

// ReconcileEUA confirms surrendered EUAs for a period
func ReconcileEUA(c middleware.Context) {
	var req api.ReconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	operation, err := reconcileEUA(req)
	if err != nil {
		metrics.countEUAOp(models.EUAOpReconcile, "failed")
		respondError(c, err)
		return
	}

	metrics.countEUAOp(models.EUAOpReconcile, "created")
	logger.WithFields(logging.Fields{
		"operation_id": operation.ID,
		"company_id":   operation.CompanyID,
		"euas_count":   operation.EuasCount,
	}).Info("EUAs reconciled")

	c.JSON(http.StatusCreated, api.Success("EUAs reconciled", operation))
}

func reconcileEUA(req api.ReconcileRequest) (*models.EUAOperation, error) {
	if err := validatePeriodYear(req.PeriodYear); err != nil {
		return nil, err
	}
	if req.EuasCount <= 0 {
		return nil, ledgererr.Validationf("EUA count must be positive")
	}

	start, end := periodWindow(req.PeriodYear)
	var totalSurrendered float64
	err := db.QueryRow(`
		SELECT ABS(COALESCE(SUM(euas_count), 0))
		FROM eua_operations
		WHERE company_id = $1 AND operation_type = 'SURRENDER'
		  AND executed_at >= $2 AND executed_at < $3
	`, req.CompanyID, start, end).Scan(&totalSurrendered)
	if err != nil {
		return nil, err
	}
	if req.EuasCount > totalSurrendered {
		return nil, ledgererr.Conflictf("reconciled amount exceeds surrendered EUAs")
	}

	operation := models.EUAOperation{
		CompanyID:     req.CompanyID,
		OperationType: models.EUAOpReconcile,
		EuasCount:     req.EuasCount,
	}
	if err := insertEUAOperation(&operation); err != nil {
		return nil, err
	}

	return &operation, nil
}

// HedgeEUA records a hedge position at a given price
func HedgeEUA(c middleware.Context) {
	var req api.HedgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	operation, err := hedgeEUA(req)
	if err != nil {
		metrics.countEUAOp(models.EUAOpHedge, "failed")
		respondError(c, err)
		return
	}

	metrics.countEUAOp(models.EUAOpHedge, "created")
	logger.WithFields(logging.Fields{
		"operation_id":  operation.ID,
		"company_id":    operation.CompanyID,
		"euas_count":    operation.EuasCount,
		"price_per_eua": req.PricePerEua,
	}).Info("EUA hedge recorded")

	c.JSON(http.StatusCreated, api.Success("EUA hedge recorded", operation))
}

// hedgeEUA is purely a ledger entry; it never affects surrender or
// reconcile arithmetic.
func hedgeEUA(req api.HedgeRequest) (*models.EUAOperation, error) {
	if req.EuasCount <= 0 {
		return nil, ledgererr.Validationf("EUA count must be positive")
	}

	price := req.PricePerEua
	operation := models.EUAOperation{
		CompanyID:     req.CompanyID,
		OperationType: models.EUAOpHedge,
		EuasCount:     req.EuasCount,
		PricePerEua:   &price,
	}
	if err := insertEUAOperation(&operation); err != nil {
		return nil, err
	}

	return &operation, nil
}

// GetForecastAccuracy reports how close a period's forecast landed
func GetForecastAccuracy(c middleware.Context) {
	companyID := c.Param("companyId")
	if _, err := uuid.Parse(companyID); err != nil {
		respondError(c, ledgererr.Validationf("invalid company ID"))
		return
	}
	periodYear, err := strconv.Atoi(c.Param("periodYear"))
	if err != nil {
		respondError(c, ledgererr.Validationf("invalid period year"))
		return
	}

	accuracy, err := forecastAccuracy(companyID, periodYear)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, api.Success("Forecast accuracy calculated", api.ForecastAccuracy{
		CompanyID:  companyID,
		PeriodYear: periodYear,
		Accuracy:   accuracy,
	}))
}

// forecastAccuracy is 1 - |surrendered - forecast| / forecast, clamped to
// [0, 1]. It is nil when the period has no forecast or no surrenders; a
// period without both sides has no meaningful accuracy.
func forecastAccuracy(companyID string, periodYear int) (*float64, error) {
	start, end := periodWindow(periodYear)

	var forecast float64
	err := db.QueryRow(`
		SELECT euas_count FROM eua_operations
		WHERE company_id = $1 AND operation_type = 'FORECAST'
		  AND executed_at >= $2 AND executed_at < $3
		ORDER BY executed_at ASC
		LIMIT 1
	`, companyID, start, end).Scan(&forecast)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var surrenderCount int
	var totalSurrendered float64
	err = db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(euas_count), 0)
		FROM eua_operations
		WHERE company_id = $1 AND operation_type = 'SURRENDER'
		  AND executed_at >= $2 AND executed_at < $3
	`, companyID, start, end).Scan(&surrenderCount, &totalSurrendered)
	if err != nil {
		return nil, err
	}
	if surrenderCount == 0 {
		return nil, nil
	}

	accuracy := 1 - math.Abs(totalSurrendered-forecast)/forecast
	accuracy = math.Max(0, math.Min(1, accuracy))

	return &accuracy, nil
}

// GetEUAOperations lists a company's ledger entries, newest first
func GetEUAOperations(c middleware.Context) {
	companyID := c.Query("company_id")
	if _, err := uuid.Parse(companyID); err != nil {
		respondError(c, ledgererr.Validationf("invalid company ID"))
		return
	}

	var (
		periodYear    int
		operationType string
		err           error
	)
	if raw := c.Query("period_year"); raw != "" {
		periodYear, err = strconv.Atoi(raw)
		if err != nil {
			respondError(c, ledgererr.Validationf("invalid period year"))
			return
		}
	}
	if raw := c.Query("operation_type"); raw != "" {
		switch raw {
		case models.EUAOpForecast, models.EUAOpHedge, models.EUAOpSurrender, models.EUAOpReconcile:
			operationType = raw
		default:
			respondError(c, ledgererr.Validationf("invalid operation type"))
			return
		}
	}

	operations, err := listEUAOperations(companyID, periodYear, operationType)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, api.Success("EUA operations retrieved", operations))
}

func listEUAOperations(companyID string, periodYear int, operationType string) ([]models.EUAOperation, error) {
	query := `
		SELECT id, company_id, operation_type, euas_count, price_per_eua, reference_voyage_ids, executed_at, created_at
		FROM eua_operations
		WHERE company_id = $1`
	args := []interface{}{companyID}

	if periodYear != 0 {
		start, end := periodWindow(periodYear)
		query += ` AND executed_at >= $2 AND executed_at < $3`
		args = append(args, start, end)
	}
	if operationType != "" {
		query += ` AND operation_type = $` + strconv.Itoa(len(args)+1)
		args = append(args, operationType)
	}
	query += ` ORDER BY executed_at DESC`

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	operations := []models.EUAOperation{}
	for rows.Next() {
		var op models.EUAOperation
		var price sql.NullFloat64
		err := rows.Scan(&op.ID, &op.CompanyID, &op.OperationType, &op.EuasCount,
			&price, pq.Array(&op.ReferenceVoyageIDs), &op.ExecutedAt, &op.CreatedAt)
		if err != nil {
			return nil, err
		}
		if price.Valid {
			op.PricePerEua = &price.Float64
		}
		operations = append(operations, op)
	}

	return operations, rows.Err()
}
