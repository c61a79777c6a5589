package handlers

import (
	"database/sql"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"nautilus/api_compliance/internal/ledgererr"
	api "nautilus/api_compliance/pkg/api/harbormaster"
	"nautilus/api_compliance/pkg/logging"
	"nautilus/api_compliance/pkg/middleware"
	"nautilus/api_compliance/pkg/models"
)

// FuelEU Balance Ledger Endpoints
//
// Sign convention: balance == banked - borrowed holds on every committed
// row. BANK operations move the banked counter with the balance; BORROW
// operations move the borrowed counter against the balance. Cross-period
// transfers are composed from the same two primitives, applied to both
// rows inside a single transaction.

// AdjustBalance applies a signed gCO2e adjustment under BANK or BORROW rules
func AdjustBalance(c middleware.Context) {
	var req api.AdjustBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	balance, err := adjustBalance(req)
	if err != nil {
		metrics.countBalanceOp(req.Operation, "failed")
		respondError(c, err)
		return
	}

	metrics.countBalanceOp(req.Operation, "applied")
	logger.WithFields(logging.Fields{
		"company_id":  req.CompanyID,
		"period_year": req.PeriodYear,
		"operation":   req.Operation,
		"adjustment":  req.AdjustmentGco2e,
		"balance":     balance.BalanceGco2e,
	}).Info("FuelEU balance adjusted")

	c.JSON(http.StatusOK, api.Success("Balance adjusted", balance))
}

func adjustBalance(req api.AdjustBalanceRequest) (*models.FuelEUBalance, error) {
	if err := validatePeriodYear(req.PeriodYear); err != nil {
		return nil, err
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck // rollback is best-effort

	// Pooling and borrowing are mutually exclusive risk-transfer
	// mechanisms: a pooled vessel must not also pull surplus forward.
	if req.Operation == models.BalanceOpBorrow {
		var pooled bool
		err = tx.QueryRow(`
			SELECT EXISTS(
				SELECT 1 FROM pool_allocations
				WHERE vessel_id = $1 AND period_year = $2
			)
		`, req.VesselID, req.PeriodYear).Scan(&pooled)
		if err != nil {
			return nil, err
		}
		if pooled {
			return nil, ledgererr.Conflictf("cannot borrow when vessel is pooled")
		}
	}

	balance, err := lockBalance(tx, req.CompanyID, req.PeriodYear)
	if err != nil {
		return nil, err
	}

	applyAdjustment(balance, req.AdjustmentGco2e, req.Operation)

	if err := saveBalance(tx, balance); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return balance, nil
}

// applyAdjustment mutates a locked balance row. The arithmetic keeps
// balance == banked - borrowed for any signed adjustment.
func applyAdjustment(balance *models.FuelEUBalance, adjustment int64, operation string) {
	balance.BalanceGco2e += adjustment
	switch operation {
	case models.BalanceOpBank:
		balance.BankedGco2e += adjustment
	case models.BalanceOpBorrow:
		balance.BorrowedGco2e -= adjustment
	}
}

// lockBalance creates the (company, period) row if absent and locks it for
// the remainder of the transaction.
func lockBalance(tx *sql.Tx, companyID string, periodYear int) (*models.FuelEUBalance, error) {
	_, err := tx.Exec(`
		INSERT INTO fueleu_balances (company_id, period_year)
		VALUES ($1, $2)
		ON CONFLICT (company_id, period_year) DO NOTHING
	`, companyID, periodYear)
	if err != nil {
		return nil, err
	}

	var balance models.FuelEUBalance
	err = tx.QueryRow(`
		SELECT id, company_id, period_year, balance_gco2e, banked_gco2e, borrowed_gco2e, updated_at
		FROM fueleu_balances
		WHERE company_id = $1 AND period_year = $2
		FOR UPDATE
	`, companyID, periodYear).Scan(
		&balance.ID, &balance.CompanyID, &balance.PeriodYear,
		&balance.BalanceGco2e, &balance.BankedGco2e, &balance.BorrowedGco2e,
		&balance.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return &balance, nil
}

func saveBalance(tx *sql.Tx, balance *models.FuelEUBalance) error {
	if err := balance.CheckInvariant(); err != nil {
		return err
	}
	_, err := tx.Exec(`
		UPDATE fueleu_balances
		SET balance_gco2e = $2, banked_gco2e = $3, borrowed_gco2e = $4, updated_at = NOW()
		WHERE id = $1
	`, balance.ID, balance.BalanceGco2e, balance.BankedGco2e, balance.BorrowedGco2e)
	return err
}

// BankToNextPeriod carries the full positive balance forward one period
func BankToNextPeriod(c middleware.Context) {
	companyID := c.Param("companyId")
	periodYear, err := strconv.Atoi(c.Param("periodYear"))
	if err != nil {
		respondError(c, ledgererr.Validationf("invalid period year"))
		return
	}
	if _, err := uuid.Parse(companyID); err != nil {
		respondError(c, ledgererr.Validationf("invalid company ID"))
		return
	}

	result, err := bankToNextPeriod(companyID, periodYear)
	if err != nil {
		metrics.countBalanceOp("BANK_FORWARD", "failed")
		respondError(c, err)
		return
	}

	metrics.countBalanceOp("BANK_FORWARD", "applied")
	logger.WithFields(logging.Fields{
		"company_id":    companyID,
		"period_year":   periodYear,
		"banked_amount": result.BankedAmount,
	}).Info("FuelEU balance banked to next period")

	c.JSON(http.StatusOK, api.Success("Balance banked to next period", result))
}

// bankToNextPeriod zeroes the current period and credits the full surplus
// to periodYear+1. Both rows commit in one transaction; a partial write
// would break the banked/borrowed bookkeeping.
func bankToNextPeriod(companyID string, periodYear int) (*api.BankResult, error) {
	if err := validatePeriodYear(periodYear); err != nil {
		return nil, err
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck // rollback is best-effort

	// Lock order is current period before next period; all cross-period
	// operations follow it to avoid deadlocks.
	current, err := lockBalance(tx, companyID, periodYear)
	if err != nil {
		return nil, err
	}

	if current.BalanceGco2e <= 0 {
		return nil, ledgererr.Conflictf("cannot bank negative balance")
	}

	next, err := lockBalance(tx, companyID, periodYear+1)
	if err != nil {
		return nil, err
	}

	amount := current.BalanceGco2e
	applyAdjustment(current, -amount, models.BalanceOpBank)
	applyAdjustment(next, amount, models.BalanceOpBank)

	if err := saveBalance(tx, current); err != nil {
		return nil, err
	}
	if err := saveBalance(tx, next); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &api.BankResult{Success: true, BankedAmount: amount}, nil
}

// BorrowFromNextPeriod pulls surplus forward from the next period
func BorrowFromNextPeriod(c middleware.Context) {
	var req api.BorrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	result, err := borrowFromNextPeriod(req.CompanyID, req.PeriodYear, req.AmountGco2e, req.FromYear)
	if err != nil {
		metrics.countBalanceOp("BORROW_FORWARD", "failed")
		respondError(c, err)
		return
	}

	metrics.countBalanceOp("BORROW_FORWARD", "applied")
	logger.WithFields(logging.Fields{
		"company_id":      req.CompanyID,
		"period_year":     req.PeriodYear,
		"borrowed_amount": result.BorrowedAmount,
	}).Info("FuelEU balance borrowed from next period")

	c.JSON(http.StatusOK, api.Success("Balance borrowed from next period", result))
}

// borrowFromNextPeriod moves surplus from periodYear+1 into periodYear.
// The regulatory horizon is exactly one period ahead.
func borrowFromNextPeriod(companyID string, periodYear int, amount int64, fromYear int) (*api.BorrowResult, error) {
	if err := validatePeriodYear(periodYear); err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, ledgererr.Validationf("borrow amount must be positive")
	}
	if fromYear == 0 {
		fromYear = periodYear + 1
	}
	if fromYear != periodYear+1 {
		return nil, ledgererr.Validationf("can only borrow from next period")
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck // rollback is best-effort

	current, err := lockBalance(tx, companyID, periodYear)
	if err != nil {
		return nil, err
	}
	next, err := lockBalance(tx, companyID, fromYear)
	if err != nil {
		return nil, err
	}

	if next.BalanceGco2e < amount {
		return nil, ledgererr.Conflictf("insufficient balance in next period")
	}

	applyAdjustment(current, amount, models.BalanceOpBorrow)
	applyAdjustment(next, -amount, models.BalanceOpBorrow)

	if err := saveBalance(tx, current); err != nil {
		return nil, err
	}
	if err := saveBalance(tx, next); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &api.BorrowResult{Success: true, BorrowedAmount: amount}, nil
}

// GetBalance returns a company's balance for a period. A missing row means
// an untouched zero position, never an error.
func GetBalance(c middleware.Context) {
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

	balance, err := getBalance(companyID, periodYear)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, api.Success("Balance retrieved", balance))
}

func getBalance(companyID string, periodYear int) (*models.FuelEUBalance, error) {
	var balance models.FuelEUBalance
	err := db.QueryRow(`
		SELECT id, company_id, period_year, balance_gco2e, banked_gco2e, borrowed_gco2e, updated_at
		FROM fueleu_balances
		WHERE company_id = $1 AND period_year = $2
	`, companyID, periodYear).Scan(
		&balance.ID, &balance.CompanyID, &balance.PeriodYear,
		&balance.BalanceGco2e, &balance.BankedGco2e, &balance.BorrowedGco2e,
		&balance.UpdatedAt)
	if err == sql.ErrNoRows {
		zero := models.ZeroBalance(companyID, periodYear)
		return &zero, nil
	}
	if err != nil {
		return nil, err
	}

	return &balance, nil
}
