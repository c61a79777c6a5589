package handlers

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"nautilus/api_compliance/internal/ledgererr"
	api "nautilus/api_compliance/pkg/api/harbormaster"
	"nautilus/api_compliance/pkg/logging"
	"nautilus/api_compliance/pkg/models"
)

func newHandlerTestDB(t *testing.T) (sqlmock.Sqlmock, func()) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	Init(mockDB, logging.NewLogger(), nil)

	return mock, func() { mockDB.Close() }
}

func balanceRows(id, companyID string, periodYear int, balance, banked, borrowed int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "company_id", "period_year", "balance_gco2e", "banked_gco2e", "borrowed_gco2e", "updated_at"}).
		AddRow(id, companyID, periodYear, balance, banked, borrowed, time.Now())
}

func TestAdjustBalance_BankIncrementsBalanceAndBanked(t *testing.T) {
	mock, cleanup := newHandlerTestDB(t)
	defer cleanup()

	companyID := uuid.New().String()
	vesselID := uuid.New().String()
	rowID := uuid.New().String()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO fueleu_balances").
		WithArgs(companyID, 2025).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT id, company_id.*FOR UPDATE`).
		WithArgs(companyID, 2025).
		WillReturnRows(balanceRows(rowID, companyID, 2025, 0, 0, 0))
	mock.ExpectExec("UPDATE fueleu_balances").
		WithArgs(rowID, int64(1000), int64(1000), int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	balance, err := adjustBalance(api.AdjustBalanceRequest{
		CompanyID:       companyID,
		VesselID:        vesselID,
		PeriodYear:      2025,
		AdjustmentGco2e: 1000,
		Operation:       models.BalanceOpBank,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if balance.BalanceGco2e != 1000 || balance.BankedGco2e != 1000 || balance.BorrowedGco2e != 0 {
		t.Fatalf("unexpected balance state: %+v", balance)
	}
	if err := balance.CheckInvariant(); err != nil {
		t.Fatal(err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAdjustBalance_BorrowNegativeAdjustmentGrowsDebt(t *testing.T) {
	mock, cleanup := newHandlerTestDB(t)
	defer cleanup()

	companyID := uuid.New().String()
	vesselID := uuid.New().String()
	rowID := uuid.New().String()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(vesselID, 2025).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("INSERT INTO fueleu_balances").
		WithArgs(companyID, 2025).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT id, company_id.*FOR UPDATE`).
		WithArgs(companyID, 2025).
		WillReturnRows(balanceRows(rowID, companyID, 2025, 0, 0, 0))
	mock.ExpectExec("UPDATE fueleu_balances").
		WithArgs(rowID, int64(-500), int64(0), int64(500)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	balance, err := adjustBalance(api.AdjustBalanceRequest{
		CompanyID:       companyID,
		VesselID:        vesselID,
		PeriodYear:      2025,
		AdjustmentGco2e: -500,
		Operation:       models.BalanceOpBorrow,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if balance.BalanceGco2e != -500 || balance.BorrowedGco2e != 500 {
		t.Fatalf("unexpected balance state: %+v", balance)
	}
	if err := balance.CheckInvariant(); err != nil {
		t.Fatal(err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAdjustBalance_BorrowWhilePooledRejected(t *testing.T) {
	mock, cleanup := newHandlerTestDB(t)
	defer cleanup()

	companyID := uuid.New().String()
	vesselID := uuid.New().String()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(vesselID, 2024).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, err := adjustBalance(api.AdjustBalanceRequest{
		CompanyID:       companyID,
		VesselID:        vesselID,
		PeriodYear:      2024,
		AdjustmentGco2e: -100,
		Operation:       models.BalanceOpBorrow,
	})
	if ledgererr.KindOf(err) != ledgererr.Conflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err.Error() != "cannot borrow when vessel is pooled" {
		t.Fatalf("unexpected message: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestBankToNextPeriod_MovesFullSurplus(t *testing.T) {
	mock, cleanup := newHandlerTestDB(t)
	defer cleanup()

	companyID := uuid.New().String()
	currentID := uuid.New().String()
	nextID := uuid.New().String()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO fueleu_balances").
		WithArgs(companyID, 2025).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT id, company_id.*FOR UPDATE`).
		WithArgs(companyID, 2025).
		WillReturnRows(balanceRows(currentID, companyID, 2025, 1200, 1200, 0))
	mock.ExpectExec("INSERT INTO fueleu_balances").
		WithArgs(companyID, 2026).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT id, company_id.*FOR UPDATE`).
		WithArgs(companyID, 2026).
		WillReturnRows(balanceRows(nextID, companyID, 2026, 0, 0, 0))
	mock.ExpectExec("UPDATE fueleu_balances").
		WithArgs(currentID, int64(0), int64(0), int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE fueleu_balances").
		WithArgs(nextID, int64(1200), int64(1200), int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := bankToNextPeriod(companyID, 2025)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success || result.BankedAmount != 1200 {
		t.Fatalf("unexpected result: %+v", result)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestBankToNextPeriod_NonPositiveBalanceRejected(t *testing.T) {
	mock, cleanup := newHandlerTestDB(t)
	defer cleanup()

	companyID := uuid.New().String()
	currentID := uuid.New().String()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO fueleu_balances").
		WithArgs(companyID, 2025).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT id, company_id.*FOR UPDATE`).
		WithArgs(companyID, 2025).
		WillReturnRows(balanceRows(currentID, companyID, 2025, -300, 0, 300))
	mock.ExpectRollback()

	_, err := bankToNextPeriod(companyID, 2025)
	if ledgererr.KindOf(err) != ledgererr.Conflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err.Error() != "cannot bank negative balance" {
		t.Fatalf("unexpected message: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestBorrowFromNextPeriod_MovesSurplusBackward(t *testing.T) {
	mock, cleanup := newHandlerTestDB(t)
	defer cleanup()

	companyID := uuid.New().String()
	currentID := uuid.New().String()
	nextID := uuid.New().String()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO fueleu_balances").
		WithArgs(companyID, 2025).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT id, company_id.*FOR UPDATE`).
		WithArgs(companyID, 2025).
		WillReturnRows(balanceRows(currentID, companyID, 2025, 0, 0, 0))
	mock.ExpectExec("INSERT INTO fueleu_balances").
		WithArgs(companyID, 2026).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT id, company_id.*FOR UPDATE`).
		WithArgs(companyID, 2026).
		WillReturnRows(balanceRows(nextID, companyID, 2026, 800, 800, 0))
	mock.ExpectExec("UPDATE fueleu_balances").
		WithArgs(currentID, int64(500), int64(0), int64(-500)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE fueleu_balances").
		WithArgs(nextID, int64(300), int64(800), int64(500)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := borrowFromNextPeriod(companyID, 2025, 500, 2026)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success || result.BorrowedAmount != 500 {
		t.Fatalf("unexpected result: %+v", result)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestBorrowFromNextPeriod_InsufficientNextBalance(t *testing.T) {
	mock, cleanup := newHandlerTestDB(t)
	defer cleanup()

	companyID := uuid.New().String()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO fueleu_balances").
		WithArgs(companyID, 2025).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT id, company_id.*FOR UPDATE`).
		WithArgs(companyID, 2025).
		WillReturnRows(balanceRows(uuid.New().String(), companyID, 2025, 0, 0, 0))
	mock.ExpectExec("INSERT INTO fueleu_balances").
		WithArgs(companyID, 2026).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT id, company_id.*FOR UPDATE`).
		WithArgs(companyID, 2026).
		WillReturnRows(balanceRows(uuid.New().String(), companyID, 2026, 200, 200, 0))
	mock.ExpectRollback()

	_, err := borrowFromNextPeriod(companyID, 2025, 500, 2026)
	if ledgererr.KindOf(err) != ledgererr.Conflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err.Error() != "insufficient balance in next period" {
		t.Fatalf("unexpected message: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestBorrowFromNextPeriod_OnlyImmediateNextPeriod(t *testing.T) {
	_, cleanup := newHandlerTestDB(t)
	defer cleanup()

	_, err := borrowFromNextPeriod(uuid.New().String(), 2025, 500, 2027)
	if ledgererr.KindOf(err) != ledgererr.Validation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err.Error() != "can only borrow from next period" {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestGetBalance_MissingRowIsZeroPosition(t *testing.T) {
	mock, cleanup := newHandlerTestDB(t)
	defer cleanup()

	companyID := uuid.New().String()

	mock.ExpectQuery("SELECT id, company_id").
		WithArgs(companyID, 2025).
		WillReturnRows(sqlmock.NewRows([]string{"id", "company_id", "period_year", "balance_gco2e", "banked_gco2e", "borrowed_gco2e", "updated_at"}))

	balance, err := getBalance(companyID, 2025)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if balance.BalanceGco2e != 0 || balance.BankedGco2e != 0 || balance.BorrowedGco2e != 0 {
		t.Fatalf("expected zero position, got %+v", balance)
	}
	if balance.CompanyID != companyID || balance.PeriodYear != 2025 {
		t.Fatalf("expected identity to be echoed, got %+v", balance)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
