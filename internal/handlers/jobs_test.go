package handlers

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"nautilus/api_compliance/pkg/logging"
)

func newJobTestManager(t *testing.T) (*JobManager, sqlmock.Sqlmock, func()) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}

	jm := &JobManager{
		db:     mockDB,
		logger: logging.NewLogger(),
	}

	saved := metrics
	metrics = &HarbormasterMetrics{
		InvariantViolations: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "test_balance_invariant_violations"}, []string{}),
		VerificationRate: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "test_emission_verification_rate"}, []string{}),
	}

	return jm, mock, func() {
		metrics = saved
		mockDB.Close()
	}
}

func TestSweepBalanceIntegrityFlagsBrokenRows(t *testing.T) {
	jm, mock, cleanup := newJobTestManager(t)
	defer cleanup()

	companyID := uuid.New().String()

	// balance != banked - borrowed only happens through manual edits,
	// so the sweep reports every hit.
	mock.ExpectQuery("SELECT company_id, period_year, balance_gco2e").
		WillReturnRows(sqlmock.NewRows([]string{
			"company_id", "period_year", "balance_gco2e", "banked_gco2e", "borrowed_gco2e",
		}).
			AddRow(companyID, 2025, int64(100), int64(0), int64(0)).
			AddRow(companyID, 2026, int64(-50), int64(200), int64(100)))

	jm.sweepBalanceIntegrity()

	if got := testutil.ToFloat64(metrics.InvariantViolations.WithLabelValues()); got != 2 {
		t.Fatalf("expected 2 violations, got %v", got)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSweepBalanceIntegrityCleanLedgerResetsGauge(t *testing.T) {
	jm, mock, cleanup := newJobTestManager(t)
	defer cleanup()

	metrics.InvariantViolations.WithLabelValues().Set(3)

	mock.ExpectQuery("SELECT company_id, period_year, balance_gco2e").
		WillReturnRows(sqlmock.NewRows([]string{
			"company_id", "period_year", "balance_gco2e", "banked_gco2e", "borrowed_gco2e",
		}))

	jm.sweepBalanceIntegrity()

	if got := testutil.ToFloat64(metrics.InvariantViolations.WithLabelValues()); got != 0 {
		t.Fatalf("expected gauge reset to 0, got %v", got)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRefreshVerificationRateComputesShare(t *testing.T) {
	jm, mock, cleanup := newJobTestManager(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT\s+COUNT\(\*\),`).
		WillReturnRows(sqlmock.NewRows([]string{"total", "verified"}).AddRow(4, 3))

	jm.refreshVerificationRate()

	if got := testutil.ToFloat64(metrics.VerificationRate.WithLabelValues()); got != 0.75 {
		t.Fatalf("expected rate 0.75, got %v", got)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRefreshVerificationRateEmptyLedgerIsZero(t *testing.T) {
	jm, mock, cleanup := newJobTestManager(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT\s+COUNT\(\*\),`).
		WillReturnRows(sqlmock.NewRows([]string{"total", "verified"}).AddRow(0, 0))

	jm.refreshVerificationRate()

	if got := testutil.ToFloat64(metrics.VerificationRate.WithLabelValues()); got != 0 {
		t.Fatalf("expected rate 0 for empty ledger, got %v", got)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
