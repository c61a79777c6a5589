package models

import (
	"fmt"
	"time"
)

// Emission sources
const (
	SourceMRVSystem = "MRV_SYSTEM"
	SourceManual    = "MANUAL"
)

// Verification statuses
const (
	VerificationPending     = "PENDING"
	VerificationVerified    = "VERIFIED"
	VerificationRejected    = "REJECTED"
	VerificationConditional = "CONDITIONAL"
)

// FuelEU balance operations
const (
	BalanceOpBank   = "BANK"
	BalanceOpBorrow = "BORROW"
)

// Pool allocation directions. OUTFLOW amounts are stored negative:
// the vessel commits surplus out of its own position into the pool.
const (
	AllocationInflow  = "INFLOW"
	AllocationOutflow = "OUTFLOW"
)

// EUA operation types
const (
	EUAOpForecast  = "FORECAST"
	EUAOpHedge     = "HEDGE"
	EUAOpSurrender = "SURRENDER"
	EUAOpReconcile = "RECONCILE"
)

// EmissionRecord represents verified emission facts for one voyage and period.
// Records are never deleted; once a VERIFIED verification record is attached
// they become immutable.
type EmissionRecord struct {
	ID           string    `json:"id" db:"id"`
	VoyageID     string    `json:"voyage_id" db:"voyage_id"`
	PeriodYear   int       `json:"period_year" db:"period_year"`
	CO2Tonnes    float64   `json:"co2_tonnes" db:"co2_tonnes"`
	CH4Tonnes    float64   `json:"ch4_tonnes" db:"ch4_tonnes"`
	N2OTonnes    float64   `json:"n2o_tonnes" db:"n2o_tonnes"`
	EnergyGj     float64   `json:"energy_gj" db:"energy_gj"`
	ImportSource string    `json:"import_source" db:"import_source"`
	ImportedAt   time.Time `json:"imported_at" db:"imported_at"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// VerificationRecord is attached to exactly one emission record.
type VerificationRecord struct {
	ID                string    `json:"id" db:"id"`
	EmissionRecordID  string    `json:"emission_record_id" db:"emission_record_id"`
	VerifierID        string    `json:"verifier_id" db:"verifier_id"`
	Status            string    `json:"verification_status" db:"verification_status"`
	CertificateNumber string    `json:"certificate_number,omitempty" db:"certificate_number"`
	Findings          string    `json:"findings,omitempty" db:"findings"`
	VerifiedAt        time.Time `json:"verified_at" db:"verified_at"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}

// FuelEUBalance is the signed compliance position of a company for one
// period year. All quantities are gCO2e held as int64; source values reach
// the 10^9 range where float64 loses integer exactness.
//
// Sign convention: BANK operations move Banked together with Balance;
// BORROW operations move Borrowed against Balance, so Borrowed is signed
// (positive on the period whose surplus was pulled forward, negative on
// the period holding pulled-in surplus). The invariant
// Balance == Banked - Borrowed holds after every committed operation.
type FuelEUBalance struct {
	ID            string    `json:"id" db:"id"`
	CompanyID     string    `json:"company_id" db:"company_id"`
	PeriodYear    int       `json:"period_year" db:"period_year"`
	BalanceGco2e  int64     `json:"balance_gco2e" db:"balance_gco2e"`
	BankedGco2e   int64     `json:"banked_gco2e" db:"banked_gco2e"`
	BorrowedGco2e int64     `json:"borrowed_gco2e" db:"borrowed_gco2e"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// CheckInvariant verifies balance == banked - borrowed.
func (b *FuelEUBalance) CheckInvariant() error {
	if b.BalanceGco2e != b.BankedGco2e-b.BorrowedGco2e {
		return fmt.Errorf("balance invariant violated for company %s period %d: balance=%d banked=%d borrowed=%d",
			b.CompanyID, b.PeriodYear, b.BalanceGco2e, b.BankedGco2e, b.BorrowedGco2e)
	}
	return nil
}

// ZeroBalance returns the untouched zero position for a company and period.
// Absence of a row means "zero position", never an error.
func ZeroBalance(companyID string, periodYear int) FuelEUBalance {
	return FuelEUBalance{
		CompanyID:  companyID,
		PeriodYear: periodYear,
		UpdatedAt:  time.Now(),
	}
}

// PoolAllocation assigns a vessel to a compliance pool for one period.
// At most one allocation may exist per (vessel, period); the storage layer
// enforces this with a unique index.
type PoolAllocation struct {
	ID             string    `json:"id" db:"id"`
	CompanyID      string    `json:"company_id" db:"company_id"`
	VesselID       string    `json:"vessel_id" db:"vessel_id"`
	PeriodYear     int       `json:"period_year" db:"period_year"`
	PoolID         string    `json:"pool_id" db:"pool_id"`
	AllocationType string    `json:"allocation_type" db:"allocation_type"`
	AmountGco2e    int64     `json:"amount_gco2e" db:"amount_gco2e"`
	EffectiveFrom  time.Time `json:"effective_from" db:"effective_from"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// PoolPerformance aggregates a pool's allocations for one period.
type PoolPerformance struct {
	PoolID               string `json:"pool_id"`
	PeriodYear           int    `json:"period_year"`
	TotalInflowGco2e     int64  `json:"total_inflow_gco2e"`
	TotalOutflowGco2e    int64  `json:"total_outflow_gco2e"`
	NetBenefitGco2e      int64  `json:"net_benefit_gco2e"`
	VesselsParticipating int    `json:"vessels_participating"`
}

// EUAOperation is an append-only ledger entry against EU ETS allowances.
// Corrections are made via new offsetting operations, never updates.
type EUAOperation struct {
	ID                 string    `json:"id" db:"id"`
	CompanyID          string    `json:"company_id" db:"company_id"`
	OperationType      string    `json:"operation_type" db:"operation_type"`
	EuasCount          float64   `json:"euas_count" db:"euas_count"`
	PricePerEua        *float64  `json:"price_per_eua,omitempty" db:"price_per_eua"`
	ReferenceVoyageIDs []string  `json:"reference_voyage_ids" db:"reference_voyage_ids"`
	ExecutedAt         time.Time `json:"executed_at" db:"executed_at"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
}

// ComplianceKPIs summarizes a company's position for one period.
type ComplianceKPIs struct {
	CompanyID            string          `json:"company_id"`
	PeriodYear           int             `json:"period_year"`
	TotalEmissionsTonnes float64         `json:"total_emissions_tonnes"`
	FuelEUBalanceGco2e   int64           `json:"fuel_eu_balance_gco2e"`
	ForecastedEuas       float64         `json:"forecasted_euas"`
	SurrenderedEuas      float64         `json:"surrendered_euas"`
	VerificationRate     float64         `json:"verification_rate"`
	PoolPerformance      PoolPerformance `json:"pool_performance"`
}
