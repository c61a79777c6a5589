package harbormaster

// Response codes used in the standard envelope.
const (
	CodeSuccess    = "SUCCESS"
	CodeValidation = "VALIDATION_ERROR"
	CodeConflict   = "CONFLICT"
	CodeNotFound   = "NOT_FOUND"
	CodeError      = "ERROR"
)

// Envelope is the standard response shape: {code, message, data} on
// success, {code, message, errors?} on failure.
type Envelope struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Errors  []string    `json:"errors,omitempty"`
}

// Success wraps a payload in the success envelope.
func Success(message string, data interface{}) Envelope {
	return Envelope{Code: CodeSuccess, Message: message, Data: data}
}

// RecordEmissionRequest creates an emission record for a voyage and period.
type RecordEmissionRequest struct {
	VoyageID     string  `json:"voyage_id" binding:"required,uuid"`
	PeriodYear   int     `json:"period_year" binding:"required"`
	CO2Tonnes    float64 `json:"co2_tonnes" binding:"required"`
	CH4Tonnes    float64 `json:"ch4_tonnes"`
	N2OTonnes    float64 `json:"n2o_tonnes"`
	EnergyGj     float64 `json:"energy_gj" binding:"required"`
	ImportSource string  `json:"import_source" binding:"required,oneof=MRV_SYSTEM MANUAL"`
}

// UpdateEmissionRequest is a partial update; nil fields are left unchanged.
type UpdateEmissionRequest struct {
	CO2Tonnes *float64 `json:"co2_tonnes"`
	EnergyGj  *float64 `json:"energy_gj"`
}

// AddVerificationRequest appends a verification record to an emission record.
type AddVerificationRequest struct {
	VerifierID        string `json:"verifier_id" binding:"required"`
	Status            string `json:"status" binding:"required,oneof=PENDING VERIFIED REJECTED CONDITIONAL"`
	CertificateNumber string `json:"certificate_number"`
	Findings          string `json:"findings"`
}

// AdjustBalanceRequest applies a signed gCO2e adjustment under BANK or
// BORROW rules.
type AdjustBalanceRequest struct {
	CompanyID       string `json:"company_id" binding:"required,uuid"`
	VesselID        string `json:"vessel_id" binding:"required,uuid"`
	PeriodYear      int    `json:"period_year" binding:"required"`
	AdjustmentGco2e int64  `json:"adjustment_gco2e" binding:"required"`
	Operation       string `json:"operation" binding:"required,oneof=BANK BORROW"`
}

// BankResult reports a completed bank-to-next-period operation.
type BankResult struct {
	Success      bool  `json:"success"`
	BankedAmount int64 `json:"banked_amount"`
}

// BorrowRequest pulls surplus forward from the next period.
type BorrowRequest struct {
	CompanyID   string `json:"company_id" binding:"required,uuid"`
	PeriodYear  int    `json:"period_year" binding:"required"`
	AmountGco2e int64  `json:"amount_gco2e" binding:"required"`
	FromYear    int    `json:"from_year"`
}

// BorrowResult reports a completed borrow operation.
type BorrowResult struct {
	Success        bool  `json:"success"`
	BorrowedAmount int64 `json:"borrowed_amount"`
}

// AllocatePoolRequest assigns a vessel to a pool for one period.
type AllocatePoolRequest struct {
	CompanyID      string `json:"company_id" binding:"required,uuid"`
	VesselID       string `json:"vessel_id" binding:"required,uuid"`
	PeriodYear     int    `json:"period_year" binding:"required"`
	PoolID         string `json:"pool_id" binding:"required,uuid"`
	AmountGco2e    int64  `json:"amount_gco2e" binding:"required"`
	AllocationType string `json:"allocation_type" binding:"required,oneof=INFLOW OUTFLOW"`
}

// ForecastRequest records forecasted EUA requirements for a period.
type ForecastRequest struct {
	CompanyID  string  `json:"company_id" binding:"required,uuid"`
	PeriodYear int     `json:"period_year" binding:"required"`
	EuasCount  float64 `json:"euas_count" binding:"required"`
}

// SurrenderRequest surrenders EUAs against recorded voyage emissions.
type SurrenderRequest struct {
	CompanyID string   `json:"company_id" binding:"required,uuid"`
	VoyageIDs []string `json:"voyage_ids" binding:"required,min=1,dive,uuid"`
	EuasCount float64  `json:"euas_count" binding:"required"`
}

// ReconcileRequest confirms surrendered EUAs for a period.
type ReconcileRequest struct {
	CompanyID  string  `json:"company_id" binding:"required,uuid"`
	PeriodYear int     `json:"period_year" binding:"required"`
	EuasCount  float64 `json:"euas_count" binding:"required"`
}

// HedgeRequest records a hedge position; purely a ledger entry.
type HedgeRequest struct {
	CompanyID   string  `json:"company_id" binding:"required,uuid"`
	EuasCount   float64 `json:"euas_count" binding:"required"`
	PricePerEua float64 `json:"price_per_eua" binding:"required,gt=0"`
}

// ForecastAccuracy carries a nullable accuracy figure in [0, 1]; Accuracy
// is nil when the period has no forecast or no surrenders.
type ForecastAccuracy struct {
	CompanyID  string   `json:"company_id"`
	PeriodYear int      `json:"period_year"`
	Accuracy   *float64 `json:"accuracy"`
}
