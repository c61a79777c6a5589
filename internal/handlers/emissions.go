package handlers

import (
	"database/sql"
	"net/http"
	"strings"

	"github.com/lib/pq"

	"nautilus/api_compliance/internal/ledgererr"
	api "nautilus/api_compliance/pkg/api/harbormaster"
	"nautilus/api_compliance/pkg/logging"
	"nautilus/api_compliance/pkg/middleware"
	"nautilus/api_compliance/pkg/models"
)

// Emission Ledger Endpoints

// RecordEmission creates an emission record for a voyage and period
func RecordEmission(c middleware.Context) {
	var req api.RecordEmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	record, err := recordEmission(req)
	if err != nil {
		metrics.countEmission(req.ImportSource, "failed")
		respondError(c, err)
		return
	}

	metrics.countEmission(req.ImportSource, "recorded")
	logger.WithFields(logging.Fields{
		"emission_id": record.ID,
		"voyage_id":   record.VoyageID,
		"period_year": record.PeriodYear,
		"source":      record.ImportSource,
	}).Info("Emission record created")

	c.JSON(http.StatusCreated, api.Success("Emission recorded", record))
}

func recordEmission(req api.RecordEmissionRequest) (*models.EmissionRecord, error) {
	if req.CO2Tonnes <= 0 {
		return nil, ledgererr.Validationf("CO2 emissions must be positive")
	}
	if req.EnergyGj <= 0 {
		return nil, ledgererr.Validationf("energy must be positive")
	}
	if err := validatePeriodYear(req.PeriodYear); err != nil {
		return nil, err
	}

	var voyageExists bool
	err := db.QueryRow(`SELECT EXISTS(SELECT 1 FROM voyages WHERE id = $1)`, req.VoyageID).Scan(&voyageExists)
	if err != nil {
		return nil, err
	}
	if !voyageExists {
		return nil, ledgererr.NotFoundf("voyage not found")
	}

	record := models.EmissionRecord{
		VoyageID:     req.VoyageID,
		PeriodYear:   req.PeriodYear,
		CO2Tonnes:    req.CO2Tonnes,
		CH4Tonnes:    req.CH4Tonnes,
		N2OTonnes:    req.N2OTonnes,
		EnergyGj:     req.EnergyGj,
		ImportSource: req.ImportSource,
	}

	err = db.QueryRow(`
		INSERT INTO emission_records (voyage_id, period_year, co2_tonnes, ch4_tonnes, n2o_tonnes, energy_gj, import_source)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, imported_at, created_at, updated_at
	`, req.VoyageID, req.PeriodYear, req.CO2Tonnes, req.CH4Tonnes, req.N2OTonnes, req.EnergyGj, req.ImportSource).Scan(
		&record.ID, &record.ImportedAt, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return &record, nil
}

func validatePeriodYear(year int) error {
	if year < 2000 || year > 2100 {
		return ledgererr.Validationf("invalid period year")
	}
	return nil
}

// UpdateEmission partially updates an unverified emission record.
// Verification is a one-way door: once any attached verification record
// reaches VERIFIED, the emission record is permanently immutable.
func UpdateEmission(c middleware.Context) {
	emissionID := c.Param("id")
	if emissionID == "" {
		respondError(c, ledgererr.Validationf("emission ID required"))
		return
	}

	var req api.UpdateEmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	record, err := updateEmission(emissionID, req)
	if err != nil {
		respondError(c, err)
		return
	}

	logger.WithFields(logging.Fields{
		"emission_id": record.ID,
	}).Info("Emission record updated")

	c.JSON(http.StatusOK, api.Success("Emission updated", record))
}

func updateEmission(emissionID string, req api.UpdateEmissionRequest) (*models.EmissionRecord, error) {
	if req.CO2Tonnes == nil && req.EnergyGj == nil {
		return nil, ledgererr.Validationf("no fields to update")
	}
	if req.CO2Tonnes != nil && *req.CO2Tonnes <= 0 {
		return nil, ledgererr.Validationf("CO2 emissions must be positive")
	}
	if req.EnergyGj != nil && *req.EnergyGj <= 0 {
		return nil, ledgererr.Validationf("energy must be positive")
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck // rollback is best-effort

	var id string
	err = tx.QueryRow(`SELECT id FROM emission_records WHERE id = $1 FOR UPDATE`, emissionID).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, ledgererr.NotFoundf("emission record not found")
	}
	if err != nil {
		return nil, err
	}

	var verified bool
	err = tx.QueryRow(`
		SELECT EXISTS(
			SELECT 1 FROM verification_records
			WHERE emission_record_id = $1 AND verification_status = $2
		)
	`, emissionID, models.VerificationVerified).Scan(&verified)
	if err != nil {
		return nil, err
	}
	if verified {
		return nil, ledgererr.Conflictf("cannot update verified emission")
	}

	co2 := sql.NullFloat64{}
	if req.CO2Tonnes != nil {
		co2 = sql.NullFloat64{Float64: *req.CO2Tonnes, Valid: true}
	}
	energy := sql.NullFloat64{}
	if req.EnergyGj != nil {
		energy = sql.NullFloat64{Float64: *req.EnergyGj, Valid: true}
	}

	var record models.EmissionRecord
	err = tx.QueryRow(`
		UPDATE emission_records
		SET co2_tonnes = COALESCE($2, co2_tonnes),
		    energy_gj = COALESCE($3, energy_gj),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING id, voyage_id, period_year, co2_tonnes, ch4_tonnes, n2o_tonnes, energy_gj, import_source, imported_at, created_at, updated_at
	`, emissionID, co2, energy).Scan(
		&record.ID, &record.VoyageID, &record.PeriodYear,
		&record.CO2Tonnes, &record.CH4Tonnes, &record.N2OTonnes,
		&record.EnergyGj, &record.ImportSource, &record.ImportedAt,
		&record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &record, nil
}

// AddVerification appends a verification record to an emission record.
// Rejections accumulate without blocking a later successful verification;
// only a VERIFIED status locks the parent record.
func AddVerification(c middleware.Context) {
	emissionID := c.Param("id")
	if emissionID == "" {
		respondError(c, ledgererr.Validationf("emission ID required"))
		return
	}

	var req api.AddVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	record, err := addVerification(emissionID, req)
	if err != nil {
		respondError(c, err)
		return
	}

	logger.WithFields(logging.Fields{
		"emission_id":     emissionID,
		"verification_id": record.ID,
		"status":          record.Status,
	}).Info("Verification record added")

	c.JSON(http.StatusCreated, api.Success("Verification added", record))
}

func addVerification(emissionID string, req api.AddVerificationRequest) (*models.VerificationRecord, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck // rollback is best-effort

	// Lock the parent row so an in-flight emission update and a VERIFIED
	// record cannot both commit.
	var id string
	err = tx.QueryRow(`SELECT id FROM emission_records WHERE id = $1 FOR UPDATE`, emissionID).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, ledgererr.NotFoundf("emission record not found")
	}
	if err != nil {
		return nil, err
	}

	record := models.VerificationRecord{
		EmissionRecordID:  emissionID,
		VerifierID:        req.VerifierID,
		Status:            req.Status,
		CertificateNumber: req.CertificateNumber,
		Findings:          req.Findings,
	}

	err = tx.QueryRow(`
		INSERT INTO verification_records (emission_record_id, verifier_id, verification_status, certificate_number, findings, verified_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, verified_at, created_at
	`, emissionID, req.VerifierID, req.Status, req.CertificateNumber, req.Findings).Scan(
		&record.ID, &record.VerifiedAt, &record.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &record, nil
}

// GetEmissions returns emission records for a set of voyages
func GetEmissions(c middleware.Context) {
	voyageIDs := strings.Split(c.Query("voyage_ids"), ",")
	if len(voyageIDs) == 1 && voyageIDs[0] == "" {
		respondError(c, ledgererr.Validationf("voyage_ids required"))
		return
	}

	records, err := emissionsForVoyages(voyageIDs)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, api.Success("Emissions retrieved", records))
}

func emissionsForVoyages(voyageIDs []string) ([]models.EmissionRecord, error) {
	rows, err := db.Query(`
		SELECT id, voyage_id, period_year, co2_tonnes, ch4_tonnes, n2o_tonnes, energy_gj, import_source, imported_at, created_at, updated_at
		FROM emission_records
		WHERE voyage_id = ANY($1)
		ORDER BY imported_at ASC
	`, pq.Array(voyageIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []models.EmissionRecord{}
	for rows.Next() {
		var record models.EmissionRecord
		if err := rows.Scan(
			&record.ID, &record.VoyageID, &record.PeriodYear,
			&record.CO2Tonnes, &record.CH4Tonnes, &record.N2OTonnes,
			&record.EnergyGj, &record.ImportSource, &record.ImportedAt,
			&record.CreatedAt, &record.UpdatedAt); err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	return records, rows.Err()
}
