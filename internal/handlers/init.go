package handlers

import (
	"database/sql"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"nautilus/api_compliance/internal/ledgererr"
	api "nautilus/api_compliance/pkg/api/harbormaster"
	"nautilus/api_compliance/pkg/logging"
	"nautilus/api_compliance/pkg/middleware"
)

var (
	db      *sql.DB
	logger  logging.Logger
	metrics *HarbormasterMetrics
)

// HarbormasterMetrics holds all Prometheus metrics for Harbormaster
type HarbormasterMetrics struct {
	EmissionRecords     *prometheus.CounterVec
	BalanceOperations   *prometheus.CounterVec
	PoolAllocations     *prometheus.CounterVec
	EUAOperations       *prometheus.CounterVec
	InvariantViolations *prometheus.GaugeVec
	VerificationRate    *prometheus.GaugeVec
	DBQueries           *prometheus.CounterVec
	DBDuration          *prometheus.HistogramVec
	DBConnections       *prometheus.GaugeVec
}

// Init initializes the handlers with database, logger and metrics
func Init(database *sql.DB, log logging.Logger, hmMetrics *HarbormasterMetrics) {
	db = database
	logger = log
	metrics = hmMetrics
}

// The count helpers tolerate a nil receiver so handlers can run without
// metrics wired, as the tests do.

func (m *HarbormasterMetrics) countEmission(source, status string) {
	if m == nil || m.EmissionRecords == nil {
		return
	}
	m.EmissionRecords.WithLabelValues(source, status).Inc()
}

func (m *HarbormasterMetrics) countBalanceOp(operation, status string) {
	if m == nil || m.BalanceOperations == nil {
		return
	}
	m.BalanceOperations.WithLabelValues(operation, status).Inc()
}

func (m *HarbormasterMetrics) countPoolOp(allocationType, status string) {
	if m == nil || m.PoolAllocations == nil {
		return
	}
	m.PoolAllocations.WithLabelValues(allocationType, status).Inc()
}

func (m *HarbormasterMetrics) countEUAOp(operation, status string) {
	if m == nil || m.EUAOperations == nil {
		return
	}
	m.EUAOperations.WithLabelValues(operation, status).Inc()
}

// respondError translates a ledger error into the standard envelope.
// Unclassified errors are logged and surfaced as opaque 500s.
func respondError(c middleware.Context, err error) {
	status := ledgererr.HTTPStatus(err)

	var code string
	switch ledgererr.KindOf(err) {
	case ledgererr.Validation:
		code = api.CodeValidation
	case ledgererr.Conflict:
		code = api.CodeConflict
	case ledgererr.NotFound:
		code = api.CodeNotFound
	default:
		code = api.CodeError
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		logger.WithError(err).Error("Internal ledger error")
		message = "internal error"
	}

	c.JSON(status, api.Envelope{Code: code, Message: message})
}

// respondBindError reports request-shape failures from gin binding.
func respondBindError(c middleware.Context, err error) {
	c.JSON(http.StatusBadRequest, api.Envelope{
		Code:    api.CodeValidation,
		Message: "invalid input",
		Errors:  []string{err.Error()},
	})
}
