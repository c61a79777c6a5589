package handlers

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsNilReceiverIsNoOp(t *testing.T) {
	// Handlers run with nil metrics in tests; counting must not panic.
	var m *HarbormasterMetrics
	m.countEmission("MRV_XML", "recorded")
	m.countBalanceOp("BANK", "applied")
	m.countPoolOp("INFLOW", "created")
	m.countEUAOp("SURRENDER", "failed")

	partial := &HarbormasterMetrics{}
	partial.countEmission("MRV_XML", "recorded")
	partial.countBalanceOp("BANK", "applied")
	partial.countPoolOp("INFLOW", "created")
	partial.countEUAOp("SURRENDER", "failed")
}

func TestMetricsCountersIncrement(t *testing.T) {
	m := &HarbormasterMetrics{
		BalanceOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "test_balance_operations_total"},
			[]string{"operation", "status"},
		),
	}

	m.countBalanceOp("BANK", "applied")
	m.countBalanceOp("BANK", "applied")
	m.countBalanceOp("BORROW", "failed")

	if got := testutil.ToFloat64(m.BalanceOperations.WithLabelValues("BANK", "applied")); got != 2 {
		t.Fatalf("expected 2 applied BANK operations, got %v", got)
	}
	if got := testutil.ToFloat64(m.BalanceOperations.WithLabelValues("BORROW", "failed")); got != 1 {
		t.Fatalf("expected 1 failed BORROW operation, got %v", got)
	}
}
