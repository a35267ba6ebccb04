package envelope

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "envelope_operations_total",
			Help: "Total number of envelope operations by outcome",
		},
		[]string{"operation", "envelope_type", "outcome"},
	)

	AmountTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "envelope_amount_lamports_total",
			Help: "Total lamports moved by envelope operations",
		},
		[]string{"operation", "envelope_type"}, // operation: "create", "claim", "refund"
	)
)

const (
	opInitUserState = "init_user_state"
	opCreate        = "create"
	opClaim         = "claim"
	opRefund        = "refund"
)

func recordOperation(op string, kind PolicyKind, amount uint64, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
		if code, ok := Code(err); ok {
			outcome = code.Name
		}
	}
	OperationsTotal.WithLabelValues(op, string(kind), outcome).Inc()
	if err == nil && amount > 0 {
		AmountTotal.WithLabelValues(op, string(kind)).Add(float64(amount))
	}
}
