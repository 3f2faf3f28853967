package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveReadings = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "veilink_active_readings",
		Help: "Number of readings currently being metered",
	})

	ChargesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "veilink_ledger_charges_total",
		Help: "Ledger charge attempts by result",
	}, []string{"result"})

	DepositsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "veilink_ledger_deposits_total",
		Help: "Ledger deposit attempts by result",
	}, []string{"result"})

	BalanceLowWarnings = promauto.NewCounter(prometheus.CounterOpts{
		Name: "veilink_balance_low_warnings_total",
		Help: "Low balance warnings emitted by the metering loop",
	})

	ReadingsEnded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "veilink_readings_ended_total",
		Help: "Readings reaching a terminal state by reason",
	}, []string{"reason"})
)
