package metrics

import (
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// StateMetrics records store activity and resource consumption of the state
// context layer.
type StateMetrics struct {
	storeOps    *prometheus.CounterVec
	gasConsumed prometheus.Counter
	storedBytes prometheus.Counter
}

var (
	stateOnce     sync.Once
	stateRegistry *StateMetrics
)

// State returns the lazily-initialised state metrics registry.
func State() *StateMetrics {
	stateOnce.Do(func() {
		stateRegistry = &StateMetrics{
			storeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "state_store_ops_total",
				Help: "Count of mutating store operations by kind.",
			}, []string{"op"}),
			gasConsumed: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "state_gas_consumed_total",
				Help: "Cumulative gas consumed by metered operations.",
			}),
			storedBytes: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "state_stored_bytes_total",
				Help: "Cumulative bytes charged against storage budgets.",
			}),
		}
		prometheus.MustRegister(
			stateRegistry.storeOps,
			stateRegistry.gasConsumed,
			stateRegistry.storedBytes,
		)
	})
	return stateRegistry
}

// ObserveStoreOp counts one mutating store call of the given kind.
func (m *StateMetrics) ObserveStoreOp(op string) {
	if m == nil {
		return
	}
	m.storeOps.WithLabelValues(op).Inc()
}

// ObserveGas adds a consumed gas amount to the running total.
func (m *StateMetrics) ObserveGas(cost *big.Int) {
	if m == nil || cost == nil {
		return
	}
	f, _ := new(big.Float).SetInt(cost).Float64()
	m.gasConsumed.Add(f)
}

// ObserveStoredBytes adds charged storage bytes to the running total.
func (m *StateMetrics) ObserveStoredBytes(n uint64) {
	if m == nil {
		return
	}
	m.storedBytes.Add(float64(n))
}
