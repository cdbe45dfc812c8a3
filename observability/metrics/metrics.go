package metrics

import (
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HubMetrics groups the collectors exported by the node.
type HubMetrics struct {
	epochsCreated   prometheus.Counter
	currentEpoch    prometheus.Gauge
	hookDeliveries  *prometheus.CounterVec
	txResults       *prometheus.CounterVec
	txLatency       *prometheus.HistogramVec
	rewardsPaid     *prometheus.CounterVec
	activeIncentive prometheus.Gauge
	globalWeight    prometheus.Gauge
	apiRequests     *prometheus.CounterVec
	apiThrottled    *prometheus.CounterVec
	indexedEvents   prometheus.Counter
}

var (
	hubOnce     sync.Once
	hubRegistry *HubMetrics
)

// Hub returns the process-wide collectors, registering them on first use.
func Hub() *HubMetrics {
	hubOnce.Do(func() {
		hubRegistry = &HubMetrics{
			epochsCreated: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "whalehub_epochs_created_total",
				Help: "Number of epochs created since start.",
			}),
			currentEpoch: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "whalehub_current_epoch",
				Help: "Identifier of the current epoch.",
			}),
			hookDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "whalehub_hook_deliveries_total",
				Help: "Epoch hook deliveries by hook module and result.",
			}, []string{"hook", "result"}),
			txResults: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "whalehub_tx_total",
				Help: "Executed transactions by message type and result.",
			}, []string{"msg", "result"}),
			txLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "whalehub_tx_duration_seconds",
				Help:    "Transaction execution latency by message type.",
				Buckets: prometheus.DefBuckets,
			}, []string{"msg"}),
			rewardsPaid: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "whalehub_rewards_paid_total",
				Help: "Reward amounts paid out by module and denom.",
			}, []string{"module", "denom"}),
			activeIncentive: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "whalehub_active_incentives",
				Help: "Number of incentives that have not expired.",
			}),
			globalWeight: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "whalehub_bonding_global_weight",
				Help: "Global bonding weight at the current epoch.",
			}),
			apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "whalehub_api_requests_total",
				Help: "API requests by route and status code.",
			}, []string{"route", "status"}),
			apiThrottled: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "whalehub_api_throttled_total",
				Help: "API requests rejected by the rate limiter.",
			}, []string{"route"}),
			indexedEvents: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "whalehub_indexer_events_total",
				Help: "Events persisted by the indexer.",
			}),
		}
		prometheus.MustRegister(
			hubRegistry.epochsCreated,
			hubRegistry.currentEpoch,
			hubRegistry.hookDeliveries,
			hubRegistry.txResults,
			hubRegistry.txLatency,
			hubRegistry.rewardsPaid,
			hubRegistry.activeIncentive,
			hubRegistry.globalWeight,
			hubRegistry.apiRequests,
			hubRegistry.apiThrottled,
			hubRegistry.indexedEvents,
		)
	})
	return hubRegistry
}

func (m *HubMetrics) ObserveEpochCreated(id uint64) {
	if m == nil {
		return
	}
	m.epochsCreated.Inc()
	m.currentEpoch.Set(float64(id))
}

// ObserveHookDelivery records the outcome of a single hook call.
func (m *HubMetrics) ObserveHookDelivery(hook string, ok bool) {
	if m == nil {
		return
	}
	m.hookDeliveries.WithLabelValues(labelOr(hook), result(ok)).Inc()
}

func (m *HubMetrics) ObserveTx(msg string, ok bool, took time.Duration) {
	if m == nil {
		return
	}
	msg = labelOr(msg)
	m.txResults.WithLabelValues(msg, result(ok)).Inc()
	m.txLatency.WithLabelValues(msg).Observe(took.Seconds())
}

// ObserveRewardsPaid adds amount to the paid total. Amounts beyond float64
// precision are approximated.
func (m *HubMetrics) ObserveRewardsPaid(module, denom string, amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	value, _ := new(big.Float).SetInt(amount).Float64()
	m.rewardsPaid.WithLabelValues(labelOr(module), labelOr(denom)).Add(value)
}

func (m *HubMetrics) SetActiveIncentives(n int) {
	if m == nil {
		return
	}
	m.activeIncentive.Set(float64(n))
}

// SetGlobalWeight publishes the bonding global weight. Values beyond float64
// precision are approximated.
func (m *HubMetrics) SetGlobalWeight(weight *big.Int) {
	if m == nil || weight == nil {
		return
	}
	value, _ := new(big.Float).SetInt(weight).Float64()
	m.globalWeight.Set(value)
}

func (m *HubMetrics) ObserveRequest(route string, status int) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(labelOr(route), strconv.Itoa(status)).Inc()
}

func (m *HubMetrics) ObserveThrottled(route string) {
	if m == nil {
		return
	}
	m.apiThrottled.WithLabelValues(labelOr(route)).Inc()
}

func (m *HubMetrics) ObserveIndexed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.indexedEvents.Add(float64(n))
}

func labelOr(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
