package metrics

import (
	"sync"
	"time"
)

// ErrorRateMetric captures error rates for one operation
type ErrorRateMetric struct {
	Total     int64   `json:"total"`
	Errors    int64   `json:"errors"`
	ErrorRate float64 `json:"error_rate"`
}

// Metrics is the in-process metrics collector. It tracks mutation counters
// (pedidos created/updated/deleted, relay events published), gauges and
// component health, and is served verbatim by the metrics handler.
type Metrics struct {
	mu         sync.RWMutex
	counters   map[string]int64
	gauges     map[string]int64
	errorRates map[string]*errorRate
	health     map[string]bool
	startTime  time.Time
}

type errorRate struct {
	total  int64
	errors int64
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		counters:   make(map[string]int64),
		gauges:     make(map[string]int64),
		errorRates: make(map[string]*errorRate),
		health:     make(map[string]bool),
		startTime:  time.Now(),
	}
}

// IncrementCounter increments a counter by 1
func (m *Metrics) IncrementCounter(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name]++
}

// SetGauge sets a gauge to a specific value
func (m *Metrics) SetGauge(name string, value int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[name] = value
}

// RecordSuccess records a successful operation for error rate tracking
func (m *Metrics) RecordSuccess(name string) {
	m.record(name, false)
}

// RecordError records a failed operation for error rate tracking
func (m *Metrics) RecordError(name string) {
	m.record(name, true)
}

func (m *Metrics) record(name string, isError bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	er, ok := m.errorRates[name]
	if !ok {
		er = &errorRate{}
		m.errorRates[name] = er
	}
	er.total++
	if isError {
		er.errors++
	}
}

// SetHealth sets the health status of a component
func (m *Metrics) SetHealth(component string, isHealthy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.health[component] = isHealthy
}

// GetCounters returns a copy of all counters
func (m *Metrics) GetCounters() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counters := make(map[string]int64, len(m.counters))
	for name, v := range m.counters {
		counters[name] = v
	}
	return counters
}

// GetGauges returns a copy of all gauges
func (m *Metrics) GetGauges() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	gauges := make(map[string]int64, len(m.gauges))
	for name, v := range m.gauges {
		gauges[name] = v
	}
	return gauges
}

// GetErrorRates returns all error rates
func (m *Metrics) GetErrorRates() map[string]ErrorRateMetric {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rates := make(map[string]ErrorRateMetric, len(m.errorRates))
	for name, er := range m.errorRates {
		var rate float64
		if er.total > 0 {
			rate = float64(er.errors) / float64(er.total) * 100.0
		}
		rates[name] = ErrorRateMetric{Total: er.total, Errors: er.errors, ErrorRate: rate}
	}
	return rates
}

// GetHealthChecks returns all component health statuses
func (m *Metrics) GetHealthChecks() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	checks := make(map[string]bool, len(m.health))
	for name, v := range m.health {
		checks[name] = v
	}
	return checks
}

// GetUptimeSeconds returns the service uptime in seconds
func (m *Metrics) GetUptimeSeconds() int64 {
	return int64(time.Since(m.startTime).Seconds())
}

// GetAllMetrics returns all metrics in a structured format
func (m *Metrics) GetAllMetrics() map[string]interface{} {
	return map[string]interface{}{
		"uptime_seconds": m.GetUptimeSeconds(),
		"counters":       m.GetCounters(),
		"gauges":         m.GetGauges(),
		"error_rates":    m.GetErrorRates(),
		"health_checks":  m.GetHealthChecks(),
	}
}
