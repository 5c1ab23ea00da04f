package gateway

import "github.com/sprintdeck/sprintdeck/pkg/metrics"

// prometheusSink adapts pkg/metrics to the MetricsSink interface
type prometheusSink struct {
	m *metrics.Metrics
}

// NewPrometheusSink wraps the application metrics as a gateway MetricsSink
func NewPrometheusSink(m *metrics.Metrics) MetricsSink {
	return &prometheusSink{m: m}
}

func (s *prometheusSink) SetBreakerState(name string, state State) {
	s.m.SetBreakerState(name, float64(state))
}

func (s *prometheusSink) IncBreakerEvent(name string, event Event) {
	s.m.IncBreakerEvent(name, string(event))
}
