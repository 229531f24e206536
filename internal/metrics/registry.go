package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// NewRegistry creates a new Prometheus registry with metrics
func NewRegistry() (*prometheus.Registry, *Metrics) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	return reg, m
}

// WriteTextfile dumps the registry in the node_exporter textfile format.
// The file is written atomically.
func WriteTextfile(reg prometheus.Gatherer, path string) error {
	return prometheus.WriteToTextfile(path, reg)
}
