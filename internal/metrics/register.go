// Package metrics holds helpers shared by the Prometheus instrumentation of
// the scanner and the replication engine.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Register adds c to reg. When an equal collector was registered before (for
// example by an earlier scanner on the same registry) that collector is
// returned instead, so callers keep incrementing the registered instance.
func Register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// WriteFile dumps every metric gathered by reg to path in the text exposition
// format. An empty path is a no-op.
func WriteFile(reg *prometheus.Registry, path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, reg)
}
