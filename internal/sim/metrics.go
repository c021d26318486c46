package sim

import (
	"github.com/san-kum/vmech/internal/dynamo"
	"github.com/san-kum/vmech/internal/manager"
	"github.com/san-kum/vmech/internal/metrics"
)

func newDefaultMetrics(mgr *manager.Manager, mass float64) []dynamo.Metric {
	return []dynamo.Metric{
		metrics.NewControlEffort(),
		metrics.NewTrackingError(mgr),
		metrics.NewProgress(mgr, 0),
		metrics.NewKineticEnergy(mass),
	}
}
