package dht

import (
	"context"
	"time"
)

// RunMaintenance runs the spec.md §4.7 background maintenance task: on
// each tick, flush the routing table, invoke the Local Store's
// maintenance, and log the routing table's size. It returns when ctx is
// done, matching spec.md §5's "running = false... exits at its next
// wake" shutdown discipline.
func (e *Engine) RunMaintenance(ctx context.Context, nodesFile string) {
	ticker := time.NewTicker(e.cfg.MaintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.maintenanceTick(nodesFile)
		}
	}
}

func (e *Engine) maintenanceTick(nodesFile string) {
	if err := e.routing.SaveToFile(nodesFile); err != nil {
		e.logger.Warn("routing table flush failed", "err", err)
	}
	e.store.Maintenance()
	e.logger.Info("maintenance tick", "peers", e.routing.Len())
}
