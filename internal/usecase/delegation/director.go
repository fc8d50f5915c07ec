package delegation

import (
	"context"
	"log/slog"

	"agenthq/internal/domain"
	"agenthq/internal/infra/logger"
)

// ManagerFactory builds a fresh ProjectManager for one goal.
type ManagerFactory func() *ProjectManager

// Director is the top of the hierarchy. Every goal gets its own ProjectManager.
type Director struct {
	name       string
	newManager ManagerFactory
	bus        domain.EventBus
	logger     *slog.Logger
}

// NewDirector creates a Director. bus may be nil.
func NewDirector(name string, newManager ManagerFactory, bus domain.EventBus, log *slog.Logger) *Director {
	if log == nil {
		log = logger.Discard()
	}
	return &Director{name: name, newManager: newManager, bus: bus, logger: log}
}

// Delegate hands goal to a new ProjectManager and returns its result.
func (d *Director) Delegate(ctx context.Context, goal string) Result {
	res, _ := d.DelegateWithReport(ctx, goal)
	return res
}

// DelegateWithReport is Delegate plus the manager's run summary.
func (d *Director) DelegateWithReport(ctx context.Context, goal string) (Result, Report) {
	pm := d.newManager()
	d.logger.Info("delegating goal", "director", d.name, "manager", pm.Name(), "goal", goal)
	d.publish(ctx, domain.EventDelegationStarted, map[string]string{"director": d.name, "manager": pm.Name(), "goal": goal})

	res := pm.Execute(ctx, goal)
	if !res.Failed() {
		d.publish(ctx, domain.EventDelegationCompleted, map[string]string{"director": d.name, "manager": pm.Name()})
	}
	return res, pm.Report(goal, res)
}

func (d *Director) publish(ctx context.Context, t domain.EventType, detail map[string]string) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(ctx, domain.NewEvent(t, detail))
}
