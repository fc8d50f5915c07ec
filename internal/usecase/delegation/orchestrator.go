package delegation

import (
	"context"
	"log/slog"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"agenthq/internal/domain"
	"agenthq/internal/infra/logger"
	"agenthq/internal/usecase/routing"
)

// NoSuitableAgent is returned when no tool agent matches a task.
const NoSuitableAgent = "No suitable agent found for the task."

// Orchestrator is a flat delegator: it runs a task on the first agent, in
// registration order, whose description words appear in the task.
type Orchestrator struct {
	agents *orderedmap.OrderedMap[string, Agent]
	logger *slog.Logger
}

// NewOrchestrator creates an empty Orchestrator.
func NewOrchestrator(log *slog.Logger) *Orchestrator {
	if log == nil {
		log = logger.Discard()
	}
	return &Orchestrator{agents: orderedmap.New[string, Agent](), logger: log}
}

// Register adds agent. A second agent with the same name replaces the first in place.
func (o *Orchestrator) Register(agent Agent) {
	o.agents.Set(agent.Name(), agent)
	o.logger.Debug("tool agent registered", "agent", agent.Name())
}

// Agents returns registered agent names in order.
func (o *Orchestrator) Agents() []string {
	names := make([]string, 0, o.agents.Len())
	for pair := o.agents.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// Select returns the agent that would run task.
func (o *Orchestrator) Select(task string) (Agent, bool) {
	rules := make([]routing.Rule, 0, o.agents.Len())
	for pair := o.agents.Oldest(); pair != nil; pair = pair.Next() {
		rules = append(rules, routing.Rule{
			Category: pair.Key,
			Keywords: strings.Fields(strings.ToLower(pair.Value.Description())),
		})
	}
	rule, _, ok := routing.Match(task, rules)
	if !ok {
		return nil, false
	}
	return o.agents.Get(rule.Category)
}

// Delegate runs task on the selected agent.
func (o *Orchestrator) Delegate(ctx context.Context, task string, args Args) Result {
	agent, ok := o.Select(task)
	if !ok {
		return Fail(domain.ErrNoRoute, NoSuitableAgent)
	}
	o.logger.Info("delegating task", "agent", agent.Name(), "task", task)
	return agent.Run(ctx, task, args)
}
