package delegation

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"agenthq/internal/domain"
	"agenthq/internal/infra/logger"
	"agenthq/internal/infra/tracer"
)

// State is a ProjectManager's position in its lifecycle.
type State string

const (
	StateIdle      State = "idle"
	StatePlanning  State = "planning"
	StateExecuting State = "executing"
	StateDone      State = "done"
	StateFailed    State = "failed"
)

// Step is one planned task for a named tool agent.
type Step struct {
	Task  string
	Agent string
	Args  Args
	// ContentFrom names an earlier step key whose output is passed as "content".
	ContentFrom string
}

// PlanRule yields Steps when Trigger appears in the goal (case-insensitive).
type PlanRule struct {
	Trigger string
	Steps   []Step
}

// DefaultPlanRules generates a script and saves it to outputFile.
func DefaultPlanRules(outputFile string) []PlanRule {
	return []PlanRule{{
		Trigger: "generate and save",
		Steps: []Step{
			{Task: "generate a hello world python script", Agent: CodeAgentName},
			{Task: "write file", Agent: FileSystemAgentName, Args: Args{"path": outputFile}, ContentFrom: StepKey(0)},
		},
	}}
}

// StepKey returns the results key of the i-th step.
func StepKey(i int) string { return fmt.Sprintf("step_%d", i) }

// StepReport records one executed step.
type StepReport struct {
	Key    string `json:"key"`
	Agent  string `json:"agent"`
	Task   string `json:"task"`
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Report summarizes one ProjectManager run.
type Report struct {
	Manager string       `json:"manager"`
	Goal    string       `json:"goal"`
	State   State        `json:"state"`
	Steps   []StepReport `json:"steps"`
	Result  string       `json:"result"`
}

// ProjectManager owns a single goal: it plans from fixed rules and runs the
// steps strictly in order. It is not reused across goals.
type ProjectManager struct {
	name        string
	description string
	agents      map[string]Agent
	rules       []PlanRule
	bus         domain.EventBus
	logger      *slog.Logger

	mu      sync.Mutex
	state   State
	results map[string]string
	steps   []StepReport
}

// ManagerConfig configures a ProjectManager.
type ManagerConfig struct {
	Name        string
	Description string
	Rules       []PlanRule
}

// NewProjectManager creates a manager over the given tool agents. bus may be nil.
func NewProjectManager(cfg ManagerConfig, agents []Agent, bus domain.EventBus, log *slog.Logger) *ProjectManager {
	if log == nil {
		log = logger.Discard()
	}
	byName := make(map[string]Agent, len(agents))
	for _, a := range agents {
		byName[a.Name()] = a
	}
	return &ProjectManager{
		name:        cfg.Name,
		description: cfg.Description,
		agents:      byName,
		rules:       cfg.Rules,
		bus:         bus,
		logger:      log.With("manager", cfg.Name),
		state:       StateIdle,
		results:     make(map[string]string),
	}
}

func (pm *ProjectManager) Name() string        { return pm.name }
func (pm *ProjectManager) Description() string { return pm.description }

// State returns the current lifecycle state.
func (pm *ProjectManager) State() State {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.state
}

// Results returns a copy of the step outputs keyed by StepKey.
func (pm *ProjectManager) Results() map[string]string {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return maps.Clone(pm.results)
}

// Plan returns the steps for goal from the first rule whose trigger it contains.
func (pm *ProjectManager) Plan(goal string) ([]Step, error) {
	lower := strings.ToLower(goal)
	for _, r := range pm.rules {
		if r.Trigger != "" && strings.Contains(lower, strings.ToLower(r.Trigger)) {
			return r.Steps, nil
		}
	}
	return nil, &Failure{
		Kind:    domain.ErrNoPlan,
		Message: fmt.Sprintf("[%s] cannot create a plan for the goal: %s", pm.name, goal),
	}
}

// Execute plans goal and runs every step. A missing tool agent or a failed
// step stops execution; steps already run are not undone.
func (pm *ProjectManager) Execute(ctx context.Context, goal string) Result {
	ctx, span := tracer.StartSpan(ctx, "delegation.execute")
	span.SetAttributes(tracer.StringAttr("manager", pm.name))

	pm.setState(StatePlanning)
	pm.logger.Info("planning goal", "goal", goal)

	plan, err := pm.Plan(goal)
	if err != nil {
		return pm.fail(ctx, span, Result{Err: err})
	}

	pm.setState(StateExecuting)
	for i, step := range plan {
		key := StepKey(i)
		agent, ok := pm.agents[step.Agent]
		if !ok {
			res := Fail(domain.ErrDelegateNotFound, "Error: Tool agent '%s' not found.", step.Agent)
			pm.record(key, step, res)
			return pm.fail(ctx, span, res)
		}

		args := make(Args, len(step.Args)+1)
		for k, v := range step.Args {
			args[k] = v
		}
		if step.ContentFrom != "" {
			pm.mu.Lock()
			args["content"] = pm.results[step.ContentFrom]
			pm.mu.Unlock()
		}

		pm.logger.Debug("running step", "step", key, "agent", step.Agent, "task", step.Task)
		res := agent.Run(ctx, step.Task, args)
		pm.record(key, step, res)
		pm.publish(ctx, domain.EventDelegationStep, map[string]string{
			"manager": pm.name, "step": key, "agent": step.Agent, "failed": fmt.Sprint(res.Failed()),
		})
		if res.Failed() {
			return pm.fail(ctx, span, res)
		}
	}

	pm.setState(StateDone)
	tracer.Finish(span, nil)
	pm.logger.Info("project completed", "steps", len(plan))
	return OK(fmt.Sprintf("[%s] Project completed successfully.", pm.name))
}

// Report returns the run summary for goal and its final result.
func (pm *ProjectManager) Report(goal string, res Result) Report {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	steps := make([]StepReport, len(pm.steps))
	copy(steps, pm.steps)
	return Report{Manager: pm.name, Goal: goal, State: pm.state, Steps: steps, Result: res.Text()}
}

func (pm *ProjectManager) fail(ctx context.Context, span trace.Span, res Result) Result {
	pm.setState(StateFailed)
	tracer.Finish(span, res.Err)
	pm.logger.Warn("project failed", "error", res.Err)
	pm.publish(ctx, domain.EventDelegationFailed, map[string]string{"manager": pm.name, "error": res.Text()})
	return res
}

func (pm *ProjectManager) record(key string, step Step, res Result) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	sr := StepReport{Key: key, Agent: step.Agent, Task: step.Task}
	if res.Failed() {
		sr.Error = res.Text()
	} else {
		sr.Output = res.Output
		pm.results[key] = res.Output
	}
	pm.steps = append(pm.steps, sr)
}

func (pm *ProjectManager) setState(s State) {
	pm.mu.Lock()
	pm.state = s
	pm.mu.Unlock()
}

func (pm *ProjectManager) publish(ctx context.Context, t domain.EventType, detail map[string]string) {
	if pm.bus == nil {
		return
	}
	pm.bus.Publish(ctx, domain.NewEvent(t, detail))
}
