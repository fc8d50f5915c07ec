package roster

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Responder is the reply contract shared by every built-in agent.
type Responder interface {
	Respond(ctx context.Context, text string) (string, error)
}

// Specialist returns the responder for a hireable agent type.
func Specialist(agentType string) (Responder, bool) {
	switch agentType {
	case TypeDataAnalyst:
		return DataAnalyst{}, true
	case TypeResearcher:
		return Researcher{}, true
	case TypeContentCreator:
		return ContentCreator{}, true
	}
	return nil, false
}

// Deployer starts a new specialist agent and returns its base URL.
type Deployer interface {
	Deploy(ctx context.Context, agentType string) (string, error)
}

// DeployerFunc adapts a function to Deployer.
type DeployerFunc func(ctx context.Context, agentType string) (string, error)

// Deploy implements Deployer.
func (f DeployerFunc) Deploy(ctx context.Context, agentType string) (string, error) {
	return f(ctx, agentType)
}

// Hired agent statuses.
const (
	HireRunning = "running"
	HireError   = "error"
)

// HiredAgent records one agent started by the hiring manager.
type HiredAgent struct {
	Type           string
	Specialization string
	URL            string
	Status         string
	Error          string
	CreatedAt      time.Time
}

type hireProfile struct {
	agentType      string
	specialization string
	names          []string
	keywords       []string
}

// An explicit agent name wins over keywords. Otherwise profiles are checked
// in order and the first with a keyword in the request wins.
var hireProfiles = []hireProfile{
	{TypeDataAnalyst, "data analysis and statistics",
		[]string{"data analyst"}, []string{"data", "analysis", "analytics", "statistics"}},
	{TypeContentCreator, "content creation and marketing",
		[]string{"content creator", "writer"}, []string{"content", "writing", "marketing", "creative"}},
	{TypeResearcher, "research and fact-checking",
		[]string{"researcher", "research agent"}, []string{"research", "fact", "information", "investigate"}},
}

var (
	createIntents  = []string{"create agent", "new agent", "hire agent", "add agent", "need agent"}
	listIntents    = []string{"list agents", "available agents", "what agents", "agent types"}
	createdIntents = []string{"created agents", "my agents", "active agents"}
	hireVerbs      = []string{"create", "hire", "add", "need", "new"}
)

// HiringManager creates specialist agents on request and keeps track of them.
type HiringManager struct {
	deployer Deployer
	logger   *slog.Logger
	now      func() time.Time

	mu    sync.Mutex
	hired []HiredAgent
}

// NewHiringManager creates the hiring manager responder.
func NewHiringManager(deployer Deployer, logger *slog.Logger) *HiringManager {
	return &HiringManager{deployer: deployer, logger: logger, now: time.Now}
}

// Respond implements the agent responder contract.
func (h *HiringManager) Respond(ctx context.Context, text string) (string, error) {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, createIntents...):
		return h.create(ctx, lower), nil
	case containsAny(lower, listIntents...):
		return availableTypesText, nil
	case containsAny(lower, createdIntents...):
		return h.listHired(), nil
	case strings.Contains(lower, "agent") && containsAny(lower, hireVerbs...):
		return h.create(ctx, lower), nil
	default:
		return generalText, nil
	}
}

// Hired returns a snapshot of the agents created so far, oldest first.
func (h *HiringManager) Hired() []HiredAgent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]HiredAgent(nil), h.hired...)
}

func (h *HiringManager) create(ctx context.Context, lower string) string {
	profile := matchProfile(lower)
	if profile == nil {
		return clarifyText
	}

	rec := HiredAgent{
		Type:           profile.agentType,
		Specialization: profile.specialization,
		CreatedAt:      h.now(),
	}
	url, err := h.deployer.Deploy(ctx, profile.agentType)
	if err != nil {
		h.logger.Error("agent deployment failed", "type", profile.agentType, "error", err)
		rec.Status = HireError
		rec.Error = err.Error()
	} else {
		rec.Status = HireRunning
		rec.URL = url
	}
	h.mu.Lock()
	h.hired = append(h.hired, rec)
	h.mu.Unlock()

	if rec.Status == HireError {
		return fmt.Sprintf("Failed to create agent: %s", rec.Error)
	}
	h.logger.Info("agent hired", "type", rec.Type, "url", rec.URL)
	return fmt.Sprintf("**Agent Created Successfully!**\n\n"+
		"**Agent Type:** %s\n"+
		"**Specialization:** %s\n"+
		"**URL:** %s\n"+
		"**Status:** %s\n\n"+
		"The agent is registered and available for task delegation.",
		displayType(rec.Type), rec.Specialization, rec.URL, rec.Status)
}

func (h *HiringManager) listHired() string {
	hired := h.Hired()
	if len(hired) == 0 {
		return "No agents have been created yet. Would you like me to create one?"
	}
	var b strings.Builder
	b.WriteString("**Agents I've Created:**\n")
	for _, a := range hired {
		fmt.Fprintf(&b, "\n**%s**\n", displayType(a.Type))
		fmt.Fprintf(&b, "   - Specialization: %s\n", a.Specialization)
		if a.URL != "" {
			fmt.Fprintf(&b, "   - URL: %s\n", a.URL)
		}
		fmt.Fprintf(&b, "   - Status: %s\n", a.Status)
	}
	return strings.TrimRight(b.String(), "\n")
}

func matchProfile(lower string) *hireProfile {
	for i := range hireProfiles {
		if containsAny(lower, hireProfiles[i].names...) {
			return &hireProfiles[i]
		}
	}
	for i := range hireProfiles {
		if containsAny(lower, hireProfiles[i].keywords...) {
			return &hireProfiles[i]
		}
	}
	return nil
}

// displayType turns "data_analyst" into "Data Analyst".
func displayType(agentType string) string {
	words := strings.Split(agentType, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

const clarifyText = `I can help you create a new employee agent! I can create these types of agents:

**Research Agent** - For web research, fact-checking, and information gathering
**Data Analyst Agent** - For data analysis, statistics, and insights generation
**Content Creator Agent** - For writing, marketing copy, and creative content

Which type of agent would you like me to create? Please specify the type and any special requirements.

Example: "Create a research agent specialized in technology trends"`

const availableTypesText = `**Available Agent Types I Can Create:**

**Research Agent**
- Web research and information gathering
- Fact-checking and verification
- Synthesizing information from multiple sources

**Data Analyst Agent**
- Data analysis and pattern identification
- Statistical summaries and reports
- Trend analysis

**Content Creator Agent**
- Blog posts and articles
- Marketing copy and campaigns
- Social media content

To create a new agent, just ask me like:
"Create a research agent for technology trends"
"I need a data analyst agent for sales analysis"`

const generalText = `**Hello! I'm the Hiring Manager Agent**

I create new employee agents when you need additional capabilities:
- Research and fact-checking
- Data analysis and statistics
- Content creation and marketing

I also keep track of every agent I've created and its status.

**How to work with me:**
- "Create a research agent for market analysis"
- "What agent types can you create?"
- "Show me my agents"`
