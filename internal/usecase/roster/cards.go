// Package roster defines the built-in agents: their descriptors and the
// responders that answer messages sent to them.
package roster

import (
	"sort"

	"agenthq/internal/domain"
)

// Agent types served by the roster.
const (
	TypeSecretary      = "secretary"
	TypeHiringManager  = "hiring_manager"
	TypeDataAnalyst    = "data_analyst"
	TypeResearcher     = "researcher"
	TypeContentCreator = "content_creator"
	TypeOrchestrator   = "orchestrator"
)

const cardVersion = "1.0"

type cardDef struct {
	name        string
	description string
	outputMode  string
	skill       domain.Skill
}

var cardDefs = map[string]cardDef{
	TypeSecretary: {
		name:        "Secretary Agent",
		description: "Main orchestrator that coordinates and delegates tasks to specialized employee agents",
		skill: domain.Skill{
			ID:          "coordinate_tasks",
			Name:        "Coordinate Tasks",
			Description: "Understands user requests and routes them to appropriate specialists",
			Tags:        []string{"coordination", "routing", "assistance", "guidance"},
			Examples: []string{
				"I need help with data analysis",
				"Can you help me create content for my blog?",
				"What can this platform do?",
			},
		},
	},
	TypeHiringManager: {
		name:        "Hiring Manager Agent",
		description: "Creates and manages new employee agents based on organizational needs",
		skill: domain.Skill{
			ID:          "create_agents",
			Name:        "Create New Agents",
			Description: "Analyzes needs and creates specialized agents with specific capabilities",
			Tags:        []string{"agent creation", "specialization", "management", "workforce"},
			Examples: []string{
				"I need a specialized marketing agent",
				"Create an agent for financial analysis",
				"We need more research capabilities",
			},
		},
	},
	TypeDataAnalyst: {
		name:        "Data Analyst Agent",
		description: "Analyzes data, generates insights, and creates statistical reports",
		outputMode:  "application/json",
		skill: domain.Skill{
			ID:          "analyze_data",
			Name:        "Analyze Data",
			Description: "Performs statistical analysis, identifies patterns, and generates insights",
			Tags:        []string{"data analysis", "statistics", "insights", "reporting", "trends"},
			Examples: []string{
				"Analyze this sales data for trends",
				"Generate a statistical report on user behavior",
				"What patterns do you see in this dataset?",
			},
		},
	},
	TypeResearcher: {
		name:        "Researcher Agent",
		description: "Conducts comprehensive research, fact-checking, and information synthesis",
		skill: domain.Skill{
			ID:          "conduct_research",
			Name:        "Conduct Research",
			Description: "Performs thorough research, fact-checking, and information gathering",
			Tags:        []string{"research", "fact-checking", "information", "sources", "verification"},
			Examples: []string{
				"Research the latest developments in AI",
				"Fact-check this information about climate change",
				"Find authoritative sources on renewable energy",
			},
		},
	},
	TypeContentCreator: {
		name:        "Content Creator Agent",
		description: "Creates engaging content, marketing copy, and creative communications",
		skill: domain.Skill{
			ID:          "create_content",
			Name:        "Create Content",
			Description: "Writes blog posts, marketing copy, social media content, and creative communications",
			Tags:        []string{"content creation", "writing", "marketing", "social media", "creative"},
			Examples: []string{
				"Write a blog post about sustainable technology",
				"Create social media content for our product launch",
				"Help me improve this marketing copy",
			},
		},
	},
	TypeOrchestrator: {
		name:        "Platform Orchestrator",
		description: "Master orchestrator that coordinates all platform agents for complex multi-step tasks",
		outputMode:  "application/json",
		skill: domain.Skill{
			ID:          "orchestrate_platform",
			Name:        "Orchestrate Platform Tasks",
			Description: "Coordinates complex tasks across multiple specialized agents",
			Tags:        []string{"orchestration", "coordination", "multi-agent", "workflow", "delegation"},
			Examples: []string{
				"Research AI trends and create a comprehensive report",
				"Analyze market data and create marketing content based on insights",
				"Help me understand and delegate this complex project",
			},
		},
	},
}

// Card returns the descriptor for agentType published at url.
func Card(agentType, url string) (domain.AgentDescriptor, bool) {
	def, ok := cardDefs[agentType]
	if !ok {
		return domain.AgentDescriptor{}, false
	}
	out := def.outputMode
	if out == "" {
		out = "text/plain"
	}
	skill := def.skill
	skill.Tags = append([]string(nil), skill.Tags...)
	skill.Examples = append([]string(nil), skill.Examples...)
	return domain.AgentDescriptor{
		Name:               def.name,
		Description:        def.description,
		URL:                url,
		Version:            cardVersion,
		Capabilities:       domain.AgentCapabilities{Streaming: true},
		DefaultInputModes:  []string{"text/plain"},
		DefaultOutputModes: []string{out},
		PreferredTransport: "JSONRPC",
		Skills:             []domain.Skill{skill},
	}, true
}

// Types lists every known agent type, sorted.
func Types() []string {
	out := make([]string, 0, len(cardDefs))
	for t := range cardDefs {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
