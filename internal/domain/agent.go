package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// AgentStatus is the liveness state of a registered agent.
type AgentStatus string

const (
	AgentStatusActive   AgentStatus = "active"
	AgentStatusInactive AgentStatus = "inactive"
	AgentStatusError    AgentStatus = "error"
)

// Skill is one labeled capability advertised by an agent.
type Skill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Examples    []string `json:"examples,omitempty"`
}

// AgentCapabilities lists optional protocol features an agent supports.
type AgentCapabilities struct {
	Streaming bool `json:"streaming"`
}

// AgentDescriptor is the capability card an agent serves at its well-known path.
// It is replaced wholesale on every re-fetch.
type AgentDescriptor struct {
	Name               string            `json:"name"`
	Description        string            `json:"description"`
	URL                string            `json:"url"`
	Version            string            `json:"version,omitempty"`
	Capabilities       AgentCapabilities `json:"capabilities"`
	DefaultInputModes  []string          `json:"defaultInputModes,omitempty"`
	DefaultOutputModes []string          `json:"defaultOutputModes,omitempty"`
	PreferredTransport string            `json:"preferredTransport,omitempty"`
	Skills             []Skill           `json:"skills"`
}

// RegisteredAgent is a registry entry: the last fetched descriptor plus liveness.
type RegisteredAgent struct {
	ID           string          `json:"id"`
	URL          string          `json:"url"`
	Descriptor   AgentDescriptor `json:"descriptor"`
	Status       AgentStatus     `json:"status"`
	LastChecked  *time.Time      `json:"last_checked,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

// Active reports whether the agent answered its last check.
func (a RegisteredAgent) Active() bool { return a.Status == AgentStatusActive }

// UnknownAgentName is the descriptor name recorded for agents whose card could not be fetched.
const UnknownAgentName = "unknown"

// AgentID derives the registry key for a (name, url) pair.
// The same pair always yields the same id.
func AgentID(name, url string) string {
	slug := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
	if slug == "" {
		slug = UnknownAgentName
	}
	return fmt.Sprintf("%s_%08x", slug, uint32(xxhash.Sum64String(url)))
}

// TagSet lower-cases and de-duplicates tags for matching.
func TagSet(tags []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		set[t] = struct{}{}
	}
	return set
}

// MatchesAny reports whether any of the skill's tags is in set.
// set must already be lower-cased (see TagSet).
func (s Skill) MatchesAny(set map[string]struct{}) bool {
	for _, tag := range s.Tags {
		if _, ok := set[strings.ToLower(tag)]; ok {
			return true
		}
	}
	return false
}

// MatchesAny reports whether at least one skill has a tag in set.
func (d AgentDescriptor) MatchesAny(set map[string]struct{}) bool {
	for _, s := range d.Skills {
		if s.MatchesAny(set) {
			return true
		}
	}
	return false
}

// AllTags returns every distinct lower-cased tag in skill order.
func (d AgentDescriptor) AllTags() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, s := range d.Skills {
		for _, tag := range s.Tags {
			tag = strings.ToLower(tag)
			if _, ok := seen[tag]; ok {
				continue
			}
			seen[tag] = struct{}{}
			out = append(out, tag)
		}
	}
	return out
}
