package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ChatRequest is a user message submitted to the chat backend.
type ChatRequest struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
}

// DefaultUserID is used when a chat request carries no user id.
const DefaultUserID = "default_user"

// ChatResponse is the reply returned to the chat front end.
// Response is always displayable, even when the target agent failed.
type ChatResponse struct {
	Response    string `json:"response"`
	AgentName   string `json:"agent_name"`
	ActionTaken string `json:"action_taken,omitempty"`
}

// Action labels recorded in ChatResponse.ActionTaken.
const (
	ActionRouted           = "routed"
	ActionDefaultRouted    = "default_routed"
	ActionAgentUnavailable = "agent_unavailable"
	ActionNoEndpoint       = "no_endpoint"
)

// RouteDecision is the outcome of classifying one message.
// Exactly one of Matched or Fallback is true.
type RouteDecision struct {
	Category  string `json:"category"`   // rule key, e.g. "hiring_manager"
	AgentName string `json:"agent_name"` // display name, e.g. "Hiring Manager"
	AgentID   string `json:"agent_id,omitempty"`
	URL       string `json:"url,omitempty"`
	Keyword   string `json:"keyword,omitempty"`
	Matched   bool   `json:"matched"`
	Fallback  bool   `json:"fallback"`
}

// AgentLabel is the last path segment of an agent URL, used to name it in apologies.
func AgentLabel(baseURL string) string {
	s := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if i := strings.LastIndex(s, "/"); i >= 0 {
		return s[i+1:]
	}
	return s
}

// Apology turns a failure talking to an agent into a message fit for a chat user.
func Apology(err error, label string) string {
	switch {
	case errors.Is(err, ErrAgentUnreachable), errors.Is(err, ErrCircuitOpen):
		return fmt.Sprintf("I'm sorry, I'm having trouble connecting to the %s agent. Please make sure the A2A agent servers are running.", label)
	case errors.Is(err, ErrAgentBadStatus):
		return fmt.Sprintf("The %s agent is not responding properly. Please check the server status.", label)
	default:
		return fmt.Sprintf("I encountered an error while processing your request: %v", err)
	}
}
