package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAgentIDStable(t *testing.T) {
	a := AgentID("Data Analyst Agent", "http://127.0.0.1:10022")
	b := AgentID("Data Analyst Agent", "http://127.0.0.1:10022")
	if a != b {
		t.Errorf("AgentID not stable: %q != %q", a, b)
	}
	if !strings.HasPrefix(a, "data_analyst_agent_") {
		t.Errorf("AgentID = %q, want prefix %q", a, "data_analyst_agent_")
	}
}

func TestAgentIDDiffersByURL(t *testing.T) {
	a := AgentID("Researcher", "http://127.0.0.1:10023")
	b := AgentID("Researcher", "http://127.0.0.1:10024")
	assert.NotEqual(t, a, b)
}

func TestAgentIDEmptyName(t *testing.T) {
	id := AgentID("  ", "http://x")
	assert.True(t, strings.HasPrefix(id, "unknown_"), id)
}

func TestTagSet(t *testing.T) {
	set := TagSet([]string{"Research", " research ", "", "Data Analysis"})
	assert.Len(t, set, 2)
	assert.Contains(t, set, "research")
	assert.Contains(t, set, "data analysis")
}

func TestDescriptorMatchesAny(t *testing.T) {
	d := AgentDescriptor{
		Name: "Researcher Agent",
		Skills: []Skill{
			{ID: "research", Tags: []string{"Research", "fact-checking"}},
			{ID: "verify", Tags: []string{"verification"}},
		},
	}

	tests := []struct {
		tags []string
		want bool
	}{
		{[]string{"research"}, true},
		{[]string{"VERIFICATION"}, true},
		{[]string{"fact"}, false},
		{[]string{"writing", "marketing"}, false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := d.MatchesAny(TagSet(tt.tags)); got != tt.want {
			t.Errorf("MatchesAny(%v) = %v, want %v", tt.tags, got, tt.want)
		}
	}
}

func TestDescriptorAllTags(t *testing.T) {
	d := AgentDescriptor{Skills: []Skill{
		{Tags: []string{"Writing", "marketing"}},
		{Tags: []string{"writing", "creative"}},
	}}
	assert.Equal(t, []string{"writing", "marketing", "creative"}, d.AllTags())
}

func TestRegisteredAgentActive(t *testing.T) {
	assert.True(t, RegisteredAgent{Status: AgentStatusActive}.Active())
	assert.False(t, RegisteredAgent{Status: AgentStatusError}.Active())
}
