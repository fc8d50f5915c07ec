package roster

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"agenthq/internal/usecase/delegation"
	"agenthq/internal/usecase/routing"
)

// Secretary points the user at the specialist whose keywords match.
type Secretary struct {
	router *routing.KeywordRouter
}

// NewSecretary creates the secretary responder over the routing rules.
func NewSecretary(router *routing.KeywordRouter) *Secretary {
	return &Secretary{router: router}
}

// Respond implements the agent responder contract.
func (s *Secretary) Respond(_ context.Context, text string) (string, error) {
	d := s.router.Classify(text)
	if d.Matched {
		return fmt.Sprintf("That sounds like a job for our %s (you mentioned %q). "+
			"Send it through the chat and it will be routed there directly, "+
			"or ask the Master Orchestrator if the work spans several specialists.", d.AgentName, d.Keyword), nil
	}

	var b strings.Builder
	b.WriteString("Hello! I'm the Executive Secretary. I coordinate the team and route requests to the right specialist:\n")
	for _, r := range s.router.Rules() {
		fmt.Fprintf(&b, "- %s: %s\n", r.AgentName, strings.Join(r.Keywords, ", "))
	}
	b.WriteString("Tell me what you need and I'll point you to the right person.")
	return b.String(), nil
}

var numberRe = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// Stats summarizes the numbers found in a request.
type Stats struct {
	Count  int     `json:"count"`
	Sum    float64 `json:"sum"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	StdDev float64 `json:"std_dev"`
	Trend  string  `json:"trend,omitempty"`
}

// Analysis is the data analyst's JSON reply.
type Analysis struct {
	Request    string   `json:"request"`
	Statistics *Stats   `json:"statistics,omitempty"`
	Insights   []string `json:"insights"`
	NextSteps  []string `json:"next_steps"`
}

// DataAnalyst computes descriptive statistics over numbers in the message.
type DataAnalyst struct{}

// Respond implements the agent responder contract.
func (DataAnalyst) Respond(_ context.Context, text string) (string, error) {
	a := Analyze(text)
	out, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Analyze builds the analysis for text.
func Analyze(text string) Analysis {
	a := Analysis{Request: strings.TrimSpace(text)}
	values := ParseNumbers(text)
	if len(values) == 0 {
		a.Insights = []string{"No numeric data was found in the request."}
		a.NextSteps = []string{
			"Share the data inline, for example: sales 120, 135, 150, 149",
			"Say which question the analysis should answer",
		}
		return a
	}

	st := Describe(values)
	a.Statistics = &st
	a.Insights = append(a.Insights, fmt.Sprintf("%d values averaging %s (median %s).", st.Count, formatFloat(st.Mean), formatFloat(st.Median)))
	a.Insights = append(a.Insights, fmt.Sprintf("Range spans %s to %s.", formatFloat(st.Min), formatFloat(st.Max)))
	if st.Trend != "" {
		a.Insights = append(a.Insights, fmt.Sprintf("The series is %s.", st.Trend))
	}
	if st.Mean != 0 && st.StdDev/math.Abs(st.Mean) > 0.5 {
		a.Insights = append(a.Insights, "Values are highly dispersed; check for outliers.")
	}
	a.NextSteps = []string{"Add labels or dates to the values for a period-over-period comparison"}
	return a
}

// ParseNumbers returns every decimal number in text, in order.
func ParseNumbers(text string) []float64 {
	var out []float64
	for _, m := range numberRe.FindAllString(text, -1) {
		if v, err := strconv.ParseFloat(m, 64); err == nil {
			out = append(out, v)
		}
	}
	return out
}

// Describe computes descriptive statistics. values must be non-empty.
func Describe(values []float64) Stats {
	st := Stats{Count: len(values), Min: values[0], Max: values[0]}
	for _, v := range values {
		st.Sum += v
		st.Min = math.Min(st.Min, v)
		st.Max = math.Max(st.Max, v)
	}
	st.Mean = st.Sum / float64(st.Count)

	var sq float64
	for _, v := range values {
		sq += (v - st.Mean) * (v - st.Mean)
	}
	st.StdDev = math.Sqrt(sq / float64(st.Count))

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		st.Median = (sorted[mid-1] + sorted[mid]) / 2
	} else {
		st.Median = sorted[mid]
	}
	st.Trend = trend(values)
	return st
}

func trend(values []float64) string {
	if len(values) < 2 {
		return ""
	}
	up, down := 0, 0
	for i := 1; i < len(values); i++ {
		switch {
		case values[i] > values[i-1]:
			up++
		case values[i] < values[i-1]:
			down++
		}
	}
	switch {
	case up == 0 && down == 0:
		return "flat"
	case down == 0:
		return "increasing"
	case up == 0:
		return "decreasing"
	default:
		return "mixed"
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Researcher answers with a research plan for the requested topic.
type Researcher struct{}

// Respond implements the agent responder contract.
func (Researcher) Respond(_ context.Context, text string) (string, error) {
	topic := Topic(text)
	lower := strings.ToLower(text)

	var b strings.Builder
	fmt.Fprintf(&b, "Research plan: %s\n\n", topic)
	if strings.Contains(lower, "fact-check") || strings.Contains(lower, "fact check") || strings.Contains(lower, "verify") {
		fmt.Fprintf(&b, "Claim under review: %s\n\n", strings.TrimSpace(text))
	}
	b.WriteString("Objectives\n")
	fmt.Fprintf(&b, "1. Establish what is already known about %s.\n", topic)
	b.WriteString("2. Identify open questions and conflicting claims.\n")
	b.WriteString("3. Summarize findings with citations.\n\n")
	b.WriteString("Sources to consult\n")
	b.WriteString("- Peer-reviewed publications and official statistics\n")
	b.WriteString("- Primary documents from the organizations involved\n")
	b.WriteString("- Reputable news coverage, cross-checked across outlets\n\n")
	b.WriteString("Verification\n")
	b.WriteString("- Confirm each key claim against at least two independent sources\n")
	b.WriteString("- Record the publication date of every source")
	return b.String(), nil
}

// ContentCreator drafts an outline in the format the request asks for.
type ContentCreator struct{}

// Respond implements the agent responder contract.
func (ContentCreator) Respond(_ context.Context, text string) (string, error) {
	topic := Topic(text)
	title := cases.Title(language.English).String(topic)
	lower := strings.ToLower(text)

	var b strings.Builder
	switch {
	case containsAny(lower, "social", "tweet", "instagram", "linkedin"):
		fmt.Fprintf(&b, "Social media kit: %s\n\n", title)
		fmt.Fprintf(&b, "Post 1 (announcement): Introducing %s. Here's why it matters.\n", topic)
		fmt.Fprintf(&b, "Post 2 (value): Three ways %s makes a difference.\n", topic)
		b.WriteString("Post 3 (call to action): Tell us what you think in the comments.\n")
		b.WriteString("Hashtags: #" + strings.ReplaceAll(title, " ", ""))
	case containsAny(lower, "marketing", "copy", "ad ", "campaign", "slogan"):
		fmt.Fprintf(&b, "Marketing copy: %s\n\n", title)
		fmt.Fprintf(&b, "Headline: %s, made simple.\n", title)
		fmt.Fprintf(&b, "Body: Discover how %s helps you get more done with less effort.\n", topic)
		b.WriteString("Call to action: Get started today.")
	default:
		fmt.Fprintf(&b, "Blog post outline: %s\n\n", title)
		fmt.Fprintf(&b, "1. Hook: why %s matters right now\n", topic)
		b.WriteString("2. Background and key terms\n")
		b.WriteString("3. Three main points with examples\n")
		b.WriteString("4. Practical takeaways\n")
		b.WriteString("5. Conclusion and call to action")
	}
	return b.String(), nil
}

// Orchestrator runs goals through the delegation hierarchy.
type Orchestrator struct {
	director *delegation.Director
}

// NewOrchestrator creates the orchestrator responder.
func NewOrchestrator(d *delegation.Director) *Orchestrator {
	return &Orchestrator{director: d}
}

// Respond implements the agent responder contract.
func (o *Orchestrator) Respond(ctx context.Context, text string) (string, error) {
	return o.director.Delegate(ctx, text).Text(), nil
}

var topicMarkers = []string{" about ", " on ", " regarding ", " for "}

// Topic extracts the subject of a request: the text after the first
// "about"/"on"/"regarding"/"for", or the whole trimmed request.
func Topic(text string) string {
	t := strings.TrimSpace(text)
	lower := strings.ToLower(t)
	for _, m := range topicMarkers {
		if i := strings.Index(lower, m); i >= 0 {
			if rest := strings.TrimSpace(t[i+len(m):]); rest != "" {
				t = rest
				break
			}
		}
	}
	return strings.TrimRight(t, ".!?")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
