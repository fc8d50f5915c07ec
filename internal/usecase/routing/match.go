package routing

import "strings"

// Rule maps a keyword set to a routing category. A slice of rules is
// evaluated in order; earlier rules have priority.
type Rule struct {
	Category  string
	AgentName string
	Keywords  []string
}

// Match returns the first rule with a keyword contained in text, compared
// case-insensitively, along with the keyword that hit. Blank text never matches.
func Match(text string, rules []Rule) (Rule, string, bool) {
	lower := strings.ToLower(text)
	if strings.TrimSpace(lower) == "" {
		return Rule{}, "", false
	}
	for _, rule := range rules {
		for _, kw := range rule.Keywords {
			if kw == "" {
				continue
			}
			if strings.Contains(lower, strings.ToLower(kw)) {
				return rule, kw, true
			}
		}
	}
	return Rule{}, "", false
}

// MatchMostHits returns the rule with the most keywords contained in text.
// Ties go to the earlier rule; zero hits is no match.
func MatchMostHits(text string, rules []Rule) (Rule, string, bool) {
	lower := strings.ToLower(text)
	if strings.TrimSpace(lower) == "" {
		return Rule{}, "", false
	}

	bestIdx, bestHits := -1, 0
	var bestKeyword string
	for i, rule := range rules {
		hits := 0
		var first string
		for _, kw := range rule.Keywords {
			if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
				if hits == 0 {
					first = kw
				}
				hits++
			}
		}
		if hits > bestHits {
			bestIdx, bestHits, bestKeyword = i, hits, first
		}
	}
	if bestIdx < 0 {
		return Rule{}, "", false
	}
	return rules[bestIdx], bestKeyword, true
}
