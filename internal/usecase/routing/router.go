// Package routing maps free-text messages to a target agent category.
//
// Every router here always yields a decision: a matched rule, a registry
// agent found by tag overlap, or the configured fallback.
package routing

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"agenthq/internal/domain"
	"agenthq/internal/infra/logger"
	"agenthq/internal/infra/tracer"
)

// Strategy selects how keyword rules compete.
type Strategy string

const (
	StrategyFirstMatch Strategy = "first_match"
	StrategyMostHits   Strategy = "most_hits"
)

// KeywordRouter is an ordered keyword classifier with a fallback rule.
type KeywordRouter struct {
	rules    []Rule
	fallback Rule
	strategy Strategy
	logger   *slog.Logger
}

// NewKeywordRouter creates a router over rules with first-match semantics.
func NewKeywordRouter(rules []Rule, fallback Rule) *KeywordRouter {
	return NewKeywordRouterWithLogger(rules, fallback, StrategyFirstMatch, logger.Discard())
}

// NewKeywordRouterWithLogger creates a KeywordRouter with the given strategy and debug logging.
func NewKeywordRouterWithLogger(rules []Rule, fallback Rule, strategy Strategy, log *slog.Logger) *KeywordRouter {
	if strategy == "" {
		strategy = StrategyFirstMatch
	}
	return &KeywordRouter{rules: rules, fallback: fallback, strategy: strategy, logger: log}
}

// Classify returns the matching rule's decision. Matched is false when no rule hit.
func (r *KeywordRouter) Classify(message string) domain.RouteDecision {
	var (
		rule Rule
		kw   string
		ok   bool
	)
	if r.strategy == StrategyMostHits {
		rule, kw, ok = MatchMostHits(message, r.rules)
	} else {
		rule, kw, ok = Match(message, r.rules)
	}
	if !ok {
		return domain.RouteDecision{}
	}
	r.logger.Debug("keyword rule matched", "category", rule.Category, "keyword", kw)
	return domain.RouteDecision{
		Category:  rule.Category,
		AgentName: rule.AgentName,
		Keyword:   kw,
		Matched:   true,
	}
}

// Fallback returns the decision used when nothing matched.
func (r *KeywordRouter) Fallback() domain.RouteDecision {
	return domain.RouteDecision{
		Category:  r.fallback.Category,
		AgentName: r.fallback.AgentName,
		Fallback:  true,
	}
}

// Rules returns the configured rules in priority order.
func (r *KeywordRouter) Rules() []Rule { return r.rules }

// AgentIndex is the registry surface the tag router reads.
type AgentIndex interface {
	ListActive() []domain.RegisteredAgent
	FindByTags(tags []string) []domain.RegisteredAgent
}

// TagRouter picks a registered agent whose skill tags appear in the message.
type TagRouter struct {
	index  AgentIndex
	logger *slog.Logger
}

// NewTagRouter creates a router backed by the agent registry.
func NewTagRouter(index AgentIndex, log *slog.Logger) *TagRouter {
	if log == nil {
		log = logger.Discard()
	}
	return &TagRouter{index: index, logger: log}
}

// Classify collects every active tag contained in the message and returns the
// first agent carrying any of them. Matched is false when none do.
func (r *TagRouter) Classify(message string) domain.RouteDecision {
	lower := strings.ToLower(message)
	if strings.TrimSpace(lower) == "" {
		return domain.RouteDecision{}
	}

	seen := make(map[string]struct{})
	var hits []string
	for _, a := range r.index.ListActive() {
		for _, tag := range a.Descriptor.AllTags() {
			if _, dup := seen[tag]; dup || tag == "" {
				continue
			}
			seen[tag] = struct{}{}
			if strings.Contains(lower, tag) {
				hits = append(hits, tag)
			}
		}
	}
	if len(hits) == 0 {
		return domain.RouteDecision{}
	}

	agents := r.index.FindByTags(hits)
	if len(agents) == 0 {
		return domain.RouteDecision{}
	}
	a := agents[0]
	keyword := firstCarried(hits, a.Descriptor.AllTags())
	r.logger.Debug("tag overlap matched", "agent_id", a.ID, "tag", keyword, "tags", hits)
	return domain.RouteDecision{
		Category:  a.ID,
		AgentName: a.Descriptor.Name,
		AgentID:   a.ID,
		URL:       a.URL,
		Keyword:   keyword,
		Matched:   true,
	}
}

// firstCarried returns the first hit that is among tags.
func firstCarried(hits, tags []string) string {
	for _, h := range hits {
		if slices.Contains(tags, h) {
			return h
		}
	}
	return ""
}

// Router chains the keyword router, the optional tag router and the fallback.
type Router struct {
	keywords *KeywordRouter
	tags     *TagRouter
	logger   *slog.Logger
}

// New creates a Router. tags may be nil.
func New(keywords *KeywordRouter, tags *TagRouter, log *slog.Logger) *Router {
	if log == nil {
		log = logger.Discard()
	}
	return &Router{keywords: keywords, tags: tags, logger: log}
}

// Route classifies message. It never returns an empty decision.
func (r *Router) Route(ctx context.Context, message string) domain.RouteDecision {
	_, span := tracer.StartSpan(ctx, "routing.route")
	defer span.End()

	d := r.keywords.Classify(message)
	if !d.Matched && r.tags != nil {
		d = r.tags.Classify(message)
	}
	if !d.Matched {
		d = r.keywords.Fallback()
		r.logger.Debug("no rule matched, using fallback", "category", d.Category)
	}

	span.SetAttributes(
		tracer.StringAttr("category", d.Category),
		tracer.BoolAttr("fallback", d.Fallback),
	)
	return d
}
