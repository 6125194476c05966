package rules

import (
	"github.com/BetterCallFirewall/Scanhound/internal/logging"
	"github.com/BetterCallFirewall/Scanhound/internal/models"
)

// Engine evaluates evidence against the full ordered rule set.
type Engine struct {
	rules []Rule
}

// NewEngine returns an engine loaded with every registered rule, in a
// fixed order so finding output is deterministic per evidence bundle.
func NewEngine() *Engine {
	return &Engine{
		rules: []Rule{
			ReflectedInputRule{},
			SecurityHeadersRule{},
			CORSWildcardRule{},
			SQLErrorRule{},
			StackTraceRule{},
			PIIRule{},
			RateLimitHeadersRule{},
			TechDisclosureRule{},
		},
	}
}

// Evaluate runs every rule against the evidence and collects the
// findings. Each rule is evaluated in isolation: a panicking rule is
// logged and skipped, never taking the other rules down with it.
// Unmatched or unparsable evidence simply contributes no findings.
func (e *Engine) Evaluate(ev *Evidence) []models.Finding {
	var findings []models.Finding
	for _, rule := range e.rules {
		findings = append(findings, e.evaluateOne(rule, ev)...)
	}
	return findings
}

func (e *Engine) evaluateOne(rule Rule, ev *Evidence) (findings []models.Finding) {
	defer func() {
		if r := recover(); r != nil {
			logging.L().Errorw("rule panicked, skipping",
				"rule", rule.ID(),
				"endpoint_key", ev.EndpointKey,
				"panic", r,
			)
			findings = nil
		}
	}()
	return rule.Evaluate(ev)
}
