package signal

import (
	"fmt"
	"regexp"
	"strings"
)

// CallTranscript is the scoreable content of an intercepted call.
type CallTranscript struct {
	Transcript string
}

func (CallTranscript) SignalKind() Kind { return KindCallTranscript }

// IndicatorRule maps one indicator category to its match patterns and weight.
// The rules are configuration data: the scorer walks whatever table it is
// given, so deployments can tune categories without code changes.
type IndicatorRule struct {
	Category string
	Patterns []string
	Weight   int
}

// DefaultIndicatorRules is the production scam-indicator table.
var DefaultIndicatorRules = []IndicatorRule{
	{
		Category: "urgency",
		Weight:   25,
		Patterns: []string{
			`\b(urgent|emergency|immediately|right now|asap|hurry)\b`,
			`\b(act now|time sensitive|limited time)\b`,
			`\b(before it's too late|last chance)\b`,
		},
	},
	{
		Category: "gift_cards",
		Weight:   35,
		Patterns: []string{
			`\b(gift card|itunes|google play|steam|amazon card)\b`,
			`\b(prepaid card|reload|redeem)\b`,
			`\b(scratch off|activation code)\b`,
		},
	},
	{
		Category: "authority_impersonation",
		Weight:   30,
		Patterns: []string{
			`\b(irs|internal revenue|tax|government|federal)\b`,
			`\b(social security|medicare|medicaid)\b`,
			`\b(police|sheriff|officer|detective|fbi|dea)\b`,
			`\b(warrant|arrest|legal action|lawsuit)\b`,
			`\b(bank|account frozen|suspicious activity)\b`,
		},
	},
	{
		Category: "payment_pressure",
		Weight:   20,
		Patterns: []string{
			`\b(pay now|send money|wire transfer|western union)\b`,
			`\b(cash|bitcoin|cryptocurrency|venmo|zelle)\b`,
			`\b(penalty|fine|fee|charge|owe)\b`,
		},
	},
	{
		Category: "personal_info_request",
		Weight:   25,
		Patterns: []string{
			`\b(social security number|ssn|account number|password)\b`,
			`\b(pin|verification code|security code)\b`,
			`\b(date of birth|mother's maiden name)\b`,
		},
	},
	{
		Category: "family_emergency",
		Weight:   30,
		Patterns: []string{
			`\b(grandchild|grandson|granddaughter|nephew|niece)\b`,
			`\b(accident|hospital|jail|arrested|trouble)\b`,
			`\b(bail|lawyer|attorney|legal fees)\b`,
		},
	},
}

type compiledRule struct {
	category string
	weight   int
	patterns []*regexp.Regexp
}

// CallScorer detects scam indicators in call transcripts. Each matched
// category contributes its weight once; the sum is capped at 100.
type CallScorer struct {
	rules []compiledRule
}

// NewCallScorer compiles the indicator table. Rules are compiled once at
// startup so the per-call path does no allocation beyond the result.
func NewCallScorer(rules []IndicatorRule) (*CallScorer, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, rule := range rules {
		cr := compiledRule{category: rule.Category, weight: rule.Weight}
		for _, pattern := range rule.Patterns {
			re, err := regexp.Compile("(?i)" + pattern)
			if err != nil {
				return nil, fmt.Errorf("compile indicator %s: %w", rule.Category, err)
			}
			cr.patterns = append(cr.patterns, re)
		}
		compiled = append(compiled, cr)
	}
	return &CallScorer{rules: compiled}, nil
}

func (s *CallScorer) Kind() Kind { return KindCallTranscript }

// Score evaluates a transcript. An empty or whitespace-only transcript scores
// zero with no indicators and the ALLOW action.
func (s *CallScorer) Score(in Input) (Signal, error) {
	call, ok := in.(CallTranscript)
	if !ok {
		return Signal{}, fmt.Errorf("call scorer: unsupported input kind %s", in.SignalKind())
	}

	transcript := strings.ToLower(strings.TrimSpace(call.Transcript))
	sig := Signal{Kind: KindCallTranscript, Indicators: []Indicator{}}
	if transcript == "" {
		sig.Level = LevelLow
		sig.Action = ActionAllow
		sig.Reasoning = "empty transcript; nothing to evaluate"
		return sig, nil
	}

	total := 0
	for _, rule := range s.rules {
		for _, re := range rule.patterns {
			if re.MatchString(transcript) {
				sig.Indicators = append(sig.Indicators, Indicator{Category: rule.category, Weight: rule.weight})
				total += rule.weight
				break // each category counts once
			}
		}
	}

	sig.Score = capScore(total)
	sig.Level = levelForScore(sig.Score)
	sig.Action, sig.Reasoning = callAction(sig.Score, sig.Indicators)
	return sig, nil
}

func callAction(score int, indicators []Indicator) (Action, string) {
	categories := make([]string, len(indicators))
	for i, ind := range indicators {
		categories[i] = ind.Category
	}
	joined := strings.Join(categories, ", ")

	switch {
	case score > 80:
		return ActionInterveneAndBlock, fmt.Sprintf(
			"critical threat detected (score %d/100); indicators: %s; intervening to protect the principal", score, joined)
	case score > 50:
		return ActionActivateAnswerBot, fmt.Sprintf(
			"suspicious activity detected (score %d/100); indicators: %s; stalling the caller", score, joined)
	default:
		return ActionAllow, fmt.Sprintf("low risk (score %d/100); call appears legitimate", score)
	}
}
