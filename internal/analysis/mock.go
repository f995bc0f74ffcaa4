package analysis

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/safetycheck/safetycheck/internal/models"
)

// RuleBasedAnalyzer scores posts with keyword heuristics. It backs tests and
// keyless deployments where no reasoning API is configured.
type RuleBasedAnalyzer struct {
	invocations atomic.Int64
}

// NewRuleBasedAnalyzer creates the heuristic analyzer.
func NewRuleBasedAnalyzer() *RuleBasedAnalyzer {
	return &RuleBasedAnalyzer{}
}

type signalRule struct {
	weight  float64
	signal  string
	phrases []string
}

var scamRules = []signalRule{
	{0.35, "payment or cryptocurrency demand", []string{"send bitcoin", "send btc", "send crypto", "wire transfer", "gift card", "wallet address"}},
	{0.30, "guaranteed-return promise", []string{"guaranteed return", "guaranteed 10x", "guaranteed profit", "double your money", "10x returns", "risk free investment"}},
	{0.20, "urgency pressure", []string{"urgent", "act now", "limited time", "expires today", "last chance", "hurry"}},
	{0.20, "prize or giveaway bait", []string{"you won", "claim your prize", "free giveaway", "congratulations you"}},
	{0.15, "credential phishing pattern", []string{"verify your account", "confirm your password", "login here", "account suspended"}},
	{0.15, "off-platform contact push", []string{"dm me", "whatsapp me", "telegram me", "contact me privately"}},
	{0.20, "unsourced health claim", []string{"miracle cure", "doctors hate", "big pharma hides", "cures cancer"}},
	{0.15, "conspiratorial framing", []string{"they don't want you to know", "wake up people", "mainstream media lies"}},
}

// Analyze scores the post text against the rule set.
func (a *RuleBasedAnalyzer) Analyze(_ context.Context, post *models.CanonicalPost) (*models.SafetyAnalysisResult, error) {
	a.invocations.Add(1)

	text := strings.ToLower(post.PostText)
	for _, f := range post.MediaFeatures {
		if f != nil && f.OCRText != "" {
			text += " " + strings.ToLower(f.OCRText)
		}
	}

	score := 0.05
	var signals []string

	for _, rule := range scamRules {
		for _, phrase := range rule.phrases {
			if strings.Contains(text, phrase) {
				score += rule.weight
				signals = append(signals, rule.signal)
				break
			}
		}
	}

	// Exclamation-heavy shouting adds a little pressure signal
	if strings.Count(post.PostText, "!") >= 2 && len(signals) > 0 {
		score += 0.05
	}

	score = clamp01(score)
	if len(signals) > 5 {
		signals = signals[:5]
	}
	for len(signals) < 2 {
		if len(signals) == 0 {
			signals = append(signals, "no scam patterns detected")
		} else {
			signals = append(signals, "content appears routine")
		}
	}

	summary := "No significant scam or misinformation indicators found."
	if score >= 0.5 {
		summary = "Post matches known scam/misinformation patterns: " + strings.Join(signals, "; ") + "."
	} else if score >= 0.25 {
		summary = "Post carries some suspicious signals but no conclusive scam pattern."
	}

	result := &models.SafetyAnalysisResult{
		RiskScore:         score,
		RiskLevel:         models.DeriveRiskLevel(score),
		Summary:           truncate(summary, 500),
		KeySignals:        signals,
		FactChecks:        []models.FactCheck{},
		AnalysisTimestamp: time.Now().UTC(),
		ModelVersion:      "rule-based-v1",
	}

	return result, nil
}

// Invocations reports how many analyses ran.
func (a *RuleBasedAnalyzer) Invocations() int64 {
	return a.invocations.Load()
}
