package models

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// SafetyAnalysisResult is the output contract of the analysis pipeline.
type SafetyAnalysisResult struct {
	RiskScore         float64     `json:"risk_score"`
	RiskLevel         RiskLevel   `json:"risk_level"`
	Summary           string      `json:"summary"`
	KeySignals        []string    `json:"key_signals"`
	FactChecks        []FactCheck `json:"fact_checks"`
	AnalysisTimestamp time.Time   `json:"analysis_timestamp"`
	ModelVersion      string      `json:"model_version"`
}

// RiskLevel is the discrete banding of a continuous risk score.
type RiskLevel string

const (
	RiskMinimal  RiskLevel = "Minimal"  // [0.0, 0.25)
	RiskLow      RiskLevel = "Low"      // [0.25, 0.5)
	RiskModerate RiskLevel = "Moderate" // [0.5, 0.7)
	RiskHigh     RiskLevel = "High"     // [0.7, 0.9)
	RiskCritical RiskLevel = "Critical" // [0.9, 1.0]
)

// DeriveRiskLevel maps a risk score to its fixed band. Every component that
// needs a level from a score must go through this function.
func DeriveRiskLevel(score float64) RiskLevel {
	switch {
	case score >= 0.9:
		return RiskCritical
	case score >= 0.7:
		return RiskHigh
	case score >= 0.5:
		return RiskModerate
	case score >= 0.25:
		return RiskLow
	default:
		return RiskMinimal
	}
}

// FactCheck records the assessment of one factual claim made in a post.
type FactCheck struct {
	Claim       string     `json:"claim"`
	Verdict     Verdict    `json:"verdict"`
	Explanation string     `json:"explanation"`
	Citations   []Citation `json:"citations"`
}

// Verdict classifies the outcome of a fact check.
type Verdict string

const (
	VerdictTrue         Verdict = "True"
	VerdictFalse        Verdict = "False"
	VerdictMisleading   Verdict = "Misleading"
	VerdictUnverifiable Verdict = "Unverifiable"
	VerdictLacksContext Verdict = "Lacks Context"
)

// Citation points at a source backing a fact-check verdict.
type Citation struct {
	SourceName string `json:"source_name"`
	URL        string `json:"url"`
	Excerpt    string `json:"excerpt,omitempty"`
}

const (
	maxSummaryLen     = 500
	maxExplanationLen = 500
	maxExcerptLen     = 200

	minKeySignals = 2
	maxKeySignals = 5

	minCitations = 1
	maxCitations = 3
)

// Validate checks the result against its schema invariants. A result that
// fails validation must never be cached or returned to a caller.
func (r *SafetyAnalysisResult) Validate() error {
	if r.RiskScore < 0.0 || r.RiskScore > 1.0 {
		return fmt.Errorf("risk_score %f outside [0,1]", r.RiskScore)
	}

	if want := DeriveRiskLevel(r.RiskScore); r.RiskLevel != want {
		return fmt.Errorf("risk_level %q inconsistent with risk_score %f (want %q)", r.RiskLevel, r.RiskScore, want)
	}

	if utf8.RuneCountInString(r.Summary) > maxSummaryLen {
		return fmt.Errorf("summary exceeds %d chars", maxSummaryLen)
	}

	if len(r.KeySignals) < minKeySignals || len(r.KeySignals) > maxKeySignals {
		return fmt.Errorf("key_signals length %d outside [%d,%d]", len(r.KeySignals), minKeySignals, maxKeySignals)
	}

	for i, fc := range r.FactChecks {
		if err := fc.validate(); err != nil {
			return fmt.Errorf("fact_checks[%d]: %w", i, err)
		}
	}

	return nil
}

func (f *FactCheck) validate() error {
	switch f.Verdict {
	case VerdictTrue, VerdictFalse, VerdictMisleading, VerdictUnverifiable, VerdictLacksContext:
	default:
		return fmt.Errorf("unknown verdict %q", f.Verdict)
	}

	if utf8.RuneCountInString(f.Explanation) > maxExplanationLen {
		return fmt.Errorf("explanation exceeds %d chars", maxExplanationLen)
	}

	if len(f.Citations) < minCitations || len(f.Citations) > maxCitations {
		return fmt.Errorf("citations length %d outside [%d,%d]", len(f.Citations), minCitations, maxCitations)
	}

	for i, c := range f.Citations {
		if utf8.RuneCountInString(c.Excerpt) > maxExcerptLen {
			return fmt.Errorf("citations[%d]: excerpt exceeds %d chars", i, maxExcerptLen)
		}
	}

	return nil
}
