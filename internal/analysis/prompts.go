package analysis

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/safetycheck/safetycheck/internal/models"
)

// PromptTemplates holds the system and user prompt templates driving the
// reasoning API.
type PromptTemplates struct {
	SystemPrompt     string
	AnalysisTemplate string
}

// NewPromptTemplates creates the default prompts for scam/misinformation
// assessment.
func NewPromptTemplates() *PromptTemplates {
	return &PromptTemplates{
		SystemPrompt:     buildSystemPrompt(),
		AnalysisTemplate: buildAnalysisTemplate(),
	}
}

func buildSystemPrompt() string {
	return `CRITICAL: You MUST output ONLY valid JSON. Do not include any text before or after the JSON object. Do not wrap it in markdown code blocks. Output the raw JSON object directly.

You are an expert trust-and-safety analyst specializing in online scams, fraud schemes, and misinformation on social media.

Your role is to assess a single social-media post and report:
1. An overall risk score for scam/misinformation content
2. The concrete signals that drove the score
3. Fact checks for any checkable factual claims

Guidelines:
- Judge the post content, not the author's character
- Distinguish satire and hyperbole from deception
- Treat urgency pressure, guaranteed returns, requests to move to private channels, and cryptocurrency payment demands as strong scam signals
- Treat unsourced medical, election, or public-safety claims as misinformation signals
- Consider attached media descriptions and sampled comments as supporting context only
- When the post is benign, say so plainly with a low score

Output Format: Your response MUST be ONLY this exact JSON structure with no additional text:
{
  "risk_score": 0.85,
  "summary": "One-paragraph assessment, at most 500 characters",
  "key_signals": ["signal 1", "signal 2", "signal 3"],
  "fact_checks": [
    {
      "claim": "The claim as stated in the post",
      "verdict": "True|False|Misleading|Unverifiable|Lacks Context",
      "explanation": "Why, at most 500 characters",
      "citations": [
        {"source_name": "Publisher", "url": "https://...", "excerpt": "short quote, at most 200 characters"}
      ]
    }
  ]
}

CRITICAL: "risk_score" is REQUIRED and must be a number between 0.0 and 1.0.
CRITICAL: "key_signals" must contain between 2 and 5 entries.
CRITICAL: every fact check must carry 1 to 3 citations. Omit "fact_checks" entries entirely rather than inventing citations. Use an empty array when the post makes no checkable claims.

RISK SCORE GUIDELINES:
0.90-1.00: CRITICAL - Active fraud attempt: payment demands, credential phishing, impersonation of institutions
0.70-0.89: HIGH - Strong scam patterns or demonstrably false claims presented as fact
0.50-0.69: MODERATE - Several suspicious signals or significant unverifiable claims
0.25-0.49: LOW - Mildly misleading framing, exaggeration, or clickbait without clear harm
0.00-0.24: MINIMAL - Ordinary benign content

Be objective. Score what the post says, not what it might imply.`
}

func buildAnalysisTemplate() string {
	return `Assess the following social-media post for scam and misinformation risk:

PLATFORM: {{.Platform}}
POSTED: {{.Timestamp}}
AUTHOR: {{.AuthorContext}}
ENGAGEMENT: {{.Engagement}}

POST TEXT:
{{.PostText}}

ATTACHED MEDIA:
{{.MediaSummary}}

EXTERNAL LINKS: {{.Links}}
HASHTAGS: {{.Hashtags}}

SAMPLED COMMENTS:
{{.Comments}}

Provide the structured assessment. Focus on concrete signals in the post itself; use comments and media descriptions only as supporting context.`
}

// BuildAnalysisPrompt renders the user prompt for a post. Only derived
// features describe media here; raw bytes never reach the prompt.
func (p *PromptTemplates) BuildAnalysisPrompt(post *models.CanonicalPost) string {
	template := p.AnalysisTemplate

	timestamp := "unknown"
	if post.Timestamp != nil {
		timestamp = post.Timestamp.Format("2006-01-02 15:04:05 MST")
	}

	template = strings.ReplaceAll(template, "{{.Platform}}", string(post.PlatformName))
	template = strings.ReplaceAll(template, "{{.Timestamp}}", timestamp)
	template = strings.ReplaceAll(template, "{{.AuthorContext}}", buildAuthorContext(post.AuthorMetadata))
	template = strings.ReplaceAll(template, "{{.Engagement}}", buildEngagementContext(post.Engagement))
	template = strings.ReplaceAll(template, "{{.PostText}}", post.PostText)
	template = strings.ReplaceAll(template, "{{.MediaSummary}}", buildMediaSummary(post))
	template = strings.ReplaceAll(template, "{{.Links}}", joinOrNone(post.ExternalLinks))
	template = strings.ReplaceAll(template, "{{.Hashtags}}", joinOrNone(post.Hashtags))
	template = strings.ReplaceAll(template, "{{.Comments}}", buildCommentBlock(post.SampledComments))

	if post.ReplyContext != "" {
		template += "\n\nSUBMITTER CONTEXT:\n" + post.ReplyContext
	}

	return template
}

// buildAuthorContext renders the privacy-bucketed author signals.
func buildAuthorContext(meta models.AuthorMetadata) string {
	parts := []string{}

	if meta.AccountAgeBucket != "" && meta.AccountAgeBucket != models.AccountAgeUnknown {
		parts = append(parts, fmt.Sprintf("account age: %s", meta.AccountAgeBucket))
	}
	if meta.KarmaBucket != "" && meta.KarmaBucket != models.CountBucketUnobserved {
		parts = append(parts, fmt.Sprintf("karma: %s", meta.KarmaBucket))
	}
	if meta.FollowerBucket != "" && meta.FollowerBucket != models.CountBucketUnobserved {
		parts = append(parts, fmt.Sprintf("followers: %s", meta.FollowerBucket))
	}
	if meta.Verified {
		parts = append(parts, "verified account")
	}

	if len(parts) == 0 {
		return "no author signals available"
	}
	return strings.Join(parts, ", ")
}

func buildEngagementContext(e models.EngagementMetrics) string {
	parts := []string{}

	if e.UpvoteBucket != "" && e.UpvoteBucket != models.CountBucketUnobserved {
		parts = append(parts, fmt.Sprintf("upvotes: %s", e.UpvoteBucket))
	}
	if e.CommentBucket != "" && e.CommentBucket != models.CountBucketUnobserved {
		parts = append(parts, fmt.Sprintf("comments: %s", e.CommentBucket))
	}
	if e.ShareBucket != "" && e.ShareBucket != models.CountBucketUnobserved {
		parts = append(parts, fmt.Sprintf("shares: %s", e.ShareBucket))
	}
	if e.ViewBucket != "" && e.ViewBucket != models.CountBucketUnobserved {
		parts = append(parts, fmt.Sprintf("views: %s", e.ViewBucket))
	}

	if len(parts) == 0 {
		return "no engagement data"
	}
	return strings.Join(parts, ", ")
}

// buildMediaSummary describes attachments through their derived features.
func buildMediaSummary(post *models.CanonicalPost) string {
	if len(post.MediaItems) == 0 {
		return "none"
	}

	lines := []string{}
	for i, item := range post.MediaItems {
		line := fmt.Sprintf("- item %d: %s", i+1, item.MediaType)
		if i < len(post.MediaFeatures) && post.MediaFeatures[i] != nil {
			f := post.MediaFeatures[i]
			if f.Caption != "" {
				line += fmt.Sprintf("; caption: %s", f.Caption)
			}
			if f.OCRText != "" {
				line += fmt.Sprintf("; text in image: %s", f.OCRText)
			}
			if len(f.DetectedObjects) > 0 {
				line += fmt.Sprintf("; objects: %s", strings.Join(f.DetectedObjects, ", "))
			}
		} else {
			line += " (features unavailable)"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func buildCommentBlock(comments []string) string {
	if len(comments) == 0 {
		return "none"
	}
	lines := make([]string, 0, len(comments))
	for _, c := range comments {
		lines = append(lines, "- "+c)
	}
	return strings.Join(lines, "\n")
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}

var jsonFenceRegex = regexp.MustCompile("(?s)```(?:json)?\\s*({.+})\\s*```")
var rawJSONRegex = regexp.MustCompile(`(?s)^\s*({.+})\s*$`)

// ParseAnalysisResponse converts the reasoning API's text output into a
// validated SafetyAnalysisResult. Schema violations surface as
// MalformedResponseError so the caller falls back rather than retries.
func ParseAnalysisResponse(raw, modelVersion string) (*models.SafetyAnalysisResult, error) {
	jsonStr := raw
	if matches := jsonFenceRegex.FindStringSubmatch(raw); len(matches) > 1 {
		jsonStr = matches[1]
	} else if matches := rawJSONRegex.FindStringSubmatch(raw); len(matches) > 1 {
		jsonStr = matches[1]
	}

	var rawData struct {
		RiskScore  *float64 `json:"risk_score"`
		Summary    string   `json:"summary"`
		KeySignals []string `json:"key_signals"`
		FactChecks []struct {
			Claim       string `json:"claim"`
			Verdict     string `json:"verdict"`
			Explanation string `json:"explanation"`
			Citations   []struct {
				SourceName string `json:"source_name"`
				URL        string `json:"url"`
				Excerpt    string `json:"excerpt"`
			} `json:"citations"`
		} `json:"fact_checks"`
	}

	if err := json.Unmarshal([]byte(jsonStr), &rawData); err != nil {
		return nil, &models.MalformedResponseError{Detail: "response is not valid JSON", Err: err}
	}

	if rawData.RiskScore == nil {
		return nil, &models.MalformedResponseError{Detail: "risk_score missing"}
	}

	score := clamp01(*rawData.RiskScore)

	signals := rawData.KeySignals
	if len(signals) > 5 {
		signals = signals[:5]
	}

	result := &models.SafetyAnalysisResult{
		RiskScore:    score,
		RiskLevel:    models.DeriveRiskLevel(score),
		Summary:      truncate(rawData.Summary, 500),
		KeySignals:   signals,
		FactChecks:   []models.FactCheck{},
		ModelVersion: modelVersion,
	}

	for _, fc := range rawData.FactChecks {
		check := models.FactCheck{
			Claim:       fc.Claim,
			Verdict:     models.Verdict(fc.Verdict),
			Explanation: truncate(fc.Explanation, 500),
		}
		for _, c := range fc.Citations {
			check.Citations = append(check.Citations, models.Citation{
				SourceName: c.SourceName,
				URL:        c.URL,
				Excerpt:    truncate(c.Excerpt, 200),
			})
		}
		if len(check.Citations) > 3 {
			check.Citations = check.Citations[:3]
		}
		result.FactChecks = append(result.FactChecks, check)
	}

	if err := result.Validate(); err != nil {
		return nil, &models.MalformedResponseError{Detail: "response violates result schema", Err: err}
	}

	return result, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// truncate caps a string at limit characters, cutting on rune boundaries so
// multi-byte text never ends up as invalid UTF-8.
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
