package model

import "time"

// ScoringResult is the outcome of evaluating one submission against a RuleSet
type ScoringResult struct {
	TotalScore          float64          `json:"totalScore"`
	MaxPossibleScore    float64          `json:"maxPossibleScore"`
	Percentage          float64          `json:"percentage"` // 0 when MaxPossibleScore is 0
	DetailedResults     []DetailedResult `json:"detailedResults"`
	SectionScores       []CategoryScore  `json:"sectionScores"`
	GenderScores        []CategoryScore  `json:"genderScores"`
	OMECPotentialScores []CategoryScore  `json:"omecPotentialScores"`
}

// DetailedResult is the per-rule line of a ScoringResult
type DetailedResult struct {
	Column        string   `json:"column"`
	Name          string   `json:"name"`
	Section       string   `json:"section,omitempty"`
	Gender        string   `json:"gender,omitempty"`
	Potential     string   `json:"potential,omitempty"`
	Type          RuleType `json:"type"`
	ExpectedValue string   `json:"expectedValue"`
	ActualValue   string   `json:"actualValue,omitempty"`
	Answered      bool     `json:"answered"`
	Score         float64  `json:"score"`
	MaxScore      float64  `json:"maxScore"`
}

// CategoryScore aggregates detailed results sharing one label
type CategoryScore struct {
	Label         string  `json:"label"`
	Score         float64 `json:"score"`
	MaxScore      float64 `json:"maxScore"`
	Percentage    float64 `json:"percentage"`
	QuestionCount int     `json:"questionCount"`
}

// GroupScore is the summed contribution of one multiple_max question group
type GroupScore struct {
	GroupKey string  `json:"groupKey"`
	Name     string  `json:"name"`
	Score    float64 `json:"score"`
	MaxScore float64 `json:"maxScore"`
	Selected int     `json:"selected"` // Options that matched
}

// Assessment wraps a ScoringResult with where it came from, for reports and storage
type Assessment struct {
	ID           string         `json:"id,omitempty"`
	SubmissionID string         `json:"submission_id,omitempty"`
	ScoredAt     time.Time      `json:"scored_at"`
	RulesLoaded  time.Time      `json:"rules_loaded_at"`
	Result       *ScoringResult `json:"result"`
	Groups       []GroupScore   `json:"groups,omitempty"`
	LLM          *LLMSummary    `json:"llm,omitempty"` // Optional narrative, never affects scores
}

// LLMSummary contains an optional plain-language narrative of an assessment
type LLMSummary struct {
	Enabled   bool     `json:"enabled"`
	Provider  string   `json:"provider,omitempty"`
	Model     string   `json:"model,omitempty"`
	SummaryMD string   `json:"summary_md,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}
