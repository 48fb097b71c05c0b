package models

import (
	"time"

	"github.com/google/uuid"
)

// UnlimitedQuota is the sentinel limit value meaning "no limit".
const UnlimitedQuota = -1

// Usage categories recorded with each model invocation.
const (
	UsageCategoryChat       = "chat"
	UsageCategoryVariation  = "variation"
	UsageCategoryRegenerate = "regeneration"
	UsageCategoryCompaction = "compaction"
)

// UsageRecord is one completed model invocation. Records are append-only.
type UsageRecord struct {
	ID           uuid.UUID      `json:"id"`
	UserID       string         `json:"user_id"`
	Model        string         `json:"model"`
	InputTokens  int            `json:"input_tokens"`
	OutputTokens int            `json:"output_tokens"`
	Cost         float64        `json:"cost"`
	Category     string         `json:"category"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

// TotalTokens returns input plus output tokens.
func (r *UsageRecord) TotalTokens() int {
	return r.InputTokens + r.OutputTokens
}

// UsageInput is what a caller reports after a model invocation; the ledger
// prices it and turns it into a UsageRecord.
type UsageInput struct {
	UserID       string
	Model        string
	InputTokens  int
	OutputTokens int
	Category     string
	Metadata     map[string]any
}

// Tier is a user's subscription level.
type Tier string

const (
	TierFree       Tier = "free"
	TierStarter    Tier = "starter"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// IsValid reports whether t is a known tier.
func (t Tier) IsValid() bool {
	switch t {
	case TierFree, TierStarter, TierPro, TierEnterprise:
		return true
	}
	return false
}

// QuotaLimits are the per-tier ceilings. UnlimitedQuota disables a limit.
type QuotaLimits struct {
	DailyTokens   int64   `json:"daily_tokens" yaml:"daily_tokens"`
	MonthlyTokens int64   `json:"monthly_tokens" yaml:"monthly_tokens"`
	DailyCost     float64 `json:"daily_cost" yaml:"daily_cost"`
	MonthlyCost   float64 `json:"monthly_cost" yaml:"monthly_cost"`
}

// UsageTotals aggregates tokens and cost over a window.
type UsageTotals struct {
	Tokens int64   `json:"tokens"`
	Cost   float64 `json:"cost"`
	Calls  int     `json:"calls"`
}

// QuotaUsage is the derived usage state for the current day and month.
type QuotaUsage struct {
	Daily   UsageTotals `json:"daily"`
	Monthly UsageTotals `json:"monthly"`
}

// QuotaCheck is the result of comparing usage against tier limits.
type QuotaCheck struct {
	Allowed bool        `json:"allowed"`
	Reason  string      `json:"reason,omitempty"`
	Tier    Tier        `json:"tier"`
	Usage   QuotaUsage  `json:"usage"`
	Limits  QuotaLimits `json:"limits"`
}

// TimelinePoint is one day of usage in an analytics timeline.
type TimelinePoint struct {
	Date   string  `json:"date"`
	Tokens int64   `json:"tokens"`
	Cost   float64 `json:"cost"`
	Calls  int     `json:"calls"`
}

// UsageAnalytics summarizes usage over a date range.
type UsageAnalytics struct {
	UserID     string                 `json:"user_id"`
	From       time.Time              `json:"from"`
	To         time.Time              `json:"to"`
	Totals     UsageTotals            `json:"totals"`
	ByCategory map[string]UsageTotals `json:"by_category"`
	ByModel    map[string]UsageTotals `json:"by_model"`
	Timeline   []TimelinePoint        `json:"timeline"`
	TopCostly  []*UsageRecord         `json:"top_costly"`
}

// Trend is the direction of recent spend.
type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// CostProjection extrapolates month-to-date spend.
type CostProjection struct {
	UserID             string  `json:"user_id"`
	MonthToDateCost    float64 `json:"month_to_date_cost"`
	DailyAverage       float64 `json:"daily_average"`
	ProjectedMonthCost float64 `json:"projected_month_cost"`
	ProjectedYearCost  float64 `json:"projected_year_cost"`
	DaysElapsed        int     `json:"days_elapsed"`
	DaysInMonth        int     `json:"days_in_month"`
	Trend              Trend   `json:"trend"`
}

// ExportFormat selects the usage export encoding.
type ExportFormat string

const (
	ExportCSV  ExportFormat = "csv"
	ExportJSON ExportFormat = "json"
)
